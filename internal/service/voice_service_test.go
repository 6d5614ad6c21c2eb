package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"talklens-go/internal/config"
	"talklens-go/internal/model"
	"talklens-go/internal/service"
	"talklens-go/pkg/tasks"
)

type voiceFixture struct {
	transcriptRepo *MockTranscriptRepository
	reportRepo     *MockReportRepository
	analysis       *MockAnalysis
	sttClient      *MockSTT
	store          *MockStore
	produced       []tasks.AnalysisTask
	svc            service.VoiceService
}

func newVoiceFixture() *voiceFixture {
	f := &voiceFixture{
		transcriptRepo: new(MockTranscriptRepository),
		reportRepo:     new(MockReportRepository),
		analysis:       new(MockAnalysis),
		sttClient:      new(MockSTT),
		store:          new(MockStore),
	}
	f.svc = service.NewVoiceService(
		f.transcriptRepo, f.reportRepo, f.analysis, f.sttClient, f.store,
		config.MinIOConfig{BucketName: "voices"},
		func(task tasks.AnalysisTask) error {
			f.produced = append(f.produced, task)
			return nil
		})
	return f
}

func TestTranscribeSubmitsJobAndCreatesTranscript(t *testing.T) {
	f := newVoiceFixture()

	f.analysis.On("InitializeReport", "A", "A", "B", "B", model.ReportSourceVoice).Return(uint(77), nil)
	f.store.On("Upload", mock.Anything, "voices", mock.Anything, mock.Anything, int64(1024), "audio/wav").Return(nil)
	f.store.On("PresignedGetURL", "voices", mock.Anything, time.Hour).Return("https://minio/voices/obj.wav", nil)
	f.sttClient.On("SubmitJob", mock.Anything, "https://minio/voices/obj.wav").Return("job-1", nil)
	f.transcriptRepo.On("Create", mock.AnythingOfType("*model.Transcript")).Run(func(args mock.Arguments) {
		args.Get(0).(*model.Transcript).ID = 5
	}).Return(nil)

	transcript, err := f.svc.Transcribe(context.Background(), "u1", "对话.wav", "audio/wav", strings.NewReader("data"), 1024)
	require.NoError(t, err)

	assert.Equal(t, uint(5), transcript.ID)
	assert.Equal(t, "u1", transcript.UserID)
	assert.Equal(t, "job-1", transcript.JobID)
	assert.Equal(t, model.TranscriptStatePending, transcript.State)
	require.NotNil(t, transcript.ReportID)
	assert.Equal(t, uint(77), *transcript.ReportID)
	// 对象名带上传者前缀与原始扩展名
	assert.True(t, strings.HasPrefix(transcript.ObjectName, "u1/"))
	assert.True(t, strings.HasSuffix(transcript.ObjectName, ".wav"))
}

func TestTranscribeUploadFailureMarksReportFailed(t *testing.T) {
	f := newVoiceFixture()

	f.analysis.On("InitializeReport", "A", "A", "B", "B", model.ReportSourceVoice).Return(uint(77), nil)
	f.store.On("Upload", mock.Anything, "voices", mock.Anything, mock.Anything, int64(1024), "audio/wav").
		Return(assert.AnError)
	f.reportRepo.On("MarkFailed", uint(77)).Return(nil)

	_, err := f.svc.Transcribe(context.Background(), "u1", "a.wav", "audio/wav", strings.NewReader("data"), 1024)
	require.Error(t, err)

	// 预建报告不能停留在 PENDING
	f.reportRepo.AssertCalled(t, "MarkFailed", uint(77))
	f.sttClient.AssertNotCalled(t, "SubmitJob", mock.Anything, mock.Anything)
	f.transcriptRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestTranscribeSTTFailureMarksReportFailed(t *testing.T) {
	f := newVoiceFixture()

	f.analysis.On("InitializeReport", "A", "A", "B", "B", model.ReportSourceVoice).Return(uint(78), nil)
	f.store.On("Upload", mock.Anything, "voices", mock.Anything, mock.Anything, int64(1024), "audio/wav").Return(nil)
	f.store.On("PresignedGetURL", "voices", mock.Anything, time.Hour).Return("https://minio/voices/obj.wav", nil)
	f.sttClient.On("SubmitJob", mock.Anything, mock.Anything).Return("", assert.AnError)
	f.reportRepo.On("MarkFailed", uint(78)).Return(nil)

	_, err := f.svc.Transcribe(context.Background(), "u1", "a.wav", "audio/wav", strings.NewReader("data"), 1024)
	require.Error(t, err)

	f.reportRepo.AssertCalled(t, "MarkFailed", uint(78))
	f.transcriptRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestHandleCallbackPersistsAndProducesTask(t *testing.T) {
	f := newVoiceFixture()
	reportID := uint(77)
	pending := &model.Transcript{ID: 5, JobID: "job-1", State: model.TranscriptStatePending, ReportID: &reportID}
	segments := model.ChatTurnList{
		{UserID: "A", Name: "A", Message: "你好"},
		{UserID: "B", Name: "B", Message: "你好呀"},
	}

	f.transcriptRepo.On("FindByJobID", "job-1").Return(pending, nil)
	f.transcriptRepo.On("Update", mock.AnythingOfType("*model.Transcript")).Return(nil)

	require.NoError(t, f.svc.HandleCallback(context.Background(), "job-1", segments))

	assert.Equal(t, model.TranscriptStateCompleted, pending.State)
	assert.Equal(t, segments, pending.Segments)
	require.Len(t, f.produced, 1)
	assert.Equal(t, uint(77), f.produced[0].ReportID)
	assert.Equal(t, uint(5), f.produced[0].TranscriptID)
	assert.Equal(t, tasks.SourceVoice, f.produced[0].Source)
}

func TestHandleCallbackIgnoresReplay(t *testing.T) {
	f := newVoiceFixture()
	reportID := uint(77)
	done := &model.Transcript{ID: 5, JobID: "job-1", State: model.TranscriptStateCompleted, ReportID: &reportID}

	f.transcriptRepo.On("FindByJobID", "job-1").Return(done, nil)

	require.NoError(t, f.svc.HandleCallback(context.Background(), "job-1", model.ChatTurnList{{UserID: "A", Name: "A", Message: "重放"}}))

	f.transcriptRepo.AssertNotCalled(t, "Update", mock.Anything)
	assert.Empty(t, f.produced)
}
