package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"talklens-go/internal/config"
	"talklens-go/internal/model"
	"talklens-go/internal/repository"
	"talklens-go/pkg/log"
	"talklens-go/pkg/storage"
	"talklens-go/pkg/stt"
	"talklens-go/pkg/tasks"
)

// VoiceService 实现语音上传转写与回调入库的流程。
// 上传时即刻预建 PENDING 报告，说话人以占位符 A/B 记录，
// 待报告生成后由用户经 UpdateUserName 定稿。
type VoiceService interface {
	// Transcribe 上传音频并提交异步转写作业，返回转写记录。
	Transcribe(ctx context.Context, userID, filename, contentType string, reader io.Reader, size int64) (*model.Transcript, error)
	// HandleCallback 接收转写结果，幂等入库并投递语音分析任务。
	HandleCallback(ctx context.Context, jobID string, segments model.ChatTurnList) error
}

type voiceService struct {
	transcriptRepo repository.TranscriptRepository
	reportRepo     repository.ReportRepository
	analysis       AnalysisService
	sttClient      stt.Client
	store          storage.Store
	minioCfg       config.MinIOConfig
	produceTask    func(tasks.AnalysisTask) error
}

// NewVoiceService 创建一个新的 VoiceService 实例。
func NewVoiceService(
	transcriptRepo repository.TranscriptRepository,
	reportRepo repository.ReportRepository,
	analysis AnalysisService,
	sttClient stt.Client,
	store storage.Store,
	minioCfg config.MinIOConfig,
	produceTask func(tasks.AnalysisTask) error,
) VoiceService {
	return &voiceService{
		transcriptRepo: transcriptRepo,
		reportRepo:     reportRepo,
		analysis:       analysis,
		sttClient:      sttClient,
		store:          store,
		minioCfg:       minioCfg,
		produceTask:    produceTask,
	}
}

func (s *voiceService) Transcribe(ctx context.Context, userID, filename, contentType string, reader io.Reader, size int64) (*model.Transcript, error) {
	reportID, err := s.analysis.InitializeReport("A", "A", "B", "B", model.ReportSourceVoice)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize voice report: %w", err)
	}

	objectName := fmt.Sprintf("%s/%s%s", userID, uuid.NewString(), path.Ext(filename))
	if err := s.store.Upload(ctx, s.minioCfg.BucketName, objectName, reader, size, contentType); err != nil {
		return nil, s.failSetup(reportID, err)
	}

	audioURL, err := s.store.PresignedGetURL(s.minioCfg.BucketName, objectName, time.Hour)
	if err != nil {
		return nil, s.failSetup(reportID, fmt.Errorf("failed to presign audio url: %w", err))
	}

	jobID, err := s.sttClient.SubmitJob(ctx, audioURL)
	if err != nil {
		return nil, s.failSetup(reportID, fmt.Errorf("failed to submit stt job: %w", err))
	}

	transcript := &model.Transcript{
		UserID:     userID,
		ObjectName: objectName,
		JobID:      jobID,
		State:      model.TranscriptStatePending,
		ReportID:   &reportID,
	}
	if err := s.transcriptRepo.Create(transcript); err != nil {
		return nil, s.failSetup(reportID, err)
	}

	log.Infof("语音转写作业已提交: transcriptID=%d, jobID=%s", transcript.ID, jobID)
	return transcript, nil
}

// failSetup 在上传或提交阶段同步失败时把预建报告转为 FAILED，
// 不留下永远 PENDING 的孤儿行。
func (s *voiceService) failSetup(reportID uint, cause error) error {
	if err := s.reportRepo.MarkFailed(reportID); err != nil {
		log.Errorf("标记语音报告失败状态出错: reportID=%d, err=%v", reportID, err)
	}
	return cause
}

func (s *voiceService) HandleCallback(ctx context.Context, jobID string, segments model.ChatTurnList) error {
	transcript, err := s.transcriptRepo.FindByJobID(jobID)
	if err != nil {
		return fmt.Errorf("failed to look up transcript: %w", err)
	}
	if transcript == nil {
		return fmt.Errorf("unknown stt job %s", jobID)
	}
	// 回调重放直接跳过
	if transcript.State == model.TranscriptStateCompleted {
		log.Infof("转写结果已处理，忽略重复回调: jobID=%s", jobID)
		return nil
	}

	transcript.Segments = segments
	transcript.State = model.TranscriptStateCompleted
	if err := s.transcriptRepo.Update(transcript); err != nil {
		return err
	}

	if transcript.ReportID == nil {
		return fmt.Errorf("transcript %d has no report", transcript.ID)
	}
	task := tasks.AnalysisTask{
		ReportID:     *transcript.ReportID,
		TranscriptID: transcript.ID,
		Source:       tasks.SourceVoice,
	}
	if err := s.produceTask(task); err != nil {
		return fmt.Errorf("failed to produce voice analysis task: %w", err)
	}
	return nil
}
