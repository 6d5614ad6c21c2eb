// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"talklens-go/internal/config"
	"talklens-go/internal/handler"
	"talklens-go/internal/hub"
	"talklens-go/internal/middleware"
	"talklens-go/internal/model"
	"talklens-go/internal/pipeline"
	"talklens-go/internal/repository"
	"talklens-go/internal/seed"
	"talklens-go/internal/service"
	"talklens-go/pkg/bus"
	"talklens-go/pkg/database"
	"talklens-go/pkg/es"
	"talklens-go/pkg/kafka"
	"talklens-go/pkg/llm"
	"talklens-go/pkg/log"
	"talklens-go/pkg/storage"
	"talklens-go/pkg/stt"
	"talklens-go/pkg/token"
	"talklens-go/pkg/userclient"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库与外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	if err := database.DB.AutoMigrate(
		&model.ChatRoom{},
		&model.ChatRoomParticipant{},
		&model.ChatRoomReadStatus{},
		&model.ChatMessage{},
		&model.ConversationReport{},
		&model.Transcript{},
		&model.SeedHistory{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 4. 初始化 Repository
	roomRepo := repository.NewRoomRepository(database.DB)
	msgRepo := repository.NewMessageRepository(database.DB)
	reportRepo := repository.NewReportRepository(database.DB)
	transcriptRepo := repository.NewTranscriptRepository(database.DB)
	seedRepo := repository.NewSeedRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret)
	llmClient := llm.NewClient(cfg.LLM)
	sttClient := stt.NewClient(cfg.STT)
	userClient := userclient.NewClient(cfg.UserService)
	eventBus := bus.NewRedisBus(database.RDB, cfg.Bus.Channel)

	retrievalService := service.NewRetrievalService(es.ESClient, cfg.Elasticsearch.IndexName)
	analysisService := service.NewAnalysisService(reportRepo, retrievalService, llmClient, eventBus, cfg.Analysis, cfg.LLM)
	chatService := service.NewChatService(roomRepo, msgRepo, userClient, eventBus, analysisService, kafka.ProduceAnalysisTask)
	reportService := service.NewReportService(reportRepo, userClient)
	voiceService := service.NewVoiceService(transcriptRepo, reportRepo, analysisService, sttClient, storage.NewStore(), cfg.MinIO, kafka.ProduceAnalysisTask)

	// 6. 初始化分析任务流水线并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(roomRepo, msgRepo, transcriptRepo, reportRepo, analysisService, userClient)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7. 启动网关 Hub：订阅总线并向本地会话投递
	gatewayHub := hub.NewHub(eventBus, chatService, roomRepo, jwtManager, userClient)
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	go func() {
		if err := gatewayHub.Run(hubCtx); err != nil && hubCtx.Err() == nil {
			log.Errorf("事件总线订阅中断: %v", err)
		}
	}()

	// 8. 启动时灌入参考语料（按指纹幂等）
	seedLoader := seed.NewLoader(seedRepo, es.ESClient, cfg.Elasticsearch.IndexName, cfg.Dataset)
	go func() {
		if err := seedLoader.Run(context.Background()); err != nil {
			log.Errorf("语料灌入失败: %v", err)
		}
	}()

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	roomHandler := handler.NewRoomHandler(chatService)
	reportHandler := handler.NewReportHandler(reportService)
	voiceHandler := handler.NewVoiceHandler(voiceService)
	wsHandler := handler.NewWSHandler(gatewayHub)

	// 10. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		rooms := apiV1.Group("/rooms")
		rooms.Use(middleware.AuthMiddleware(jwtManager))
		{
			rooms.POST("", roomHandler.CreateRoom)
			rooms.GET("", roomHandler.ListRooms)
			rooms.POST("/:uuid/join", roomHandler.JoinRoom)
			rooms.POST("/:uuid/leave", roomHandler.LeaveRoom)
			rooms.GET("/:uuid/messages", roomHandler.History)
			rooms.GET("/:uuid/messages/all", roomHandler.AllMessages)
			rooms.POST("/:uuid/messages", roomHandler.SendMessage)
			rooms.PUT("/:uuid/read", roomHandler.MarkRead)
			rooms.POST("/:uuid/end", roomHandler.EndChat)
		}
		apiV1.POST("/rooms/id/:id/end", middleware.AuthMiddleware(jwtManager), roomHandler.EndChatByID)

		reports := apiV1.Group("/reports")
		reports.Use(middleware.AuthMiddleware(jwtManager))
		{
			reports.GET("", reportHandler.ListReports)
			reports.GET("/:id", reportHandler.GetReport)
			reports.PATCH("/:id/user-name", reportHandler.UpdateUserName)
		}

		voice := apiV1.Group("/voice")
		{
			voice.POST("/transcribe", middleware.AuthMiddleware(jwtManager), voiceHandler.Transcribe)
			// 回调由转写服务调用，不做用户鉴权
			voice.POST("/callback", voiceHandler.Callback)
		}
	}

	// WebSocket 升级入口，认证在首个 CONNECT 帧完成
	r.GET("/ws", wsHandler.Serve)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	cancelHub()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
