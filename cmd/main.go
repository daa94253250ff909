package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strconv"
	"strings"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Lejs5034/LegionOfBrothers-sub000/config"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/consumer"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/handlers"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/permission"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/prefs"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/realtime"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/repositories"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/routers"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/services"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/session"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/storage"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/upload"
	"github.com/Lejs5034/LegionOfBrothers-sub000/middleware/jwt"
	logger "github.com/Lejs5034/LegionOfBrothers-sub000/middleware/log"
	"github.com/Lejs5034/LegionOfBrothers-sub000/pkg/mq"
	"github.com/Lejs5034/LegionOfBrothers-sub000/pkg/ws"
	"github.com/Lejs5034/LegionOfBrothers-sub000/utils/ratelimit"
	"github.com/Lejs5034/LegionOfBrothers-sub000/utils/snowflake"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置初始化失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.Driver == "sqlite" {
		return storage.InitSQLite(cfg.Database.SQLitePath)
	}
	dsn := storage.BuildDSN(cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName)
	return storage.InitPostgres(dsn, cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns)
}

// objectKeys names stored attachments attachments/<snowflake>/<file name>, so
// keys sort by upload time.
func objectKeys(gen *snowflake.Generator, log *zap.Logger) func(string) string {
	return func(name string) string {
		id, err := gen.NextString()
		if err != nil {
			log.Warn("snowflake id unavailable, using uuid", zap.Error(err))
			id = uuid.NewString()
		}
		return path.Join("attachments", id, name)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("database 初始化失败: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	redisClient, err := storage.InitRedis(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.MinIdleConns)
	if err != nil {
		return fmt.Errorf("redis 初始化失败: %w", err)
	}
	defer redisClient.Close()

	bucket, err := storage.NewBucket(cfg.Storage.Root, cfg.Storage.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("bucket 初始化失败: %w", err)
	}
	ids, err := snowflake.NewGenerator(cfg.Snowflake.NodeID)
	if err != nil {
		return fmt.Errorf("snowflake 初始化失败: %w", err)
	}

	// 初始化仓储层
	userRepo := repositories.NewUserRepository(db, redisClient)
	serverRepo := repositories.NewServerRepository(db)
	messageRepo := repositories.NewMessageRepository(db)
	directRepo := repositories.NewDirectMessageRepository(db)
	mentionRepo := repositories.NewMentionRepository(db)
	pinRepo := repositories.NewPinRepository(db)
	attachmentRepo := repositories.NewAttachmentRepository(db)

	broker := realtime.NewBroker(redisClient, log.Logger)
	sendLimiter := ratelimit.NewLimiter(redisClient, log.Named("ratelimit").Logger, "send",
		ratelimit.Rule{Limit: cfg.RateLimit.SendLimit, Window: cfg.RateLimit.SendWindow}, true)
	authLimiter := ratelimit.NewLimiter(redisClient, log.Named("ratelimit").Logger, "auth",
		ratelimit.Rule{Limit: cfg.RateLimit.AuthLimit, Window: cfg.RateLimit.AuthWindow}, true)

	deps := services.MessageDeps{
		Users:     userRepo,
		Servers:   serverRepo,
		Messages:  messageRepo,
		Directs:   directRepo,
		Mentions:  mentionRepo,
		Broker:    broker,
		Limiter:   sendLimiter,
		Objects:   bucket,
		PublicURL: bucket.PublicURL,
		Logger:    log.Named("messages").Logger,
	}

	// Kafka 不可用时降级为直接写库
	var producer *mq.KafkaProducer
	if cfg.Kafka.Enabled {
		producer, err = mq.NewKafkaProducer(cfg.Kafka, log.Named("kafka").Logger)
		if err != nil {
			log.Warn("kafka producer unavailable, recording mentions directly", zap.Error(err))
		} else {
			defer producer.Close()
			deps.Producer = producer
		}
	}

	// 初始化服务层
	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.RefreshWindow)
	authService := services.NewAuthService(userRepo, tokens)
	messageService := services.NewMessageService(deps, services.MessageOptions{
		HistoryLimit:     cfg.Chat.HistoryLimit,
		MaxContentLength: cfg.Chat.MaxContentLength,
	})
	pinService := services.NewPinService(userRepo, serverRepo, messageRepo, pinRepo)
	moderationService := services.NewModerationService(userRepo, serverRepo,
		permission.NewCourseGate(cfg.Courses.ProfessorKeys), log.Logger)
	serverService := services.NewServerService(userRepo, serverRepo)

	if producer != nil {
		group, err := consumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic,
			consumer.NewMentionConsumer(messageService, log.Logger), log.Named("consumer").Logger)
		if err != nil {
			log.Warn("kafka consumer unavailable", zap.Error(err))
		} else {
			defer func(g sarama.ConsumerGroup) { _ = g.Close() }(group)
		}
	}

	coordinator := upload.NewCoordinator(bucket, services.NewAttachmentService(attachmentRepo), upload.Options{
		DeniedExtensions: cfg.Storage.DeniedExtensions,
		MaxFileSize:      cfg.Storage.MaxFileSize,
		KeyFunc:          objectKeys(ids, log.Logger),
		Logger:           log.Named("upload").Logger,
	})

	hub := ws.NewHub(broker, messageService, log.Logger)
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Error("websocket hub stopped", zap.Error(err))
		}
	}()

	store := prefs.NewStore(redisClient)
	checker := session.NewChecker(authService, cfg.Session.AuthCheckTimeout, cfg.Session.SignInPath, log.Named("session").Logger)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())

	routes := routers.Deps{
		Logger:        log.Named("http"),
		Checker:       checker,
		CORSOrigins:   cfg.Server.CORSOrigins,
		MaxConcurrent: cfg.Server.MaxConcurrent,
		AuthLimiter:   authLimiter,
		Hub:           hub,
		Auth:          handlers.NewAuthHandler(authService, store, cfg.JWT.TTL),
		Messages:      handlers.NewMessageHandler(messageService, coordinator),
		Pins:          handlers.NewPinHandler(pinService),
		RPC:           handlers.NewRPCHandler(moderationService),
		Prefs:         handlers.NewPrefsHandler(store),
		Servers:       handlers.NewServerHandler(serverService),
	}
	// 本地 bucket 通过相对路径公开时由本服务提供静态文件
	if strings.HasPrefix(cfg.Storage.PublicBaseURL, "/") {
		routes.FilesPrefix = cfg.Storage.PublicBaseURL
		routes.FilesRoot = bucket.Root()
	}
	routers.SetupRoutes(r, routes)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: r,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("正在启动服务器", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownWait)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
