package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyerfyer/rag-chat/api"
	"github.com/fyerfyer/rag-chat/api/handler"
	"github.com/fyerfyer/rag-chat/api/middleware"
	appconfig "github.com/fyerfyer/rag-chat/config"
	"github.com/fyerfyer/rag-chat/internal/cache"
	"github.com/fyerfyer/rag-chat/internal/document"
	"github.com/fyerfyer/rag-chat/internal/pipeline"
	"github.com/fyerfyer/rag-chat/internal/services"
	"github.com/fyerfyer/rag-chat/internal/vectordb"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 命令行参数，显式设置时覆盖配置文件
type flags struct {
	ConfigFile string // 配置文件路径
	Port       int    // 服务端口
	Mode       string // 运行模式 (debug/release)
	LogLevel   string // 日志级别
}

func main() {
	f := parseFlags()

	cfg, err := appconfig.Load(f.ConfigFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, f)

	gin.SetMode(cfg.Server.Mode)

	// 初始化日志
	logger := middleware.SetupLogger(middleware.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger.WithFields(logrus.Fields{
		"mock_mode":    cfg.MockMode(),
		"vector_store": cfg.VectorStore.Type,
		"model":        cfg.OpenAI.Model,
	}).Info("Starting RAG chat server...")

	// 创建文本分块器
	chunker, err := document.NewChunker(document.ChunkerConfig{
		ChunkSize:    cfg.Document.ChunkSize,
		ChunkOverlap: cfg.Document.ChunkOverlap,
	})
	if err != nil {
		logger.Fatalf("Failed to create chunker: %v", err)
	}

	// 流水线在后台初始化，失败后由下一次请求重试
	manager := pipeline.NewManager(
		pipeline.NewBuilder(pipelineOptions(cfg), logger),
		pipeline.WithInitTimeout(cfg.Pipeline.InitTimeout),
		pipeline.WithLogger(logger),
	)
	defer manager.Close()
	manager.Warmup(context.Background())

	ingestOpts := []services.IngestOption{
		services.WithChunker(chunker),
		services.WithIngestLogger(logger),
	}
	queryOpts := []services.QueryOption{
		services.WithModel(cfg.OpenAI.Model),
		services.WithAnswerFields(cfg.Query.AnswerFields...),
		services.WithQueryLogger(logger),
	}

	// 创建回答缓存（可选）
	if cfg.Cache.Enable {
		answerCache, err := setupCache(cfg)
		if err != nil {
			logger.Fatalf("Failed to initialize cache: %v", err)
		}
		defer answerCache.Close()
		ingestOpts = append(ingestOpts, services.WithIngestCache(answerCache))
		queryOpts = append(queryOpts, services.WithAnswerCache(answerCache, cfg.Cache.TTL))
		logger.WithField("type", cfg.Cache.Type).Info("Answer cache enabled")
	}

	ingestService := services.NewIngestService(manager, ingestOpts...)
	queryService := services.NewQueryService(manager, queryOpts...)

	// 初始化API处理器
	router := api.SetupRouter(
		handler.NewIngestHandler(ingestService),
		handler.NewQueryHandler(queryService),
		handler.NewHealthHandler(manager, handler.AdminInfo{
			MockMode:       cfg.MockMode(),
			HasOpenAIKey:   cfg.HasOpenAIKey(),
			VectorStoreURL: cfg.VectorStore.URL,
			OpenAIModel:    cfg.OpenAI.Model,
			EmbeddingModel: cfg.Embedding.Model,
			Collection:     cfg.VectorStore.Collection,
		}),
	)
	if cfg.Web.Dir != "" && api.RegisterWebUI(router, cfg.Web.Dir) {
		logger.Infof("Serving chat page from %s", cfg.Web.Dir)
	}

	// 启动HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() flags {
	var f flags
	flag.StringVar(&f.ConfigFile, "config", "config.yaml", "Path to config file")
	flag.IntVar(&f.Port, "port", 0, "Server port (overrides config)")
	flag.StringVar(&f.Mode, "mode", "", "Run mode (debug/release)")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug/info/warn/error)")
	flag.Parse()
	return f
}

// applyFlags 用显式设置的命令行参数覆盖配置
func applyFlags(cfg *appconfig.Config, f flags) {
	if f.Port > 0 {
		cfg.Server.Port = f.Port
	}
	if f.Mode != "" {
		cfg.Server.Mode = f.Mode
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
}

// pipelineOptions 将配置转换为流水线构建参数
func pipelineOptions(cfg *appconfig.Config) pipeline.Options {
	return pipeline.Options{
		Mock:           cfg.Pipeline.Mock,
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.Model,
		EmbeddingModel: cfg.Embedding.Model,
		Dimensions:     cfg.Embedding.Dimensions,
		PromptTemplate: cfg.OpenAI.PromptTemplate,
		SystemPrompt:   cfg.OpenAI.SystemPrompt,
		Temperature:    cfg.OpenAI.Temperature,
		MaxTokens:      cfg.OpenAI.MaxTokens,
		RequestTimeout: cfg.OpenAI.Timeout,
		BatchSize:      cfg.Embedding.BatchSize,
		Workers:        cfg.Embedding.Workers,
		TopK:           cfg.Pipeline.TopK,
		MinScore:       cfg.Pipeline.MinScore,
		VectorStore: vectordb.Config{
			Type:         cfg.VectorStore.Type,
			Path:         cfg.VectorStore.Path,
			URL:          cfg.VectorStore.URL,
			APIKey:       cfg.VectorStore.APIKey,
			Collection:   cfg.VectorStore.Collection,
			Dimension:    cfg.VectorStore.Dimension,
			DistanceType: vectordb.DistanceType(cfg.VectorStore.Distance),
			Timeout:      cfg.VectorStore.Timeout,
		},
	}
}

// setupCache 设置回答缓存
func setupCache(cfg *appconfig.Config) (cache.Cache, error) {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.Type = cfg.Cache.Type
	cacheConfig.Prefix = cfg.Cache.Prefix
	cacheConfig.DefaultTTL = cfg.Cache.TTL

	if cfg.Cache.Type == "redis" {
		cacheConfig.RedisAddr = cfg.Cache.Address
		cacheConfig.RedisPassword = cfg.Cache.Password
		cacheConfig.RedisDB = cfg.Cache.DB
	}

	return cache.NewCache(cacheConfig)
}
