package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Query       QueryConfig       `mapstructure:"query"`
	Document    DocumentConfig    `mapstructure:"document"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Web         WebConfig         `mapstructure:"web"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`                                     // 监听地址
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`          // 服务器端口
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"` // gin运行模式
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`                             // 读取超时
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`                            // 写入超时
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`         // 优雅关闭等待时间
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file"` // 为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// OpenAIConfig 生成模型配置
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`  // 为空时进入演示模式
	BaseURL     string        `mapstructure:"base_url"` // OpenAI兼容接口地址
	Model       string        `mapstructure:"model" validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `mapstructure:"max_tokens" validate:"gte=0"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"` // 单次调用超时

	PromptTemplate string `mapstructure:"prompt_template"` // 包含{context}和{input}，为空时使用默认模板
	SystemPrompt   string `mapstructure:"system_prompt"`
}

// EmbeddingConfig 向量嵌入配置
type EmbeddingConfig struct {
	Model     string `mapstructure:"model" validate:"required"`
	BatchSize int    `mapstructure:"batch_size" validate:"gt=0"` // 每次请求的文本数
	Workers   int    `mapstructure:"workers" validate:"gt=0"`    // 并发请求数
	// 请求的向量维度，0表示模型默认值，非0时应与vector_store.dimension一致
	Dimensions int `mapstructure:"dimensions" validate:"gte=0"`
}

// VectorStoreConfig 向量存储配置
type VectorStoreConfig struct {
	Type       string        `mapstructure:"type" validate:"oneof=memory sqlite qdrant"`
	Path       string        `mapstructure:"path"` // sqlite数据库文件
	URL        string        `mapstructure:"url"`  // 远程向量库地址
	APIKey     string        `mapstructure:"api_key"`
	Collection string        `mapstructure:"collection" validate:"required"`
	Dimension  int           `mapstructure:"dimension" validate:"gt=0"`
	Distance   string        `mapstructure:"distance" validate:"oneof=cosine dot l2"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	Mock        bool          `mapstructure:"mock"`                         // 强制演示模式
	InitTimeout time.Duration `mapstructure:"init_timeout" validate:"gt=0"` // 单次初始化超时
	TopK        int           `mapstructure:"top_k" validate:"gt=0"`        // 检索分块数
	MinScore    float32       `mapstructure:"min_score" validate:"gte=-1,lte=1"`
}

// QueryConfig 问答配置
type QueryConfig struct {
	// 按顺序查找的回答字段，取第一个非空字符串
	AnswerFields []string `mapstructure:"answer_fields" validate:"min=1,dive,required"`
}

// DocumentConfig 文档分块配置
type DocumentConfig struct {
	ChunkSize    int `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkOverlap int `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
}

// CacheConfig 回答缓存配置
type CacheConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Type     string        `mapstructure:"type" validate:"oneof=memory redis"`
	Address  string        `mapstructure:"address"` // Redis地址
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// WebConfig 静态聊天页面配置
type WebConfig struct {
	Dir string `mapstructure:"dir"` // 为空时不提供页面
}

// MockMode 判断是否运行在演示模式
func (c *Config) MockMode() bool {
	return c.Pipeline.Mock || c.OpenAI.APIKey == ""
}

// HasOpenAIKey 是否配置了OpenAI密钥
func (c *Config) HasOpenAIKey() bool {
	return c.OpenAI.APIKey != ""
}

// Load 从.env、配置文件和环境变量加载配置
// configPath为空或文件不存在时只使用默认值和环境变量
func Load(configPath string, envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			logrus.Warnf("Config file not found at %s, using defaults", configPath)
		} else {
			logrus.Infof("Using config file: %s", v.ConfigFileUsed())
		}
	}

	// 支持环境变量覆盖
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.VectorStore.Type == "qdrant" && c.VectorStore.URL == "" {
		return errors.New("invalid config: vector_store.url is required for qdrant")
	}
	if c.Embedding.Dimensions > 0 && c.Embedding.Dimensions != c.VectorStore.Dimension {
		return fmt.Errorf("invalid config: embedding.dimensions %d does not match vector_store.dimension %d",
			c.Embedding.Dimensions, c.VectorStore.Dimension)
	}
	if c.Cache.Enable && c.Cache.Type == "redis" && c.Cache.Address == "" {
		return errors.New("invalid config: cache.address is required for redis")
	}
	return nil
}

// loadDotEnv 加载.env文件，已存在的环境变量不会被覆盖
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// bindEnv 绑定沿用的环境变量名，排在前面的优先
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":             {"SERVER_PORT", "PORT"},
		"log.level":               {"LOG_LEVEL"},
		"openai.api_key":          {"OPENAI_API_KEY"},
		"openai.base_url":         {"OPENAI_BASE_URL"},
		"openai.model":            {"OPENAI_MODEL"},
		"embedding.model":         {"EMBEDDING_MODEL"},
		"vector_store.url":        {"VECTOR_STORE_URL", "CHROMA_SERVER_URL"},
		"vector_store.collection": {"VECTOR_STORE_COLLECTION", "CHROMA_COLLECTION"},
		"cache.address":           {"CACHE_ADDRESS", "REDIS_ADDR"},
		"cache.password":          {"CACHE_PASSWORD", "REDIS_PASSWORD"},
		"web.dir":                 {"WEB_DIR"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// processEnvironmentVariables 展开密钥中的${VAR}占位符并处理演示模式开关
func processEnvironmentVariables(cfg *Config) {
	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	cfg.VectorStore.APIKey = expandEnv(cfg.VectorStore.APIKey)
	cfg.Cache.Password = expandEnv(cfg.Cache.Password)

	if envTrue("USE_MOCK") || envTrue("DEMO_MODE") {
		cfg.Pipeline.Mock = true
	}
}

// expandEnv 仅在包含占位符时展开
func expandEnv(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.ExpandEnv(s)
}

// envTrue 环境变量是否为"true"，不区分大小写
func envTrue(key string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	// 生成模型默认配置
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4")
	v.SetDefault("openai.temperature", 0.2)
	v.SetDefault("openai.max_tokens", 0)
	v.SetDefault("openai.timeout", 60*time.Second)
	v.SetDefault("openai.prompt_template", "")
	v.SetDefault("openai.system_prompt", "")

	// 嵌入默认配置
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.workers", 4)
	v.SetDefault("embedding.dimensions", 0)

	// 向量存储默认配置
	v.SetDefault("vector_store.type", "sqlite")
	v.SetDefault("vector_store.path", "data/vectors.db")
	v.SetDefault("vector_store.url", "")
	v.SetDefault("vector_store.api_key", "")
	v.SetDefault("vector_store.collection", "thummimng")
	v.SetDefault("vector_store.dimension", 1536) // text-embedding-3-small
	v.SetDefault("vector_store.distance", "cosine")
	v.SetDefault("vector_store.timeout", 10*time.Second)

	// 流水线默认配置
	v.SetDefault("pipeline.mock", false)
	v.SetDefault("pipeline.init_timeout", 30*time.Second)
	v.SetDefault("pipeline.top_k", 4)
	v.SetDefault("pipeline.min_score", 0.0)

	// 问答默认配置
	v.SetDefault("query.answer_fields", []string{"answer", "output_text"})

	// 文档分块默认配置
	v.SetDefault("document.chunk_size", 800)
	v.SetDefault("document.chunk_overlap", 100)

	// 缓存默认配置
	v.SetDefault("cache.enable", false)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.prefix", "rag-chat")
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("web.dir", "public")
}
