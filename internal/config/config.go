package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const defaultConfigFile = "config.yml"

type Config struct {
	Server   ServerConfig
	Postgres DBConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	S3       S3Config
	Storage  StorageConfig
	Logger   Logger
	Worker   WorkerConfig
	Executor ExecutorConfig
}

type ServerConfig struct {
	AppVersion   string
	Port         string
	Mode         string
	JwtSecretKey string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CorsOrigins  []string
	// RateLimit is requests per second per client IP, 0 disables it.
	RateLimit float64
	// EmbeddedWorker runs the orchestrator pool inside the API process.
	EmbeddedWorker bool
}

type WorkerConfig struct {
	WorkerCount     int
	MaxCPUUsage     float64
	CheckInterval   time.Duration
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	LockTTL         time.Duration
	QueueDriver     string
	Retention       time.Duration
	CleanupInterval time.Duration
	Recover         bool
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	PgDriver string
	SSLMode  string
}

type RedisConfig struct {
	RedisAddr     string
	RedisPassword string
	DB            int
	MinIdleConns  int
	PoolSize      int
	PoolTimeout   int
	TLS           bool
	JobQueueKey   string
}

type RabbitMQConfig struct {
	URL   string
	Queue string
}

type S3Config struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	ArtifactBucket string
	PresignExpiry  time.Duration
}

// StorageConfig selects the job store and the artifact store drivers.
type StorageConfig struct {
	JobDriver      string
	ArtifactDriver string
	LocalDir       string
}

type ExecutorConfig struct {
	WorkDir            string
	YtDlpPath          string
	FfmpegPath         string
	TranscriberBackend string
	WhisperPath        string
	WhisperModel       string
	WhisperThreads     int
	OpenAIBaseURL      string
	OpenAIKey          string
	OpenAIModel        string
	CPUShares          uint64
	CommandTimeout     time.Duration
}

type Logger struct {
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
	Encoding          string
	Level             string
}

// LoadConfig reads filename (or CONFIG_PATH when filename is empty).
func LoadConfig(filename string) (*viper.Viper, error) {
	if filename == "" {
		filename = os.Getenv("CONFIG_PATH")
	}
	if filename == "" {
		filename = defaultConfigFile
	}
	v := viper.New()
	v.SetConfigFile(filename)
	v.AddConfigPath(".")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFound) || os.IsNotExist(err) {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.setDefaults()
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":5000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Worker.WorkerCount <= 0 {
		c.Worker.WorkerCount = 2
	}
	if c.Worker.MaxCPUUsage <= 0 {
		c.Worker.MaxCPUUsage = 90
	}
	if c.Worker.CheckInterval == 0 {
		c.Worker.CheckInterval = 10 * time.Second
	}
	if c.Worker.MaxAttempts <= 0 {
		c.Worker.MaxAttempts = 3
	}
	if c.Worker.BaseDelay == 0 {
		c.Worker.BaseDelay = time.Second
	}
	if c.Worker.MaxDelay == 0 {
		c.Worker.MaxDelay = 30 * time.Second
	}
	if c.Worker.LockTTL == 0 {
		c.Worker.LockTTL = 10 * time.Minute
	}
	if c.Worker.QueueDriver == "" {
		c.Worker.QueueDriver = "memory"
	}
	if c.Worker.CleanupInterval == 0 {
		c.Worker.CleanupInterval = time.Hour
	}
	if c.Redis.JobQueueKey == "" {
		c.Redis.JobQueueKey = "transcript_jobs"
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "transcript_jobs"
	}
	if c.S3.PresignExpiry == 0 {
		c.S3.PresignExpiry = 15 * time.Minute
	}
	if c.Storage.JobDriver == "" {
		c.Storage.JobDriver = "memory"
	}
	if c.Storage.ArtifactDriver == "" {
		c.Storage.ArtifactDriver = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "transcripts"
	}
	if c.Executor.WorkDir == "" {
		c.Executor.WorkDir = filepath.Join(os.TempDir(), "yt-transcriber")
	}
	if c.Executor.YtDlpPath == "" {
		c.Executor.YtDlpPath = "yt-dlp"
	}
	if c.Executor.FfmpegPath == "" {
		c.Executor.FfmpegPath = "ffmpeg"
	}
	if c.Executor.TranscriberBackend == "" {
		c.Executor.TranscriberBackend = "whisper"
	}
	if c.Executor.WhisperPath == "" {
		c.Executor.WhisperPath = "whisper-cli"
	}
	if c.Executor.OpenAIBaseURL == "" {
		c.Executor.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if c.Executor.OpenAIModel == "" {
		c.Executor.OpenAIModel = "whisper-1"
	}
	if c.Executor.CommandTimeout == 0 {
		c.Executor.CommandTimeout = 30 * time.Minute
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Encoding == "" {
		c.Logger.Encoding = "json"
	}
}
