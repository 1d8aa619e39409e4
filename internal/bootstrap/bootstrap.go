package bootstrap

import (
	"context"
	"fmt"

	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/internal/executor"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs/repository"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs/usecase"
	"github.com/amankumarsingh77/yt-transcriber/internal/worker"
	"github.com/amankumarsingh77/yt-transcriber/pkg/db/aws"
	"github.com/amankumarsingh77/yt-transcriber/pkg/db/postgres"
	"github.com/amankumarsingh77/yt-transcriber/pkg/db/rabbitmq"
	clientRedis "github.com/amankumarsingh77/yt-transcriber/pkg/db/redis"
	"github.com/amankumarsingh77/yt-transcriber/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
	DriverLocal    = "local"
	DriverS3       = "s3"

	BackendWhisper = "whisper"
	BackendOpenAI  = "openai"
)

// App holds the collaborators shared by the API and the workers.
type App struct {
	Repo      jobs.Repository
	Queue     jobs.Queue
	Locker    jobs.Locker
	Artifacts jobs.ArtifactStore
	AWSRepo   jobs.AWSRepository
	UseCase   jobs.UseCase

	cfg     *config.Config
	logger  logger.Logger
	closers []func() error
}

// New connects the drivers selected in cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: log}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.UseCase = usecase.NewJobsUseCase(cfg, app.Repo, app.Queue, app.Artifacts, log)
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	if err := a.initRepository(ctx); err != nil {
		return err
	}
	redisClient, err := a.initRedis(ctx)
	if err != nil {
		return err
	}
	if err = a.initQueue(redisClient); err != nil {
		return err
	}
	if redisClient != nil {
		a.Locker = repository.NewRedisLocker(redisClient, a.cfg.Worker.LockTTL)
	} else {
		a.Locker = repository.NewMemoryLocker()
	}
	return a.initArtifacts(ctx)
}

func (a *App) initRepository(ctx context.Context) error {
	switch a.cfg.Storage.JobDriver {
	case DriverMemory, "":
		a.Repo = repository.NewMemoryRepo()
	case DriverPostgres:
		db, err := postgres.NewPsqlDB(ctx, a.cfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.logger.Infof("Postgres connected, status: %#v", db.Stats())
		repo := repository.NewJobsRepo(db)
		if err = repo.Migrate(ctx); err != nil {
			return errors.Wrap(err, "migrate jobs table")
		}
		a.Repo = repo
	default:
		return fmt.Errorf("unknown storage.jobDriver %q", a.cfg.Storage.JobDriver)
	}
	return nil
}

// initRedis connects when the queue lives in redis or a redis address is
// configured for cross-process job locks.
func (a *App) initRedis(ctx context.Context) (*redis.Client, error) {
	if a.cfg.Worker.QueueDriver != DriverRedis && a.cfg.Redis.RedisAddr == "" {
		return nil, nil
	}
	client, err := clientRedis.NewRedisClient(ctx, a.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect redis")
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Infof("Redis connected")
	return client, nil
}

func (a *App) initQueue(redisClient *redis.Client) error {
	switch a.cfg.Worker.QueueDriver {
	case DriverMemory, "":
		a.Queue = repository.NewMemoryQueue(0)
	case DriverRedis:
		a.Queue = repository.NewRedisQueue(redisClient, a.cfg.Redis.JobQueueKey)
	case DriverRabbitMQ:
		conn, err := rabbitmq.NewConnection(a.cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, conn.Close)
		q, err := repository.NewRabbitQueue(conn, a.cfg.RabbitMQ.Queue, a.cfg.Worker.WorkerCount)
		if err != nil {
			return err
		}
		a.Queue = q
		a.logger.Infof("RabbitMQ connected, queue: %s", a.cfg.RabbitMQ.Queue)
	default:
		return fmt.Errorf("unknown worker.queueDriver %q", a.cfg.Worker.QueueDriver)
	}
	a.closers = append(a.closers, a.Queue.Close)
	return nil
}

func (a *App) initArtifacts(ctx context.Context) error {
	s3cfg := a.cfg.S3
	if a.cfg.Storage.ArtifactDriver == DriverS3 || s3cfg.Region != "" || s3cfg.Endpoint != "" {
		s3Client, presignClient, err := aws.NewAWSClient(ctx, s3cfg.Endpoint, s3cfg.Region, s3cfg.AccessKey, s3cfg.SecretKey)
		if err != nil {
			return err
		}
		a.AWSRepo = repository.NewAwsRepository(s3Client, presignClient, s3cfg.PresignExpiry)
	}

	switch a.cfg.Storage.ArtifactDriver {
	case DriverLocal, "":
		a.Artifacts = repository.NewLocalArtifactStore(a.cfg.Storage.LocalDir)
	case DriverS3:
		if s3cfg.ArtifactBucket == "" {
			return errors.New("s3.artifactBucket is required for the s3 artifact driver")
		}
		a.Artifacts = repository.NewS3ArtifactStore(a.AWSRepo, s3cfg.ArtifactBucket)
	default:
		return fmt.Errorf("unknown storage.artifactDriver %q", a.cfg.Storage.ArtifactDriver)
	}
	return nil
}

// Executors builds the stage executors. External tools share one runner so
// the optional cgroup CPU share applies to all of them.
func (a *App) Executors() (worker.Executors, error) {
	ecfg := a.cfg.Executor
	runner := executor.NewExecRunner(ecfg.CPUShares)

	var transcriber executor.Transcriber
	switch ecfg.TranscriberBackend {
	case BackendWhisper, "":
		transcriber = executor.NewWhisperCLI(ecfg, runner)
	case BackendOpenAI:
		if ecfg.OpenAIKey == "" {
			return worker.Executors{}, errors.New("executor.openAIKey is required for the openai backend")
		}
		transcriber = executor.NewOpenAIBackend(ecfg)
	default:
		return worker.Executors{}, fmt.Errorf("unknown executor.transcriberBackend %q", ecfg.TranscriberBackend)
	}

	return worker.Executors{
		Downloader:  executor.NewMediaDownloader(ecfg, runner, a.AWSRepo),
		Transcriber: transcriber,
		Formatter:   executor.NewFormatter(),
	}, nil
}

// NewWorker assembles the orchestrator pool on top of the app's collaborators.
func (a *App) NewWorker() (*worker.Worker, error) {
	exec, err := a.Executors()
	if err != nil {
		return nil, err
	}
	orch := worker.NewOrchestrator(a.cfg.Worker, a.Repo, a.Locker, a.Artifacts, exec, a.logger)
	media := executor.NewMediaJanitor(a.cfg.Executor.WorkDir)
	return worker.NewWorker(a.cfg.Worker, a.logger, a.Queue, a.Repo, orch, a.UseCase, media), nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warnf("bootstrap close error: %v", err)
		}
	}
	a.closers = nil
}
