package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/amankumarsingh77/yt-transcriber/internal/bootstrap"
	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/internal/server"
	"github.com/amankumarsingh77/yt-transcriber/internal/worker"
	"github.com/amankumarsingh77/yt-transcriber/pkg/logger"
)

func main() {
	log.Println("Starting api server")
	cfgFile, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("loadConfig: %v", err)
	}
	cfg, err := config.ParseConfig(cfgFile)
	if err != nil {
		log.Fatalf("parseConfig: %v", err)
	}

	appLogger := logger.NewApiLogger(cfg)
	appLogger.InitLogger()
	appLogger.Infof("AppVersion: %s, LogLevel: %s, Mode: %s", cfg.Server.AppVersion, cfg.Logger.Level, cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()
	appLogger.Infof("drivers ready, jobs: %s, queue: %s, artifacts: %s",
		cfg.Storage.JobDriver, cfg.Worker.QueueDriver, cfg.Storage.ArtifactDriver)

	var pool *worker.Worker
	if cfg.Server.EmbeddedWorker {
		if pool, err = app.NewWorker(); err != nil {
			appLogger.Fatalf("worker: %v", err)
		}
		pool.Start(ctx)
		appLogger.Infof("embedded worker pool started with %d workers", cfg.Worker.WorkerCount)
	}

	s := server.NewServer(cfg, app.UseCase, appLogger)
	if err = s.Run(ctx); err != nil {
		appLogger.Errorf("server stopped: %v", err)
		stop()
	}
	if pool != nil {
		pool.Wait()
	}
	appLogger.Info("server exited")
}
