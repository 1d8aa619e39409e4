package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/amankumarsingh77/yt-transcriber/internal/bootstrap"
	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/pkg/logger"
)

func main() {
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

	pool, err := app.NewWorker()
	if err != nil {
		appLogger.Fatalf("worker: %v", err)
	}
	appLogger.Infof("starting %d workers, queue: %s, backend: %s",
		cfg.Worker.WorkerCount, cfg.Worker.QueueDriver, cfg.Executor.TranscriberBackend)
	pool.Start(ctx)

	<-ctx.Done()
	log.Println("Shutting down...")
	pool.Wait()
	appLogger.Info("workers stopped")
}
