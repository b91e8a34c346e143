package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/zapflow/nfse-api/internal/bootstrap"
	"github.com/zapflow/nfse-api/internal/infrastructure/monitoring"
	"github.com/zapflow/nfse-api/internal/interfaces/queue"
	"github.com/zapflow/nfse-api/pkg/config"
	"github.com/zapflow/nfse-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("carregar configuração: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name + "-worker",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("topic", cfg.Queue.Topic).
		Bool("kafka", cfg.Queue.UsesKafka()).
		Msg("iniciando worker de NFS-e")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.ConnectDB(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("conexão com PostgreSQL")
	}
	defer pool.Close()

	orchestrator, err := bootstrap.NewOrchestrator(ctx, cfg, pool, log)
	if err != nil {
		log.Fatal().Err(err).Msg("montar orquestrador")
	}

	reporter, err := monitoring.NewSentryReporter(cfg.Sentry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar sentry")
	}
	defer reporter.Flush(2 * time.Second)

	transport, err := queue.NewTransport(cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("conectar à fila")
	}
	defer transport.Close()

	processor := queue.NewProcessor(orchestrator, reporter, log)
	router, err := queue.NewRouter(cfg.Queue, transport, processor, log)
	if err != nil {
		log.Fatal().Err(err).Msg("montar router de jobs")
	}

	if err := router.Run(ctx); err != nil {
		log.Error().Err(err).Msg("router de jobs finalizado")
	}

	log.Info().Msg("worker parado")
}
