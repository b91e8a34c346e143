// @title                       NFS-e API
// @version                     1.0
// @description                 Emissão, cancelamento e consulta de NFS-e no padrão nacional (Sefin Nacional).
// @BasePath                    /
// @securityDefinitions.apikey  Bearer
// @in                          header
// @name                        Authorization
// @description                 Token JWT no formato "Bearer {token}"
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	_ "github.com/zapflow/nfse-api/docs"
	"github.com/zapflow/nfse-api/internal/bootstrap"
	"github.com/zapflow/nfse-api/internal/infrastructure/monitoring"
	"github.com/zapflow/nfse-api/internal/infrastructure/postgres"
	httpRouter "github.com/zapflow/nfse-api/internal/interfaces/http"
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
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicação")

	ctx := context.Background()
	pool, err := bootstrap.ConnectDB(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("conexão com PostgreSQL")
	}
	defer pool.Close()

	transport, err := queue.NewTransport(cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("conectar à fila")
	}
	defer transport.Close()
	publisher := queue.NewPublisher(transport.Publisher, cfg.Queue.Topic, log)

	deps := httpRouter.RouterDeps{
		Invoices:  postgres.NewTaxInvoiceRepository(pool),
		Issuers:   postgres.NewIssuerConfigRepository(pool),
		Jobs:      publisher,
		JWTSecret: cfg.JWT.Secret,
		Logger:    log,
	}

	// Com orquestrador a API também consome a fila (obrigatório no transporte em memória)
	// e o cache de certificado do processo pode ser invalidado pela rota de admin.
	jobsCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	if orchestrator, err := bootstrap.NewOrchestrator(ctx, cfg, pool, log); err != nil {
		log.Warn().Err(err).Msg("orquestrador indisponível, API apenas enfileira")
	} else {
		deps.Certs = orchestrator
		startJobRouter(jobsCtx, cfg, transport, orchestrator, log)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI: http://localhost:<port>/docs
	if _, err := os.Stat(cfg.HTTP.DocsFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: cfg.HTTP.DocsFile,
			Path:     "docs",
			Title:    "NFS-e API",
		}))
	} else if cfg.HTTP.DocsFile != "" {
		log.Warn().Err(err).Str("file", cfg.HTTP.DocsFile).Msg("swagger.json ausente, /docs desligado")
	}

	httpRouter.Router(app, deps)

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("sinal de desligamento recebido, encerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("desligamento do servidor")
	}

	log.Info().Msg("aplicação parada")
}

func startJobRouter(ctx context.Context, cfg *config.Config, transport *queue.Transport, svc queue.JobService, log *logger.Logger) {
	reporter, err := monitoring.NewSentryReporter(cfg.Sentry, log)
	if err != nil {
		log.Error().Err(err).Msg("inicializar sentry")
		return
	}
	router, err := queue.NewRouter(cfg.Queue, transport, queue.NewProcessor(svc, reporter, log), log)
	if err != nil {
		log.Error().Err(err).Msg("montar router de jobs")
		return
	}
	go func() {
		defer reporter.Flush(2 * time.Second)
		if err := router.Run(ctx); err != nil {
			log.Error().Err(err).Msg("router de jobs finalizado")
		}
	}()
}
