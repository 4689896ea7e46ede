package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mailpipe/mailpipe/internal/config"
	"github.com/mailpipe/mailpipe/internal/core/ports"
	"github.com/mailpipe/mailpipe/internal/core/report"
	"github.com/mailpipe/mailpipe/internal/core/rules"
	"github.com/mailpipe/mailpipe/internal/core/usecase"
	"github.com/mailpipe/mailpipe/internal/infrastructure/docai"
	"github.com/mailpipe/mailpipe/internal/infrastructure/notify/sendgrid"
	"github.com/mailpipe/mailpipe/internal/infrastructure/provider"
	"github.com/mailpipe/mailpipe/internal/infrastructure/queue/nats"
	excelreport "github.com/mailpipe/mailpipe/internal/infrastructure/report/excel"
	"github.com/mailpipe/mailpipe/internal/infrastructure/repository/postgres"
	"github.com/mailpipe/mailpipe/internal/infrastructure/resilience"
	"github.com/mailpipe/mailpipe/internal/infrastructure/webhook"
)

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Messages ports.MessageRepository

	PollUC    ports.ProviderPoller
	ProcessUC ports.MessageProcessor
	ExtractUC ports.AttachmentExtractor
	RuleUC    ports.RuleService

	PollAll func(ctx context.Context) error

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	messages := postgres.NewMessageRepository(db)
	attachments := postgres.NewAttachmentRepository(db)
	syncState := postgres.NewSyncRepository(db)
	accounts := postgres.NewAccountRepository(db)
	ruleStore := postgres.NewRuleRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	registry := provider.NewRegistry(executor)
	classifier := docai.New(cfg.DocAIURL, cfg.DocAIClassifyProcessor, executor)

	processors, err := config.LoadProcessorMap(cfg.ProcessorMapPath)
	if err != nil {
		return nil, fmt.Errorf("load processor map: %w", err)
	}

	reportStore, err := excelreport.NewStore(cfg.ReportDir)
	if err != nil {
		return nil, fmt.Errorf("init report store: %w", err)
	}
	merger := report.NewMerger(reportStore, logger)

	var notifier ports.NotificationSender
	if cfg.SendGridAPIKey != "" {
		notifier, err = sendgrid.NewSender(cfg.SendGridAPIKey, cfg.SendGridFromName, cfg.SendGridFromEmail)
		if err != nil {
			return nil, fmt.Errorf("init notification sender: %w", err)
		}
	}

	engine := rules.NewEngine(ruleStore, logger)
	dispatcher := rules.NewDispatcher(notifier, webhook.NewCaller(), logger)

	pollUC := usecase.NewPollProviderUseCase(accounts, registry, syncState, queue, logger)
	processUC := usecase.NewProcessMessageUseCase(messages, syncState, accounts, registry, engine, dispatcher, classifier, logger)
	extractUC := usecase.NewExtractAttachmentsUseCase(attachments, classifier, processors, merger, logger)
	ruleUC := usecase.NewTriggerRuleUseCase(ruleStore)

	return &App{
		Config: cfg,

		Queue:    queue,
		Messages: messages,

		PollUC:    pollUC,
		ProcessUC: processUC,
		ExtractUC: extractUC,
		RuleUC:    ruleUC,

		PollAll: pollUC.PollAll,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
