// Package bootstrap wires configuration into the concrete adapter graph
// shared by the API, the worker and the CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mhduong/docsorter/internal/config"
	"github.com/mhduong/docsorter/internal/core/ports"
	"github.com/mhduong/docsorter/internal/core/usecase"
	"github.com/mhduong/docsorter/internal/infrastructure/accesskeys"
	"github.com/mhduong/docsorter/internal/infrastructure/blob/minio"
	"github.com/mhduong/docsorter/internal/infrastructure/extract"
	"github.com/mhduong/docsorter/internal/infrastructure/extract/ocr"
	"github.com/mhduong/docsorter/internal/infrastructure/extract/office"
	"github.com/mhduong/docsorter/internal/infrastructure/extract/pdftext"
	"github.com/mhduong/docsorter/internal/infrastructure/filestore/localdir"
	"github.com/mhduong/docsorter/internal/infrastructure/llm/openai"
	"github.com/mhduong/docsorter/internal/infrastructure/queue/nats"
	"github.com/mhduong/docsorter/internal/infrastructure/repository/postgres"
	"github.com/mhduong/docsorter/internal/infrastructure/resilience"
	"github.com/mhduong/docsorter/internal/infrastructure/runner"
)

type App struct {
	Config config.Config

	Blob     *minio.Store
	Queue    *nats.Queue
	Runs     *usecase.RunManager
	Pipeline *usecase.SortingPipeline
	Keys     ports.AccessKeys

	db      *sql.DB
	runner  *runner.Runner
	closeFn func()
}

// Options selects the launcher wiring: the API publishes runs to the queue,
// the worker and the CLI execute them in-process.
type Options struct {
	UseQueueLauncher bool
	Logger           *slog.Logger
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	dupIndex := postgres.NewDuplicateIndex(db)
	if err := dupIndex.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	blob, err := minio.New(ctx, minio.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	fileStore, err := localdir.New(cfg.FileStoreRoot)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	proposer := openai.New(openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		RatePerMin: cfg.OpenAIRatePerMin,
	}, executor)

	extractor := extract.NewComposite(
		pdftext.New(),
		ocr.New(cfg.OCRBaseURL, cfg.OCRLanguage, executor),
		office.New(),
		logger,
	)

	pipeline := usecase.NewSortingPipeline(fileStore, extractor, proposer, blob, dupIndex, logger, nil)

	var (
		queue       *nats.Queue
		taskRunner  *runner.Runner
		launcher    ports.RunLauncher
		runs        *usecase.RunManager
		closeQueues func()
	)
	if opts.UseQueueLauncher {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init run queue: %w", err)
		}
		launcher = queue
		closeQueues = queue.Close
	}

	runs = usecase.NewRunManager(pipeline, blob, blob, launcher, logger, nil)

	if !opts.UseQueueLauncher {
		taskRunner = runner.New(runs, cfg.RunnerWorkers, cfg.RunnerQueueSize, logger)
		runs.SetLauncher(taskRunner)
		closeQueues = taskRunner.Stop
	}

	return &App{
		Config:   cfg,
		Blob:     blob,
		Queue:    queue,
		Runs:     runs,
		Pipeline: pipeline,
		Keys:     newKeySet(cfg),
		db:       db,
		runner:   taskRunner,
		closeFn: func() {
			if closeQueues != nil {
				closeQueues()
			}
			_ = db.Close()
		},
	}, nil
}

func newKeySet(cfg config.Config) ports.AccessKeys {
	if cfg.AccessKeyFile != "" {
		return accesskeys.NewFromFile(cfg.AccessKeyFile, 0)
	}
	return accesskeys.NewStatic(strings.Split(cfg.AccessKeys, ","))
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
