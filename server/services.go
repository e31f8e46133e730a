package server

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/teranos/PTX/ai/model"
	"github.com/teranos/PTX/ai/tracker"
	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/datasets"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/logger"
	"github.com/teranos/PTX/pulse/async"
	"github.com/teranos/PTX/run"
	"github.com/teranos/PTX/sink"
	"github.com/teranos/PTX/templates"
)

// MetricsNamespace prefixes every exported Prometheus metric
const MetricsNamespace = "ptx"

// Services is the wired pipeline shared by the HTTP server, the MCP server
// and the CLI.
type Services struct {
	Config    *am.Config
	Templates *templates.Store
	Datasets  *datasets.Store
	Importer  *datasets.Importer
	Usage     *tracker.UsageTracker
	Models    model.Factory
	Executor  *run.Executor
	Engine    *run.Engine
	Pool      *async.WorkerPool
	Sink      sink.Sink
	Registry  *prometheus.Registry
}

// ServicesOptions overrides collaborators, mostly for tests. Zero values
// are built from configuration.
type ServicesOptions struct {
	Models   model.Factory
	Sink     sink.Sink
	Registry *prometheus.Registry
	Logger   *zap.SugaredLogger
}

// NewServices wires stores, model factory, executor, worker pool, batch
// engine and result sink over a migrated database. The pool is not started.
func NewServices(ctx context.Context, cfg *am.Config, conn *sql.DB, opts ServicesOptions) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}
	if conn == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("services")
	}

	s := &Services{
		Config:    cfg,
		Templates: templates.NewStore(conn),
		Datasets:  datasets.NewStore(conn),
		Usage:     tracker.NewUsageTracker(conn),
		Registry:  opts.Registry,
	}
	s.Importer = datasets.NewImporter(s.Datasets, datasets.ImportOptions{
		Timeout:      time.Duration(cfg.Import.TimeoutSeconds) * time.Second,
		MaxBytes:     cfg.Import.MaxBytes,
		AllowPrivate: cfg.Import.AllowPrivate,
	})

	if s.Registry == nil {
		s.Registry = prometheus.NewRegistry()
		s.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s.Models = opts.Models
	if s.Models == nil {
		s.Models = model.NewFactory(cfg, s.Usage)
	}

	s.Sink = opts.Sink
	if s.Sink == nil {
		sk, err := sink.New(ctx, cfg.Sink)
		if err != nil {
			// Save is unavailable but runs and batches still work
			log.Warnw("Result sink unavailable", logger.FieldSink, cfg.Sink.Type, logger.FieldError, err)
		} else {
			s.Sink = sk
		}
	}

	s.Executor = run.NewExecutor(run.ExecutorConfig{
		Templates: s.Templates,
		Datasets:  s.Datasets,
		Models:    s.Models,
		Metrics:   run.NewMetrics(MetricsNamespace, s.Registry),
		MaxSteps:  uint64(cfg.Jobs.MaxTransformSteps),
	})

	policy := async.PolicyFromConfig(time.Duration(cfg.Jobs.TTLSeconds)*time.Second, cfg.Jobs.Capacity)
	queue := async.NewQueue(async.NewMemoryStore(policy))
	poolCfg := async.DefaultWorkerPoolConfig()
	if cfg.Jobs.Workers > 0 {
		poolCfg.Workers = cfg.Jobs.Workers
	}
	if cfg.Jobs.QueueSize > 0 {
		poolCfg.QueueSize = cfg.Jobs.QueueSize
	}
	if cfg.Jobs.SweepIntervalSeconds > 0 {
		poolCfg.SweepInterval = time.Duration(cfg.Jobs.SweepIntervalSeconds) * time.Second
	}
	s.Pool = async.NewWorkerPool(ctx, queue, async.NewHandlerRegistry(), poolCfg, logger.ComponentLogger("pulse"))

	var runSink run.Sink
	if s.Sink != nil {
		runSink = s.Sink
	}
	s.Engine = run.NewEngine(s.Executor, s.Datasets, s.Pool, runSink)

	log.Debugw("Services wired",
		"workers", poolCfg.Workers,
		"queue_size", poolCfg.QueueSize,
		logger.FieldSink, cfg.Sink.Type)
	return s, nil
}

// Reload applies a changed configuration to the model defaults. Job
// retention and pool size take effect on the next start.
func (s *Services) Reload(cfg *am.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if pf, ok := s.Models.(*model.ProviderFactory); ok {
		pf.Reload(cfg)
	}
	s.Config = cfg
	return nil
}
