package system

import (
	"context"
	"fmt"

	"github.com/labstack/gommon/log"
	rcfg "github.com/opst/rollout/pkg/configs/rollout"
	kpool "github.com/opst/rollout/pkg/conn/db/postgres/pool"
	xe "github.com/opst/rollout/pkg/errors"
	"github.com/opst/rollout/pkg/hook"
	"github.com/opst/rollout/pkg/lock"
	lockmem "github.com/opst/rollout/pkg/lock/memory"
	lockpg "github.com/opst/rollout/pkg/lock/postgres"
	"github.com/opst/rollout/pkg/manifest"
	mfile "github.com/opst/rollout/pkg/manifest/file"
	mpg "github.com/opst/rollout/pkg/manifest/postgres"
	"github.com/opst/rollout/pkg/metrics"
	"github.com/opst/rollout/pkg/registry"
	"github.com/opst/rollout/pkg/rollout"
	wl "github.com/opst/rollout/pkg/workloads"
	k8s "github.com/opst/rollout/pkg/workloads/k8s"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"k8s.io/client-go/kubernetes"
)

// Middlewares are collaborators of rollouts, built from a config.
type Middlewares interface {
	Registry() registry.Registry
	Orchestrator() wl.Orchestrator
	Store() manifest.Store
	Locker() lock.Locker
	Config() *rcfg.Config
}

type System interface {
	Middlewares

	// Controller creates a rollout controller on the middlewares.
	//
	// Options are applied after ones derived from the config.
	Controller(logger *log.Logger, m *metrics.Metrics, options ...rollout.Option) *rollout.Controller

	// Close releases connections.
	Close()
}

type system struct {
	config       *rcfg.Config
	registry     registry.Registry
	orchestrator wl.Orchestrator
	store        manifest.Store
	locker       lock.Locker
	pool         kpool.Pool
}

var _ System = &system{}

// DatabaseConnector opens a connection pool to dsn.
type DatabaseConnector func(ctx context.Context, dsn string) (kpool.Pool, error)

type Option func(*attachOptions)

type attachOptions struct {
	connect  DatabaseConnector
	registry []registry.Option
}

// WithDatabaseConnector replaces how the database is connected. default = pool.Connect
func WithDatabaseConnector(c DatabaseConnector) Option {
	return func(ao *attachOptions) { ao.connect = c }
}

// WithRegistryOptions adds options of the registry client.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(ao *attachOptions) { ao.registry = append(ao.registry, opts...) }
}

// Attach builds collaborators following config.
//
// The database is connected only when the store or the lock uses it.
func Attach(
	ctx context.Context,
	clientset kubernetes.Interface,
	config *rcfg.Config,
	options ...Option,
) (System, error) {
	ao := &attachOptions{
		connect: func(ctx context.Context, dsn string) (kpool.Pool, error) {
			return kpool.Connect(ctx, dsn)
		},
	}
	for _, o := range options {
		o(ao)
	}

	s := &system{config: config}

	usesDB := config.Store().Type() == rcfg.StorePostgres || config.Lock().Type() == rcfg.LockPostgres
	if usesDB {
		pool, err := ao.connect(ctx, config.Database())
		if err != nil {
			return nil, xe.NewKind(xe.StoreUnavailable, "cannot connect to database", err)
		}
		s.pool = pool
	}

	switch config.Store().Type() {
	case rcfg.StorePostgres:
		if err := mpg.Migrate(ctx, s.pool); err != nil {
			s.Close()
			return nil, err
		}
		s.store = mpg.New(s.pool)
	case rcfg.StoreFile:
		st, err := mfile.New(config.Store().Dir())
		if err != nil {
			s.Close()
			return nil, err
		}
		s.store = st
	default:
		s.Close()
		return nil, xe.New(fmt.Sprintf("unknown store type: %s", config.Store().Type()))
	}

	switch config.Lock().Type() {
	case rcfg.LockPostgres:
		s.locker = lockpg.New(s.pool)
	case rcfg.LockMemory:
		s.locker = lockmem.New()
	default:
		s.Close()
		return nil, xe.New(fmt.Sprintf("unknown lock type: %s", config.Lock().Type()))
	}

	regconf := config.Registry()
	var source registry.ImageSource
	if regconf.Tarball() != "" {
		source = registry.FromTarball(regconf.Tarball(), regconf.TarballTag())
	} else {
		source = registry.FromRemote(regconf.Image(), regconf.Insecure())
	}
	regopts := []registry.Option{}
	if regconf.Insecure() {
		regopts = append(regopts, registry.Insecure())
	}
	s.registry = registry.New(source, append(regopts, ao.registry...)...)

	orchopts := []k8s.Option{}
	if c := config.Orchestrator().Container(); c != "" {
		orchopts = append(orchopts, k8s.WithContainer(c))
	}
	s.orchestrator = k8s.AttachOrchestrator(k8s.WrapK8sClient(clientset), orchopts...)

	return s, nil
}

func (s *system) Config() *rcfg.Config {
	return s.config
}

func (s *system) Registry() registry.Registry {
	return s.registry
}

func (s *system) Orchestrator() wl.Orchestrator {
	return s.orchestrator
}

func (s *system) Store() manifest.Store {
	return s.store
}

func (s *system) Locker() lock.Locker {
	return s.locker
}

func (s *system) Controller(logger *log.Logger, m *metrics.Metrics, options ...rollout.Option) *rollout.Controller {
	ctrl := s.config.Controller()
	hooks := s.config.Hooks()

	opts := []rollout.Option{
		rollout.WithRetry(ctrl.Retry()),
		rollout.WithVerification(ctrl.PollInterval(), ctrl.VerifyTimeout()),
		rollout.WithRollbackTimeout(ctrl.RollbackTimeout()),
		rollout.WithLatestAlias(ctrl.LatestAlias()),
		rollout.WithLocker(s.locker),
		rollout.WithMetrics(m),
	}
	if logger != nil {
		opts = append(opts, rollout.WithLogger(logger))
	}
	if 0 < len(hooks.Before()) {
		opts = append(opts, rollout.WithGate(hook.Web[rollout.Plan]{BeforeURL: hooks.Before()}))
	}
	if 0 < len(hooks.After()) {
		opts = append(opts, rollout.WithNotifier(hook.Web[rollout.Result]{AfterURL: hooks.After()}))
	}

	return rollout.New(
		s.registry, s.orchestrator, s.store,
		s.config.Registry().Repository(),
		append(opts, options...)...,
	)
}

func (s *system) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// NewMetrics creates metrics registered to a new registry.
func NewMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg), reg
}
