// Package rollout advances workloads to newly built artifacts.
//
// A rollout attempt derives a tag from a source revision, pushes the artifact,
// sets it as the desired image of the workload, waits for replicas to converge,
// and records the image in the manifest store. When replicas do not converge,
// the workload is reverted to the image it ran before the attempt.
//
// At most one attempt runs for each workload.
package rollout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
	"github.com/opst/rollout/pkg/hook"
	"github.com/opst/rollout/pkg/lock"
	"github.com/opst/rollout/pkg/lock/memory"
	"github.com/opst/rollout/pkg/manifest"
	"github.com/opst/rollout/pkg/metrics"
	"github.com/opst/rollout/pkg/registry"
	"github.com/opst/rollout/pkg/utils/retry"
	wl "github.com/opst/rollout/pkg/workloads"
)

// Trigger requests a rollout of revision to workload.
type Trigger struct {
	Revision string
	Workload domain.WorkloadKey
}

// Plan is sent to pre-rollout gates.
type Plan struct {
	AttemptID string `json:"attemptId"`
	Revision  string `json:"revision"`
	Workload  string `json:"workload"`
	Namespace string `json:"namespace"`
	Image     string `json:"image"`
}

type options struct {
	retry           retry.Policy
	pollInterval    time.Duration
	verifyTimeout   time.Duration
	rollbackTimeout time.Duration
	hookTimeout     time.Duration
	probeTimeout    time.Duration
	latestAlias     bool

	locker  lock.Locker
	gate    hook.Hook[Plan]
	notify  hook.Hook[Result]
	metrics *metrics.Metrics
	logger  *log.Logger
	clock   func() time.Time
}

type Option func(*options)

// WithRetry sets the retry policy for retryable errors of collaborators.
func WithRetry(p retry.Policy) Option {
	return func(o *options) { o.retry = p }
}

// WithVerification sets the interval of health checks, and how long to wait for convergence.
func WithVerification(interval time.Duration, timeout time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
		o.verifyTimeout = timeout
	}
}

// WithRollbackTimeout bounds rollbacks, which run even after cancellation.
func WithRollbackTimeout(d time.Duration) Option {
	return func(o *options) { o.rollbackTimeout = d }
}

// WithLatestAlias sets whether the floating "latest" tag is pushed too. default = true
func WithLatestAlias(enabled bool) Option {
	return func(o *options) { o.latestAlias = enabled }
}

// WithLocker replaces the in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(o *options) { o.locker = l }
}

// WithGate sets a hook called before pushing. When it fails, the attempt fails with HookRejected.
func WithGate(h hook.Hook[Plan]) Option {
	return func(o *options) { o.gate = h }
}

// WithNotifier sets a hook receiving every result.
func WithNotifier(h hook.Hook[Result]) Option {
	return func(o *options) { o.notify = h }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

type Controller struct {
	registry     registry.Registry
	orchestrator wl.Orchestrator
	store        manifest.Store
	repository   string

	opts options

	wg      sync.WaitGroup
	mu      sync.Mutex
	results map[domain.WorkloadKey]Result
}

// New creates a controller rolling out artifacts of repository.
func New(
	reg registry.Registry,
	orchestrator wl.Orchestrator,
	store manifest.Store,
	repository string,
	options ...Option,
) *Controller {
	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Controller{
		registry:     reg,
		orchestrator: orchestrator,
		store:        store,
		repository:   repository,
		opts:         opts,
		results:      map[domain.WorkloadKey]Result{},
	}
}

func defaultOptions() options {
	logger := log.New("rollout")
	logger.SetLevel(log.INFO)
	return options{
		retry:           retry.Default,
		pollInterval:    5 * time.Second,
		verifyTimeout:   5 * time.Minute,
		rollbackTimeout: 2 * time.Minute,
		hookTimeout:     30 * time.Second,
		probeTimeout:    30 * time.Second,
		latestAlias:     true,
		locker:          memory.New(),
		gate:            hook.None[Plan]{},
		notify:          hook.None[Result]{},
		logger:          logger,
		clock:           time.Now,
	}
}

// Attempt is a rollout attempt holding the lock of its workload.
type Attempt struct {
	id      string
	trigger Trigger
	release lock.Release
	c       *Controller
}

func (a *Attempt) ID() string {
	return a.id
}

// Begin takes the lock of the workload and prepares an attempt.
//
// The caller must Run the returned attempt, which releases the lock.
//
// # Returns
//
// - error: AttemptInProgress kind when another attempt for the workload is in flight.
func (c *Controller) Begin(ctx context.Context, trigger Trigger) (*Attempt, error) {
	if err := trigger.Workload.Validate(); err != nil {
		return nil, xe.NewKind(xe.WorkloadNotFound, "invalid trigger", err)
	}
	release, err := c.opts.locker.TryLock(ctx, trigger.Workload)
	if err != nil {
		c.opts.logger.Warnj(log.JSON{
			"message":   "trigger rejected",
			"revision":  trigger.Revision,
			"workload":  trigger.Workload.Name,
			"namespace": trigger.Workload.Namespace,
			"errorKind": xe.KindOf(err),
			"error":     err.Error(),
		})
		return nil, err
	}
	return &Attempt{id: uuid.NewString(), trigger: trigger, release: release, c: c}, nil
}

// Run the attempt to the end, and release the lock.
func (a *Attempt) Run(ctx context.Context) Result {
	defer a.release()
	c := a.c

	c.opts.metrics.RecordStart(a.trigger.Workload)
	r := newRun(a)
	result := r.run(ctx)
	c.opts.metrics.RecordFinish(a.trigger.Workload, result.FinalState.String(), result.FinishedAt.Sub(result.StartedAt))

	c.mu.Lock()
	c.results[a.trigger.Workload] = result
	c.mu.Unlock()

	c.notify(ctx, result)
	return result
}

// Run a rollout synchronously.
//
// When another attempt is in flight for the workload, it returns a Failed result
// with AttemptInProgress kind, without running anything.
func (c *Controller) Run(ctx context.Context, trigger Trigger) Result {
	a, err := c.Begin(ctx, trigger)
	if err != nil {
		now := c.opts.clock()
		return Result{
			Revision:    trigger.Revision,
			Workload:    trigger.Workload.Name,
			Namespace:   trigger.Workload.Namespace,
			FinalState:  Failed,
			Error:       err.Error(),
			ErrorKind:   xe.KindOf(err),
			Err:         err,
			Transitions: []Transition{},
			StartedAt:   now,
			FinishedAt:  now,
		}
	}
	return a.Run(ctx)
}

// Start a rollout in background.
//
// Cancelling ctx cancels the attempt (the workload is reverted if it is already applied).
//
// # Returns
//
// - string: attempt id
//
// - error: AttemptInProgress kind when another attempt for the workload is in flight.
func (c *Controller) Start(ctx context.Context, trigger Trigger) (string, error) {
	a, err := c.Begin(ctx, trigger)
	if err != nil {
		return "", err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		a.Run(ctx)
	}()
	return a.id, nil
}

// Wait for attempts started with Start.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// LastResult returns the result of the last attempt for the workload, finished in this controller.
func (c *Controller) LastResult(workload domain.WorkloadKey) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[workload]
	return r, ok
}

// Record reads the stored record of the workload.
func (c *Controller) Record(ctx context.Context, workload domain.WorkloadKey) (domain.RolloutRecord, error) {
	rec, _, err := c.store.Read(ctx, workload)
	return rec, err
}

func (c *Controller) notify(ctx context.Context, result Result) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.hookTimeout)
	defer cancel()
	if err := c.opts.notify.After(hctx, result); err != nil {
		c.opts.logger.Warnj(log.JSON{
			"message":   "after hook failed",
			"attemptId": result.AttemptID,
			"error":     err.Error(),
		})
	}
}
