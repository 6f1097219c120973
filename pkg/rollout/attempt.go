package rollout

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/gommon/log"
	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
	"github.com/opst/rollout/pkg/loop"
	"github.com/opst/rollout/pkg/utils/retry"
)

// run is the state of an attempt on the way.
type run struct {
	c       *Controller
	id      string
	trigger Trigger

	state  State
	result Result

	record   domain.RolloutRecord
	token    domain.VersionToken
	target   domain.ArtifactReference
	previous domain.ArtifactReference
}

func newRun(a *Attempt) *run {
	return &run{
		c:       a.c,
		id:      a.id,
		trigger: a.trigger,
		state:   Idle,
		result: Result{
			AttemptID:   a.id,
			Revision:    a.trigger.Revision,
			Workload:    a.trigger.Workload.Name,
			Namespace:   a.trigger.Workload.Namespace,
			Transitions: []Transition{},
		},
	}
}

func (r *run) logger() *log.Logger {
	return r.c.opts.logger
}

func (r *run) fields(j log.JSON) log.JSON {
	j["attemptId"] = r.id
	j["revision"] = r.trigger.Revision
	j["workload"] = r.trigger.Workload.Name
	j["namespace"] = r.trigger.Workload.Namespace
	return j
}

func (r *run) enter(to State) {
	r.result.Transitions = append(r.result.Transitions, Transition{
		From: r.state, To: to, At: r.c.opts.clock(),
	})
	r.logger().Infoj(r.fields(log.JSON{
		"message": "transition",
		"from":    r.state,
		"to":      to,
	}))
	r.state = to
}

// checkpoint is called between transitions. It returns Cancelled error if ctx is done.
func (r *run) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return cancelled(fmt.Sprintf("attempt is cancelled at %s", r.state), err)
	}
	return nil
}

func cancelled(message string, err error) error {
	return xe.NewKind(xe.Cancelled, message, errors.Join(err, xe.ErrCancelled))
}

func (r *run) run(ctx context.Context) Result {
	r.result.StartedAt = r.c.opts.clock()
	r.logger().Infoj(r.fields(log.JSON{"message": "attempt started"}))

	r.proceed(ctx)

	r.result.FinishedAt = r.c.opts.clock()
	j := r.fields(log.JSON{
		"message":    "attempt finished",
		"finalState": r.result.FinalState,
		"rolledBack": r.result.RolledBack,
		"degraded":   r.result.Degraded,
		"image":      r.result.AppliedImage,
		"exitStatus": r.result.ExitStatus(),
	})
	if r.result.Succeeded() {
		r.logger().Infoj(j)
	} else {
		j["errorKind"] = r.result.ErrorKind
		j["error"] = r.result.Error
		if r.result.Degraded {
			r.logger().Errorj(j)
		} else {
			r.logger().Warnj(j)
		}
	}
	return r.result
}

func (r *run) proceed(ctx context.Context) {
	c := r.c

	// Idle -> Tagged
	target, err := domain.NewArtifactReference(c.repository, r.trigger.Revision)
	if err != nil {
		r.fail(err)
		return
	}
	r.target = target
	if err := r.readRecord(ctx); err != nil {
		r.fail(err)
		return
	}
	r.enter(Tagged)

	if err := r.checkpoint(ctx); err != nil {
		r.fail(err)
		return
	}
	if err := r.gate(ctx); err != nil {
		r.fail(err)
		return
	}

	// Tagged -> Pushed
	if err := r.push(ctx); err != nil {
		r.fail(err)
		return
	}
	r.enter(Pushed)

	if err := r.checkpoint(ctx); err != nil {
		r.fail(err)
		return
	}

	// Pushed -> Applied
	if err := r.observe(ctx); err != nil {
		r.fail(err)
		return
	}
	if err := r.apply(ctx); err != nil {
		switch xe.KindOf(err) {
		case xe.WorkloadNotFound, xe.OrchestratorRejected:
			r.fail(err)
		default:
			// the update may have reached the orchestrator.
			r.rollback(ctx, err)
		}
		return
	}
	r.enter(Applied)

	// from here, every failure reverts the workload.
	if err := r.checkpoint(ctx); err != nil {
		r.rollback(ctx, err)
		return
	}

	// Applied -> Verifying
	r.enter(Verifying)
	if err := r.verify(ctx); err != nil {
		r.rollback(ctx, err)
		return
	}
	if err := r.checkpoint(ctx); err != nil {
		r.rollback(ctx, err)
		return
	}

	// Verifying -> Committed
	if err := r.commit(ctx); err != nil {
		// the workload runs the verified image. Only the record is behind.
		r.result.AppliedImage = r.target.String()
		r.result.Degraded = true
		r.fail(err)
		return
	}
	r.result.AppliedImage = r.target.String()
	r.result.FinalState = Committed
	r.enter(Committed)
}

func (r *run) fail(err error) {
	r.result.Err = err
	r.result.Error = err.Error()
	r.result.ErrorKind = xe.KindOf(err)
	r.result.FinalState = Failed
	r.enter(Failed)
}

func (r *run) readRecord(ctx context.Context) error {
	type read struct {
		record domain.RolloutRecord
		token  domain.VersionToken
	}
	got, err := retrying(ctx, r, "read record", func(ctx context.Context) (read, error) {
		rec, tok, err := r.c.store.Read(ctx, r.trigger.Workload)
		return read{record: rec, token: tok}, err
	})
	if err != nil {
		return err
	}
	r.record, r.token = got.record, got.token
	return nil
}

func (r *run) gate(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, r.c.opts.hookTimeout)
	defer cancel()

	plan := Plan{
		AttemptID: r.id,
		Revision:  r.trigger.Revision,
		Workload:  r.trigger.Workload.Name,
		Namespace: r.trigger.Workload.Namespace,
		Image:     r.target.String(),
	}
	if err := r.c.opts.gate.Before(hctx, plan); err != nil {
		if ctx.Err() != nil {
			return cancelled("before hook is interrupted", err)
		}
		return xe.NewKind(xe.HookRejected, "before hook rejected the attempt", err)
	}
	return nil
}

func (r *run) push(ctx context.Context) error {
	reg := r.c.registry

	exists, err := reg.Exists(ctx, r.target)
	if err != nil {
		// pushing tells the truth, anyway.
		r.logger().Warnj(r.fields(log.JSON{
			"message": "cannot check existence of artifact",
			"image":   r.target.String(),
			"error":   err.Error(),
		}))
		exists = false
	}

	refs := []domain.ArtifactReference{}
	if exists {
		r.logger().Infoj(r.fields(log.JSON{
			"message": "artifact is already in registry",
			"image":   r.target.String(),
		}))
	} else {
		refs = append(refs, r.target)
	}
	if r.c.opts.latestAlias {
		refs = append(refs, r.target.Latest())
	}

	for _, ref := range refs {
		if _, err := retrying(ctx, r, "push "+ref.String(), func(ctx context.Context) (struct{}, error) {
			return struct{}{}, reg.Push(ctx, ref)
		}); err != nil {
			return err
		}
	}
	return nil
}

// observe records the image which the workload runs before the attempt.
func (r *run) observe(ctx context.Context) error {
	health, err := retrying(ctx, r, "observe workload", func(ctx context.Context) (domain.Health, error) {
		return r.c.orchestrator.GetHealth(ctx, r.trigger.Workload)
	})
	if err != nil {
		return err
	}
	if prev, perr := domain.ParseArtifactReference(health.CurrentImage); perr == nil {
		r.previous = prev
	} else {
		r.previous = r.record.AppliedImage
	}
	r.logger().Infoj(r.fields(log.JSON{
		"message":  "applying",
		"image":    r.target.String(),
		"previous": r.previous.String(),
	}))
	return nil
}

// apply updates the desired image of the workload.
//
// Calls are not interrupted by cancellation of ctx. It is noticed during backoff or at the next checkpoint.
func (r *run) apply(ctx context.Context) error {
	_, err := retrying(ctx, r, "set desired image", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.c.orchestrator.SetDesiredImage(context.WithoutCancel(ctx), r.trigger.Workload, r.target)
	})
	return err
}

func (r *run) verify(ctx context.Context) error {
	opts := r.c.opts

	reason := errors.New("no health is observed")
	_, err := loop.Start(
		ctx, domain.Health{},
		func(ctx context.Context, last domain.Health) (domain.Health, loop.Next) {
			health, err := r.c.orchestrator.GetHealth(ctx, r.trigger.Workload)
			if err != nil {
				// the probe timed out, or the loop is stopping. The loop tells which.
				if ctx.Err() != nil {
					reason = err
					return last, loop.Continue(opts.pollInterval)
				}
				if kind := xe.KindOf(err); kind.Retryable() {
					reason = err
					opts.metrics.RecordRetry(r.trigger.Workload, r.state.String(), kind.String())
					r.logger().Warnj(r.fields(log.JSON{
						"message":   "cannot get health, retrying",
						"errorKind": kind,
						"error":     err.Error(),
					}))
					return last, loop.Continue(opts.pollInterval)
				}
				return last, loop.Break(err)
			}

			if cerr := health.ConvergedOn(r.target); cerr != nil {
				reason = cerr
				r.logger().Debugj(r.fields(log.JSON{
					"message": "not yet converged",
					"health":  health.String(),
				}))
				return health, loop.Continue(opts.pollInterval)
			}
			r.logger().Infoj(r.fields(log.JSON{
				"message": "converged",
				"health":  health.String(),
			}))
			return health, loop.Break(nil)
		},
		loop.WithDeadline(opts.verifyTimeout),
		loop.WithCallTimeout(opts.probeTimeout),
	)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return cancelled("verification is cancelled", errors.Join(ctx.Err(), reason))
	case errors.Is(err, loop.ErrDeadline):
		return xe.NewKind(
			xe.VerificationTimeout,
			fmt.Sprintf("%s did not converge on %s in %s", r.trigger.Workload, r.target, opts.verifyTimeout),
			reason,
		)
	default:
		return err
	}
}

func (r *run) commit(ctx context.Context) error {
	rec := domain.RolloutRecord{
		Workload:     r.trigger.Workload,
		AppliedImage: r.target,
		RevisionID:   r.trigger.Revision,
		Timestamp:    r.c.opts.clock(),
	}

	write := func() error {
		_, err := retrying(ctx, r, "write record", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.c.store.WriteIfUnchanged(ctx, r.trigger.Workload, rec, r.token)
		})
		return err
	}

	err := write()
	if xe.KindOf(err) != xe.CommitConflict {
		return err
	}

	r.logger().Warnj(r.fields(log.JSON{
		"message": "record is changed by another writer. re-reading",
		"error":   err.Error(),
	}))
	if err := r.readRecord(ctx); err != nil {
		return err
	}
	if err := write(); err != nil {
		if xe.KindOf(err) == xe.CommitConflict {
			return xe.NewKind(xe.CommitConflict, "record is changed again after re-reading", err)
		}
		return err
	}
	return nil
}

// rollback reverts the workload to the image before the attempt, even if ctx is cancelled.
func (r *run) rollback(ctx context.Context, cause error) {
	opts := r.c.opts
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.rollbackTimeout)
	defer cancel()

	r.logger().Warnj(r.fields(log.JSON{
		"message":   "rolling back",
		"image":     r.previous.String(),
		"errorKind": xe.KindOf(cause),
		"error":     cause.Error(),
	}))

	if r.previous.IsZero() {
		r.result.AppliedImage = r.target.String()
		r.result.Degraded = true
		r.fail(xe.WrapWithNote("no image to roll back to", cause))
		return
	}

	_, err := retrying(rctx, r, "revert desired image", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.c.orchestrator.SetDesiredImage(ctx, r.trigger.Workload, r.previous)
	})
	if err != nil {
		r.logger().Errorj(r.fields(log.JSON{
			"message":   "rollback failed. workload may need manual intervention",
			"image":     r.target.String(),
			"errorKind": xe.KindOf(err),
			"error":     err.Error(),
		}))
		r.result.AppliedImage = r.target.String()
		r.result.Degraded = true
		r.fail(errors.Join(cause, xe.WrapWithNote("rollback failed", err)))
		return
	}

	r.result.AppliedImage = r.previous.String()
	r.result.RolledBack = true
	r.enter(RolledBack)
	r.fail(cause)
}

// retrying calls f while it fails with retryable kinds, following the retry policy.
func retrying[T any](ctx context.Context, r *run, op string, f func(context.Context) (T, error)) (T, error) {
	opts := r.c.opts
	limit := max(opts.retry.MaxAttempts, 1)

	v, err := retry.Do(
		ctx, opts.retry,
		func(err error) bool { return xe.KindOf(err).Retryable() },
		func(attempt int) (T, error) {
			v, err := f(ctx)
			if err == nil {
				return v, nil
			}
			kind := xe.KindOf(err)
			if kind.Retryable() && attempt < limit {
				opts.metrics.RecordRetry(r.trigger.Workload, r.state.String(), kind.String())
				r.logger().Warnj(r.fields(log.JSON{
					"message":   op + " failed, retrying",
					"attempt":   attempt,
					"errorKind": kind,
					"error":     err.Error(),
				}))
			}
			return v, err
		},
	)
	if err != nil && ctx.Err() != nil && xe.KindOf(err) != xe.Cancelled {
		return v, cancelled(op+" is interrupted", err)
	}
	return v, err
}
