package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
	"github.com/opst/rollout/pkg/lock/memory"
)

func TestLocker(t *testing.T) {
	ctx := context.Background()
	a := domain.WorkloadKey{Namespace: "default", Name: "sample-nestjs"}
	b := domain.WorkloadKey{Namespace: "staging", Name: "sample-nestjs"}

	t.Run("a workload is locked once", func(t *testing.T) {
		testee := memory.New()

		release, err := testee.TryLock(ctx, a)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := testee.TryLock(ctx, a); xe.KindOf(err) != xe.AttemptInProgress {
			t.Errorf("unexpected error: %v", err)
		}

		rb, err := testee.TryLock(ctx, b)
		if err != nil {
			t.Errorf("other workload is locked: %v", err)
		} else {
			rb()
		}

		release()
		release() // harmless

		again, err := testee.TryLock(ctx, a)
		if err != nil {
			t.Fatalf("not released: %v", err)
		}
		again()
	})

	t.Run("concurrent callers get one lock", func(t *testing.T) {
		testee := memory.New()

		wg := new(sync.WaitGroup)
		errs := make([]error, 16)
		for i := range errs {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = testee.TryLock(ctx, a)
			}()
		}
		wg.Wait()

		locked := 0
		for _, err := range errs {
			switch xe.KindOf(err) {
			case "":
				locked += 1
			case xe.AttemptInProgress:
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		if locked != 1 {
			t.Errorf("locked: %d", locked)
		}
	})
}
