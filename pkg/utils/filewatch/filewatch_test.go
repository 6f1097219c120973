package filewatch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opst/rollout/pkg/utils/filewatch"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); !errors.Is(cause, filewatch.ErrModified) {
			t.Errorf("unexpected cause: %v", cause)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("context is not canceled")
	}
}

func prepare(t *testing.T) (dir string, file string) {
	t.Helper()
	dir = t.TempDir()
	file = filepath.Join(dir, "rollout.yaml")
	if err := os.WriteFile(file, []byte("controller: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, file
}

func TestUntilModified(t *testing.T) {
	t.Run("when the watched file is written, it cancels context", func(t *testing.T) {
		_, file := prepare(t)
		ctx, cancel, err := filewatch.UntilModified(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := os.WriteFile(file, []byte("controller: {pollInterval: 1s}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		waitDone(t, ctx)
	})

	t.Run("when the watched file is replaced by rename, it cancels context", func(t *testing.T) {
		dir, file := prepare(t)
		ctx, cancel, err := filewatch.UntilModified(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		tmp := filepath.Join(dir, ".rollout.yaml.swp")
		if err := os.WriteFile(tmp, []byte("controller: {}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, file); err != nil {
			t.Fatal(err)
		}
		waitDone(t, ctx)
	})

	t.Run("when the watched file is removed, it cancels context", func(t *testing.T) {
		_, file := prepare(t)
		ctx, cancel, err := filewatch.UntilModified(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := os.Remove(file); err != nil {
			t.Fatal(err)
		}
		waitDone(t, ctx)
	})

	t.Run("other files in the directory are ignored", func(t *testing.T) {
		dir, file := prepare(t)
		ctx, cancel, err := filewatch.UntilModified(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case <-ctx.Done():
			t.Errorf("canceled: %v", context.Cause(ctx))
		case <-time.After(200 * time.Millisecond):
		}
	})

	t.Run("cancel function stops watching", func(t *testing.T) {
		_, file := prepare(t)
		ctx, cancel, err := filewatch.UntilModified(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		cancel()
		if !errors.Is(ctx.Err(), context.Canceled) {
			t.Errorf("unexpected: %v", ctx.Err())
		}
	})

	t.Run("a file in missing directory cannot be watched", func(t *testing.T) {
		_, _, err := filewatch.UntilModified(context.Background(), filepath.Join(t.TempDir(), "missing", "file"))
		if err == nil {
			t.Error("no error")
		}
	})
}
