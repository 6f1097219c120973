package file_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
	"github.com/opst/rollout/pkg/manifest/file"
	"github.com/opst/rollout/pkg/utils/try"
)

var workload = domain.WorkloadKey{Namespace: "default", Name: "sample-nestjs"}

func record(tag string, revision string) domain.RolloutRecord {
	return domain.RolloutRecord{
		Workload:     workload,
		AppliedImage: domain.ArtifactReference{Repository: "localhost:5000/sample-nestjs", Tag: tag},
		RevisionID:   revision,
		Timestamp:    time.Date(2026, 10, 19, 1, 2, 3, 0, time.UTC),
	}
}

func TestStore_ReadWrite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testee := try.To(file.New(root)).OrFatal(t)

	t.Run("no record yet", func(t *testing.T) {
		rec, tok := try.To2(testee.Read(ctx, workload)).OrFatal(t)
		if !rec.IsZero() || tok != domain.NoVersion {
			t.Errorf("unexpected: %+v, %q", rec, tok)
		}
	})

	first := record("0badcafe", "0badcafe1234")
	t.Run("it writes the first record with NoVersion", func(t *testing.T) {
		if err := testee.WriteIfUnchanged(ctx, workload, first, domain.NoVersion); err != nil {
			t.Fatal(err)
		}
		rec, tok := try.To2(testee.Read(ctx, workload)).OrFatal(t)
		if !rec.Equal(first) {
			t.Errorf("record: (actual, expected) = (%+v, %+v)", rec, first)
		}
		if tok == domain.NoVersion {
			t.Error("token is empty")
		}

		content := string(try.To(os.ReadFile(filepath.Join(root, "default", "sample-nestjs.yaml"))).OrFatal(t))
		if !strings.HasPrefix(content, "# rollout record.") {
			t.Errorf("no header comment:\n%s", content)
		}
		if !strings.Contains(content, "appliedImage: localhost:5000/sample-nestjs:0badcafe") {
			t.Errorf("unexpected content:\n%s", content)
		}
	})

	t.Run("it overwrites with the current token", func(t *testing.T) {
		_, tok := try.To2(testee.Read(ctx, workload)).OrFatal(t)
		second := record("9314b46b", "9314b46bxxxx")
		if err := testee.WriteIfUnchanged(ctx, workload, second, tok); err != nil {
			t.Fatal(err)
		}
		rec, newTok := try.To2(testee.Read(ctx, workload)).OrFatal(t)
		if !rec.Equal(second) {
			t.Errorf("record: (actual, expected) = (%+v, %+v)", rec, second)
		}
		if newTok == tok {
			t.Error("token is not changed")
		}
	})

	t.Run("it conflicts with a stale token", func(t *testing.T) {
		err := testee.WriteIfUnchanged(ctx, workload, record("12345678", "12345678"), domain.NoVersion)
		if xe.KindOf(err) != xe.CommitConflict {
			t.Errorf("unexpected error: %v", err)
		}
		rec, _ := try.To2(testee.Read(ctx, workload)).OrFatal(t)
		if rec.AppliedImage.Tag != "9314b46b" {
			t.Errorf("record is overwritten: %+v", rec)
		}
	})

	t.Run("hand-edited file is a change", func(t *testing.T) {
		_, tok := try.To2(testee.Read(ctx, workload)).OrFatal(t)
		path := filepath.Join(root, "default", "sample-nestjs.yaml")
		content := try.To(os.ReadFile(path)).OrFatal(t)
		if err := os.WriteFile(path, append(content, []byte("# edited\n")...), 0o644); err != nil {
			t.Fatal(err)
		}

		err := testee.WriteIfUnchanged(ctx, workload, record("12345678", "12345678"), tok)
		if xe.KindOf(err) != xe.CommitConflict {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestStore_Atomicity(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testee := try.To(file.New(root)).OrFatal(t)

	before := record("0badcafe", "0badcafe1234")
	if err := testee.WriteIfUnchanged(ctx, workload, before, domain.NoVersion); err != nil {
		t.Fatal(err)
	}
	_, tok := try.To2(testee.Read(ctx, workload)).OrFatal(t)

	crash := errors.New("crash")
	var leftover []byte
	restore := file.SetHookBeforeRename(func(tmp string, dest string) error {
		// what a crashed process leaves
		leftover = try.To(os.ReadFile(tmp)).OrFatal(t)
		return crash
	})
	defer restore()

	err := testee.WriteIfUnchanged(ctx, workload, record("9314b46b", "9314b46bxxxx"), tok)
	if !errors.Is(err, crash) || xe.KindOf(err) != xe.StoreUnavailable {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(string(leftover), "9314b46b") {
		t.Errorf("temporary file has not the new record:\n%s", leftover)
	}

	// a stray temporary file from a crash does not affect the record.
	stray := filepath.Join(root, "default", ".sample-nestjs.yaml.tmp-crashed")
	if err := os.WriteFile(stray, leftover, 0o644); err != nil {
		t.Fatal(err)
	}

	rec, afterTok := try.To2(testee.Read(ctx, workload)).OrFatal(t)
	if !rec.Equal(before) {
		t.Errorf("record: (actual, expected) = (%+v, %+v)", rec, before)
	}
	if afterTok != tok {
		t.Errorf("token: (actual, expected) = (%s, %s)", afterTok, tok)
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	// stores on the same directory, like processes sharing a volume.
	stores := []interface {
		WriteIfUnchanged(context.Context, domain.WorkloadKey, domain.RolloutRecord, domain.VersionToken) error
	}{
		try.To(file.New(root)).OrFatal(t),
		try.To(file.New(root)).OrFatal(t),
		try.To(file.New(root)).OrFatal(t),
		try.To(file.New(root)).OrFatal(t),
	}

	wg := new(sync.WaitGroup)
	errs := make([]error, len(stores))
	for i, s := range stores {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.WriteIfUnchanged(ctx, workload, record("0badcafe", "0badcafe1234"), domain.NoVersion)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch xe.KindOf(err) {
		case "":
			succeeded += 1
		case xe.CommitConflict:
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded writers: %d", succeeded)
	}
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("broken file is StoreUnavailable", func(t *testing.T) {
		root := t.TempDir()
		testee := try.To(file.New(root)).OrFatal(t)
		if err := os.MkdirAll(filepath.Join(root, "default"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, "default", "sample-nestjs.yaml"), []byte("{not: [yaml"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, _, err := testee.Read(ctx, workload)
		if xe.KindOf(err) != xe.StoreUnavailable {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("record for another workload is refused", func(t *testing.T) {
		testee := try.To(file.New(t.TempDir())).OrFatal(t)
		other := domain.WorkloadKey{Namespace: "default", Name: "other"}
		if err := testee.WriteIfUnchanged(ctx, other, record("0badcafe", "0badcafe"), domain.NoVersion); err == nil {
			t.Error("no error")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		testee := try.To(file.New(t.TempDir())).OrFatal(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := testee.Read(cctx, workload)
		if xe.KindOf(err) != xe.Cancelled {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestStore_KeysOutOfRoot(t *testing.T) {
	ctx := context.Background()

	for name, key := range map[string]domain.WorkloadKey{
		"parent directory as namespace": {Namespace: "..", Name: "escaped"},
		"parent directory as name":      {Namespace: "default", Name: "../../escaped"},
		"absolute path as name":         {Namespace: "default", Name: "/tmp/escaped"},
		"slash in namespace":            {Namespace: "default/..", Name: "escaped"},
	} {
		t.Run(name+" is refused", func(t *testing.T) {
			base := t.TempDir()
			root := filepath.Join(base, "records")
			testee := try.To(file.New(root)).OrFatal(t)

			rec := record("0badcafe", "0badcafe1234")
			rec.Workload = key
			if err := testee.WriteIfUnchanged(ctx, key, rec, domain.NoVersion); err == nil {
				t.Error("write is not refused")
			}
			if _, _, err := testee.Read(ctx, key); err == nil {
				t.Error("read is not refused")
			}

			escaped := try.To(filepath.Glob(filepath.Join(base, "*.yaml"))).OrFatal(t)
			if 0 < len(escaped) {
				t.Errorf("records are written out of the store: %v", escaped)
			}
		})

		t.Run(name+" has no path", func(t *testing.T) {
			if p, err := file.PathOf("/var/lib/rollout", key); err == nil {
				t.Errorf("path is resolved: %s", p)
			}
		})
	}

	t.Run("a valid key is under the root", func(t *testing.T) {
		p := try.To(file.PathOf("/var/lib/rollout", workload)).OrFatal(t)
		if p != "/var/lib/rollout/default/sample-nestjs.yaml" {
			t.Errorf("unexpected path: %s", p)
		}
	})
}
