// Package file stores rollout records as YAML files, one file for each workload.
//
// Layout:
//
//	<root>/<namespace>/<workload>.yaml       record
//	<root>/<namespace>/<workload>.yaml.lock  lock file for writers
//
// Version tokens are BLAKE3 hashes of record files, so that records edited by hand
// are also detected as changes.
package file

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
	"github.com/opst/rollout/pkg/manifest"
	"github.com/opst/rollout/pkg/utils/yamler"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

const header = `rollout record.
This file is rewritten by the rollout controller on each successful rollout.
When you edit this file by hand, in-flight rollouts for the workload fail with CommitConflict.`

// called after a temporary file is written, before renamed.
var hookBeforeRename = func(tmp string, dest string) error { return nil }

type store struct {
	root string
}

// New opens a store on root directory. The directory is created when it does not exist.
func New(root string) (manifest.Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, xe.NewKind(xe.StoreUnavailable, fmt.Sprintf("cannot create %s", root), err)
	}
	return &store{root: root}, nil
}

type recordDocument struct {
	Workload     string    `yaml:"workload"`
	Namespace    string    `yaml:"namespace"`
	AppliedImage string    `yaml:"appliedImage"`
	Revision     string    `yaml:"revision"`
	Timestamp    time.Time `yaml:"timestamp"`
}

// path returns the record file of the workload. It never points outside of root.
func (s *store) path(workload domain.WorkloadKey) (string, error) {
	p := filepath.Join(s.root, workload.Namespace, workload.Name+".yaml")
	rel, err := filepath.Rel(s.root, p)
	if err != nil || !filepath.IsLocal(rel) || filepath.Dir(rel) != workload.Namespace {
		return "", xe.New(fmt.Sprintf("record of %s is out of %s", workload, s.root))
	}
	return p, nil
}

func token(content []byte) domain.VersionToken {
	sum := blake3.Sum256(content)
	return domain.VersionToken("blake3:" + hex.EncodeToString(sum[:]))
}

func (s *store) load(path string) ([]byte, domain.VersionToken, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NoVersion, nil
	} else if err != nil {
		return nil, domain.NoVersion, xe.NewKind(xe.StoreUnavailable, path, err)
	}
	return content, token(content), nil
}

func (s *store) Read(ctx context.Context, workload domain.WorkloadKey) (domain.RolloutRecord, domain.VersionToken, error) {
	if err := workload.Validate(); err != nil {
		return domain.RolloutRecord{}, domain.NoVersion, xe.Wrap(err)
	}
	path, err := s.path(workload)
	if err != nil {
		return domain.RolloutRecord{}, domain.NoVersion, err
	}
	if err := ctx.Err(); err != nil {
		return domain.RolloutRecord{}, domain.NoVersion, xe.NewKind(xe.Cancelled, workload.String(), errors.Join(err, xe.ErrCancelled))
	}

	content, tok, err := s.load(path)
	if err != nil || tok == domain.NoVersion {
		return domain.RolloutRecord{}, domain.NoVersion, err
	}

	doc := recordDocument{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return domain.RolloutRecord{}, domain.NoVersion, xe.NewKind(
			xe.StoreUnavailable, fmt.Sprintf("%s is broken", path), err,
		)
	}
	image, err := domain.ParseArtifactReference(doc.AppliedImage)
	if err != nil {
		return domain.RolloutRecord{}, domain.NoVersion, xe.NewKind(
			xe.StoreUnavailable, fmt.Sprintf("%s has malformed image", path), err,
		)
	}

	return domain.RolloutRecord{
		Workload:     domain.WorkloadKey{Namespace: doc.Namespace, Name: doc.Workload},
		AppliedImage: image,
		RevisionID:   doc.Revision,
		Timestamp:    doc.Timestamp,
	}, tok, nil
}

func encode(record domain.RolloutRecord) ([]byte, error) {
	doc := yamler.Document(
		yamler.Map(
			yamler.Entry(yamler.Text("workload"), yamler.Text(record.Workload.Name)),
			yamler.Entry(yamler.Text("namespace"), yamler.Text(record.Workload.Namespace)),
			yamler.Entry(yamler.Text("appliedImage"), yamler.Text(record.AppliedImage.String())),
			yamler.Entry(yamler.Text("revision"), yamler.Text(record.RevisionID)),
			yamler.Entry(yamler.Text("timestamp"), yamler.Time(record.Timestamp)),
		),
		yamler.WithHeadComment(header),
	)
	return yaml.Marshal(doc)
}

func (s *store) WriteIfUnchanged(ctx context.Context, workload domain.WorkloadKey, record domain.RolloutRecord, expected domain.VersionToken) error {
	if err := workload.Validate(); err != nil {
		return xe.Wrap(err)
	}
	if record.Workload != workload {
		return xe.New(fmt.Sprintf("record is for %s, not %s", record.Workload, workload))
	}

	content, err := encode(record)
	if err != nil {
		return xe.Wrap(err)
	}

	dest, err := s.path(workload)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xe.NewKind(xe.StoreUnavailable, fmt.Sprintf("cannot create %s", dir), err)
	}

	unlock, err := lock(ctx, dest+".lock")
	if err != nil {
		return err
	}
	defer unlock()

	_, current, err := s.load(dest)
	if err != nil {
		return err
	}
	if current != expected {
		return xe.NewKind(
			xe.CommitConflict,
			fmt.Sprintf("%s: version (expected, actual) = (%q, %q)", workload, expected, current), nil,
		)
	}

	if err := replace(dest, content); err != nil {
		return xe.NewKind(xe.StoreUnavailable, fmt.Sprintf("cannot write %s", dest), err)
	}
	return nil
}

// replace dest with content, atomically.
func replace(dest string, content []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := hookBeforeRename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// make the rename durable
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

const lockPollInterval = 20 * time.Millisecond

// lock takes an exclusive flock on path, waiting until ctx is done.
func lock(ctx context.Context, path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, xe.NewKind(xe.StoreUnavailable, fmt.Sprintf("cannot open %s", path), err)
	}

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, xe.NewKind(xe.StoreUnavailable, fmt.Sprintf("cannot lock %s", path), err)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, xe.NewKind(xe.Cancelled, fmt.Sprintf("waiting lock %s", path), errors.Join(ctx.Err(), xe.ErrCancelled))
		case <-time.After(lockPollInterval):
		}
	}

	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
