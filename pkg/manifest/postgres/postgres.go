// Package postgres stores rollout records in a PostgreSQL table.
//
// Each row has a version number, incremented on each update. Version tokens are the numbers.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/rollout/pkg/conn/db/postgres/pool"
	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
	"github.com/opst/rollout/pkg/manifest"
)

const Table = "rollout_record"

const schema = `
create table if not exists "rollout_record" (
	"namespace" varchar not null,
	"workload" varchar not null,
	"applied_image" varchar not null,
	"revision" varchar not null,
	"applied_at" timestamp with time zone not null,
	"version" bigint not null,
	primary key ("namespace", "workload")
)
`

type pgStore struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) manifest.Store {
	return &pgStore{pool: pool}
}

// Migrate creates the table for records, if missing.
func Migrate(ctx context.Context, pool kpool.Queryer) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return classify("migrate", err)
	}
	return nil
}

func (s *pgStore) Read(ctx context.Context, workload domain.WorkloadKey) (domain.RolloutRecord, domain.VersionToken, error) {
	var image, revision string
	var appliedAt time.Time
	var version int64

	err := s.pool.QueryRow(
		ctx,
		`
		select "applied_image", "revision", "applied_at", "version"
		from "rollout_record"
		where "namespace" = $1 and "workload" = $2
		`,
		workload.Namespace, workload.Name,
	).Scan(&image, &revision, &appliedAt, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RolloutRecord{}, domain.NoVersion, nil
	} else if err != nil {
		return domain.RolloutRecord{}, domain.NoVersion, classify(workload.String(), err)
	}

	ref, err := domain.ParseArtifactReference(image)
	if err != nil {
		return domain.RolloutRecord{}, domain.NoVersion, xe.NewKind(
			xe.StoreUnavailable, fmt.Sprintf("%s has malformed image", workload), err,
		)
	}

	return domain.RolloutRecord{
		Workload:     workload,
		AppliedImage: ref,
		RevisionID:   revision,
		Timestamp:    appliedAt,
	}, domain.VersionToken(strconv.FormatInt(version, 10)), nil
}

func (s *pgStore) WriteIfUnchanged(ctx context.Context, workload domain.WorkloadKey, record domain.RolloutRecord, expected domain.VersionToken) error {
	if record.Workload != workload {
		return xe.New(fmt.Sprintf("record is for %s, not %s", record.Workload, workload))
	}

	if expected == domain.NoVersion {
		_, err := s.pool.Exec(
			ctx,
			`
			insert into "rollout_record"
				("namespace", "workload", "applied_image", "revision", "applied_at", "version")
			values ($1, $2, $3, $4, $5, 1)
			`,
			workload.Namespace, workload.Name,
			record.AppliedImage.String(), record.RevisionID, record.Timestamp,
		)
		return classify(workload.String(), err)
	}

	version, err := strconv.ParseInt(string(expected), 10, 64)
	if err != nil {
		return xe.NewKind(xe.CommitConflict, fmt.Sprintf("%s: unknown version %q", workload, expected), err)
	}

	ctag, err := s.pool.Exec(
		ctx,
		`
		update "rollout_record"
		set
			"applied_image" = $3,
			"revision" = $4,
			"applied_at" = $5,
			"version" = "version" + 1
		where "namespace" = $1 and "workload" = $2 and "version" = $6
		`,
		workload.Namespace, workload.Name,
		record.AppliedImage.String(), record.RevisionID, record.Timestamp,
		version,
	)
	if err != nil {
		return classify(workload.String(), err)
	}
	if ctag.RowsAffected() == 0 {
		return xe.NewKind(
			xe.CommitConflict, fmt.Sprintf("%s: version %s is not current", workload, expected), nil,
		)
	}
	return nil
}

// classify converts errors from postgres into CommitConflict, Cancelled or StoreUnavailable kind.
func classify(message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return xe.NewKind(xe.Cancelled, message, errors.Join(err, xe.ErrCancelled))
	}
	if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) {
		switch pgerr.Code {
		case pgerrcode.UniqueViolation, pgerrcode.SerializationFailure:
			return xe.NewKind(xe.CommitConflict, message, err)
		}
	}
	return xe.NewKind(xe.StoreUnavailable, message, err)
}
