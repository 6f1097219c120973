// Package manifest defines the store of rollout records.
//
// A store keeps one record for each workload and guards writes with version tokens:
// a writer reads a record with its token, and writes only if the record is not changed since.
package manifest

import (
	"context"

	"github.com/opst/rollout/pkg/domain"
)

type Store interface {
	// Read the record of the workload.
	//
	// # Returns
	//
	// - domain.RolloutRecord: the record. Zero value when no record is written yet.
	//
	// - domain.VersionToken: token of the record. domain.NoVersion when no record is written yet.
	//
	// - error: StoreUnavailable kind on I/O errors.
	Read(ctx context.Context, workload domain.WorkloadKey) (domain.RolloutRecord, domain.VersionToken, error)

	// WriteIfUnchanged replaces the record of the workload, only if its token is still expected.
	//
	// The record is written entirely or not at all.
	//
	// # Returns
	//
	// - error: CommitConflict kind when the record has been changed since expected is read.
	// StoreUnavailable kind on I/O errors.
	WriteIfUnchanged(ctx context.Context, workload domain.WorkloadKey, record domain.RolloutRecord, expected domain.VersionToken) error
}
