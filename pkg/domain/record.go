package domain

import "time"

// RolloutRecord is the durable record of the image applied to a workload.
//
// There is one record per workload. It is overwritten on each successful rollout, and never partially.
type RolloutRecord struct {
	Workload     WorkloadKey
	AppliedImage ArtifactReference
	RevisionID   string
	Timestamp    time.Time
}

func (r RolloutRecord) IsZero() bool {
	return r.Workload == WorkloadKey{} && r.AppliedImage.IsZero() && r.RevisionID == "" && r.Timestamp.IsZero()
}

func (r RolloutRecord) Equal(o RolloutRecord) bool {
	return r.Workload == o.Workload &&
		r.AppliedImage.Equal(o.AppliedImage) &&
		r.RevisionID == o.RevisionID &&
		r.Timestamp.Equal(o.Timestamp)
}

// VersionToken identifies a version of a stored record.
//
// NoVersion means there are no record yet.
type VersionToken string

const NoVersion VersionToken = ""
