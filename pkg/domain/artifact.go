package domain

import (
	"fmt"
	"regexp"
	"strings"

	gcrname "github.com/google/go-containerregistry/pkg/name"
	xe "github.com/opst/rollout/pkg/errors"
)

const (
	// length of tags derived from revisions.
	TagLength = 8

	// floating alias pushed together with each revision tag.
	LatestTag = "latest"
)

var (
	reHexPrefix = regexp.MustCompile(`^[0-9a-fA-F]{8}`)
	reTagChars  = regexp.MustCompile(`^[A-Za-z0-9._-]*$`)
)

// ArtifactReference addresses an image in a repository.
//
// References derived from revisions have Repository and Tag.
// References read from orchestrators may also have Digest, or lack Tag.
type ArtifactReference struct {
	Repository string
	Tag        string
	Digest     string
}

// TagOf derives a tag from a revision identifier.
//
// The tag is the first TagLength characters of the revision, in lower case.
// The revision must start with TagLength hexadecimal characters,
// and the rest must be valid as a tag (`[A-Za-z0-9._-]`).
//
// # Returns
//
// - string: the tag
//
// - error: InvalidRevision kind, when revision is empty or malformed.
func TagOf(revision string) (string, error) {
	rev := strings.TrimSpace(revision)
	if rev == "" {
		return "", xe.NewKind(xe.InvalidRevision, "revision is empty", nil)
	}
	if len(rev) < TagLength {
		return "", xe.NewKind(
			xe.InvalidRevision,
			fmt.Sprintf("revision %q is shorter than %d characters", rev, TagLength), nil,
		)
	}
	if !reHexPrefix.MatchString(rev) {
		return "", xe.NewKind(
			xe.InvalidRevision,
			fmt.Sprintf("revision %q does not start with %d hexadecimal characters", rev, TagLength), nil,
		)
	}
	if !reTagChars.MatchString(rev[TagLength:]) {
		return "", xe.NewKind(
			xe.InvalidRevision,
			fmt.Sprintf("revision %q has characters not allowed in tags", rev), nil,
		)
	}
	return strings.ToLower(rev[:TagLength]), nil
}

// NewArtifactReference builds the reference of repository for revision.
func NewArtifactReference(repository string, revision string) (ArtifactReference, error) {
	tag, err := TagOf(revision)
	if err != nil {
		return ArtifactReference{}, err
	}
	ref := ArtifactReference{Repository: repository, Tag: tag}
	if err := ref.Validate(); err != nil {
		return ArtifactReference{}, err
	}
	return ref, nil
}

// ParseArtifactReference reads "repository[:tag][@digest]".
//
// A registry host with port ("localhost:5000/app") is not taken as a tag.
func ParseArtifactReference(s string) (ArtifactReference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ArtifactReference{}, xe.New("empty image reference")
	}

	ref := ArtifactReference{}
	if at := strings.LastIndex(s, "@"); 0 <= at {
		ref.Digest = s[at+1:]
		s = s[:at]
	}

	slash := strings.LastIndex(s, "/")
	if colon := strings.LastIndex(s, ":"); slash < colon {
		ref.Repository = s[:colon]
		ref.Tag = s[colon+1:]
	} else {
		ref.Repository = s
	}

	if err := ref.Validate(); err != nil {
		return ArtifactReference{}, err
	}
	return ref, nil
}

// Validate checks the reference is acceptable by registries.
func (a ArtifactReference) Validate() error {
	if _, err := gcrname.NewRepository(a.Repository); err != nil {
		return xe.WrapWithNote(fmt.Sprintf("repository %q", a.Repository), err)
	}
	if a.Tag != "" {
		if _, err := gcrname.NewTag(a.Repository + ":" + a.Tag); err != nil {
			return xe.WrapWithNote(fmt.Sprintf("tag %q", a.Tag), err)
		}
	}
	if a.Digest != "" {
		if _, err := gcrname.NewDigest(a.Repository + "@" + a.Digest); err != nil {
			return xe.WrapWithNote(fmt.Sprintf("digest %q", a.Digest), err)
		}
	}
	return nil
}

// WithTag returns a copy of the reference with another tag, and without digest.
func (a ArtifactReference) WithTag(tag string) ArtifactReference {
	return ArtifactReference{Repository: a.Repository, Tag: tag}
}

// Latest is the floating alias of the reference.
func (a ArtifactReference) Latest() ArtifactReference {
	return a.WithTag(LatestTag)
}

func (a ArtifactReference) IsZero() bool {
	return a == ArtifactReference{}
}

func (a ArtifactReference) Equal(o ArtifactReference) bool {
	return a == o
}

// String renders the reference as it is written in workload specs.
func (a ArtifactReference) String() string {
	s := a.Repository
	if a.Tag != "" {
		s += ":" + a.Tag
	}
	if a.Digest != "" {
		s += "@" + a.Digest
	}
	return s
}
