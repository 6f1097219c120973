package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-containerregistry/pkg/authn"
	gcrname "github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/opst/rollout/pkg/domain"
	xe "github.com/opst/rollout/pkg/errors"
)

// Registry is where artifacts are pushed to.
type Registry interface {
	// Push uploads the artifact under ref.
	//
	// # Returns
	//
	// - error: RegistryUnavailable (retryable) or RegistryRejected (fatal) kind.
	Push(ctx context.Context, ref domain.ArtifactReference) error

	// Exists tells whether ref can be pulled from the registry.
	Exists(ctx context.Context, ref domain.ArtifactReference) (bool, error)
}

type ociRegistry struct {
	source        ImageSource
	nameOptions   []gcrname.Option
	remoteOptions []remote.Option
}

var _ Registry = &ociRegistry{}

type Option func(*ociRegistry)

// Insecure allows plain http registries (like ones on localhost).
func Insecure() Option {
	return func(r *ociRegistry) {
		r.nameOptions = append(r.nameOptions, gcrname.Insecure)
	}
}

// WithKeychain sets credentials. Default is authn.DefaultKeychain (docker config).
func WithKeychain(kc authn.Keychain) Option {
	return func(r *ociRegistry) {
		r.remoteOptions = append(r.remoteOptions, remote.WithAuthFromKeychain(kc))
	}
}

func WithTransport(t http.RoundTripper) Option {
	return func(r *ociRegistry) {
		r.remoteOptions = append(r.remoteOptions, remote.WithTransport(t))
	}
}

// New returns a Registry pushing the image from source.
//
// The client does not retry by itself; rollouts decide retries.
func New(source ImageSource, options ...Option) Registry {
	r := &ociRegistry{
		source: source,
		remoteOptions: []remote.Option{
			remote.WithAuthFromKeychain(authn.DefaultKeychain),
			remote.WithRetryBackoff(remote.Backoff{Duration: 0, Factor: 1, Steps: 1}),
		},
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *ociRegistry) tag(ref domain.ArtifactReference) (gcrname.Tag, error) {
	if ref.Tag == "" {
		return gcrname.Tag{}, xe.NewKind(xe.RegistryRejected, fmt.Sprintf("%s has no tag", ref), nil)
	}
	tag, err := gcrname.NewTag(ref.String(), r.nameOptions...)
	if err != nil {
		return gcrname.Tag{}, xe.NewKind(xe.RegistryRejected, fmt.Sprintf("invalid reference %s", ref), err)
	}
	return tag, nil
}

func (r *ociRegistry) options(ctx context.Context) []remote.Option {
	opts := make([]remote.Option, 0, len(r.remoteOptions)+1)
	opts = append(opts, r.remoteOptions...)
	return append(opts, remote.WithContext(ctx))
}

func (r *ociRegistry) Push(ctx context.Context, ref domain.ArtifactReference) error {
	tag, err := r.tag(ref)
	if err != nil {
		return err
	}

	img, err := r.source.Image(ctx)
	if err != nil {
		return Classify(fmt.Sprintf("loading image from %s", r.source), err)
	}

	if err := remote.Write(tag, img, r.options(ctx)...); err != nil {
		return Classify(fmt.Sprintf("pushing %s", ref), err)
	}
	return nil
}

func (r *ociRegistry) Exists(ctx context.Context, ref domain.ArtifactReference) (bool, error) {
	tag, err := r.tag(ref)
	if err != nil {
		return false, err
	}

	if _, err := remote.Head(tag, r.options(ctx)...); err != nil {
		if terr := new(transport.Error); errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, Classify(fmt.Sprintf("checking %s", ref), err)
	}
	return true, nil
}
