package registry

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/go-containerregistry/pkg/authn"
	gcrname "github.com/google/go-containerregistry/pkg/name"
	gcr "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
)

// ImageSource provides the built image to be pushed.
type ImageSource interface {
	Image(context.Context) (gcr.Image, error)
	String() string
}

type tarballSource struct {
	path string
	tag  string

	mu    sync.Mutex
	image gcr.Image
}

// FromTarball reads an image from a tarball made by `docker save` or go-containerregistry.
//
// # Args
//
// - path: path to the tarball.
//
// - tag: which image in the tarball. When the tarball has only one image, it can be empty.
func FromTarball(path string, tag string) ImageSource {
	return &tarballSource{path: path, tag: tag}
}

// Image loads the image at the first successful call, and returns it after that.
// Failures are not remembered, so the tarball can be written after the first call.
func (s *tarballSource) Image(context.Context) (gcr.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image != nil {
		return s.image, nil
	}

	if _, err := os.Stat(s.path); err != nil {
		return nil, err
	}
	var t *gcrname.Tag
	if s.tag != "" {
		tag, err := gcrname.NewTag(s.tag)
		if err != nil {
			return nil, err
		}
		t = &tag
	}
	img, err := tarball.ImageFromPath(s.path, t)
	if err != nil {
		return nil, err
	}
	s.image = img
	return s.image, nil
}

func (s *tarballSource) String() string {
	return fmt.Sprintf("tarball %s", s.path)
}

type remoteSource struct {
	ref      string
	insecure bool
}

// FromRemote copies an image already pushed elsewhere (for example, a build cache tag).
func FromRemote(ref string, insecure bool) ImageSource {
	return &remoteSource{ref: ref, insecure: insecure}
}

func (s *remoteSource) Image(ctx context.Context) (gcr.Image, error) {
	opts := []gcrname.Option{}
	if s.insecure {
		opts = append(opts, gcrname.Insecure)
	}
	ref, err := gcrname.ParseReference(s.ref, opts...)
	if err != nil {
		return nil, err
	}
	return remote.Image(
		ref,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	)
}

func (s *remoteSource) String() string {
	return fmt.Sprintf("remote %s", s.ref)
}

type imageSource struct {
	image gcr.Image
}

// FromImage uses an image in memory.
func FromImage(img gcr.Image) ImageSource {
	return imageSource{image: img}
}

func (s imageSource) Image(context.Context) (gcr.Image, error) {
	return s.image, nil
}

func (s imageSource) String() string {
	return "in-memory image"
}
