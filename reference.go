package registryinspector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

const (
	// DockerHubRegistry is the registry host assumed when none is given.
	DockerHubRegistry = name.DefaultRegistry
	// DefaultNamespace is the Docker Hub namespace of official images.
	DefaultNamespace = "library"
	// DefaultTag is used when a reference names no tag.
	DefaultTag = name.DefaultTag
)

// ImageReference names the repository and tag to inspect on a registry host.
type ImageReference struct {
	Registry   string
	Repository string
	Tag        string
}

// ParseImageReference parses [registry/][namespace/]name[:tag]. The registry
// defaults to Docker Hub, the namespace to "library" on Docker Hub, and the
// tag to "latest". Digest references are rejected.
func ParseImageReference(s string) (ImageReference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ImageReference{}, fmt.Errorf("image reference is empty")
	}
	if strings.Contains(s, "@") {
		return ImageReference{}, fmt.Errorf("invalid image reference %q: digest references are not supported", s)
	}

	ref, err := name.ParseReference(s, name.WithDefaultRegistry(DockerHubRegistry), name.WithDefaultTag(DefaultTag))
	if err != nil {
		// name wants repositories of at least two characters; the
		// distribution grammar allows one.
		if short, ok := parseShortReference(s); ok {
			return short, nil
		}
		return ImageReference{}, fmt.Errorf("invalid image reference %q: %w", s, err)
	}
	tag, ok := ref.(name.Tag)
	if !ok {
		return ImageReference{}, fmt.Errorf("invalid image reference %q: not a tag", s)
	}

	return ImageReference{
		Registry:   tag.RegistryStr(),
		Repository: tag.RepositoryStr(),
		Tag:        tag.TagStr(),
	}, nil
}

var (
	hostPattern          = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?)(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?)*(?::[0-9]+)?$`)
	pathComponentPattern = regexp.MustCompile(`^[a-z0-9]+(?:(?:[._]|__|-+)[a-z0-9]+)*$`)
	tagPattern           = regexp.MustCompile(`^[\w][\w.-]{0,127}$`)
)

// parseShortReference splits s by the distribution reference grammar. The
// first path element is a registry host when it holds a dot or a port, or is
// localhost.
func parseShortReference(s string) (ImageReference, bool) {
	ref := ImageReference{Registry: DockerHubRegistry, Tag: DefaultTag}
	rest := s
	if host, path, ok := strings.Cut(s, "/"); ok && (strings.ContainsAny(host, ".:") || host == "localhost") {
		ref.Registry, rest = host, path
	}
	if i := strings.LastIndexByte(rest, ':'); i >= 0 {
		rest, ref.Tag = rest[:i], rest[i+1:]
	}
	ref.Repository = rest

	if !hostPattern.MatchString(ref.Registry) || !tagPattern.MatchString(ref.Tag) || len(ref.Repository) > 255 {
		return ImageReference{}, false
	}
	for _, component := range strings.Split(ref.Repository, "/") {
		if !pathComponentPattern.MatchString(component) {
			return ImageReference{}, false
		}
	}

	if IsDockerHubHost(ref.Registry) {
		ref.Registry = DockerHubRegistry
		if !strings.Contains(ref.Repository, "/") {
			ref.Repository = DefaultNamespace + "/" + ref.Repository
		}
	}
	return ref, true
}

// NewImageReference builds a reference from its parts, applying the same
// defaults and validation as ParseImageReference.
func NewImageReference(registry, repository, tag string) (ImageReference, error) {
	if registry == "" {
		registry = DockerHubRegistry
	}
	if tag == "" {
		tag = DefaultTag
	}
	if repository == "" {
		return ImageReference{}, fmt.Errorf("repository is empty")
	}
	return ParseImageReference(fmt.Sprintf("%s/%s:%s", registry, repository, tag))
}

func (r ImageReference) String() string {
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository, r.Tag)
}

// IsDockerHub reports whether the reference points at Docker Hub.
func (r ImageReference) IsDockerHub() bool {
	return IsDockerHubHost(r.Registry)
}

// IsDockerHubHost reports whether host is one of Docker Hub's registry names.
func IsDockerHubHost(host string) bool {
	switch strings.ToLower(host) {
	case "docker.io", "index.docker.io", "registry-1.docker.io", "registry.hub.docker.com":
		return true
	}
	return false
}
