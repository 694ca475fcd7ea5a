package registryinspector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImageReference(t *testing.T) {
	tests := []struct {
		in   string
		want ImageReference
	}{
		{in: "redis", want: ImageReference{Registry: "index.docker.io", Repository: "library/redis", Tag: "latest"}},
		{in: "redis:7.2", want: ImageReference{Registry: "index.docker.io", Repository: "library/redis", Tag: "7.2"}},
		{in: "giantswarm/tiny-tools", want: ImageReference{Registry: "index.docker.io", Repository: "giantswarm/tiny-tools", Tag: "latest"}},
		{in: "docker.io/library/redis:alpine", want: ImageReference{Registry: "index.docker.io", Repository: "library/redis", Tag: "alpine"}},
		{in: "quay.io/coreos/etcd:v3.5.0", want: ImageReference{Registry: "quay.io", Repository: "coreos/etcd", Tag: "v3.5.0"}},
		{in: "localhost:5000/team/app", want: ImageReference{Registry: "localhost:5000", Repository: "team/app", Tag: "latest"}},
		{in: "registry.example.com/app:1", want: ImageReference{Registry: "registry.example.com", Repository: "app", Tag: "1"}},
		{in: "a", want: ImageReference{Registry: "index.docker.io", Repository: "library/a", Tag: "latest"}},
		{in: "library/a", want: ImageReference{Registry: "index.docker.io", Repository: "library/a", Tag: "latest"}},
		{in: "docker.io/b:1", want: ImageReference{Registry: "index.docker.io", Repository: "library/b", Tag: "1"}},
		{in: "myreg:5000/x", want: ImageReference{Registry: "myreg:5000", Repository: "x", Tag: "latest"}},
		{in: "registry.example.com/x:y", want: ImageReference{Registry: "registry.example.com", Repository: "x", Tag: "y"}},
		{in: "localhost/z", want: ImageReference{Registry: "localhost", Repository: "z", Tag: "latest"}},
		{in: "  redis  ", want: ImageReference{Registry: "index.docker.io", Repository: "library/redis", Tag: "latest"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, err := ParseImageReference(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref)
		})
	}
}

func TestParseImageReference_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"Redis",
		"redis@sha256:a3ed95caeb02ffe68cdd9fd84406680ae93d633cb16422d00e8a7c22955b46d4",
		"redis:bad tag",
		"X",
		"registry.example.com/Y",
		"a:bad tag",
		"a:",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseImageReference(in)
			assert.Error(t, err)
		})
	}
}

func TestNewImageReference(t *testing.T) {
	ref, err := NewImageReference("", "redis", "")
	require.NoError(t, err)
	assert.Equal(t, ImageReference{Registry: "index.docker.io", Repository: "library/redis", Tag: "latest"}, ref)
	assert.True(t, ref.IsDockerHub())
	assert.Equal(t, "index.docker.io/library/redis:latest", ref.String())

	ref, err = NewImageReference("ghcr.io", "owner/tool", "v2")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/owner/tool:v2", ref.String())
	assert.False(t, ref.IsDockerHub())

	ref, err = NewImageReference("registry.example.com", "x", "y")
	require.NoError(t, err)
	assert.Equal(t, ImageReference{Registry: "registry.example.com", Repository: "x", Tag: "y"}, ref)

	_, err = NewImageReference("ghcr.io", "", "v2")
	assert.Error(t, err)
}

func TestIsDockerHubHost(t *testing.T) {
	for _, host := range []string{"docker.io", "index.docker.io", "registry-1.docker.io", "registry.hub.docker.com", "INDEX.DOCKER.IO"} {
		assert.True(t, IsDockerHubHost(host), host)
	}
	for _, host := range []string{"ghcr.io", "quay.io", "localhost:5000", ""} {
		assert.False(t, IsDockerHubHost(host), host)
	}
}
