package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	registryinspector "github.com/eznix86/registry-inspector"
	json "github.com/eznix86/registry-inspector/jsoncompat"
	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestExitCode(t *testing.T) {
	notFound := &registryinspector.HTTPError{Operation: "get manifest", Status: http.StatusNotFound}
	timeout := &registryinspector.TimeoutError{Operation: "get manifest", Err: context.DeadlineExceeded}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "http status", err: notFound, want: exitHTTP},
		{name: "token", err: &registryinspector.AuthError{Status: http.StatusUnauthorized}, want: exitHTTP},
		{name: "layer status", err: &registryinspector.LayerError{Digest: "sha256:aaa", Err: notFound}, want: exitHTTP},
		{name: "timeout", err: timeout, want: exitTimeout},
		{name: "wrapped timeout", err: fmt.Errorf("inspect: %w", timeout), want: exitTimeout},
		{name: "aggregated layers", err: multierror.Append(nil,
			&registryinspector.LayerError{Digest: "sha256:aaa", Err: notFound},
			&registryinspector.LayerError{Digest: "sha256:bbb", Err: notFound},
		), want: exitHTTP},
		{name: "parse", err: &registryinspector.ParseError{Operation: "get manifest", Err: errors.New("bad")}, want: exitOther},
		{name: "connection", err: &registryinspector.RequestError{Operation: "get manifest", Err: errors.New("refused")}, want: exitOther},
		{name: "bad reference", err: errors.New("invalid image reference"), want: exitOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func sampleResult() *registryinspector.InspectionResult {
	created := time.Date(2016, 3, 1, 22, 48, 36, 0, time.UTC)
	return &registryinspector.InspectionResult{
		Reference:     registryinspector.ImageReference{Registry: "index.docker.io", Repository: "library/redis", Tag: "latest"},
		SchemaVersion: 1,
		Name:          "library/redis",
		Tag:           "latest",
		Architecture:  "amd64",
		HistoryLength: 3,
		ContentType:   registryinspector.MediaTypeSignedManifestV1,
		Created:       &created,
		Config:        json.RawMessage(`{"Cmd":["redis-server"]}`),
		Tags:          []string{"7", "latest"},
		Layers: []registryinspector.LayerInfo{
			{Digest: "sha256:aaa", Size: registryinspector.KnownSize(1048576)},
			{Digest: "sha256:bbb", Size: registryinspector.UnknownSize},
		},
		TotalSize: 1048576,
		Duration:  1500 * time.Millisecond,
	}
}

func TestRender(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, render(&out, sampleResult()))

	text := out.String()
	for _, want := range []string{
		"Image: index.docker.io/library/redis:latest",
		"Schema version: 1",
		"Image name: library/redis",
		"Architecture: amd64",
		"Created: 2016-03-01T22:48:36Z",
		"Number of history entries: 3",
		`"redis-server"`,
		"Tags: 2",
		"Number of layers: 2",
		"sha256:aaa - 1.0 MB",
		"sha256:bbb - unknown",
		"Image size: 1.0 MB (excluding 1 layer)",
	} {
		assert.Contains(t, text, want)
	}
}

func TestRender_TagsUnavailable(t *testing.T) {
	r := sampleResult()
	r.Tags = []string{}
	r.TagsError = "list tags failed: 403 Forbidden"
	r.Config = nil
	r.Created = nil
	r.Layers = []registryinspector.LayerInfo{{Digest: "sha256:aaa", Err: "blob size failed: 404 Not Found"}}
	r.TotalSize = 0

	var out bytes.Buffer
	require.NoError(t, render(&out, r))

	text := out.String()
	assert.Contains(t, text, "Tags: unavailable: list tags failed: 403 Forbidden")
	assert.Contains(t, text, "sha256:aaa - failed: blob size failed: 404 Not Found")
	assert.NotContains(t, text, "Configuration:")
	assert.NotContains(t, text, "Created:")
}

func TestRenderJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderJSON(&out, sampleResult()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "library/redis", decoded["name"])
	assert.Equal(t, float64(1048576), decoded["image_size"])
	assert.Equal(t, map[string]any{"Cmd": []any{"redis-server"}}, decoded["config"])
	assert.Equal(t, 1.5, decoded["duration"], "seconds, as the HTTP service reports")
	assert.Contains(t, decoded, "reference")
}

func TestRootCommand_Args(t *testing.T) {
	cmd := rootCommand()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())

	cmd = rootCommand()
	cmd.SetArgs([]string{"--config-dir", t.TempDir(), "bad@image"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, exitOther, exitCode(err))
}

func TestSortTags(t *testing.T) {
	tags := []string{"latest", "6.2.1", "alpine", "7.0.0-rc1", "7", "v6.10"}

	assert.Equal(t, []string{"7", "7.0.0-rc1", "v6.10", "6.2.1", "alpine", "latest"}, sortTags(tags))
	assert.Equal(t, []string{"latest", "6.2.1", "alpine", "7.0.0-rc1", "7", "v6.10"}, tags, "input is left alone")
	assert.Empty(t, sortTags(nil))
}
