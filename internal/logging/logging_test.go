package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	registryinspector "github.com/eznix86/registry-inspector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ registryinspector.Logger = (*Adapter)(nil)

func TestDetails(t *testing.T) {
	details := Details(
		"operation", "GetManifest",
		"status_code", 200,
		"error", errors.New("boom"),
		"duration", 1500*time.Millisecond,
		"size", int64(42),
	)
	require.Len(t, details, 5)

	assert.Equal(t, "operation", details[0].Key())
	assert.Equal(t, "GetManifest", details[0].Value())
	assert.Equal(t, "status_code", details[1].Key())
	assert.Equal(t, "error", details[2].Key())
	assert.Equal(t, "duration", details[3].Key())
	assert.Equal(t, "1.5s", details[3].Value())
	assert.Equal(t, "size", details[4].Key())
	assert.Equal(t, int64(42), details[4].Value())
}

func TestDetails_BadKeys(t *testing.T) {
	details := Details(42, "key", "value")
	require.Len(t, details, 2)
	assert.Equal(t, "!BADKEY", details[0].Key())
	assert.Equal(t, 42, details[0].Value())
	assert.Equal(t, "key", details[1].Key())

	details = Details("key", "value", "dangling")
	require.Len(t, details, 2)
	assert.Equal(t, "!BADKEY", details[1].Key())
	assert.Equal(t, "dangling", details[1].Value())

	assert.Empty(t, Details())
}

func TestAdapter_DoesNotPanic(t *testing.T) {
	a := New(nil).WithContext(context.Background())
	assert.NotPanics(t, func() {
		a.Debug("Registry request", "operation", "ListTags")
		a.Info("info")
		a.Warn("Tag listing failed", "error", errors.New("boom"))
		a.Error("failed", "dangling")
	})
}
