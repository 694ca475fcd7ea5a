package json_test

import (
	"bytes"
	"testing"

	json "github.com/eznix86/registry-inspector/jsoncompat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, json.Indent(&buf, []byte(`{"Cmd":["redis-server"]}`), "", "  "))
	assert.Contains(t, buf.String(), "\n  \"Cmd\"")
}

func TestIndent_Invalid(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, json.Indent(&buf, []byte(`{invalid`), "", "  "))
}

func TestRoundTripRawMessage(t *testing.T) {
	var v struct {
		Config json.RawMessage `json:"config"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"config":{"Env":["A=1"]}}`), &v))

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"config":{"Env":["A=1"]}}`, string(out))
}
