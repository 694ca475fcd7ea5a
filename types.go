package registryinspector

import (
	"time"

	json "github.com/eznix86/registry-inspector/jsoncompat"
)

// Media types a registry may use for schema 1 manifests
const (
	MediaTypeManifestV1       = "application/vnd.docker.distribution.manifest.v1+json"
	MediaTypeSignedManifestV1 = "application/vnd.docker.distribution.manifest.v1+prettyjws"
)

// FSLayer references one filesystem layer blob in a schema 1 manifest
type FSLayer struct {
	BlobSum string `json:"blobSum"`
}

// HistoryEntry carries the v1 image JSON for one layer, encoded as a string
type HistoryEntry struct {
	V1Compatibility string `json:"v1Compatibility"`
}

// Manifest represents a Docker Registry schema 1 image manifest.
// fsLayers and history are listed newest first.
type Manifest struct {
	SchemaVersion int            `json:"schemaVersion"`
	Name          string         `json:"name"`
	Tag           string         `json:"tag"`
	Architecture  string         `json:"architecture"`
	FSLayers      []FSLayer      `json:"fsLayers"`
	History       []HistoryEntry `json:"history"`
}

// V1Compatibility is the subset of the v1 image JSON we read from history[0]
type V1Compatibility struct {
	ID              string          `json:"id,omitempty"`
	Created         string          `json:"created,omitempty"`
	ContainerConfig json.RawMessage `json:"container_config,omitempty"`
}

// BuildInfo is the build metadata recovered from a manifest's newest history entry.
// Both fields are optional.
type BuildInfo struct {
	Created         *time.Time
	ContainerConfig json.RawMessage
}
