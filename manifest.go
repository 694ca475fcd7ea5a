package registryinspector

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	json "github.com/eznix86/registry-inspector/jsoncompat"
	"github.com/opencontainers/go-digest"
)

// createdLayouts are tried in order when parsing the created timestamp of a v1 image
var createdLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// ParseManifestV1 parses a schema 1 manifest body.
func ParseManifestV1(b []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m.SchemaVersion != 1 {
		return nil, fmt.Errorf("unsupported manifest schema version %d", m.SchemaVersion)
	}
	return &m, nil
}

// LayerDigestSet holds the distinct blob digests of a manifest in order of
// first appearance.
type LayerDigestSet struct {
	order []digest.Digest
	seen  mapset.Set[digest.Digest]
}

// NewLayerDigestSet returns a set holding the given digests.
func NewLayerDigestSet(digests ...digest.Digest) *LayerDigestSet {
	s := &LayerDigestSet{seen: mapset.NewThreadUnsafeSet[digest.Digest]()}
	for _, d := range digests {
		s.Add(d)
	}
	return s
}

// Add inserts d and reports whether it was not already present.
func (s *LayerDigestSet) Add(d digest.Digest) bool {
	if !s.seen.Add(d) {
		return false
	}
	s.order = append(s.order, d)
	return true
}

func (s *LayerDigestSet) Contains(d digest.Digest) bool {
	return s.seen.Contains(d)
}

func (s *LayerDigestSet) Len() int {
	return len(s.order)
}

// Digests returns a copy of the digests in order of first appearance.
func (s *LayerDigestSet) Digests() []digest.Digest {
	out := make([]digest.Digest, len(s.order))
	copy(out, s.order)
	return out
}

// LayerDigests collects the distinct blobSums of the manifest's fsLayers.
// A blobSum that is not a canonical digest is kept as an opaque value; only
// one that cannot be placed in a blob URL makes the manifest unusable.
func (m *Manifest) LayerDigests() (*LayerDigestSet, error) {
	set := NewLayerDigestSet()
	for i, layer := range m.FSLayers {
		d, err := blobDigest(layer.BlobSum)
		if err != nil {
			return nil, fmt.Errorf("fsLayers[%d]: invalid blobSum %q: %w", i, layer.BlobSum, err)
		}
		set.Add(d)
	}
	return set, nil
}

func blobDigest(blobSum string) (digest.Digest, error) {
	if d, err := digest.Parse(blobSum); err == nil {
		return d, nil
	}
	switch {
	case strings.TrimSpace(blobSum) == "":
		return "", errors.New("empty digest")
	case strings.ContainsAny(blobSum, "/?# \t\r\n"):
		return "", errors.New("digest is not a single path element")
	}
	return digest.Digest(blobSum), nil
}

var errNoHistory = errors.New("manifest has no history")

// BuildInfo reads the creation time and container configuration from the
// newest history entry. The returned BuildInfo is always usable; a non-nil
// error only explains which fields could not be recovered.
func (m *Manifest) BuildInfo() (BuildInfo, error) {
	var info BuildInfo
	if len(m.History) == 0 || m.History[0].V1Compatibility == "" {
		return info, errNoHistory
	}

	var compat V1Compatibility
	if err := json.Unmarshal([]byte(m.History[0].V1Compatibility), &compat); err != nil {
		return info, fmt.Errorf("decode v1Compatibility: %w", err)
	}

	if len(compat.ContainerConfig) > 0 && string(compat.ContainerConfig) != "null" {
		info.ContainerConfig = compat.ContainerConfig
	}

	if compat.Created == "" {
		return info, errors.New("v1Compatibility has no created timestamp")
	}
	created, err := parseCreated(compat.Created)
	if err != nil {
		return info, err
	}
	info.Created = &created
	return info, nil
}

func parseCreated(s string) (time.Time, error) {
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised created timestamp %q", s)
}
