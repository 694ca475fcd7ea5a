package registryinspector

import (
	"strconv"
)

// PaginationParams contains parameters for paginated requests
type PaginationParams struct {
	N    int    // Page size (0 for no limit)
	Last string // Last item from previous page
}

// PaginatedResponse provides pagination metadata
type PaginatedResponse struct {
	HasMore bool   // Whether more results are available
	Last    string // Last item in current page (for next request)
	N       int    // Page size from Link header (if present)
}

// TagsResponse represents the response from tags endpoints
type TagsResponse struct {
	Name string
	Tags []string
	PaginatedResponse
}

// ManifestResponse represents the response from manifest endpoints
type ManifestResponse struct {
	Manifest *Manifest

	// HTTP response metadata
	ContentType string
	Digest      string
	RawContent  []byte
}

// LayerSize is the byte size of a blob as reported by the registry.
// Known is false when the registry did not send a Content-Length.
type LayerSize struct {
	Bytes int64
	Known bool
}

// KnownSize returns a LayerSize holding n bytes
func KnownSize(n int64) LayerSize {
	return LayerSize{Bytes: n, Known: true}
}

// UnknownSize is the size of a blob whose length the registry did not report
var UnknownSize = LayerSize{}

func (s LayerSize) String() string {
	if !s.Known {
		return "unknown"
	}
	return strconv.FormatInt(s.Bytes, 10)
}

// MarshalJSON encodes a known size as a number and an unknown size as null
func (s LayerSize) MarshalJSON() ([]byte, error) {
	if !s.Known {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(s.Bytes, 10)), nil
}

// UnmarshalJSON accepts a number or null
func (s *LayerSize) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = UnknownSize
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*s = KnownSize(n)
	return nil
}

// LayerInfo pairs a layer digest with its resolved size.
// Err is set only when the probe failed and failures were tolerated.
type LayerInfo struct {
	Digest string    `json:"digest"`
	Size   LayerSize `json:"size"`
	Err    string    `json:"error,omitempty"`
}
