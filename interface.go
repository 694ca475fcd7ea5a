package registryinspector

import "context"

// RegistryClient is the read-only subset of the Registry V2 API an
// inspection needs. *Client implements it.
type RegistryClient interface {
	// HealthCheck verifies registry availability.
	// Returns HTTP status code and error only for transport failures.
	HealthCheck(ctx context.Context) (int, error)

	// ListTags retrieves one page of tags for a repository.
	ListTags(ctx context.Context, repository string, pagination *PaginationParams) (*TagsResponse, error)

	// ListAllTags follows pagination until every tag has been listed.
	ListAllTags(ctx context.Context, repository string) ([]string, error)

	// GetManifest retrieves and parses the schema 1 manifest of a tag.
	GetManifest(ctx context.Context, repository, tag string) (*ManifestResponse, error)

	BlobProber
}

// ImageInspector produces an InspectionResult for an image reference.
// *Inspector implements it.
type ImageInspector interface {
	Inspect(ctx context.Context, ref ImageReference) (*InspectionResult, error)
}

// Compile-time interface compliance checks
var (
	_ RegistryClient = (*Client)(nil)
	_ ImageInspector = (*Inspector)(nil)
)
