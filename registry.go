package registryinspector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/eznix86/registry-inspector/jsoncompat"
)

var manifestV1MediaTypes = []string{
	MediaTypeSignedManifestV1,
	MediaTypeManifestV1,
}

// maxErrorBody caps how much of an error response body is kept in an HTTPError.
const maxErrorBody = 4 << 10

// addAcceptHeaders adds Accept headers for schema 1 manifests.
func addAcceptHeaders(req *http.Request) {
	for _, h := range manifestV1MediaTypes {
		req.Header.Add("Accept", h)
	}
}

// parseLinkHeader parses the Link header and extracts pagination parameters.
// Link format: </v2/library/redis/tags/list?last=7.2&n=100>; rel="next"
func parseLinkHeader(linkHeader string) PaginatedResponse {
	if linkHeader == "" {
		return PaginatedResponse{}
	}

	parts := strings.Split(linkHeader, ";")
	if len(parts) < 1 {
		return PaginatedResponse{}
	}

	// Extract URL from <...>
	urlPart := strings.TrimSpace(parts[0])
	urlPart = strings.Trim(urlPart, "<>")

	parsedURL, err := url.Parse(urlPart)
	if err != nil {
		return PaginatedResponse{}
	}

	query := parsedURL.Query()
	last := query.Get("last")

	var n int
	if nStr := query.Get("n"); nStr != "" {
		n, _ = strconv.Atoi(nStr) // n stays 0 when unparsable
	}

	return PaginatedResponse{
		HasMore: true,
		Last:    last,
		N:       n,
	}
}

// applyPagination adds pagination query parameters to the request if provided
func applyPagination(req *http.Request, pagination *PaginationParams) {
	if pagination == nil {
		return
	}
	q := req.URL.Query()
	if pagination.N > 0 {
		q.Add("n", strconv.Itoa(pagination.N))
	}
	if pagination.Last != "" {
		q.Add("last", pagination.Last)
	}
	req.URL.RawQuery = q.Encode()
}

// httpError drains a failed response into an HTTPError.
func httpError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{Operation: operation, Status: resp.StatusCode, Body: string(body)}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// HealthCheck performs a GET on /v2/ to verify registry availability.
func (c *Client) HealthCheck(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/v2/", c.BaseURL)

	c.logDebug("Registry request",
		"operation", "HealthCheck",
		"method", http.MethodGet,
		"url", url,
	)

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, transportError("health check", err)
	}
	defer c.closeBody(resp.Body)

	c.logDebug("Registry response",
		"operation", "HealthCheck",
		"status_code", resp.StatusCode,
	)

	return resp.StatusCode, nil
}

// ListTags retrieves one page of tags for a given repository.
// Optional pagination parameters can be provided.
func (c *Client) ListTags(ctx context.Context, repository string, pagination *PaginationParams) (*TagsResponse, error) {
	url := fmt.Sprintf("%s/v2/%s/tags/list", c.BaseURL, repository)

	logArgs := []any{
		"operation", "ListTags",
		"method", http.MethodGet,
		"repository", repository,
		"url", url,
	}
	if pagination != nil {
		logArgs = append(logArgs, "page_size", pagination.N, "last", pagination.Last)
	}
	c.logDebug("Registry request", logArgs...)

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	applyPagination(req, pagination)

	resp, err := c.Do(req)
	if err != nil {
		return nil, transportError("list tags", err)
	}
	defer c.closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return nil, httpError("list tags", resp)
	}

	var data struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		if ctx.Err() != nil {
			return nil, transportError("list tags", ctx.Err())
		}
		return nil, &ParseError{Operation: "list tags", Err: err}
	}

	paginationResp := parseLinkHeader(resp.Header.Get("Link"))

	c.logDebug("Registry response",
		"operation", "ListTags",
		"repository", repository,
		"tag_count", len(data.Tags),
		"has_more", paginationResp.HasMore,
	)

	return &TagsResponse{
		Name:              data.Name,
		Tags:              data.Tags,
		PaginatedResponse: paginationResp,
	}, nil
}

// maxTagPages bounds ListAllTags against registries that keep returning next links.
const maxTagPages = 100

// ListAllTags follows Link pagination until the registry reports no more tags.
func (c *Client) ListAllTags(ctx context.Context, repository string) ([]string, error) {
	var (
		tags       []string
		pagination *PaginationParams
	)
	for page := 0; page < maxTagPages; page++ {
		resp, err := c.ListTags(ctx, repository, pagination)
		if err != nil {
			return nil, err
		}
		tags = append(tags, resp.Tags...)
		if !resp.HasMore || resp.Last == "" || (pagination != nil && resp.Last == pagination.Last) {
			return tags, nil
		}
		pagination = &PaginationParams{N: resp.N, Last: resp.Last}
	}
	c.logWarn("Tag listing truncated",
		"repository", repository,
		"pages", maxTagPages,
		"tag_count", len(tags),
	)
	return tags, nil
}

// GetManifest retrieves the schema 1 manifest for a repository and tag.
func (c *Client) GetManifest(ctx context.Context, repository, tag string) (*ManifestResponse, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", c.BaseURL, repository, tag)

	c.logDebug("Registry request",
		"operation", "GetManifest",
		"method", http.MethodGet,
		"repository", repository,
		"reference", tag,
		"url", url,
	)

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	addAcceptHeaders(req)

	resp, err := c.Do(req)
	if err != nil {
		return nil, transportError("get manifest", err)
	}
	defer c.closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return nil, httpError("get manifest", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("get manifest", err)
	}

	manifest, err := ParseManifestV1(body)
	if err != nil {
		return nil, &ParseError{Operation: "get manifest", Err: err}
	}

	c.logDebug("Registry response",
		"operation", "GetManifest",
		"repository", repository,
		"reference", tag,
		"content_type", resp.Header.Get("Content-Type"),
		"digest", resp.Header.Get("Docker-Content-Digest"),
		"schema_version", manifest.SchemaVersion,
		"fs_layers", len(manifest.FSLayers),
	)

	return &ManifestResponse{
		Manifest:    manifest,
		ContentType: resp.Header.Get("Content-Type"),
		Digest:      resp.Header.Get("Docker-Content-Digest"),
		RawContent:  body,
	}, nil
}

// BlobSize asks the registry for the length of a blob without downloading it.
// Redirects to blob storage are followed. A response without Content-Length
// yields UnknownSize and no error.
func (c *Client) BlobSize(ctx context.Context, repository, digest string) (LayerSize, error) {
	url := fmt.Sprintf("%s/v2/%s/blobs/%s", c.BaseURL, repository, digest)

	c.logDebug("Registry request",
		"operation", "BlobSize",
		"method", http.MethodHead,
		"repository", repository,
		"digest", digest,
		"url", url,
	)

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return UnknownSize, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return UnknownSize, transportError("blob size", err)
	}
	defer c.closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return UnknownSize, httpError("blob size", resp)
	}

	size, err := contentLength(resp)
	if err != nil {
		return UnknownSize, &ParseError{Operation: "blob size", Err: err}
	}

	c.logDebug("Registry response",
		"operation", "BlobSize",
		"repository", repository,
		"digest", digest,
		"size", size.String(),
	)

	return size, nil
}

// contentLength reads the Content-Length header of a HEAD response.
// A missing header means the registry did not report a size.
func contentLength(resp *http.Response) (LayerSize, error) {
	raw := strings.TrimSpace(resp.Header.Get("Content-Length"))
	if raw == "" {
		return UnknownSize, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return UnknownSize, fmt.Errorf("invalid Content-Length %q: %w", raw, err)
	}
	if n < 0 {
		return UnknownSize, errors.New("negative Content-Length")
	}
	return KnownSize(n), nil
}
