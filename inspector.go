package registryinspector

import (
	"context"
	"net/http"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	json "github.com/eznix86/registry-inspector/jsoncompat"
)

// DockerHubEndpoint serves the registry API for every Docker Hub host name.
const DockerHubEndpoint = "https://registry.hub.docker.com"

// InspectionResult describes one image tag. It is built once an inspection
// has succeeded and is not modified afterwards.
type InspectionResult struct {
	Reference     ImageReference  `json:"reference"`
	SchemaVersion int             `json:"schema_version"`
	Name          string          `json:"name"`
	Tag           string          `json:"tag"`
	Architecture  string          `json:"architecture"`
	HistoryLength int             `json:"history_length"`
	ContentType   string          `json:"manifest_content_type"`
	Digest        string          `json:"digest,omitempty"`
	Created       *time.Time      `json:"created"`
	Config        json.RawMessage `json:"config"`
	Tags          []string        `json:"tags"`
	TagsError     string          `json:"tags_error,omitempty"`
	Layers        []LayerInfo     `json:"layers"`
	TotalSize     int64           `json:"image_size"`
	Duration      time.Duration   `json:"-"`
}

// MarshalJSON writes Duration in seconds, the unit the HTTP façade reports.
func (r InspectionResult) MarshalJSON() ([]byte, error) {
	type plain InspectionResult
	return json.Marshal(struct {
		plain
		Duration float64 `json:"duration"`
	}{plain(r), r.Duration.Seconds()})
}

// UnknownLayers counts the layers whose size the registry did not report.
func (r *InspectionResult) UnknownLayers() int {
	n := 0
	for _, l := range r.Layers {
		if l.Err == "" && !l.Size.Known {
			n++
		}
	}
	return n
}

// FailedLayers counts the layers whose probe failed under the Degrade policy.
func (r *InspectionResult) FailedLayers() int {
	n := 0
	for _, l := range r.Layers {
		if l.Err != "" {
			n++
		}
	}
	return n
}

// Inspector inspects images on any registry. The token strategy and the API
// endpoint are chosen per registry host.
type Inspector struct {
	timeouts      Timeouts
	concurrency   int
	policy        LayerFailurePolicy
	transport     http.RoundTripper
	maxAttempts   int
	logger        Logger
	insecure      mapset.Set[string]
	endpoint      func(host string) string
	tokenProvider func(host string, client *Client) TokenProvider
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithTimeouts sets the connect, read and probe timeouts. Zero fields keep their defaults.
func WithTimeouts(t Timeouts) Option {
	return func(i *Inspector) { i.timeouts = t.withDefaults() }
}

// WithConcurrency sets how many layer probes may be in flight at once.
func WithConcurrency(n int) Option {
	return func(i *Inspector) { i.concurrency = n }
}

// WithLayerFailurePolicy decides whether a failed layer probe voids the inspection.
func WithLayerFailurePolicy(p LayerFailurePolicy) Option {
	return func(i *Inspector) { i.policy = p }
}

// WithTransport replaces the HTTP transport, for example with a test server's.
// The connect timeout is then up to the transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(i *Inspector) { i.transport = rt }
}

// WithMaxAttempts enables retries of 5xx and 429 responses. The default is a single attempt.
func WithMaxAttempts(n int) Option {
	return func(i *Inspector) { i.maxAttempts = n }
}

func WithLogger(l Logger) Option {
	return func(i *Inspector) { i.logger = l }
}

// WithInsecureRegistries makes the default endpoint use plain HTTP for hosts.
func WithInsecureRegistries(hosts ...string) Option {
	return func(i *Inspector) {
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				i.insecure.Add(h)
			}
		}
	}
}

// WithEndpoint overrides how a registry host maps to its API base URL.
func WithEndpoint(fn func(host string) string) Option {
	return func(i *Inspector) { i.endpoint = fn }
}

// WithTokenProvider overrides the token strategy chosen for a registry host.
func WithTokenProvider(fn func(host string, client *Client) TokenProvider) Option {
	return func(i *Inspector) { i.tokenProvider = fn }
}

// NewInspector returns an Inspector with the default timeouts, four
// concurrent layer probes and the FailFast policy.
func NewInspector(opts ...Option) *Inspector {
	i := &Inspector{
		timeouts:      DefaultTimeouts(),
		concurrency:   DefaultConcurrency,
		policy:        FailFast,
		insecure:      mapset.NewSet[string](),
		tokenProvider: TokenProviderFor,
	}
	i.endpoint = i.defaultEndpoint
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Inspector) defaultEndpoint(host string) string {
	if IsDockerHubHost(host) {
		return DockerHubEndpoint
	}
	if i.insecure.Contains(strings.ToLower(host)) {
		return "http://" + host
	}
	return "https://" + host
}

// Endpoint returns the API base URL used for host.
func (i *Inspector) Endpoint(host string) string {
	return strings.TrimSuffix(i.endpoint(host), "/")
}

// newClient builds the client of one inspection session.
func (i *Inspector) newClient(host string) *Client {
	c := NewClient(i.Endpoint(host), i.timeouts)
	if i.transport != nil {
		c.Transport = i.transport
	}
	c.MaxAttempts = i.maxAttempts
	c.Logger = i.logger
	return c
}

// Inspect fetches the tags, manifest and layer sizes of ref. A token, when
// the registry needs one, is acquired before any registry request; failing
// to get one aborts with an AuthError. A failed tag listing is recorded in
// TagsError and does not stop the inspection.
func (i *Inspector) Inspect(ctx context.Context, ref ImageReference) (*InspectionResult, error) {
	start := time.Now()
	client := i.newClient(ref.Registry)

	i.logDebug("Inspecting image",
		"reference", ref.String(),
		"endpoint", client.BaseURL,
	)

	auth, err := newTokenAuth(ctx, i.tokenProvider(ref.Registry, client), ref.Repository)
	if err != nil {
		return nil, err
	}
	if auth != nil {
		client.Auth = auth
	}

	tags, tagsErr := client.ListAllTags(ctx, ref.Repository)
	if tagsErr != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		i.logWarn("Tag listing failed",
			"reference", ref.String(),
			"error", tagsErr.Error(),
		)
	}

	manifestResp, err := client.GetManifest(ctx, ref.Repository, ref.Tag)
	if err != nil {
		return nil, err
	}
	manifest := manifestResp.Manifest

	digests, err := manifest.LayerDigests()
	if err != nil {
		return nil, &ParseError{Operation: "get manifest", Err: err}
	}

	info, err := manifest.BuildInfo()
	if err != nil {
		i.logDebug("Build metadata incomplete",
			"reference", ref.String(),
			"reason", err.Error(),
		)
	}

	resolver := &LayerSizeResolver{
		Prober:      client,
		Concurrency: i.concurrency,
		Policy:      i.policy,
		Logger:      i.logger,
	}
	layers, err := resolver.Resolve(ctx, ref.Repository, digests)
	if err != nil {
		return nil, err
	}

	result := newInspectionResult(ref, manifestResp, info, tags, tagsErr, layers, time.Since(start))

	i.logDebug("Inspection complete",
		"reference", ref.String(),
		"layers", len(result.Layers),
		"image_size", result.TotalSize,
		"duration", result.Duration.String(),
	)

	return result, nil
}

func newInspectionResult(
	ref ImageReference,
	resp *ManifestResponse,
	info BuildInfo,
	tags []string,
	tagsErr error,
	layers []LayerInfo,
	elapsed time.Duration,
) *InspectionResult {
	m := resp.Manifest
	result := &InspectionResult{
		Reference:     ref,
		SchemaVersion: m.SchemaVersion,
		Name:          m.Name,
		Tag:           m.Tag,
		Architecture:  m.Architecture,
		HistoryLength: len(m.History),
		ContentType:   resp.ContentType,
		Digest:        resp.Digest,
		Created:       info.Created,
		Config:        info.ContainerConfig,
		Tags:          append([]string{}, tags...),
		Layers:        layers,
		TotalSize:     TotalSize(layers),
		Duration:      elapsed,
	}
	if tagsErr != nil {
		result.TagsError = tagsErr.Error()
	}
	return result
}

func (i *Inspector) logDebug(msg string, args ...any) {
	if i.logger != nil {
		i.logger.Debug(msg, args...)
	}
}

func (i *Inspector) logWarn(msg string, args ...any) {
	if i.logger != nil {
		i.logger.Warn(msg, args...)
	}
}
