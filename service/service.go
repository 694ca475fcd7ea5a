// Package service exposes image inspection as a single request/response
// operation and serves it over HTTP.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	registryinspector "github.com/eznix86/registry-inspector"
	json "github.com/eznix86/registry-inspector/jsoncompat"
)

// Request names the image to inspect. Image may carry a ":tag" suffix,
// which wins over Tag. Empty fields take the service defaults.
type Request struct {
	Registry  string
	Namespace string
	Image     string
	Tag       string
}

// Metadata is the externally visible shape of an inspection result.
type Metadata struct {
	SchemaVersion       int                           `json:"schema_version"`
	Name                string                        `json:"name"`
	Tag                 string                        `json:"tag"`
	Architecture        string                        `json:"architecture"`
	HistoryLength       int                           `json:"history_length"`
	NumLayers           int                           `json:"num_layers"`
	Config              json.RawMessage               `json:"config"`
	Layers              []registryinspector.LayerInfo `json:"layers"`
	ImageSize           int64                         `json:"image_size"`
	Created             *time.Time                    `json:"created"`
	Tags                []string                      `json:"tags"`
	TagsError           string                        `json:"tags_error,omitempty"`
	ManifestContentType string                        `json:"manifest_content_type"`
}

// NewMetadata flattens an inspection result.
func NewMetadata(r *registryinspector.InspectionResult) *Metadata {
	return &Metadata{
		SchemaVersion:       r.SchemaVersion,
		Name:                r.Name,
		Tag:                 r.Tag,
		Architecture:        r.Architecture,
		HistoryLength:       r.HistoryLength,
		NumLayers:           len(r.Layers),
		Config:              r.Config,
		Layers:              r.Layers,
		ImageSize:           r.TotalSize,
		Created:             r.Created,
		Tags:                r.Tags,
		TagsError:           r.TagsError,
		ManifestContentType: r.ContentType,
	}
}

// Response carries either Metadata or Error, never both.
// Duration is the elapsed time in seconds.
type Response struct {
	Metadata *Metadata
	Duration float64
	Error    *string
}

// MarshalJSON writes an empty metadata object when the inspection failed.
func (r Response) MarshalJSON() ([]byte, error) {
	var metadata any = struct{}{}
	if r.Metadata != nil {
		metadata = r.Metadata
	}
	return json.Marshal(struct {
		Metadata any     `json:"metadata"`
		Duration float64 `json:"duration"`
		Error    *string `json:"error"`
	}{metadata, r.Duration, r.Error})
}

type Options struct {
	DefaultRegistry  string
	DefaultNamespace string
	PreferredScheme  string
	Logger           registryinspector.Logger
}

func (o Options) withDefaults() Options {
	if o.DefaultRegistry == "" {
		o.DefaultRegistry = registryinspector.DockerHubRegistry
	}
	if o.DefaultNamespace == "" {
		o.DefaultNamespace = registryinspector.DefaultNamespace
	}
	if o.PreferredScheme == "" {
		o.PreferredScheme = "https"
	}
	return o
}

// Service turns inspection outcomes into Responses.
type Service struct {
	inspector registryinspector.ImageInspector
	opts      Options
}

func New(inspector registryinspector.ImageInspector, opts Options) *Service {
	return &Service{inspector: inspector, opts: opts.withDefaults()}
}

// Reference resolves req against the service defaults.
func (s *Service) Reference(req Request) (registryinspector.ImageReference, error) {
	registry := req.Registry
	if registry == "" {
		registry = s.opts.DefaultRegistry
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = s.opts.DefaultNamespace
	}
	image, tag := req.Image, req.Tag
	if name, t, ok := strings.Cut(image, ":"); ok {
		image, tag = name, t
	}
	if image == "" {
		return registryinspector.ImageReference{}, fmt.Errorf("image name is empty")
	}
	return registryinspector.NewImageReference(registry, namespace+"/"+image, tag)
}

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying the request id logged by Inspect.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Inspect runs one inspection. notFound reports that the registry does not
// know the repository or tag; the Response is then empty. Every other
// failure, including a panic, becomes Response.Error.
func (s *Service) Inspect(ctx context.Context, req Request) (resp Response, notFound bool) {
	start := time.Now()
	requestID := RequestIDFromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			s.logError("Inspection panicked",
				"request_id", requestID,
				"panic", fmt.Sprint(r),
			)
			resp, notFound = failure(fmt.Sprintf("internal error: %v", r), start), false
		}
	}()

	ref, err := s.Reference(req)
	if err != nil {
		return failure(err.Error(), start), false
	}

	result, err := s.inspector.Inspect(ctx, ref)
	if err != nil {
		if registryinspector.IsNotFound(err) {
			return Response{Duration: time.Since(start).Seconds()}, true
		}
		s.logWarn("Inspection failed",
			"request_id", requestID,
			"reference", ref.String(),
			"error", err,
		)
		return failure(err.Error(), start), false
	}

	return Response{
		Metadata: NewMetadata(result),
		Duration: time.Since(start).Seconds(),
	}, false
}

func failure(msg string, start time.Time) Response {
	return Response{Error: &msg, Duration: time.Since(start).Seconds()}
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, args...)
	}
}

func (s *Service) logError(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Error(msg, args...)
	}
}
