package service

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"schneider.vip/problem"
)

const (
	requestIDHeader = "X-Request-Id"
	sourceURL       = "https://github.com/eznix86/registry-inspector"
)

// HTTPController maps the service onto gin handlers.
type HTTPController struct {
	service *Service
}

func NewHTTPController(s *Service) *HTTPController {
	return &HTTPController{service: s}
}

// Register installs the routes on router:
//
//	/                               greeting
//	/{image}                        redirect to the default registry and namespace
//	/{namespace}/{image}            redirect to the default registry
//	/{registry}/{namespace}/{image} inspection, image may end in :tag
//
// Routing is done by segment count since gin cannot mix a wildcard with
// static routes at the same level.
func (h *HTTPController) Register(router gin.IRoutes) {
	router.Use(RequestID(), CORS())
	router.GET("/*path", h.route)
}

func (h *HTTPController) route(c *gin.Context) {
	path := strings.Trim(c.Param("path"), "/")
	if path == "" {
		h.Hello(c)
		return
	}

	segments := strings.Split(path, "/")
	switch len(segments) {
	case 1:
		if segments[0] == "favicon.ico" {
			problem.Of(http.StatusNotFound).WriteTo(c.Writer)
			return
		}
		h.redirect(c, h.service.opts.DefaultNamespace, segments[0])
	case 2:
		h.redirect(c, segments[0], segments[1])
	case 3:
		h.Inspect(c, Request{Registry: segments[0], Namespace: segments[1], Image: segments[2]})
	default:
		problem.Of(http.StatusNotFound).WriteTo(c.Writer)
	}
}

func (h *HTTPController) Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Hello World!",
		"source":  sourceURL,
		"usage":   "/{registry}/{namespace}/{image}[:tag]",
	})
}

func (h *HTTPController) redirect(c *gin.Context, namespace, image string) {
	target := fmt.Sprintf("%s://%s/%s/%s/%s",
		h.service.opts.PreferredScheme,
		c.Request.Host,
		h.service.opts.DefaultRegistry,
		namespace,
		image,
	)
	c.Redirect(http.StatusFound, target)
}

// Inspect answers with the inspection JSON, or a 404 problem when the
// registry does not know the image.
func (h *HTTPController) Inspect(c *gin.Context, req Request) {
	resp, notFound := h.service.Inspect(c.Request.Context(), req)
	if notFound {
		problem.Of(http.StatusNotFound).
			Append(problem.Detailf("%s/%s/%s not found", req.Registry, req.Namespace, req.Image)).
			Append(problem.Instance(c.Request.URL.Path)).
			WriteTo(c.Writer)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RequestID tags every request with an id, taken from the incoming
// X-Request-Id header when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// CORS allows any origin to read the responses.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Next()
	}
}
