// Package logging routes the inspector's key/value log calls to go-logger.
package logging

import (
	"context"
	"fmt"
	"strings"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
)

// Adapter satisfies registryinspector.Logger on top of go-logger.
// The zero value logs through logger.L().
type Adapter struct {
	ctx  context.Context
	base helpers.ILogger
}

// New returns an Adapter writing to l, or to logger.L() when l is nil.
func New(l helpers.ILogger) *Adapter {
	return &Adapter{base: l}
}

// WithContext returns a copy that attaches ctx to every entry.
func (a *Adapter) WithContext(ctx context.Context) *Adapter {
	return &Adapter{ctx: ctx, base: a.base}
}

func (a *Adapter) logger() helpers.ILogger {
	l := a.base
	if l == nil {
		l = logger.L()
	}
	if a.ctx != nil {
		l = l.Ctx(a.ctx)
	}
	return l
}

func (a *Adapter) Debug(msg string, args ...any) {
	a.logger().Debug(msg, Details(args...)...)
}

func (a *Adapter) Info(msg string, args ...any) {
	a.logger().Info(msg, Details(args...)...)
}

func (a *Adapter) Warn(msg string, args ...any) {
	a.logger().Warning(msg, Details(args...)...)
}

func (a *Adapter) Error(msg string, args ...any) {
	a.logger().Error(msg, Details(args...)...)
}

// Details converts alternating key/value arguments into go-logger details.
// A trailing key without a value is logged under "!BADKEY", as slog does.
func Details(args ...any) []helpers.IDetails {
	details := make([]helpers.IDetails, 0, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || i+1 == len(args) {
			details = append(details, helpers.Interface("!BADKEY", args[i]))
			i--
			continue
		}
		details = append(details, detail(key, args[i+1]))
	}
	return details
}

func detail(key string, value any) helpers.IDetails {
	switch v := value.(type) {
	case string:
		return helpers.String(key, v)
	case int:
		return helpers.Int(key, v)
	case error:
		if key == "error" {
			return helpers.Error(v)
		}
		return helpers.String(key, v.Error())
	case fmt.Stringer:
		return helpers.String(key, v.String())
	default:
		return helpers.Interface(key, v)
	}
}

// SetLevel sets the go-logger level from a name such as "debug" or "warning".
func SetLevel(level string) error {
	return logger.L().SetLevel(strings.ToLower(strings.TrimSpace(level)))
}
