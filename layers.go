package registryinspector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"
	"github.com/opencontainers/go-digest"
)

// LayerFailurePolicy decides what a failed layer probe does to an inspection.
type LayerFailurePolicy int

const (
	// FailFast voids the whole inspection when any layer probe fails.
	FailFast LayerFailurePolicy = iota
	// Degrade records the failure on the layer, leaves it out of the total
	// size and carries on.
	Degrade
)

func (p LayerFailurePolicy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case Degrade:
		return "degrade"
	default:
		return fmt.Sprintf("LayerFailurePolicy(%d)", int(p))
	}
}

// ParseLayerFailurePolicy accepts "fail-fast" or "degrade".
func ParseLayerFailurePolicy(s string) (LayerFailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-fast", "failfast":
		return FailFast, nil
	case "degrade", "partial":
		return Degrade, nil
	default:
		return FailFast, fmt.Errorf("unknown layer failure policy %q", s)
	}
}

// BlobProber reports the size of a blob without fetching it. *Client implements it.
type BlobProber interface {
	BlobSize(ctx context.Context, repository, digest string) (LayerSize, error)
}

var _ BlobProber = (*Client)(nil)

// DefaultConcurrency is the number of layer probes in flight when none is configured.
const DefaultConcurrency = 4

// LayerSizeResolver resolves the size of every layer of a manifest using a
// bounded number of concurrent probes.
type LayerSizeResolver struct {
	Prober      BlobProber
	Concurrency int // 1 probes strictly in manifest order
	Policy      LayerFailurePolicy
	Logger      Logger
}

func (r *LayerSizeResolver) concurrency(n int) int {
	c := r.Concurrency
	if c <= 0 {
		c = DefaultConcurrency
	}
	return max(min(c, n), 1)
}

// Resolve probes every digest in set. The result is in the set's order.
// Under FailFast the first failure cancels outstanding probes and all
// failures observed are returned together as LayerErrors.
func (r *LayerSizeResolver) Resolve(ctx context.Context, repository string, set *LayerDigestSet) ([]LayerInfo, error) {
	digests := set.Digests()
	layers := make([]LayerInfo, len(digests))
	if len(digests) == 0 {
		return layers, nil
	}

	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		mu       sync.Mutex
		failures *multierror.Error
	)

	pool := workerpool.New(r.concurrency(len(digests)))
	for i, d := range digests {
		pool.Submit(func() {
			layers[i] = LayerInfo{Digest: d.String()}
			if err := ctx.Err(); err != nil {
				layers[i].Err = err.Error()
				return
			}

			size, err := r.probe(ctx, repository, d)
			if err == nil {
				layers[i].Size = size
				return
			}

			if r.Policy == Degrade {
				r.logWarn("Layer size probe failed",
					"repository", repository,
					"digest", d.String(),
					"error", err.Error(),
				)
				layers[i].Err = err.Error()
				return
			}

			mu.Lock()
			// Probes cancelled by an earlier failure are not failures of their own.
			if failures == nil || !errors.Is(err, context.Canceled) {
				failures = multierror.Append(failures, &LayerError{Digest: d.String(), Err: err})
			}
			mu.Unlock()
			cancel()
		})
	}
	pool.StopWait()

	if failures != nil {
		if len(failures.Errors) == 1 {
			return nil, failures.Errors[0]
		}
		return nil, failures.ErrorOrNil()
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return layers, nil
}

func (r *LayerSizeResolver) probe(ctx context.Context, repository string, d digest.Digest) (LayerSize, error) {
	return r.Prober.BlobSize(ctx, repository, d.String())
}

// TotalSize sums the known sizes of layers. Unknown and failed layers are skipped.
func TotalSize(layers []LayerInfo) int64 {
	var total int64
	for _, l := range layers {
		if l.Err == "" && l.Size.Known {
			total += l.Size.Bytes
		}
	}
	return total
}

func (r *LayerSizeResolver) logWarn(msg string, args ...any) {
	if r.Logger != nil {
		r.Logger.Warn(msg, args...)
	}
}
