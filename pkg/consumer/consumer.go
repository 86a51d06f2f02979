package consumer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/blob"
	"github.com/cuemby/burrow/pkg/engine"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/version"
)

// Consumer materializes a published dataset in memory and advances it
// along the version chain. A refresh cold-starts from the nearest
// snapshot at or below the target version and walks forward deltas from
// there; subsequent refreshes apply deltas to the live engine.
//
// Transient retrieval failures retry with exponential backoff; a missing
// blob is terminal for the walk, leaving the consumer at the furthest
// version it reached.
type Consumer struct {
	retriever blob.Retriever
	engine    *engine.ReadEngine
	version   version.Version

	maxRetries  uint64
	maxInterval time.Duration

	logger zerolog.Logger
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithRetries sets the retry budget for each blob retrieval.
func WithRetries(n uint64) Option {
	return func(c *Consumer) { c.maxRetries = n }
}

// New creates a consumer over a blob retriever.
func New(r blob.Retriever, opts ...Option) *Consumer {
	c := &Consumer{
		retriever:   r,
		version:     version.None,
		maxRetries:  3,
		maxInterval: 2 * time.Second,
		logger:      log.Component("consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentVersion returns the materialized version, or version.None.
func (c *Consumer) CurrentVersion() version.Version {
	return c.version
}

// ReadEngine returns the materialized engine, or nil before the first
// successful refresh.
func (c *Consumer) ReadEngine() *engine.ReadEngine {
	return c.engine
}

// RefreshTo advances (or rewinds) the consumer toward the desired
// version. It stops early without error when the published chain does
// not reach desired; callers compare CurrentVersion against the target.
func (c *Consumer) RefreshTo(desired version.Version) error {
	if desired.IsNone() {
		return fmt.Errorf("consumer: refresh to the no-version sentinel")
	}
	if c.version == desired {
		return nil
	}

	// Rewinding, or starting cold: materialize the nearest snapshot at
	// or below the target.
	if c.engine == nil || desired < c.version {
		if err := c.loadSnapshot(desired); err != nil {
			return err
		}
	}

	for c.version < desired {
		advanced, err := c.applyNextDelta()
		if err != nil {
			return err
		}
		if !advanced {
			c.logger.Debug().
				Stringer("reached", c.version).
				Stringer("desired", desired).
				Msg("Delta chain ends before desired version")
			return nil
		}
	}
	return nil
}

func (c *Consumer) loadSnapshot(desired version.Version) error {
	b, err := c.retrieve(func() (blob.Blob, error) {
		return c.retriever.RetrieveSnapshot(desired)
	})
	if err != nil {
		return fmt.Errorf("consumer: retrieve snapshot for %s: %w", desired, err)
	}

	eng := engine.NewReadEngine()
	h, err := readBlobInto(b, eng.ReadSnapshot)
	if err != nil {
		return fmt.Errorf("consumer: load snapshot: %w", err)
	}
	c.engine = eng
	c.version = h.To
	c.logger.Debug().Stringer("version", h.To).Msg("Materialized snapshot")
	return nil
}

func (c *Consumer) applyNextDelta() (bool, error) {
	from := c.version
	b, err := c.retrieve(func() (blob.Blob, error) {
		return c.retriever.RetrieveDelta(from)
	})
	if errors.Is(err, blob.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consumer: retrieve delta from %s: %w", from, err)
	}

	h, err := readBlobInto(b, c.engine.ApplyDelta)
	if err != nil {
		return false, fmt.Errorf("consumer: apply delta from %s: %w", from, err)
	}
	c.version = h.To
	return true, nil
}

// retrieve runs one retrieval with exponential backoff. ErrNotFound is
// permanent; anything else is assumed transient until the retry budget
// runs out.
func (c *Consumer) retrieve(fetch func() (blob.Blob, error)) (blob.Blob, error) {
	var out blob.Blob
	op := func() error {
		b, err := fetch()
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = c.maxInterval
	err := backoff.Retry(op, backoff.WithMaxRetries(bo, c.maxRetries))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readBlobInto(b blob.Blob, apply func(io.Reader) error) (blob.Header, error) {
	rc, err := b.Open()
	if err != nil {
		return blob.Header{}, err
	}
	defer rc.Close()
	h, body, err := blob.NewBodyReader(rc)
	if err != nil {
		return blob.Header{}, err
	}
	if err := apply(body); err != nil {
		return blob.Header{}, err
	}
	return h, nil
}
