package upload

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/daypack/daypack/internal/objstore"
	"github.com/daypack/daypack/internal/scan"
	"github.com/daypack/daypack/internal/types"
)

// Policy bounds the retry behavior for transient remote failures.
type Policy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 5,
		Delay:    500 * time.Millisecond,
		MaxDelay: 30 * time.Second,
	}
}

// Token is proof of a verified upload: the remote store holds exactly
// Checksum under Key.
type Token struct {
	Key      string
	Checksum string
	Size     int64
	Attempts int
	Existed  bool // true when the blob was already present and identical
}

// Coordinator uploads blobs idempotently: identical re-uploads are no-op
// successes, content conflicts are surfaced, transient failures are
// retried with exponential backoff, and success is reported only after a
// verification read-back confirms the remote holds the expected bytes.
type Coordinator struct {
	store  objstore.Store
	policy Policy
	clock  clock.Clock
	logger types.Logger
}

// NewCoordinator creates a coordinator. clk and logger may be nil.
func NewCoordinator(store objstore.Store, policy Policy, clk clock.Clock, logger types.Logger) *Coordinator {
	if policy.Attempts <= 0 {
		policy = DefaultPolicy()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Coordinator{store: store, policy: policy, clock: clk, logger: logger}
}

// Upload puts blob under key and returns a commit token. Uploading the
// same key with identical content twice is a no-op success; the same key
// with different content is a conflict surfaced to the caller.
func (c *Coordinator) Upload(ctx context.Context, key string, blob []byte) (Token, error) {
	want := scan.Hash(blob)
	token := Token{Key: key, Checksum: want, Size: int64(len(blob))}

	exists, err := c.existsWithRetry(ctx, key)
	if err != nil {
		return token, err
	}
	if exists {
		remote, err := c.getWithRetry(ctx, key)
		if err != nil {
			return token, err
		}
		if scan.Hash(remote) == want {
			token.Existed = true
			return token, nil
		}
		return token, &types.ConflictError{Key: key, Want: scan.Hash(remote), Got: want}
	}

	attempts := 0
	err = c.call(ctx, func() error {
		attempts++
		if err := c.store.Put(ctx, key, blob); err != nil {
			return err
		}
		// Verification read-back: never report success on trust.
		remote, err := c.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !bytes.Equal(remote, blob) {
			return types.Transient(key, fmt.Errorf("read-back mismatch"))
		}
		return nil
	})
	token.Attempts = attempts
	if err != nil {
		return token, err
	}
	return token, nil
}

func (c *Coordinator) existsWithRetry(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := c.call(ctx, func() error {
		var err error
		exists, err = c.store.Exists(ctx, key)
		return err
	})
	return exists, err
}

func (c *Coordinator) getWithRetry(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := c.call(ctx, func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		return err
	})
	return data, err
}

// call runs fn under the coordinator's retry policy. Only transient
// failures are retried; everything else is fatal on first sight.
func (c *Coordinator) call(ctx context.Context, fn func() error) error {
	err := retry.Call(retry.CallArgs{
		Func: fn,
		IsFatalError: func(err error) bool {
			return !types.IsTransient(err)
		},
		NotifyFunc: func(err error, attempt int) {
			if c.logger != nil {
				c.logger.Printf("Upload attempt %d failed: %v", attempt, err)
			}
		},
		Attempts:    c.policy.Attempts,
		Delay:       c.policy.Delay,
		MaxDelay:    c.policy.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		return retry.LastError(err)
	}
	return err
}
