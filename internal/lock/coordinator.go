// Package lock implements the optimistic acquisition protocol that
// serializes content mutations across bot invocations.
//
// The remote cell has no compare-and-swap. A claimant writes its token into
// an empty cell, waits for a settle period so that racing writers land, and
// rechecks. If its token survived it proceeds. Two claimants whose writes
// straddle the recheck can both believe they hold the lock; the workload is
// infrequent and human-triggered, and that window is accepted.
//
// Acquisition order is not FIFO. It is dominated by the random jitter added
// to every wait.
//
// The coordinator never releases the lock. See lockcell.Releaser.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dyluth/wikibot/internal/fault"
	"github.com/dyluth/wikibot/pkg/lockcell"
)

// ErrGaveUp is returned when a bounded policy runs out of attempts or time.
var ErrGaveUp = errors.New("gave up acquiring lock")

// Locker blocks until the caller holds the lock.
type Locker interface {
	Acquire(ctx context.Context, token lockcell.Token) error
}

// outcome is the result of one pass of the protocol.
type outcome int

const (
	outcomeClaimed     outcome = iota // wrote our token into an empty cell
	outcomeClaimFailed                // the write into an empty cell errored
	outcomeAcquired                   // our token survived the settle period
	outcomeLostRace                   // our token was overwritten during the settle period
	outcomeBlocked                    // someone else holds the lock
)

// Coordinator runs the acquisition protocol against a lock cell.
type Coordinator struct {
	cell   lockcell.Cell
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
	int64n func(n int64) int64
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithSleep replaces the timer used for settle and contention waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) {
		c.sleep = sleep
	}
}

// WithRandom replaces the jitter source. int64n must return a value in [0, n).
func WithRandom(int64n func(n int64) int64) Option {
	return func(c *Coordinator) {
		c.int64n = int64n
	}
}

// NewCoordinator creates a coordinator for cell.
func NewCoordinator(cell lockcell.Cell, policy Policy, opts ...Option) *Coordinator {
	c := &Coordinator{
		cell:   cell,
		policy: policy,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire blocks until token is the confirmed holder of the cell.
//
// Read failures are fatal I/O errors. Claim write failures are logged and
// retried after the same wait as a blocked pass. With a bounded policy, exhaustion returns an error wrapping
// ErrGaveUp.
func (c *Coordinator) Acquire(ctx context.Context, token lockcell.Token) error {
	if c.policy.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.Deadline)
		defer cancel()
	}

	bo := c.policy.newBackOff(c.int64n)
	retries := 0

	for {
		if err := ctx.Err(); err != nil {
			return c.giveUp(retries, err)
		}

		out, holder, err := c.step(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return c.giveUp(retries, ctx.Err())
			}
			return err
		}

		switch out {
		case outcomeAcquired:
			log.Printf("[INFO] Lock acquired by %s", token)
			return nil
		case outcomeClaimed:
			continue
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return c.giveUp(retries, nil)
		}
		retries++

		switch out {
		case outcomeBlocked:
			log.Printf("[INFO] Blocked by %s, retrying in %s", holder, wait)
		case outcomeClaimFailed:
			log.Printf("[INFO] Retrying claim in %s", wait)
		default:
			continue
		}
		if err := c.sleep(ctx, wait); err != nil {
			return c.giveUp(retries, err)
		}
	}
}

// step performs one pass: read, then claim, confirm or back off.
func (c *Coordinator) step(ctx context.Context, token lockcell.Token) (outcome, lockcell.Token, error) {
	holder, held, err := c.cell.Read(ctx)
	if err != nil {
		return 0, 0, fault.IO("read lock holder", err)
	}

	switch {
	case !held:
		log.Printf("[INFO] Lock is free, claiming it for %s", token)
		if err := c.cell.TryClaim(ctx, token); err != nil {
			log.Printf("[WARN] Claim write failed, retrying: %v", err)
			return outcomeClaimFailed, 0, nil
		}
		return outcomeClaimed, token, nil

	case holder == token:
		log.Printf("[DEBUG] Lock claimed, waiting %s for concurrent claimants to settle", c.policy.SettlePeriod)
		if err := c.sleep(ctx, c.policy.SettlePeriod); err != nil {
			return 0, 0, err
		}
		after, heldAfter, err := c.cell.Read(ctx)
		if err != nil {
			return 0, 0, fault.IO("recheck lock holder", err)
		}
		if heldAfter && after == token {
			return outcomeAcquired, token, nil
		}
		log.Printf("[INFO] Lost the lock while settling, retrying")
		return outcomeLostRace, after, nil

	default:
		return outcomeBlocked, holder, nil
	}
}

func (c *Coordinator) giveUp(retries int, cause error) error {
	err := fmt.Errorf("%w after %d retries", ErrGaveUp, retries)
	if cause != nil {
		err = fmt.Errorf("%w after %d retries: %w", ErrGaveUp, retries, cause)
	}
	return fault.Lock("acquire lock", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
