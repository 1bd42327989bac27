package lockcell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventType names a change to the lock cell.
type EventType string

const (
	// EventClaimed is published after a TryClaim write.
	EventClaimed EventType = "claimed"

	// EventReleased is published after the cell is cleared.
	EventReleased EventType = "released"
)

// Event describes a write to a Redis lock cell.
type Event struct {
	Type        EventType `json:"type"`
	Repository  string    `json:"repository"`       // owner/name
	Holder      Token     `json:"holder,omitempty"` // Empty for releases
	TimestampMs int64     `json:"timestamp_ms"`
}

// RedisCell stores the lock value in a Redis string key.
// Writes are plain SETs: the protocol in internal/lock does not rely on the
// store for atomicity, so this backend behaves like the issue-body backend.
// The cell is safe for concurrent use.
type RedisCell struct {
	rdb   *redis.Client
	owner string
	name  string
	now   func() time.Time
}

// NewRedisCell creates a cell for the owner/name repository.
//
// Returns an error if owner or name is empty.
func NewRedisCell(redisOpts *redis.Options, owner, name string) (*RedisCell, error) {
	if owner == "" || name == "" {
		return nil, fmt.Errorf("repository owner and name cannot be empty")
	}

	return &RedisCell{
		rdb:   redis.NewClient(redisOpts),
		owner: owner,
		name:  name,
		now:   time.Now,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *RedisCell) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *RedisCell) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Read implements Cell. A missing key is an empty cell.
func (c *RedisCell) Read(ctx context.Context) (Token, bool, error) {
	raw, err := c.rdb.Get(ctx, LockKey(c.owner, c.name)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read lock from Redis: %w", err)
	}

	holder, held := ParseHolder(raw)
	return holder, held, nil
}

// TryClaim implements Cell and publishes an EventClaimed event.
func (c *RedisCell) TryClaim(ctx context.Context, token Token) error {
	if err := c.rdb.Set(ctx, LockKey(c.owner, c.name), token.String(), 0).Err(); err != nil {
		return fmt.Errorf("failed to write lock to Redis: %w", err)
	}

	return c.publish(ctx, Event{Type: EventClaimed, Holder: token})
}

// Release implements Releaser and publishes an EventReleased event.
func (c *RedisCell) Release(ctx context.Context) error {
	if err := c.rdb.Del(ctx, LockKey(c.owner, c.name)).Err(); err != nil {
		return fmt.Errorf("failed to clear lock in Redis: %w", err)
	}

	return c.publish(ctx, Event{Type: EventReleased})
}

func (c *RedisCell) publish(ctx context.Context, ev Event) error {
	ev.Repository = c.owner + "/" + c.name
	ev.TimestampMs = c.now().UnixMilli()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal lock event: %w", err)
	}

	channel := LockEventsChannel(c.owner, c.name)
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish lock event: %w", err)
	}

	return nil
}

// Subscription represents an active subscription to lock events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of lock events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Event {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors.
// Malformed messages are reported here and skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEvents subscribes to claim and release events for this repository.
//
// Delivery is at-most-once (Redis Pub/Sub); events are buffered (size 10).
func (c *RedisCell) SubscribeEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, LockEventsChannel(c.owner, c.name))

	// Wait for the subscription to be confirmed so no event published right
	// after this call is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to lock events: %w", err)
	}

	eventsChan := make(chan *Event, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal lock event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
