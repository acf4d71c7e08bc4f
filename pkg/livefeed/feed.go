package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/dashbite-backend/pkg/events"
	"github.com/angelmondragon/dashbite-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/dashbite-backend/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// Transport is the slice of the redis client the feed depends on.
type Transport interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channel string) (pkgredis.Subscription, error)
	CartChannel(cartKey string) string
}

// Message is the wire payload published on a cart channel.
type Message struct {
	CartKey string    `json:"cart_key"`
	Op      events.Op `json:"op"`
	At      time.Time `json:"at"`
}

// Feed fans cart changes out across processes.
type Feed struct {
	transport Transport
	logg      *logger.Logger
	now       func() time.Time
}

// New constructs a feed over transport.
func New(transport Transport, logg *logger.Logger) (*Feed, error) {
	if transport == nil {
		return nil, errors.New("livefeed transport required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Feed{transport: transport, logg: logg, now: time.Now}, nil
}

// Publish announces change on the cart's channel.
func (f *Feed) Publish(ctx context.Context, change events.Change) error {
	key := strings.TrimSpace(change.CartKey)
	if key == "" {
		return errors.New("cart key required")
	}
	payload, err := json.Marshal(Message{CartKey: key, Op: change.Op, At: f.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode cart change: %w", err)
	}
	if err := f.transport.Publish(ctx, f.transport.CartChannel(key), payload); err != nil {
		return fmt.Errorf("publish cart change: %w", err)
	}
	return nil
}

// Subscribe delivers changes for cartKey to fn until the returned func is
// called. Unsubscribe is idempotent and returns once the receive loop exits.
func (f *Feed) Subscribe(ctx context.Context, cartKey string, fn events.Handler) (func(), error) {
	key := strings.TrimSpace(cartKey)
	if key == "" {
		return nil, errors.New("cart key required")
	}
	if fn == nil {
		return nil, errors.New("handler required")
	}
	sub, err := f.transport.Subscribe(ctx, f.transport.CartChannel(key))
	if err != nil {
		return nil, err
	}

	logCtx := f.logg.WithField(ctx, "cart_channel", key)
	stop := make(chan struct{})
	done := make(chan struct{})
	go f.receive(logCtx, key, sub.Channel(), stop, done, fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			if err := sub.Close(); err != nil {
				f.logg.Warn(logCtx, "closing cart subscription failed: "+err.Error())
			}
			<-done
		})
	}, nil
}

func (f *Feed) receive(ctx context.Context, key string, msgs <-chan *redis.Message, stop, done chan struct{}, fn events.Handler) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var decoded Message
			if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
				f.logg.Warn(ctx, "dropping malformed cart message")
				continue
			}
			if decoded.CartKey == "" {
				decoded.CartKey = key
			}
			fn(events.Change{CartKey: decoded.CartKey, Op: decoded.Op})
		}
	}
}
