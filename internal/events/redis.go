package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/redis"
)

// RedisBroker fans events out through redis pub/sub so every API instance
// sees publishes from every other instance.
type RedisBroker struct {
	client *redis.Client
	logg   *logger.Logger
}

// NewRedisBroker wraps a connected redis client.
func NewRedisBroker(client *redis.Client, logg *logger.Logger) (*RedisBroker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &RedisBroker{client: client, logg: logg}, nil
}

// Publish serializes the event and pushes it to the topic channel.
func (b *RedisBroker) Publish(ctx context.Context, topic string, evt Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return b.client.Publish(ctx, topic, raw)
}

// Subscribe opens a pub/sub subscription and pumps decoded events until the
// subscription is closed or the context ends.
func (b *RedisBroker) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	pubsub, err := b.client.Subscribe(ctx, topics...)
	if err != nil {
		return nil, err
	}
	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan Event, subscriberBuffer),
	}
	go sub.pump(ctx, b.logg)
	return sub, nil
}

type redisSubscription struct {
	pubsub    *goredis.PubSub
	ch        chan Event
	closeOnce sync.Once
}

func (s *redisSubscription) pump(ctx context.Context, logg *logger.Logger) {
	defer close(s.ch)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.pubsub.Channel():
			if !ok {
				return
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				logg.Warn(ctx, "dropping undecodable event payload")
				continue
			}
			select {
			case s.ch <- evt:
			default:
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
