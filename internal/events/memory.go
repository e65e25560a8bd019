package events

import (
	"context"
	"sync"
)

const subscriberBuffer = 32

// MemoryBroker fans events out in process. It backs single-instance
// deployments and tests; multi-instance deployments use the redis broker.
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
}

// NewMemoryBroker builds an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]map[*memorySubscription]struct{})}
}

// Publish delivers the event to every live subscriber of the topic. Slow
// subscribers with full buffers are skipped rather than blocked on.
func (b *MemoryBroker) Publish(_ context.Context, topic string, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.topics[topic] {
		select {
		case sub.ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe registers a consumer on the given topics.
func (b *MemoryBroker) Subscribe(_ context.Context, topics ...string) (Subscription, error) {
	sub := &memorySubscription{
		broker: b,
		topics: topics,
		ch:     make(chan Event, subscriberBuffer),
	}
	b.mu.Lock()
	for _, topic := range topics {
		if b.topics[topic] == nil {
			b.topics[topic] = make(map[*memorySubscription]struct{})
		}
		b.topics[topic][sub] = struct{}{}
	}
	b.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	broker    *MemoryBroker
	topics    []string
	ch        chan Event
	closeOnce sync.Once
}

func (s *memorySubscription) Events() <-chan Event {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.closeOnce.Do(func() {
		s.broker.mu.Lock()
		for _, topic := range s.topics {
			if subs := s.broker.topics[topic]; subs != nil {
				delete(subs, s)
				if len(subs) == 0 {
					delete(s.broker.topics, topic)
				}
			}
		}
		s.broker.mu.Unlock()
		close(s.ch)
	})
	return nil
}
