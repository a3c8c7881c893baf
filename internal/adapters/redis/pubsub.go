package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"review_pulse/internal/domain"
)

const DefaultHandshake = 10 * time.Second

// Bus carries row change events over Redis pub/sub, one channel per table and
// event type.
type Bus struct {
	c         *redis.Client
	handshake time.Duration
}

func NewBus(c *redis.Client, handshake time.Duration) *Bus {
	if handshake <= 0 {
		handshake = DefaultHandshake
	}
	return &Bus{c: c, handshake: handshake}
}

func ChannelName(table, eventType string) string {
	return "realtime:" + table + ":" + eventType
}

func (b *Bus) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	if ev.CommitTimestamp.IsZero() {
		ev.CommitTimestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	return b.c.Publish(ctx, ChannelName(ev.Table, ev.Type), payload).Err()
}

// Subscribe blocks until the server confirms the subscription or the handshake
// window elapses. Failures are reported through onStatus and returned.
func (b *Bus) Subscribe(ctx context.Context, table, eventType string, onStatus func(domain.SubscriptionStatus, error)) (domain.Subscription, error) {
	if onStatus == nil {
		onStatus = func(domain.SubscriptionStatus, error) {}
	}
	ch := ChannelName(table, eventType)
	ps := b.c.Subscribe(ctx, ch)

	hctx, cancel := context.WithTimeout(ctx, b.handshake)
	_, err := ps.Receive(hctx)
	cancel()
	if err != nil {
		_ = ps.Close()
		if isTimeout(err) {
			onStatus(domain.StatusTimeout, err)
		} else {
			onStatus(domain.StatusError, err)
		}
		return nil, fmt.Errorf("subscribe %s: %w", ch, err)
	}
	onStatus(domain.StatusConnected, nil)

	s := &subscription{
		ps:     ps,
		events: make(chan domain.ChangeEvent, 64),
		done:   make(chan struct{}),
	}
	go s.pump(ch, onStatus)
	return s, nil
}

type subscription struct {
	ps     *redis.PubSub
	events chan domain.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan domain.ChangeEvent { return s.events }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *subscription) pump(ch string, onStatus func(domain.SubscriptionStatus, error)) {
	defer close(s.events)
	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-msgs:
			if !ok {
				select {
				case <-s.done:
				default:
					onStatus(domain.StatusError, errors.New("realtime channel closed"))
				}
				return
			}
			var ev domain.ChangeEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", ch).Msg("skipping malformed change event")
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
