package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Channel is the well-known pub/sub topic revocation events are published
// and subscribed on.
const Channel = "revocation_channel"

// Subscriber keeps a Set eventually consistent with revocation events
// published on Channel, reconnecting with exponential backoff whenever the
// broker connection drops.
type Subscriber struct {
	set *Set
	log *logrus.Entry
}

// NewSubscriber builds a Subscriber that marks sessions revoked in set.
func NewSubscriber(set *Set, log *logrus.Entry) *Subscriber {
	return &Subscriber{set: set, log: log}
}

// Run subscribes to Channel on the broker at redisURL and blocks until ctx
// is cancelled, reconnecting indefinitely on disconnect. It is meant to run
// as a long-lived background goroutine.
func (s *Subscriber) Run(ctx context.Context, redisURL string) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.RandomizationFactor = 0.1
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // retry forever; the caller controls lifetime via ctx

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.subscribeOnce(ctx, redisURL)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			wait := b.NextBackOff()
			if s.log != nil {
				s.log.WithError(err).WithField("retry_in", wait).Warn("revocation subscription lost, reconnecting")
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}
		b.Reset()
	}
}

// subscribeOnce opens one connection, subscribes, and drains messages until
// the subscription errors out or ctx is cancelled.
func (s *Subscriber) subscribeOnce(ctx context.Context, redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	pubsub := client.Subscribe(ctx, Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", Channel, err)
	}
	if s.log != nil {
		s.log.Info("subscribed to revocation channel")
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("revocation subscription channel closed")
			}
			s.set.MarkRevoked(msg.Payload)
			if s.log != nil {
				s.log.WithField("session_id", msg.Payload).Info("marked session revoked")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Publish fire-and-forgets a revocation event for sessionIDHex on Channel,
// used by the administrative revoke command.
func Publish(ctx context.Context, redisURL, sessionIDHex string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	if err := client.Publish(ctx, Channel, sessionIDHex).Err(); err != nil {
		return fmt.Errorf("publishing revocation: %w", err)
	}
	return nil
}
