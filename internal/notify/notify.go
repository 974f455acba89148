// Package notify publishes job status changes on a Redis channel so a UI or
// tracker can follow the queue without polling the store.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sumanthpn07/lazyApply/internal/jobstore"
	"github.com/sumanthpn07/lazyApply/internal/logger"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "lazyapply:jobs"

// Event is the JSON payload of one status change.
type Event struct {
	Ref    types.JobRef    `json:"ref"`
	Status types.JobStatus `json:"status"`
	Reason string          `json:"reason,omitempty"`
	Fields []types.Field   `json:"fields,omitempty"`
	At     time.Time       `json:"at"`
}

// Publisher sends a payload to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

type redisPublisher struct {
	rdb *redis.Client
}

// Options configures the Redis connection.
type Options struct {
	URL     string        `mapstructure:"url"`
	Channel string        `mapstructure:"channel"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, opts Options) (Publisher, error) {
	ropts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	if opts.Timeout > 0 {
		ropts.DialTimeout = opts.Timeout
		ropts.ReadTimeout = opts.Timeout
		ropts.WriteTimeout = opts.Timeout
	}
	c := redis.NewClient(ropts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", ropts.Addr)
	}
	return &redisPublisher{rdb: c}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.rdb.Publish(ctx, channel, payload).Err()
}

func (p *redisPublisher) Close() error {
	return p.rdb.Close()
}

// PublishingStore decorates a Store and publishes an Event after every
// successful status change. Publish failures are logged and dropped.
type PublishingStore struct {
	jobstore.Store
	pub     Publisher
	channel string
	log     *zap.SugaredLogger
	now     func() time.Time
}

// NewPublishingStore wraps store. An empty channel selects DefaultChannel.
func NewPublishingStore(store jobstore.Store, pub Publisher, channel string, log *zap.SugaredLogger) *PublishingStore {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PublishingStore{
		Store:   store,
		pub:     pub,
		channel: channel,
		log:     logger.OrNop(log),
		now:     time.Now,
	}
}

// UpdateStatus implements jobstore.Store.
func (s *PublishingStore) UpdateStatus(ctx context.Context, ref types.JobRef, status types.JobStatus, reason string) error {
	if err := s.Store.UpdateStatus(ctx, ref, status, reason); err != nil {
		return err
	}
	s.publish(ctx, Event{Ref: ref, Status: status, Reason: reason, At: s.now()})
	return nil
}

// SetNeedsInput implements jobstore.Store.
func (s *PublishingStore) SetNeedsInput(ctx context.Context, ref types.JobRef, fields []types.Field) error {
	if err := s.Store.SetNeedsInput(ctx, ref, fields); err != nil {
		return err
	}
	s.publish(ctx, Event{Ref: ref, Status: types.StatusNeedsInput, Fields: fields, At: s.now()})
	return nil
}

func (s *PublishingStore) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Warnw("Encode status event failed", logger.FieldJobRef, ev.Ref, logger.FieldError, err)
		return
	}
	if err := s.pub.Publish(ctx, s.channel, payload); err != nil {
		s.log.Warnw("Publish status event failed",
			logger.FieldJobRef, ev.Ref,
			logger.FieldStatus, ev.Status,
			logger.FieldError, err)
	}
}
