package sessioncache

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"

	auth "github.com/pitchlink/authkit"
)

// DefaultPrefix namespaces session keys
const DefaultPrefix = "authkit:session:"

// Redis stores resolved sessions as JSON documents keyed by session id
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

type Option func(*Redis)

// WithPrefix overrides DefaultPrefix
func WithPrefix(prefix string) Option {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// New wraps an existing client
func New(rdb redis.UniversalClient, opts ...Option) *Redis {
	r := &Redis{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Dial parses a redis:// URL, connects and pings the server
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Redis, error) {
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid redis url").
			WithTextCode("INVALID_REDIS_URL")
	}

	rdb := redis.NewClient(options)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "redis unreachable").
			WithMetadata(map[string]any{"addr": options.Addr})
	}

	return New(rdb, opts...), nil
}

// FromURL returns a Redis cache when rawURL is set and reachable, and a
// NoopSessionCache otherwise. Sessions still resolve from the database
// without a cache, so a missing redis only costs a query per request.
func FromURL(ctx context.Context, rawURL string, logger auth.Logger) auth.SessionCache {
	if rawURL == "" {
		return auth.NoopSessionCache{}
	}

	cache, err := Dial(ctx, rawURL)
	if err != nil {
		if logger != nil {
			logger.Warn("session cache disabled", "error", err)
		}
		return auth.NoopSessionCache{}
	}
	return cache
}

func (r *Redis) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *Redis) Get(ctx context.Context, sessionID string) (*auth.SessionView, bool, error) {
	data, err := r.rdb.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, goerrors.Wrap(err, goerrors.CategoryExternal, "session cache get")
	}

	var view auth.SessionView
	if err := json.Unmarshal(data, &view); err != nil {
		// a corrupt entry is treated as a miss and dropped
		_ = r.rdb.Del(ctx, r.key(sessionID)).Err()
		return nil, false, nil
	}
	return &view, true, nil
}

func (r *Redis) Set(ctx context.Context, view *auth.SessionView, ttl time.Duration) error {
	if view == nil || view.Session.ID == "" {
		return auth.ErrNoEmptyString
	}
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(view)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "session cache encode")
	}

	if err := r.rdb.Set(ctx, r.key(view.Session.ID), payload, ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "session cache set")
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "session cache delete")
	}
	return nil
}

// Close releases the underlying client
func (r *Redis) Close() error {
	return r.rdb.Close()
}

var _ auth.SessionCache = (*Redis)(nil)
