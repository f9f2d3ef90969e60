package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/redis/go-redis/v9"

	"reelvault/internal/config"
)

// userIDKey is the session key holding the signed-in user
const userIDKey = "user_id"

// keyPrefix namespaces session entries in a shared Redis
const keyPrefix = "reelvault:session:"

// NewRedisClient returns a client for the configured Redis, or nil when
// Redis is not configured
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled() {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
}

// RedisStorage stores fiber sessions in Redis
type RedisStorage struct {
	client  redis.UniversalClient
	timeout time.Duration
}

var _ fiber.Storage = (*RedisStorage)(nil)

// NewRedisStorage wraps a Redis client as session storage
func NewRedisStorage(client redis.UniversalClient, timeout time.Duration) *RedisStorage {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisStorage{client: client, timeout: timeout}
}

func (s *RedisStorage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Get returns nil for unknown keys
func (s *RedisStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return val, nil
}

func (s *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Set(ctx, keyPrefix+key, val, exp).Err(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (s *RedisStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Reset drops every session, leaving other keys in the database alone
func (s *RedisStorage) Reset() error {
	ctx, cancel := s.ctx()
	defer cancel()

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to reset sessions: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to reset sessions: %w", err)
	}
	return nil
}

// Close is a no-op; the client is shared with health checks and closed by its owner
func (s *RedisStorage) Close() error {
	return nil
}

// NewStore creates the cookie session store. A nil storage keeps sessions in memory.
func NewStore(cfg config.SessionConfig, storage fiber.Storage) *session.Store {
	name := cfg.CookieName
	if name == "" {
		name = "reelvault_session"
	}
	return session.New(session.Config{
		Expiration:     cfg.Expiration,
		Storage:        storage,
		KeyLookup:      "cookie:" + name,
		CookieSecure:   cfg.Secure,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	})
}

// UserID returns the user stored in the caller's session
func UserID(store *session.Store, c *fiber.Ctx) (int64, bool, error) {
	sess, err := store.Get(c)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load session: %w", err)
	}
	id, ok := sess.Get(userIDKey).(int64)
	return id, ok && id > 0, nil
}

// SignIn starts a fresh session for the user
func SignIn(store *session.Store, c *fiber.Ctx, userID int64) error {
	sess, err := store.Get(c)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	// a new id on sign in stops session fixation
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("failed to regenerate session: %w", err)
	}
	sess.Set(userIDKey, userID)
	if err := sess.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// SignOut destroys the caller's session
func SignOut(store *session.Store, c *fiber.Ctx) error {
	sess, err := store.Get(c)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if err := sess.Destroy(); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
