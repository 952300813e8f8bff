package inflight

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "falabot:inflight:"

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSet shares in-flight ids across replicas with SET NX locks.
// The TTL only bounds locks left behind by a crashed replica. If redis is
// unreachable it falls back to the local set.
type RedisSet struct {
	client *redis.Client
	local  *MemorySet
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	tokens map[string]string
}

var _ Set = (*RedisSet)(nil)

func NewRedisSet(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSet {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisSet{
		client: client,
		local:  NewMemorySet(),
		ttl:    ttl,
		logger: logger,
		tokens: make(map[string]string),
	}
}

func (s *RedisSet) TryAdd(ctx context.Context, id string) bool {
	if !s.local.TryAdd(ctx, id) {
		return false
	}

	token := uuid.NewString()
	acquired, err := s.client.SetNX(ctx, keyPrefix+id, token, s.ttl).Result()
	if err != nil {
		s.logger.Warn("Redis in-flight lock unavailable, using local set",
			zap.String("messageID", id),
			zap.Error(err))
		return true
	}
	if !acquired {
		s.local.Remove(ctx, id)
		return false
	}

	s.mu.Lock()
	s.tokens[id] = token
	s.mu.Unlock()
	return true
}

// Remove releases the redis lock only if this replica still owns it
func (s *RedisSet) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	token, owned := s.tokens[id]
	delete(s.tokens, id)
	s.mu.Unlock()
	s.local.Remove(ctx, id)

	if !owned {
		return
	}

	// release even when the caller's context is already cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	released, err := releaseScript.Run(ctx, s.client, []string{keyPrefix + id}, token).Int()
	if err != nil {
		s.logger.Warn("Failed to release redis in-flight lock",
			zap.String("messageID", id),
			zap.Error(err))
		return
	}
	if released == 0 {
		s.logger.Debug("Redis in-flight lock already expired or taken over", zap.String("messageID", id))
	}
}

func (s *RedisSet) Len() int {
	return s.local.Len()
}
