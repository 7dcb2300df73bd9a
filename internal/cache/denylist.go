package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryDenylist keeps revoked token ids in process memory. It is used when
// Redis is not configured, so revocations do not survive a restart.
type MemoryDenylist struct {
	c *gocache.Cache
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{c: gocache.New(revokeForever, 10*time.Minute)}
}

func (m *MemoryDenylist) RevokeToken(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = revokeForever
	}
	m.c.Set(tokenID, struct{}{}, ttl)
	return nil
}

func (m *MemoryDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, found := m.c.Get(tokenID)
	return found, nil
}
