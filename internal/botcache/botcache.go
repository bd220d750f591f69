// Package botcache implements the lazily-populated user_id -> is_robot
// optimization cache described in the data model: a pure cache that may be
// dropped at any time without affecting correctness, only the number of
// redundant gateway queries.
package botcache

import (
	"context"
	"sync"
	"time"

	"github.com/nvidia/onebot-core-bridge/internal/inbound"
)

// Cache is a mutex-guarded map; entries never expire since group
// membership rarely changes bot/non-bot status, but the whole map may be
// cleared at any time.
type Cache struct {
	mu      sync.RWMutex
	isRobot map[int64]bool
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{isRobot: make(map[int64]bool)}
}

// Clear drops every cached entry; correctness does not depend on retaining
// any of them.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isRobot = make(map[int64]bool)
}

// IsRobot reports whether userID is a bot account, consulting the cache
// first and falling back to a get_group_member_info gateway query on a
// miss. A query failure is treated as "not a bot" rather than blocking the
// message.
func (c *Cache) IsRobot(ctx context.Context, userID int64, groupID int64, q inbound.GatewayQuerier) bool {
	if v, ok := c.Lookup(userID); ok {
		return v
	}

	resp, err := q.Query(ctx, "get_group_member_info", map[string]any{
		"group_id": groupID, "user_id": userID,
	}, 5*time.Second)
	if err != nil {
		return false
	}
	data, _ := resp["data"].(map[string]any)
	role, _ := data["role"].(string)
	isRobot := role == "bot"
	c.Set(userID, isRobot)
	return isRobot
}

// Lookup returns the cached verdict and whether it was present.
func (c *Cache) Lookup(userID int64) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.isRobot[userID]
	return v, ok
}

// Set records a resolved is_robot verdict for userID.
func (c *Cache) Set(userID int64, isRobot bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isRobot[userID] = isRobot
}
