package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jose-valero/roster-bot/internal/domain"
)

// ResourceCache guarda los ids resueltos por guild. Se llena en el provisioning
// (Put) o al arrancar (Warm); en un miss va al store, nunca a Discord.
type ResourceCache struct {
	store ResourceStore

	mu sync.RWMutex
	m  map[string]domain.GuildResources
}

func NewResourceCache(store ResourceStore) *ResourceCache {
	return &ResourceCache{store: store, m: map[string]domain.GuildResources{}}
}

func (c *ResourceCache) Get(ctx context.Context, guildID string) (domain.GuildResources, error) {
	c.mu.RLock()
	r, ok := c.m[guildID]
	c.mu.RUnlock()
	if ok {
		return r, nil
	}
	if c.store == nil {
		return domain.GuildResources{}, domain.ErrNotFound
	}
	r, err := c.store.GetResources(ctx, guildID)
	if err != nil {
		return domain.GuildResources{}, err
	}
	c.mu.Lock()
	c.m[guildID] = r
	c.mu.Unlock()
	return r, nil
}

// Put persiste y actualiza la cache. Si falla la persistencia igual
// dejamos el valor en memoria: el proceso actual lo puede usar.
func (c *ResourceCache) Put(ctx context.Context, r domain.GuildResources) error {
	c.mu.Lock()
	c.m[r.GuildID] = r
	c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	if err := c.store.UpsertResources(ctx, r); err != nil {
		return fmt.Errorf("persist resources %s: %w", r.GuildID, err)
	}
	return nil
}

func (c *ResourceCache) Warm(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	all, err := c.store.ListResources(ctx)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	for _, r := range all {
		c.m[r.GuildID] = r
	}
	c.mu.Unlock()
	return len(all), nil
}

func (c *ResourceCache) Guilds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.m))
	for id := range c.m {
		out = append(out, id)
	}
	return out
}

// activeRole resuelve el rol marcador o ErrRoleMissing.
func activeRole(ctx context.Context, res Resources, guildID string) (domain.GuildResources, error) {
	r, err := res.Get(ctx, guildID)
	if errors.Is(err, domain.ErrNotFound) {
		return r, domain.ErrRoleMissing
	}
	if err != nil {
		return r, err
	}
	if r.ActiveRoleID == "" {
		return r, domain.ErrRoleMissing
	}
	return r, nil
}
