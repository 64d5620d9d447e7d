package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jose-valero/roster-bot/internal/domain"
)

// memStore es un RosterStore en memoria con contadores de escrituras.
type memStore struct {
	mu       sync.Mutex
	entries  []domain.RosterEntry
	deletes  int
	inserts  int
	conflict bool // Insert devuelve ErrConflict
	failList error

	afterDeleteIDs func() // corre después de DeleteByIDs, fuera del lock
}

func (m *memStore) FindActive(_ context.Context, g, u string, now time.Time) ([]domain.RosterEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RosterEntry
	for _, e := range m.entries {
		if e.GuildID == g && e.UserID == u && e.ClockOutTime.After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, e domain.RosterEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflict {
		return domain.ErrConflict
	}
	m.inserts++
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) deleteWhere(pred func(domain.RosterEntry) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	var n int64
	kept := m.entries[:0]
	for _, e := range m.entries {
		if pred(e) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n
}

func (m *memStore) DeleteActive(_ context.Context, g, u string, now time.Time) (int64, error) {
	return m.deleteWhere(func(e domain.RosterEntry) bool {
		return e.GuildID == g && e.UserID == u && e.ClockOutTime.After(now)
	}), nil
}

func (m *memStore) ListActive(_ context.Context, g string, now time.Time) ([]domain.RosterEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RosterEntry
	for _, e := range m.entries {
		if e.GuildID == g && e.ClockOutTime.After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ListAll(_ context.Context, g string) ([]domain.RosterEntry, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RosterEntry
	for _, e := range m.entries {
		if e.GuildID == g {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) DeleteByIDs(_ context.Context, g string, ids []string) (int64, error) {
	n := m.deleteWhere(func(e domain.RosterEntry) bool {
		return e.GuildID == g && slices.Contains(ids, e.ID)
	})
	if m.afterDeleteIDs != nil {
		m.afterDeleteIDs()
	}
	return n, nil
}

func (m *memStore) FindExpired(_ context.Context, g string, now time.Time) ([]domain.RosterEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RosterEntry
	for _, e := range m.entries {
		if e.GuildID == g && !e.ClockOutTime.After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) DeleteExpired(_ context.Context, g string, now time.Time) (int64, error) {
	return m.deleteWhere(func(e domain.RosterEntry) bool {
		return e.GuildID == g && !e.ClockOutTime.After(now)
	}), nil
}

func (m *memStore) Guilds(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		if !slices.Contains(out, e.GuildID) {
			out = append(out, e.GuildID)
		}
	}
	return out, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// fakePlatform guarda los roles por guild/usuario.
type fakePlatform struct {
	mu       sync.Mutex
	roles    map[string][]string // guild/user -> roles
	dms      []string            // user ids
	texts    []string            // contenido de cada DM
	failAdd  map[string]bool     // user ids
	failRm   map[string]bool
	failDM   map[string]bool
	removals int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		roles:   map[string][]string{},
		failAdd: map[string]bool{},
		failRm:  map[string]bool{},
		failDM:  map[string]bool{},
	}
}

func key(g, u string) string { return g + "/" + u }

func (p *fakePlatform) MemberRoles(_ context.Context, g, u string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.roles[key(g, u)]), nil
}

func (p *fakePlatform) AddRole(_ context.Context, g, u, r string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAdd[u] {
		return errors.New("discord: 50013 missing permissions")
	}
	if !slices.Contains(p.roles[key(g, u)], r) {
		p.roles[key(g, u)] = append(p.roles[key(g, u)], r)
	}
	return nil
}

func (p *fakePlatform) RemoveRole(_ context.Context, g, u, r string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failRm[u] {
		return fmt.Errorf("discord: remove %s failed", r)
	}
	p.removals++
	p.roles[key(g, u)] = slices.DeleteFunc(p.roles[key(g, u)], func(x string) bool { return x == r })
	return nil
}

func (p *fakePlatform) DirectMessage(_ context.Context, u, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failDM[u] {
		return errors.New("cannot send messages to this user")
	}
	p.dms = append(p.dms, u)
	p.texts = append(p.texts, content)
	return nil
}

func (p *fakePlatform) has(g, u, r string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.roles[key(g, u)], r)
}

type fakePublisher struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (f *fakePublisher) RefreshSummary(_ context.Context, g string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[g]++
	return f.err
}

func (f *fakePublisher) count(g string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[g]
}

// memResources es un ResourceStore en memoria.
type memResources struct {
	m map[string]domain.GuildResources
}

func (r *memResources) GetResources(_ context.Context, g string) (domain.GuildResources, error) {
	v, ok := r.m[g]
	if !ok {
		return domain.GuildResources{}, domain.ErrNotFound
	}
	return v, nil
}

func (r *memResources) UpsertResources(_ context.Context, v domain.GuildResources) error {
	if r.m == nil {
		r.m = map[string]domain.GuildResources{}
	}
	r.m[v.GuildID] = v
	return nil
}

func (r *memResources) ListResources(context.Context) ([]domain.GuildResources, error) {
	out := make([]domain.GuildResources, 0, len(r.m))
	for _, v := range r.m {
		out = append(out, v)
	}
	return out, nil
}

// fakeClock avanza a mano.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}
