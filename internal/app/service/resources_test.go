package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/jose-valero/roster-bot/internal/domain"
)

func TestResourceCacheFallsBackToStore(t *testing.T) {
	store := &memResources{m: map[string]domain.GuildResources{
		"g1": {GuildID: "g1", ActiveRoleID: "r1"},
	}}
	c := NewResourceCache(store)
	ctx := context.Background()

	r, err := c.Get(ctx, "g1")
	if err != nil || r.ActiveRoleID != "r1" {
		t.Fatalf("Get = %+v, %v", r, err)
	}
	// ya en memoria: un cambio en el store no se ve hasta el próximo Put
	store.m["g1"] = domain.GuildResources{GuildID: "g1", ActiveRoleID: "r2"}
	if r, _ := c.Get(ctx, "g1"); r.ActiveRoleID != "r1" {
		t.Errorf("cached role = %s, want r1", r.ActiveRoleID)
	}

	if _, err := c.Get(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResourceCachePutAndWarm(t *testing.T) {
	store := &memResources{}
	c := NewResourceCache(store)
	ctx := context.Background()

	if err := c.Put(ctx, domain.GuildResources{GuildID: "g1", ActiveRoleID: "r1"}); err != nil {
		t.Fatal(err)
	}
	if store.m["g1"].ActiveRoleID != "r1" {
		t.Error("Put did not persist")
	}

	store.m["g2"] = domain.GuildResources{GuildID: "g2", ActiveRoleID: "r9"}
	fresh := NewResourceCache(store)
	n, err := fresh.Warm(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Warm = %d, %v", n, err)
	}
	got := fresh.Guilds()
	slices.Sort(got)
	if !slices.Equal(got, []string{"g1", "g2"}) {
		t.Errorf("Guilds = %v", got)
	}
}

func TestActiveRole(t *testing.T) {
	c := NewResourceCache(&memResources{m: map[string]domain.GuildResources{
		"ok":    {GuildID: "ok", ActiveRoleID: "r"},
		"empty": {GuildID: "empty"},
	}})
	tests := []struct {
		guild string
		want  error
	}{
		{"ok", nil},
		{"empty", domain.ErrRoleMissing},
		{"unknown", domain.ErrRoleMissing},
	}
	for _, tt := range tests {
		_, err := activeRole(context.Background(), c, tt.guild)
		if !errors.Is(err, tt.want) && !(err == nil && tt.want == nil) {
			t.Errorf("activeRole(%s) = %v, want %v", tt.guild, err, tt.want)
		}
	}
}
