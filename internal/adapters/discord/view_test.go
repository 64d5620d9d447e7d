package discord

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jose-valero/roster-bot/internal/app/render"
	"github.com/jose-valero/roster-bot/internal/app/service"
	"github.com/jose-valero/roster-bot/internal/domain"
)

func cachedResources(t *testing.T, res domain.GuildResources) *service.ResourceCache {
	t.Helper()
	cache := service.NewResourceCache(nil)
	if err := cache.Put(context.Background(), res); err != nil {
		t.Fatal(err)
	}
	return cache
}

func TestRefreshSummaryRecreatesDeletedMessage(t *testing.T) {
	fd := newFakeDiscord(t, "bot")
	cache := cachedResources(t, domain.GuildResources{
		GuildID: "g1", ActiveRoleID: "r-active", RosterChannelID: "c-roster", RosterMessageID: "m-gone",
	})
	v := NewView(fd.session(), &entryStore{}, cache, render.NewClassifier(), discardLogger())
	ctx := context.Background()

	if err := v.RefreshSummary(ctx, "g1"); err != nil {
		t.Fatalf("RefreshSummary: %v", err)
	}
	res, err := cache.Get(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if res.RosterMessageID == "" || res.RosterMessageID == "m-gone" {
		t.Fatalf("cached roster message = %q, want the new one", res.RosterMessageID)
	}
	if !slices.Contains(fd.pinned("c-roster"), res.RosterMessageID) {
		t.Errorf("new message %s not pinned: %v", res.RosterMessageID, fd.pinned("c-roster"))
	}
	if got := fd.content(res.RosterMessageID); got != render.EmptyText {
		t.Errorf("content = %q", got)
	}

	// el siguiente refresh edita el mensaje nuevo
	if err := v.RefreshSummary(ctx, "g1"); err != nil {
		t.Fatal(err)
	}
	if fd.count("message.send") != 1 || fd.count("pin") != 1 || fd.count("message.edit") != 1 {
		t.Errorf("send = %d, pin = %d, edit = %d, want 1 each",
			fd.count("message.send"), fd.count("pin"), fd.count("message.edit"))
	}
}

func TestRefreshSummaryKeepsMessageOnOtherErrors(t *testing.T) {
	fd := newFakeDiscord(t, "bot")
	fd.editErr = 50001
	cache := cachedResources(t, domain.GuildResources{
		GuildID: "g1", ActiveRoleID: "r-active", RosterChannelID: "c-roster", RosterMessageID: "m-1",
	})
	v := NewView(fd.session(), &entryStore{}, cache, render.NewClassifier(), discardLogger())

	if err := v.RefreshSummary(context.Background(), "g1"); err == nil {
		t.Fatal("want error for missing access")
	}
	if fd.count("message.send") != 0 {
		t.Error("a non-10008 edit error must not send a replacement")
	}
	if res, _ := cache.Get(context.Background(), "g1"); res.RosterMessageID != "m-1" {
		t.Errorf("cached roster message = %q, want m-1", res.RosterMessageID)
	}
}

func TestContentClassifiesByOtherRoles(t *testing.T) {
	fd := newFakeDiscord(t, "bot")
	fd.addRole("g1", "r-active", "Clocked In")
	fd.addRole("g1", "r-pvp", "PvP")
	fd.addRole("g1", "r-tank", "Tank")
	fd.addMember("g1", "u1", "Ana", "r-active", "r-pvp", "r-tank")
	fd.addMember("g1", "u2", "Bo", "r-active", "r-pvp")

	cache := cachedResources(t, domain.GuildResources{
		GuildID: "g1", ActiveRoleID: "r-active", RosterChannelID: "c-roster",
		PreferenceRoleIDs: map[string]string{"pvp": "r-pvp"},
	})
	now := time.Now()
	store := &entryStore{entries: []domain.RosterEntry{
		{ID: "e1", GuildID: "g1", UserID: "u1", DisplayName: "stale", ClockInTime: now, ClockOutTime: now.Add(2 * time.Hour)},
		{ID: "e2", GuildID: "g1", UserID: "u2", DisplayName: "stale", ClockInTime: now, ClockOutTime: now.Add(2 * time.Hour)},
	}}
	classifier := render.NewClassifier(
		render.Rule{Pattern: regexp.MustCompile(`(?i)clocked`), Label: "Marker"},
		render.Rule{Pattern: regexp.MustCompile(`(?i)pvp`), Label: "Pref"},
		render.Rule{Pattern: regexp.MustCompile(`(?i)tank`), Label: "Tank"},
	)
	v := NewView(fd.session(), store, cache, classifier, discardLogger())

	got, err := v.Content(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "- Ana [Tank] (") {
		t.Errorf("Ana should be classified by the tank role: %q", got)
	}
	if !strings.Contains(got, "- Bo (") {
		t.Errorf("Bo holds only bot roles and should be unlabeled: %q", got)
	}
	if strings.Contains(got, "Marker") || strings.Contains(got, "Pref") || strings.Contains(got, "stale") {
		t.Errorf("bot roles leaked into the summary: %q", got)
	}
}
