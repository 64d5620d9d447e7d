package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/roster-bot/internal/domain"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeDiscord es una API REST mínima con el estado que toca el adapter:
// roles, canales, mensajes, pins, miembros y followups de interacciones.
type fakeDiscord struct {
	t     *testing.T
	botID string

	mu        sync.Mutex
	seq       int
	roles     map[string][]fakeRole    // guild -> roles
	channels  map[string][]fakeChannel // guild -> canales
	messages  map[string]*fakeMessage  // id -> mensaje
	pins      map[string][]string      // canal -> ids fijados
	members   map[string]*fakeMember   // guild/user
	followups []string
	calls     map[string]int
	editErr   int // código a devolver en cada edit (0 = normal)
}

type fakeRole struct{ ID, Name string }

type fakeChannel struct{ ID, Name string }

type fakeMessage struct{ ID, ChannelID, Content, AuthorID string }

type fakeMember struct {
	Nick  string
	Roles []string
}

func newFakeDiscord(t *testing.T, botID string) *fakeDiscord {
	t.Helper()
	return &fakeDiscord{
		t:        t,
		botID:    botID,
		roles:    map[string][]fakeRole{},
		channels: map[string][]fakeChannel{},
		messages: map[string]*fakeMessage{},
		pins:     map[string][]string{},
		members:  map[string]*fakeMember{},
		calls:    map[string]int{},
	}
}

// session devuelve una sesión de discordgo cuyo cliente HTTP apunta al fake.
func (f *fakeDiscord) session() *discordgo.Session {
	f.t.Helper()
	srv := httptest.NewServer(f.routes())
	f.t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL)
	if err != nil {
		f.t.Fatal(err)
	}
	s, err := discordgo.New("Bot test-token")
	if err != nil {
		f.t.Fatal(err)
	}
	s.Client = &http.Client{Transport: toServer{base: base}, Timeout: 5 * time.Second}
	if f.botID != "" {
		s.State.User = &discordgo.User{ID: f.botID}
	}
	return s
}

// toServer reescribe el host de cada request hacia el httptest.Server.
type toServer struct{ base *url.URL }

func (t toServer) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.base.Scheme
	r.URL.Host = t.base.Host
	r.Host = t.base.Host
	return http.DefaultTransport.RoundTrip(r)
}

func (f *fakeDiscord) routes() http.Handler {
	api := "/api/v" + discordgo.APIVersion
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+api+"/guilds/{g}/roles", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		out := []map[string]any{}
		for _, ro := range f.roles[r.PathValue("g")] {
			out = append(out, roleJSON(ro))
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("POST "+api+"/guilds/{g}/roles", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		f.decode(r, &body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls["role.create"]++
		ro := fakeRole{ID: f.nextID("role"), Name: body.Name}
		f.roles[r.PathValue("g")] = append(f.roles[r.PathValue("g")], ro)
		writeJSON(w, http.StatusOK, roleJSON(ro))
	})

	mux.HandleFunc("GET "+api+"/guilds/{g}/channels", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		out := []map[string]any{}
		for _, ch := range f.channels[r.PathValue("g")] {
			out = append(out, channelJSON(r.PathValue("g"), ch))
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("POST "+api+"/guilds/{g}/channels", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		f.decode(r, &body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls["channel.create"]++
		ch := fakeChannel{ID: f.nextID("chan"), Name: body.Name}
		f.channels[r.PathValue("g")] = append(f.channels[r.PathValue("g")], ch)
		writeJSON(w, http.StatusOK, channelJSON(r.PathValue("g"), ch))
	})
	mux.HandleFunc("PUT "+api+"/channels/{c}/permissions/{target}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["overwrite"]++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST "+api+"/channels/{c}/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		f.decode(r, &body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls["message.send"]++
		m := &fakeMessage{ID: f.nextID("msg"), ChannelID: r.PathValue("c"), Content: body.Content, AuthorID: f.botID}
		f.messages[m.ID] = m
		writeJSON(w, http.StatusOK, messageJSON(m))
	})
	mux.HandleFunc("PATCH "+api+"/channels/{c}/messages/{m}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content *string `json:"content"`
		}
		f.decode(r, &body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.editErr != 0 {
			writeJSON(w, http.StatusForbidden, map[string]any{"code": f.editErr, "message": "Missing Access"})
			return
		}
		m, ok := f.messages[r.PathValue("m")]
		if !ok || m.ChannelID != r.PathValue("c") {
			writeJSON(w, http.StatusNotFound, map[string]any{"code": codeUnknownMessage, "message": "Unknown Message"})
			return
		}
		f.calls["message.edit"]++
		if body.Content != nil {
			m.Content = *body.Content
		}
		writeJSON(w, http.StatusOK, messageJSON(m))
	})
	mux.HandleFunc("GET "+api+"/channels/{c}/pins", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		out := []map[string]any{}
		for _, id := range f.pins[r.PathValue("c")] {
			out = append(out, messageJSON(f.messages[id]))
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("PUT "+api+"/channels/{c}/pins/{m}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls["pin"]++
		c := r.PathValue("c")
		if !slices.Contains(f.pins[c], r.PathValue("m")) {
			f.pins[c] = append(f.pins[c], r.PathValue("m"))
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET "+api+"/guilds/{g}/members/{u}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		m, ok := f.members[r.PathValue("g")+"/"+r.PathValue("u")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"code": 10007, "message": "Unknown Member"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user":  map[string]any{"id": r.PathValue("u"), "username": r.PathValue("u")},
			"nick":  m.Nick,
			"roles": m.Roles,
		})
	})
	mux.HandleFunc("PUT "+api+"/guilds/{g}/members/{u}/roles/{r}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls["role.add"]++
		k := r.PathValue("g") + "/" + r.PathValue("u")
		if f.members[k] == nil {
			f.members[k] = &fakeMember{}
		}
		f.members[k].Roles = append(f.members[k].Roles, r.PathValue("r"))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST "+api+"/interactions/{id}/{token}/callback", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["interaction.defer"]++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST "+api+"/webhooks/{app}/{token}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		f.decode(r, &body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.followups = append(f.followups, body.Content)
		writeJSON(w, http.StatusOK, messageJSON(&fakeMessage{ID: f.nextID("followup"), ChannelID: "dm", Content: body.Content}))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.t.Errorf("unexpected discord call %s %s", r.Method, r.URL.Path)
		writeJSON(w, http.StatusNotFound, map[string]any{"code": 0, "message": "404: Not Found"})
	})
	return mux
}

// nextID requiere f.mu tomado.
func (f *fakeDiscord) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeDiscord) decode(r *http.Request, v any) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		f.t.Errorf("decode %s %s: %v", r.Method, r.URL.Path, err)
	}
}

func (f *fakeDiscord) addRole(guildID, id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[guildID] = append(f.roles[guildID], fakeRole{ID: id, Name: name})
}

func (f *fakeDiscord) addChannel(guildID, id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[guildID] = append(f.channels[guildID], fakeChannel{ID: id, Name: name})
}

func (f *fakeDiscord) addMember(guildID, userID, nick string, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[guildID+"/"+userID] = &fakeMember{Nick: nick, Roles: roles}
}

func (f *fakeDiscord) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeDiscord) pinned(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.pins[channelID])
}

func (f *fakeDiscord) content(messageID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[messageID]; ok {
		return m.Content
	}
	return ""
}

func (f *fakeDiscord) replies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.followups)
}

func roleJSON(r fakeRole) map[string]any {
	return map[string]any{"id": r.ID, "name": r.Name, "permissions": "0"}
}

func channelJSON(guildID string, ch fakeChannel) map[string]any {
	return map[string]any{"id": ch.ID, "guild_id": guildID, "name": ch.Name, "type": int(discordgo.ChannelTypeGuildText)}
}

func messageJSON(m *fakeMessage) map[string]any {
	return map[string]any{
		"id":         m.ID,
		"channel_id": m.ChannelID,
		"content":    m.Content,
		"author":     map[string]any{"id": m.AuthorID},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// entryStore es un RosterStore en memoria para los tests del adapter.
type entryStore struct {
	mu      sync.Mutex
	entries []domain.RosterEntry
}

func (m *entryStore) filter(keep func(domain.RosterEntry) bool) []domain.RosterEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RosterEntry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (m *entryStore) remove(drop func(domain.RosterEntry) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.entries)
	m.entries = slices.DeleteFunc(m.entries, drop)
	return int64(before - len(m.entries))
}

func (m *entryStore) FindActive(_ context.Context, g, u string, now time.Time) ([]domain.RosterEntry, error) {
	return m.filter(func(e domain.RosterEntry) bool { return e.GuildID == g && e.UserID == u && e.Active(now) }), nil
}

func (m *entryStore) Insert(_ context.Context, e domain.RosterEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *entryStore) DeleteActive(_ context.Context, g, u string, now time.Time) (int64, error) {
	return m.remove(func(e domain.RosterEntry) bool { return e.GuildID == g && e.UserID == u && e.Active(now) }), nil
}

func (m *entryStore) ListActive(_ context.Context, g string, now time.Time) ([]domain.RosterEntry, error) {
	return m.filter(func(e domain.RosterEntry) bool { return e.GuildID == g && e.Active(now) }), nil
}

func (m *entryStore) ListAll(_ context.Context, g string) ([]domain.RosterEntry, error) {
	return m.filter(func(e domain.RosterEntry) bool { return e.GuildID == g }), nil
}

func (m *entryStore) DeleteByIDs(_ context.Context, g string, ids []string) (int64, error) {
	return m.remove(func(e domain.RosterEntry) bool { return e.GuildID == g && slices.Contains(ids, e.ID) }), nil
}

func (m *entryStore) FindExpired(_ context.Context, g string, now time.Time) ([]domain.RosterEntry, error) {
	return m.filter(func(e domain.RosterEntry) bool { return e.GuildID == g && !e.Active(now) }), nil
}

func (m *entryStore) DeleteExpired(_ context.Context, g string, now time.Time) (int64, error) {
	return m.remove(func(e domain.RosterEntry) bool { return e.GuildID == g && !e.Active(now) }), nil
}

func (m *entryStore) Guilds(context.Context) ([]string, error) { return nil, nil }

func (m *entryStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
