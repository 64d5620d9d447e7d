// Package httpstatus expone health y una vista de solo lectura del roster.
package httpstatus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jose-valero/roster-bot/internal/domain"
)

// Roster es lo que el server necesita del engine.
type Roster interface {
	Active(ctx context.Context, guildID string) ([]domain.RosterEntry, error)
	Now() time.Time
}

type Server struct {
	roster  Roster
	manages func(guildID string) bool
	log     *slog.Logger
	mux     *http.ServeMux
	srv     *http.Server
}

type entryView struct {
	UserID           string    `json:"user_id"`
	DisplayName      string    `json:"display_name"`
	ClockInTime      time.Time `json:"clock_in_time"`
	ClockOutTime     time.Time `json:"clock_out_time"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

type rosterView struct {
	GuildID string      `json:"guild_id"`
	Count   int         `json:"count"`
	Entries []entryView `json:"entries"`
}

// New arma el server. manages nil = responde por cualquier guild.
func New(roster Roster, manages func(string) bool, log *slog.Logger) *Server {
	s := &Server{roster: roster, manages: manages, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /guilds/{guildID}/roster", s.handleRoster)
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guildID")
	if s.manages != nil && !s.manages(guildID) {
		http.Error(w, "unknown guild", http.StatusNotFound)
		return
	}

	entries, err := s.roster.Active(r.Context(), guildID)
	if err != nil {
		s.log.Error("http roster", "guild", guildID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	now := s.roster.Now()
	out := rosterView{GuildID: guildID, Count: len(entries), Entries: make([]entryView, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, entryView{
			UserID:           e.UserID,
			DisplayName:      e.DisplayName,
			ClockInTime:      e.ClockInTime,
			ClockOutTime:     e.ClockOutTime,
			RemainingSeconds: int64(e.Remaining(now) / time.Second),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Warn("http roster encode", "err", err)
	}
}

// Start bloquea hasta Shutdown; ErrServerClosed no es error.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("http listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
