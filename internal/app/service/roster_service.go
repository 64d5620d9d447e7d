package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jose-valero/roster-bot/internal/app/render"
	"github.com/jose-valero/roster-bot/internal/domain"
)

type RosterSettings struct {
	Duration    time.Duration
	Preferences []domain.PreferenceTag
}

type RosterService struct {
	store     RosterStore
	platform  Platform
	resources Resources
	publisher SummaryPublisher
	settings  RosterSettings

	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

func NewRosterService(store RosterStore, platform Platform, resources Resources, publisher SummaryPublisher, settings RosterSettings, opts ...Option) *RosterService {
	s := &RosterService{
		store:     store,
		platform:  platform,
		resources: resources,
		publisher: publisher,
		settings:  settings,
		now:       time.Now,
		newID:     uuid.NewString,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RosterService) Duration() time.Duration { return s.settings.Duration }

// ClockIn: check, insert, rol, re-render. Si falla el rol o el render,
// la entrada queda igual (el store manda).
func (s *RosterService) ClockIn(ctx context.Context, guildID, userID, displayName string) (domain.RosterEntry, error) {
	res, err := activeRole(ctx, s.resources, guildID)
	if err != nil {
		return domain.RosterEntry{}, err
	}
	now := s.now()

	existing, err := s.store.FindActive(ctx, guildID, userID, now)
	if err != nil {
		return domain.RosterEntry{}, fmt.Errorf("find active: %w", err)
	}
	if len(existing) > 0 {
		return domain.RosterEntry{}, alreadyActive(existing, now)
	}

	e := domain.RosterEntry{
		ID:           s.newID(),
		GuildID:      guildID,
		UserID:       userID,
		DisplayName:  displayName,
		ClockInTime:  now,
		ClockOutTime: now.Add(s.settings.Duration),
		CreatedAt:    now,
	}
	if err := s.store.Insert(ctx, e); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// otro clock-in ganó la carrera
			if again, ferr := s.store.FindActive(ctx, guildID, userID, now); ferr == nil && len(again) > 0 {
				return domain.RosterEntry{}, alreadyActive(again, now)
			}
			return domain.RosterEntry{}, &domain.AlreadyActiveError{Remaining: s.settings.Duration}
		}
		return domain.RosterEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	s.log.Info("clock in", "guild", guildID, "user", userID, "entry", e.ID, "until", e.ClockOutTime)

	s.grant(ctx, guildID, userID, res.ActiveRoleID)
	s.refresh(ctx, guildID)
	return e, nil
}

// ClockOut borra todas las entradas activas del par (si por la carrera hay
// dos, se van las dos).
func (s *RosterService) ClockOut(ctx context.Context, guildID, userID string) error {
	res, err := activeRole(ctx, s.resources, guildID)
	if err != nil {
		return err
	}
	n, err := s.store.DeleteActive(ctx, guildID, userID, s.now())
	if err != nil {
		return fmt.Errorf("delete active: %w", err)
	}
	if n == 0 {
		return domain.ErrNotActive
	}
	if n > 1 {
		s.log.Warn("clock out removed duplicate active entries", "guild", guildID, "user", userID, "count", n)
	}
	s.log.Info("clock out", "guild", guildID, "user", userID)

	s.revoke(ctx, guildID, userID, res.ActiveRoleID)
	s.refresh(ctx, guildID)
	return nil
}

// ClearAll borra el snapshot del roster y saca el rol a cada uno (cada
// revocación por separado; una que falla no corta el lote).
func (s *RosterService) ClearAll(ctx context.Context, guildID string) (removed, revoked int, err error) {
	snapshot, err := s.store.ListAll(ctx, guildID)
	if err != nil {
		return 0, 0, fmt.Errorf("list roster: %w", err)
	}
	if len(snapshot) == 0 {
		return 0, 0, nil
	}

	ids := make([]string, 0, len(snapshot))
	for _, e := range snapshot {
		ids = append(ids, e.ID)
	}
	n, err := s.store.DeleteByIDs(ctx, guildID, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("delete roster: %w", err)
	}

	res, rerr := activeRole(ctx, s.resources, guildID)
	if rerr != nil {
		s.log.Error("clear roster: cannot revoke roles", "guild", guildID, "err", rerr)
	} else {
		now := s.now()
		for _, uid := range uniqueUsers(snapshot) {
			// fichó de nuevo después del snapshot: conserva el rol
			if again, ferr := s.store.FindActive(ctx, guildID, uid, now); ferr == nil && len(again) > 0 {
				continue
			}
			if s.revoke(ctx, guildID, uid, res.ActiveRoleID) {
				revoked++
			}
		}
	}
	s.log.Info("roster cleared", "guild", guildID, "count", n, "revoked", revoked)

	s.refresh(ctx, guildID)
	return int(n), revoked, nil
}

// ReconcileExpired borra las entradas vencidas en bloque y después, usuario
// por usuario, saca el rol y manda DM. Re-render solo si hubo algo.
func (s *RosterService) ReconcileExpired(ctx context.Context, guildID string) ([]domain.RosterEntry, error) {
	now := s.now()
	expired, err := s.store.FindExpired(ctx, guildID, now)
	if err != nil {
		return nil, fmt.Errorf("find expired: %w", err)
	}
	if len(expired) == 0 {
		return nil, nil
	}
	n, err := s.store.DeleteExpired(ctx, guildID, now)
	if err != nil {
		return nil, fmt.Errorf("delete expired: %w", err)
	}
	s.log.Info("expired entries removed", "guild", guildID, "count", n)

	roleID := ""
	if res, rerr := activeRole(ctx, s.resources, guildID); rerr != nil {
		s.log.Error("sweep: cannot revoke roles", "guild", guildID, "err", rerr)
	} else {
		roleID = res.ActiveRoleID
	}

	msg := fmt.Sprintf("👋 You were automatically clocked out after %s.", render.Hours(s.settings.Duration))
	for _, uid := range uniqueUsers(expired) {
		// si volvió a fichar antes del sweep, no lo tocamos
		if again, ferr := s.store.FindActive(ctx, guildID, uid, now); ferr == nil && len(again) > 0 {
			continue
		}
		if roleID != "" {
			s.revoke(ctx, guildID, uid, roleID)
		}
		if err := s.platform.DirectMessage(ctx, uid, msg); err != nil {
			s.log.Debug("auto clock-out DM failed", "guild", guildID, "user", uid, "err", err)
		}
	}

	s.refresh(ctx, guildID)
	return expired, nil
}

// TogglePreference pone o saca un rol de preferencia. Solo para gente fichada.
func (s *RosterService) TogglePreference(ctx context.Context, guildID, userID, tag string) (domain.PreferenceResult, error) {
	res, err := activeRole(ctx, s.resources, guildID)
	if err != nil {
		return domain.PreferenceResult{}, err
	}
	held, err := s.platform.MemberRoles(ctx, guildID, userID)
	if err != nil {
		return domain.PreferenceResult{}, fmt.Errorf("member roles: %w", err)
	}
	if !slices.Contains(held, res.ActiveRoleID) {
		return domain.PreferenceResult{}, domain.ErrNotActive
	}

	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == domain.TagClear {
		out := domain.PreferenceResult{Tag: domain.TagClear}
		for _, p := range s.settings.Preferences {
			rid := res.PreferenceRoleIDs[p.Tag]
			if rid == "" || !slices.Contains(held, rid) {
				continue
			}
			if err := s.platform.RemoveRole(ctx, guildID, userID, rid); err != nil {
				s.log.Warn("clear preference failed", "guild", guildID, "user", userID, "tag", p.Tag, "err", err)
				continue
			}
			out.Cleared++
		}
		if out.Cleared > 0 {
			s.refresh(ctx, guildID)
		}
		return out, nil
	}

	p, ok := s.preference(tag)
	if !ok {
		return domain.PreferenceResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownTag, tag)
	}
	rid := res.PreferenceRoleIDs[p.Tag]
	if rid == "" {
		return domain.PreferenceResult{}, fmt.Errorf("preference %s: %w", p.Tag, domain.ErrRoleMissing)
	}

	out := domain.PreferenceResult{Tag: p.Tag, Label: p.Label}
	if slices.Contains(held, rid) {
		if err := s.platform.RemoveRole(ctx, guildID, userID, rid); err != nil {
			return domain.PreferenceResult{}, fmt.Errorf("remove preference: %w", err)
		}
	} else {
		if err := s.platform.AddRole(ctx, guildID, userID, rid); err != nil {
			return domain.PreferenceResult{}, fmt.Errorf("add preference: %w", err)
		}
		out.Added = true
	}
	s.log.Info("preference toggled", "guild", guildID, "user", userID, "tag", p.Tag, "added", out.Added)
	s.refresh(ctx, guildID)
	return out, nil
}

func (s *RosterService) Active(ctx context.Context, guildID string) ([]domain.RosterEntry, error) {
	return s.store.ListActive(ctx, guildID, s.now())
}

func (s *RosterService) Now() time.Time { return s.now() }

// ---------- internos ----------

func (s *RosterService) preference(tag string) (domain.PreferenceTag, bool) {
	for _, p := range s.settings.Preferences {
		if p.Tag == tag {
			return p, true
		}
	}
	return domain.PreferenceTag{}, false
}

// grant agrega el rol si el usuario no lo tiene. Fallas solo se loguean.
func (s *RosterService) grant(ctx context.Context, guildID, userID, roleID string) bool {
	if held, err := s.platform.MemberRoles(ctx, guildID, userID); err == nil && slices.Contains(held, roleID) {
		return false
	}
	if err := s.platform.AddRole(ctx, guildID, userID, roleID); err != nil {
		s.log.Error("grant active role", "guild", guildID, "user", userID, "err", err)
		return false
	}
	return true
}

// revoke saca el rol si lo tiene; true si efectivamente se sacó.
func (s *RosterService) revoke(ctx context.Context, guildID, userID, roleID string) bool {
	held, err := s.platform.MemberRoles(ctx, guildID, userID)
	if err != nil {
		s.log.Warn("revoke active role: member lookup", "guild", guildID, "user", userID, "err", err)
		return false
	}
	if !slices.Contains(held, roleID) {
		return false
	}
	if err := s.platform.RemoveRole(ctx, guildID, userID, roleID); err != nil {
		s.log.Error("revoke active role", "guild", guildID, "user", userID, "err", err)
		return false
	}
	return true
}

func (s *RosterService) refresh(ctx context.Context, guildID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.RefreshSummary(ctx, guildID); err != nil {
		s.log.Warn("refresh summary", "guild", guildID, "err", err)
	}
}

func alreadyActive(entries []domain.RosterEntry, now time.Time) error {
	latest := entries[0]
	for _, e := range entries[1:] {
		if e.ClockOutTime.After(latest.ClockOutTime) {
			latest = e
		}
	}
	return &domain.AlreadyActiveError{Remaining: latest.Remaining(now), Until: latest.ClockOutTime}
}

func uniqueUsers(entries []domain.RosterEntry) []string {
	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			out = append(out, e.UserID)
		}
	}
	return out
}
