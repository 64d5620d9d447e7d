package service

import (
	"log/slog"
	"time"
)

type Option func(*RosterService)

func WithClock(now func() time.Time) Option {
	return func(s *RosterService) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *RosterService) { s.newID = gen }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *RosterService) { s.log = l }
}
