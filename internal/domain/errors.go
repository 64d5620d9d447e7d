package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyActive = errors.New("already clocked in")
	ErrNotActive     = errors.New("not clocked in")
	ErrUnknownTag    = errors.New("unknown preference tag")
	ErrRoleMissing   = errors.New("active role not found")
	ErrConflict      = errors.New("concurrent clock-in")
	ErrNotFound      = errors.New("not found")
)

// AlreadyActiveError lleva el tiempo restante (solo para mostrar).
type AlreadyActiveError struct {
	Remaining time.Duration
	Until     time.Time
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("already clocked in (%s remaining)", e.Remaining.Round(time.Minute))
}

func (e *AlreadyActiveError) Is(target error) bool { return target == ErrAlreadyActive }
