package common

import (
	"errors"
	"sync/atomic"
)

// ErrModulePaused is returned by Guard while a module's pause flag is set.
var ErrModulePaused = errors.New("module paused")

// PauseView answers pause queries by module name.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when view reports module as paused. A nil
// view never blocks.
func Guard(view PauseView, module string) error {
	if view != nil && module != "" && view.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSwitch is a single pause flag owned by one module instance. It satisfies
// PauseView for its own module name only.
type PauseSwitch struct {
	module string
	paused atomic.Bool
}

// NewPauseSwitch returns an unpaused switch for module.
func NewPauseSwitch(module string) *PauseSwitch {
	return &PauseSwitch{module: module}
}

// IsPaused implements PauseView.
func (s *PauseSwitch) IsPaused(module string) bool {
	if s == nil || module != s.module {
		return false
	}
	return s.paused.Load()
}

// Paused reports the current flag.
func (s *PauseSwitch) Paused() bool {
	if s == nil {
		return false
	}
	return s.paused.Load()
}

// Set stores the flag and returns the previous value.
func (s *PauseSwitch) Set(paused bool) bool {
	return s.paused.Swap(paused)
}
