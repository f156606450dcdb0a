package common

import "errors"

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a fixed set of paused module names, typically loaded from
// configuration at startup.
type StaticPauses map[string]bool

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool { return s[module] }
