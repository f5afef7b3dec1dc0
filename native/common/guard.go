package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// ModuleStaking names the stake/unstake entry points for pause checks.
const ModuleStaking = "staking"

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

// Pauses is an in-memory PauseView toggled by the node operator.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauses() *Pauses {
	return &Pauses{paused: make(map[string]bool)}
}

// Set pauses or resumes module.
func (p *Pauses) Set(module string, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if paused {
		p.paused[module] = true
		return
	}
	delete(p.paused, module)
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}
