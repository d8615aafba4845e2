// Package view holds presentation state: flow progress flags, history
// pagination and the periodically refreshed statistics.
package view

import (
	"errors"
	"sync"
	"time"

	"github.com/vietddude/optionvault/internal/core/domain"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	// StatusWarning means the action succeeded on-chain but needs attention.
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// FlowSnapshot is a copy of a FlowState.
type FlowSnapshot struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FlowState tracks one user action. Only one action may be in flight.
type FlowState struct {
	mu   sync.RWMutex
	snap FlowSnapshot
}

func NewFlowState() *FlowState {
	return &FlowState{snap: FlowSnapshot{Status: StatusIdle, UpdatedAt: time.Now()}}
}

// Begin marks the action as loading. It returns false if one is already
// running.
func (s *FlowState) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Status == StatusLoading {
		return false
	}
	s.snap = FlowSnapshot{Status: StatusLoading, UpdatedAt: time.Now()}
	return true
}

// Finish records the result of the action.
func (s *FlowState) Finish(message string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = FlowSnapshot{Status: StatusSuccess, Message: message, UpdatedAt: time.Now()}
	if err == nil {
		return
	}
	s.snap.Message = err.Error()
	var rerr *domain.ReconciliationError
	if errors.As(err, &rerr) {
		s.snap.Status = StatusWarning
		return
	}
	s.snap.Status = StatusError
}

// Reset returns to idle unless an action is running.
func (s *FlowState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Status != StatusLoading {
		s.snap = FlowSnapshot{Status: StatusIdle, UpdatedAt: time.Now()}
	}
}

func (s *FlowState) Snapshot() FlowSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
