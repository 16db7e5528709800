package state

import "sync"

// Session holds the variables threaded across signal handlers. Each field is
// guarded on its own; callers never hold the lock across host queries, so a
// handler may act on a value another handler has since replaced.
type Session struct {
	mu         sync.Mutex
	lastTab    TabID
	lastWindow WindowID
	power      PowerState
}

// SessionSnapshot is a point-in-time copy of the session.
type SessionSnapshot struct {
	LastActiveTab    TabID      `json:"lastActiveTab"`
	LastActiveWindow WindowID   `json:"lastActiveWindow"`
	Power            PowerState `json:"power"`
}

// NewSession returns a session in its initial state.
func NewSession() *Session {
	return &Session{
		lastTab:    NoTab,
		lastWindow: WindowNone,
		power:      PowerActive,
	}
}

func (s *Session) LastActiveTab() TabID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTab
}

func (s *Session) SetLastActiveTab(id TabID) {
	s.mu.Lock()
	s.lastTab = id
	s.mu.Unlock()
}

func (s *Session) LastActiveWindow() WindowID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWindow
}

func (s *Session) SetLastActiveWindow(id WindowID) {
	s.mu.Lock()
	s.lastWindow = id
	s.mu.Unlock()
}

func (s *Session) Power() PowerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

func (s *Session) SetPower(p PowerState) {
	s.mu.Lock()
	s.power = p
	s.mu.Unlock()
}

// Snapshot copies all fields.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		LastActiveTab:    s.lastTab,
		LastActiveWindow: s.lastWindow,
		Power:            s.power,
	}
}
