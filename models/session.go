package models

import "sync"

// StaffSession carries the authenticated staff identity and tokens. One
// instance is constructed at startup and shared by reference with the
// verification client and services; login and token refresh mutate it under
// the mutex.
type StaffSession struct {
	mu sync.RWMutex

	staffID   string
	staffName string
	role      string

	accessToken  string
	refreshToken string
}

func NewStaffSession() *StaffSession {
	return &StaffSession{}
}

// Adopt replaces the whole session after a successful login.
func (s *StaffSession) Adopt(staffID, staffName, role, accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staffID = staffID
	s.staffName = staffName
	s.role = role
	s.accessToken = accessToken
	s.refreshToken = refreshToken
}

// SetTokens replaces both tokens after a refresh, keeping the identity.
func (s *StaffSession) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

// Clear drops identity and tokens on logout.
func (s *StaffSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staffID = ""
	s.staffName = ""
	s.role = ""
	s.accessToken = ""
	s.refreshToken = ""
}

func (s *StaffSession) StaffID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staffID
}

func (s *StaffSession) StaffName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staffName
}

func (s *StaffSession) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *StaffSession) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *StaffSession) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Authenticated reports whether a login has populated the session.
func (s *StaffSession) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken != ""
}
