package accesskit

import (
	"context"
	"time"
)

// SessionManager owns the server side lifecycle of issued tokens.
//
//	Active --refresh--> Active
//	Active --time passes expires_at--> Expired (detected lazily on lookup)
//	Active --revoke--> Revoked (row deleted)
type SessionManager struct {
	store SessionStore
	ttl   time.Duration
}

// NewSessionManager returns a manager with the given sliding window.
// A non-positive ttl falls back to DefaultTokenTTL.
func NewSessionManager(store SessionStore, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &SessionManager{store: store, ttl: ttl}
}

// TTL returns the sliding window length.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create persists a new session for principal expiring ttl after now.
func (m *SessionManager) Create(ctx context.Context, principal *Principal, token string, now time.Time) (*Session, error) {
	s := &Session{
		PrincipalID: principal.ID,
		Principal:   principal,
		Token:       token,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
		IPAddress:   GetIPAddress(ctx),
		UserAgent:   GetUserAgent(ctx),
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, storageError("CreateSession", err)
	}
	return s, nil
}

// Lookup returns the session for token with its principal loaded, or
// ErrNotFound. Expiry is not checked here; see Session.IsValid.
func (m *SessionManager) Lookup(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	s, err := m.store.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, storageError("GetSessionByToken", err)
	}
	return s, nil
}

// Refresh slides the expiry of s to now + ttl. The new expiry never moves
// backwards, so concurrent refreshes are safe with last writer wins.
func (m *SessionManager) Refresh(ctx context.Context, s *Session, now time.Time) error {
	next := now.Add(m.ttl)
	if !next.After(s.ExpiresAt) {
		return nil
	}
	if err := m.store.ExtendSession(ctx, s.ID, next); err != nil {
		return storageError("ExtendSession", err)
	}
	s.ExpiresAt = next
	return nil
}

// Revoke deletes the session for token. Revoking an unknown token is not an error.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if _, err := m.store.DeleteSessionByToken(ctx, token); err != nil {
		return storageError("DeleteSessionByToken", err)
	}
	return nil
}

// RevokeAll deletes every session of principalID and returns how many were removed.
func (m *SessionManager) RevokeAll(ctx context.Context, principalID string) (int64, error) {
	n, err := m.store.DeleteSessionsForPrincipal(ctx, principalID)
	if err != nil {
		return 0, storageError("DeleteSessionsForPrincipal", err)
	}
	return n, nil
}

// Sweep deletes sessions that expired at or before now.
func (m *SessionManager) Sweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := m.store.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return 0, storageError("DeleteExpiredSessions", err)
	}
	return n, nil
}

// List returns the sessions of principalID, newest first.
func (m *SessionManager) List(ctx context.Context, principalID string) ([]Session, error) {
	sessions, err := m.store.ListSessions(ctx, principalID)
	if err != nil {
		return nil, storageError("ListSessions", err)
	}
	return sessions, nil
}
