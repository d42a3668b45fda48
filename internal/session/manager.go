// Package session owns the client's belief about who is signed in. It is
// the single piece of shared mutable state in the process: every other
// component reads from it and only login/logout mutate it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Credentials is the persisted credential record: three independently keyed
// entries that are written and cleared together.
type Credentials struct {
	Token    string
	Username string
	IsAdmin  bool
}

// Store is the persisted credential store. SaveCredentials must write all
// three fields atomically; ClearCredentials must remove them all.
type Store interface {
	// LoadCredentials reports ok only when both token and username are
	// present. A partial record is returned with ok == false so the
	// caller can clean it up.
	LoadCredentials() (creds Credentials, ok bool, err error)
	SaveCredentials(creds Credentials) error
	ClearCredentials() error
}

// LoginResult is what the remote session gateway returns for accepted
// credentials.
type LoginResult struct {
	Token     string
	TokenType string
	IsAdmin   bool
}

// Gateway is the remote authentication service boundary.
type Gateway interface {
	Login(ctx context.Context, username, password string) (LoginResult, error)
}

// State is the in-memory session: signed out, or signed in with a username
// and privilege flag.
type State struct {
	SignedIn bool
	Username string
	IsAdmin  bool
}

// Manager derives its state from the credential store at construction and
// keeps the two in sync through Login and Logout. Restore is best-effort
// and local-only: the token is not validated against the network, so it may
// be stale; staleness surfaces later as a 401 on an authenticated call.
type Manager struct {
	store Store
	gw    Gateway
	log   *slog.Logger

	mu    sync.RWMutex
	cur   State
	token string
}

// NewManager restores a prior session from the store. A record with some
// but not all fields present counts as no session and is cleared so the
// store returns to a consistent state.
func NewManager(store Store, gw Gateway, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{store: store, gw: gw, log: log}

	creds, ok, err := store.LoadCredentials()
	switch {
	case err != nil:
		log.Warn("restoring session", "error", err)
	case ok:
		m.cur = State{SignedIn: true, Username: creds.Username, IsAdmin: creds.IsAdmin}
		m.token = creds.Token
		log.Info("session restored", "username", creds.Username, "is_admin", creds.IsAdmin)
	case creds.Token != "" || creds.Username != "":
		log.Warn("clearing partial credential record")
		if err := store.ClearCredentials(); err != nil {
			log.Warn("clearing partial credential record", "error", err)
		}
	}
	return m
}

// Current returns the session state.
func (m *Manager) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Token is the sole read point for bearer injection into authenticated
// requests. Empty means signed out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Login exchanges credentials with the gateway. On success the full record
// is persisted first and only then the in-memory state flips, so the two
// never disagree. On any failure both are left exactly as they were.
// The returned flag tells the caller whether the user is an administrator.
func (m *Manager) Login(ctx context.Context, username, password string) (isAdmin bool, err error) {
	res, err := m.gw.Login(ctx, username, password)
	if err != nil {
		return false, err
	}

	creds := Credentials{Token: res.Token, Username: username, IsAdmin: res.IsAdmin}
	if err := m.store.SaveCredentials(creds); err != nil {
		return false, fmt.Errorf("persisting credentials: %w", err)
	}

	m.mu.Lock()
	m.cur = State{SignedIn: true, Username: username, IsAdmin: res.IsAdmin}
	m.token = res.Token
	m.mu.Unlock()

	m.log.Info("signed in", "username", username, "is_admin", res.IsAdmin)
	return res.IsAdmin, nil
}

// Logout unconditionally returns to the signed-out state and clears the
// persisted record. Calling it while already signed out is a no-op.
func (m *Manager) Logout() {
	if err := m.store.ClearCredentials(); err != nil {
		m.log.Warn("clearing credentials", "error", err)
	}

	m.mu.Lock()
	wasSignedIn := m.cur.SignedIn
	m.cur = State{}
	m.token = ""
	m.mu.Unlock()

	if wasSignedIn {
		m.log.Info("signed out")
	}
}
