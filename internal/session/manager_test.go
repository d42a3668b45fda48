package session

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	creds   Credentials
	has     map[string]bool // which of token/username/is_admin exist
	saveErr error
	saves   int
	clears  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{has: map[string]bool{}}
}

func (s *fakeStore) LoadCredentials() (Credentials, bool, error) {
	var c Credentials
	if s.has["token"] {
		c.Token = s.creds.Token
	}
	if s.has["username"] {
		c.Username = s.creds.Username
	}
	if s.has["is_admin"] {
		c.IsAdmin = s.creds.IsAdmin
	}
	return c, s.has["token"] && s.has["username"], nil
}

func (s *fakeStore) SaveCredentials(creds Credentials) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.creds = creds
	s.has = map[string]bool{"token": true, "username": true, "is_admin": true}
	return nil
}

func (s *fakeStore) ClearCredentials() error {
	s.clears++
	s.creds = Credentials{}
	s.has = map[string]bool{}
	return nil
}

type fakeAuthGateway struct {
	result LoginResult
	err    error
}

func (g *fakeAuthGateway) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if g.err != nil {
		return LoginResult{}, g.err
	}
	return g.result, nil
}

func TestLoginEstablishesSession(t *testing.T) {
	store := newFakeStore()
	gw := &fakeAuthGateway{result: LoginResult{Token: "t1", TokenType: "bearer", IsAdmin: false}}
	m := NewManager(store, gw, nil)

	isAdmin, err := m.Login(context.Background(), "user1", "pw1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if isAdmin {
		t.Fatalf("expected non-admin")
	}

	st := m.Current()
	if !st.SignedIn || st.Username != "user1" || st.IsAdmin {
		t.Fatalf("unexpected state: %+v", st)
	}
	if m.Token() != "t1" {
		t.Fatalf("token not exposed for injection")
	}
	if store.saves != 1 {
		t.Fatalf("expected a single atomic save, got %d", store.saves)
	}
	if store.creds != (Credentials{Token: "t1", Username: "user1", IsAdmin: false}) {
		t.Fatalf("persisted record inconsistent: %+v", store.creds)
	}
}

func TestLoginFailureLeavesStateUntouched(t *testing.T) {
	store := newFakeStore()
	gw := &fakeAuthGateway{err: errors.New("invalid username or password")}
	m := NewManager(store, gw, nil)

	if _, err := m.Login(context.Background(), "user1", "bad"); err == nil {
		t.Fatalf("expected login failure")
	}
	if m.Current().SignedIn {
		t.Fatalf("must remain signed out after a rejected login")
	}
	if store.saves != 0 {
		t.Fatalf("no persisted fields may be written on failure")
	}
}

func TestLoginPersistFailureLeavesStateUntouched(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	gw := &fakeAuthGateway{result: LoginResult{Token: "t1"}}
	m := NewManager(store, gw, nil)

	if _, err := m.Login(context.Background(), "user1", "pw1"); err == nil {
		t.Fatalf("expected persist failure to surface")
	}
	if m.Current().SignedIn || m.Token() != "" {
		t.Fatalf("in-memory state must not flip when persistence fails")
	}
}

func TestRestoreFullRecord(t *testing.T) {
	store := newFakeStore()
	store.creds = Credentials{Token: "t1", Username: "user1", IsAdmin: true}
	store.has = map[string]bool{"token": true, "username": true, "is_admin": true}

	m := NewManager(store, &fakeAuthGateway{}, nil)
	st := m.Current()
	if !st.SignedIn || st.Username != "user1" || !st.IsAdmin {
		t.Fatalf("expected restored session, got %+v", st)
	}
	if m.Token() != "t1" {
		t.Fatalf("restored token missing")
	}
}

func TestRestoreTokenWithoutUsernameIsSignedOut(t *testing.T) {
	store := newFakeStore()
	store.creds = Credentials{Token: "t1"}
	store.has = map[string]bool{"token": true}

	m := NewManager(store, &fakeAuthGateway{}, nil)
	if m.Current().SignedIn {
		t.Fatalf("partial record must yield signed-out")
	}
	if store.clears != 1 {
		t.Fatalf("partial record should be cleared, clears=%d", store.clears)
	}
}

func TestRestoreAdminFlagDefaultsFalse(t *testing.T) {
	store := newFakeStore()
	store.creds = Credentials{Token: "t1", Username: "user1"}
	store.has = map[string]bool{"token": true, "username": true}

	m := NewManager(store, &fakeAuthGateway{}, nil)
	st := m.Current()
	if !st.SignedIn || st.IsAdmin {
		t.Fatalf("missing admin entry must default to false, got %+v", st)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	store := newFakeStore()
	gw := &fakeAuthGateway{result: LoginResult{Token: "t1"}}
	m := NewManager(store, gw, nil)

	if _, err := m.Login(context.Background(), "user1", "pw1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	m.Logout()
	m.Logout()

	if m.Current().SignedIn || m.Token() != "" {
		t.Fatalf("expected signed-out after logout")
	}
	if _, ok, _ := store.LoadCredentials(); ok {
		t.Fatalf("persisted fields must be cleared")
	}
}
