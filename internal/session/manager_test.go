package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"authgate.org/internal/token"
	"authgate.org/internal/user"
)

func newTestManager(t *testing.T) (*Manager, *InMemory, *user.InMemory) {
	t.Helper()
	codec, err := token.NewCodec("test-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	store := NewInMemory()
	users := user.NewInMemory()
	m := NewManager(users, codec, store, store)
	return m, store, users
}

func registerTestUser(t *testing.T, m *Manager) LoginResult {
	t.Helper()
	res, err := m.Register(context.Background(), user.RegisterInput{
		Username:     "alice",
		Email:        "alice@example.com",
		MobileNumber: "+12345678901",
		Password:     "Sup3r!Secret",
	}, Device{Info: "laptop", Address: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return res
}

func TestRegisterIssuesVerifiableToken(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	res := registerTestUser(t, m)
	if res.Token == "" {
		t.Fatal("expected token")
	}
	if !res.Session.Active {
		t.Fatal("expected active session")
	}

	id, err := m.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != res.User.ID {
		t.Fatalf("subject mismatch: %d vs %d", id.UserID, res.User.ID)
	}
	if id.Username != "alice" {
		t.Fatalf("username mismatch: %s", id.Username)
	}
}

func TestLoginByAnyIdentifier(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	registerTestUser(t, m)

	for _, identifier := range []string{"alice", "alice@example.com", "+12345678901"} {
		res, err := m.Login(ctx, identifier, "Sup3r!Secret", Device{})
		if err != nil {
			t.Fatalf("Login(%q): %v", identifier, err)
		}
		if res.User.Username != "alice" {
			t.Fatalf("unexpected user: %s", res.User.Username)
		}
	}
}

func TestLoginDoesNotLeakWhichCheckFailed(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	registerTestUser(t, m)

	_, errUnknown := m.Login(ctx, "nobody", "Sup3r!Secret", Device{})
	_, errBadPass := m.Login(ctx, "alice", "Wrong!Pass1", Device{})

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", errUnknown)
	}
	if !errors.Is(errBadPass, ErrInvalidCredentials) {
		t.Fatalf("bad password: got %v", errBadPass)
	}
	if errUnknown.Error() != errBadPass.Error() {
		t.Fatalf("errors must be indistinguishable: %q vs %q", errUnknown, errBadPass)
	}
}

func TestLogoutRevokesForever(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	res := registerTestUser(t, m)

	if err := m.Logout(ctx, res.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.Verify(ctx, res.Token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("verify %d after logout: got %v, want ErrInvalidToken", i, err)
		}
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)
	res := registerTestUser(t, m)

	if err := m.Logout(ctx, res.Token); err != nil {
		t.Fatalf("first logout: %v", err)
	}
	if err := m.Logout(ctx, res.Token); err != nil {
		t.Fatalf("second logout: %v", err)
	}

	// The session must not come back.
	list, err := store.ListActive(ctx, res.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("session revived after double logout: %v", list)
	}
}

func TestThirdLoginEvictsLeastRecentlyActive(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)
	res := registerTestUser(t, m) // session A

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return clock })

	// registerTestUser created A under the real clock; rebuild the scenario
	// with controlled times: log out A, then create two fresh sessions.
	if err := m.Logout(ctx, res.Token); err != nil {
		t.Fatal(err)
	}

	resA, err := m.Login(ctx, "alice", "Sup3r!Secret", Device{Info: "laptop"})
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(time.Minute)
	resB, err := m.Login(ctx, "alice", "Sup3r!Secret", Device{Info: "phone"})
	if err != nil {
		t.Fatal(err)
	}

	// Verify B so A stays the least recently active.
	clock = clock.Add(time.Minute)
	if _, err := m.Verify(ctx, resB.Token); err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(time.Minute)
	resC, err := m.Login(ctx, "alice", "Sup3r!Secret", Device{Info: "tablet"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resC.Evicted) != 1 || resC.Evicted[0] != resA.Session.TokenID {
		t.Fatalf("expected A evicted, got %v", resC.Evicted)
	}

	// A's token is dead, B's and C's still verify.
	if _, err := m.Verify(ctx, resA.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("evicted token must be invalid, got %v", err)
	}
	if _, err := m.Verify(ctx, resB.Token); err != nil {
		t.Fatalf("token B: %v", err)
	}
	if _, err := m.Verify(ctx, resC.Token); err != nil {
		t.Fatalf("token C: %v", err)
	}

	list, err := m.ListSessions(ctx, res.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(list))
	}
	for _, sess := range list {
		if sess.TokenID == resA.Session.TokenID {
			t.Fatal("evicted session still listed as active")
		}
	}
}

func TestVerifySurvivesRacedDeactivation(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)
	res := registerTestUser(t, m)

	// Deactivation without revocation models the window inside a concurrent
	// logout. The already-parsed request is still honored.
	if _, err := store.Deactivate(ctx, res.Session.TokenID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Verify(ctx, res.Token); err != nil {
		t.Fatalf("verify with deactivated-but-unrevoked session: %v", err)
	}

	// Once the revocation lands, the token is dead.
	if err := store.Revoke(ctx, res.Session.TokenID, res.User.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Verify(ctx, res.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revocation, got %v", err)
	}
}

func TestConcurrentLoginsNeverExceedCap(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)
	res := registerTestUser(t, m)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Login(ctx, "alice", "Sup3r!Secret", Device{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent login: %v", err)
	}

	count, err := store.CountActive(ctx, res.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != MaxActivePerUser {
		t.Fatalf("expected exactly %d active sessions, got %d", MaxActivePerUser, count)
	}
}

func TestRegisterConflictPropagates(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	registerTestUser(t, m)

	_, err := m.Register(ctx, user.RegisterInput{
		Username:     "alice",
		Email:        "other@example.com",
		MobileNumber: "+19876543210",
		Password:     "Sup3r!Secret",
	}, Device{})
	var conflict *user.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Field != "username" {
		t.Fatalf("expected username conflict, got %s", conflict.Field)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	if _, err := m.Verify(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if err := m.Logout(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
