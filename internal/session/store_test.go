package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DaewiLF/MinerIA/internal/storage"
)

// memBlobs is an in-process BlobStore with optional failure injection.
type memBlobs struct {
	mu      sync.Mutex
	data    map[string]string
	setErr  error
	getErr  error
	release chan struct{} // when non-nil, GetMany blocks until it is closed

	// when non-nil, SetMany signals setStarted and waits on setRelease
	// before writing
	setStarted chan struct{}
	setRelease chan struct{}
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string]string)}
}

func (m *memBlobs) GetMany(keys ...string) (map[string]string, error) {
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memBlobs) SetMany(entries map[string]string) error {
	if m.setRelease != nil {
		close(m.setStarted)
		<-m.setRelease
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	for k, v := range entries {
		m.data[k] = v
	}
	return nil
}

func (m *memBlobs) DeleteMany(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

var analyst = Identity{ID: 1, Email: "a@b.com", Role: RoleAnalyst, Name: "Ana"}

func waitRestore(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Restore did not finish")
	}
}

func TestLoginThenCurrent(t *testing.T) {
	s := New(newMemBlobs(), nil)

	if err := s.Login("abc", analyst); err != nil {
		t.Fatalf("Login: %v", err)
	}

	got, ok := s.Current()
	if !ok {
		t.Fatal("Current() reported anonymous after Login")
	}
	if got.Token != "abc" {
		t.Errorf("Token = %q, want abc", got.Token)
	}
	if got.Identity != analyst {
		t.Errorf("Identity = %+v, want %+v", got.Identity, analyst)
	}
	if s.Token() != "abc" {
		t.Errorf("Token() = %q, want abc", s.Token())
	}
	if !s.Authenticated() {
		t.Error("Authenticated() = false, want true")
	}
}

func TestLogoutThenCurrent(t *testing.T) {
	blobs := newMemBlobs()
	s := New(blobs, nil)

	if err := s.Login("abc", analyst); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := s.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, ok := s.Current(); ok {
		t.Error("Current() reported a session after Logout")
	}
	if s.Token() != "" {
		t.Errorf("Token() = %q, want empty", s.Token())
	}
	if len(blobs.data) != 0 {
		t.Errorf("persisted data not cleared: %v", blobs.data)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	s := New(newMemBlobs(), nil)

	if err := s.Logout(); err != nil {
		t.Fatalf("first Logout: %v", err)
	}
	if err := s.Logout(); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if s.Authenticated() {
		t.Error("Authenticated() = true after Logout")
	}
}

func TestLogin_EmptyToken(t *testing.T) {
	blobs := newMemBlobs()
	s := New(blobs, nil)

	err := s.Login("", analyst)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("Login(\"\") error = %v, want ErrInvalidCredential", err)
	}
	if s.Authenticated() {
		t.Error("empty token must not start a session")
	}
	if len(blobs.data) != 0 {
		t.Errorf("nothing should be persisted, got %v", blobs.data)
	}
}

func TestLogin_PersistsBothKeys(t *testing.T) {
	blobs := newMemBlobs()
	s := New(blobs, nil)

	if err := s.Login("abc", analyst); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if blobs.data[keyToken] != "abc" {
		t.Errorf("persisted token = %q, want abc", blobs.data[keyToken])
	}
	if blobs.data[keyUser] == "" {
		t.Error("identity was not persisted")
	}
}

func TestLogoutWaitsForPendingLogin(t *testing.T) {
	blobs := newMemBlobs()
	blobs.setStarted = make(chan struct{})
	blobs.setRelease = make(chan struct{})
	s := New(blobs, nil)

	loginDone := make(chan error, 1)
	go func() { loginDone <- s.Login("tok", analyst) }()
	<-blobs.setStarted

	logoutDone := make(chan error, 1)
	go func() { logoutDone <- s.Logout() }()

	select {
	case <-logoutDone:
		t.Fatal("Logout finished while Login was still persisting")
	case <-time.After(50 * time.Millisecond):
	}

	close(blobs.setRelease)
	if err := <-loginDone; err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := <-logoutDone; err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, ok := s.Current(); ok {
		t.Error("session should be anonymous after the later Logout")
	}
	blobs.mu.Lock()
	defer blobs.mu.Unlock()
	if len(blobs.data) != 0 {
		t.Errorf("stored pair survived Logout: %v", blobs.data)
	}
}

func TestLogin_PersistFailureKeepsSession(t *testing.T) {
	blobs := newMemBlobs()
	blobs.setErr = errors.New("disk full")
	s := New(blobs, nil)

	err := s.Login("abc", analyst)
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if !s.Authenticated() {
		t.Error("session should stay active in memory when persisting fails")
	}
}

// TestRestore_RoundTrip simulates a process restart on a real SQLite file.
func TestRestore_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	if err := New(db1, nil).Login("abc", analyst); err != nil {
		t.Fatalf("Login: %v", err)
	}
	db1.Close()

	db2, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("storage.Open after restart: %v", err)
	}
	defer db2.Close()

	s := New(db2, nil)
	waitRestore(t, s.Restore(context.Background()))

	got, ok := s.Current()
	if !ok {
		t.Fatal("no session after Restore")
	}
	if got.Token != "abc" || got.Identity != analyst {
		t.Errorf("restored %+v, want token abc and %+v", got, analyst)
	}
}

func TestRestore_NothingSaved(t *testing.T) {
	s := New(newMemBlobs(), nil)
	waitRestore(t, s.Restore(context.Background()))

	if s.Authenticated() {
		t.Error("expected anonymous when nothing was saved")
	}
}

func TestRestore_CorruptIdentity(t *testing.T) {
	blobs := newMemBlobs()
	blobs.data[keyToken] = "abc"
	blobs.data[keyUser] = "{not json"
	s := New(blobs, nil)

	waitRestore(t, s.Restore(context.Background()))

	if s.Authenticated() {
		t.Error("corrupt identity must restore as anonymous")
	}
}

func TestRestore_HalfSavedPair(t *testing.T) {
	blobs := newMemBlobs()
	blobs.data[keyToken] = "abc"
	s := New(blobs, nil)

	waitRestore(t, s.Restore(context.Background()))

	if s.Authenticated() {
		t.Error("token without identity must restore as anonymous")
	}
}

func TestRestore_StorageError(t *testing.T) {
	blobs := newMemBlobs()
	blobs.getErr = errors.New("io error")
	s := New(blobs, nil)

	waitRestore(t, s.Restore(context.Background()))

	if s.Authenticated() {
		t.Error("storage error must restore as anonymous")
	}
}

// TestRestore_DoesNotBlock verifies the caller is not held up by storage.
func TestRestore_DoesNotBlock(t *testing.T) {
	blobs := newMemBlobs()
	blobs.release = make(chan struct{})
	s := New(blobs, nil)

	done := s.Restore(context.Background())
	if s.Authenticated() {
		t.Error("session should be anonymous until hydration completes")
	}
	close(blobs.release)
	waitRestore(t, done)
}

// TestRestore_LoginWins verifies a Login during hydration is not overwritten
// by the older persisted pair.
func TestRestore_LoginWins(t *testing.T) {
	blobs := newMemBlobs()
	blobs.data[keyToken] = "old"
	blobs.data[keyUser] = `{"id":9,"email":"old@b.com","role":"admin","name":"Old"}`
	blobs.release = make(chan struct{})
	s := New(blobs, nil)

	done := s.Restore(context.Background())
	if err := s.Login("new", analyst); err != nil {
		t.Fatalf("Login: %v", err)
	}
	close(blobs.release)
	waitRestore(t, done)

	if got := s.Token(); got != "new" {
		t.Errorf("Token() = %q, want new", got)
	}
}

func TestRestore_LogoutWins(t *testing.T) {
	blobs := newMemBlobs()
	blobs.data[keyToken] = "old"
	blobs.data[keyUser] = `{"id":9,"email":"old@b.com","role":"admin","name":"Old"}`
	blobs.release = make(chan struct{})
	s := New(blobs, nil)

	done := s.Restore(context.Background())
	if err := s.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	close(blobs.release)
	waitRestore(t, done)

	if s.Authenticated() {
		t.Error("Logout during restore must leave the store anonymous")
	}
}

func TestRestore_CancelledContext(t *testing.T) {
	blobs := newMemBlobs()
	blobs.data[keyToken] = "abc"
	blobs.data[keyUser] = `{"id":1}`
	s := New(blobs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	waitRestore(t, s.Restore(ctx))

	if s.Authenticated() {
		t.Error("cancelled restore must not install a session")
	}
}

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleAdmin, true},
		{RoleAnalyst, true},
		{"operator", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}
