package oauth

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory Store that counts calls.
type memoryStore struct {
	mu      sync.Mutex
	cred    *Credential
	saveErr error
	saves   int
	clears  int
}

func (s *memoryStore) Load() (*Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil, false
	}
	c := *s.cred
	return &c, true
}

func (s *memoryStore) Save(cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	c := *cred
	s.cred = &c
	return nil
}

func (s *memoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.cred = nil
	return nil
}

// fakeAuthorizer records how often each path of the lifecycle was taken.
type fakeAuthorizer struct {
	runs      atomic.Int32
	refreshes atomic.Int32

	runDelay   time.Duration
	runErr     error
	refreshErr error
	issued     *Credential
}

func (f *fakeAuthorizer) Run(ctx context.Context) (*Credential, error) {
	f.runs.Add(1)
	if f.runDelay > 0 {
		select {
		case <-time.After(f.runDelay):
		case <-ctx.Done():
			return nil, newAuthError(KindCancelled, "callback", ctx.Err())
		}
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	if f.issued != nil {
		return f.issued, nil
	}
	return &Credential{AccessToken: "interactive-token", RefreshToken: "r2", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuthorizer) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	f.refreshes.Add(1)
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &Credential{AccessToken: "refreshed-token", RefreshToken: cred.RefreshToken, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func TestManager_EnsureValid(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name          string
		cached        *Credential
		refreshErr    error
		wantToken     string
		wantRuns      int32
		wantRefreshes int32
		wantSaves     int
	}{
		{
			name:      "no cached credential runs interactive login",
			cached:    nil,
			wantToken: "interactive-token",
			wantRuns:  1,
			wantSaves: 1,
		},
		{
			name:      "valid cached credential is returned without network",
			cached:    &Credential{AccessToken: "cached-token", ExpiresAt: now.Add(time.Hour)},
			wantToken: "cached-token",
		},
		{
			name:          "expired with refresh token refreshes",
			cached:        &Credential{AccessToken: "old", RefreshToken: "r1", ExpiresAt: now.Add(-time.Minute)},
			wantToken:     "refreshed-token",
			wantRefreshes: 1,
			wantSaves:     1,
		},
		{
			name:          "inside the safety margin refreshes",
			cached:        &Credential{AccessToken: "old", RefreshToken: "r1", ExpiresAt: now.Add(30 * time.Second)},
			wantToken:     "refreshed-token",
			wantRefreshes: 1,
			wantSaves:     1,
		},
		{
			name:      "expired without refresh token runs interactive login",
			cached:    &Credential{AccessToken: "old", ExpiresAt: now.Add(-time.Minute)},
			wantToken: "interactive-token",
			wantRuns:  1,
			wantSaves: 1,
		},
		{
			name:          "failed refresh falls back to interactive login",
			cached:        &Credential{AccessToken: "old", RefreshToken: "revoked", ExpiresAt: now.Add(-time.Minute)},
			refreshErr:    newAuthErrorf(KindRefreshFailed, "refresh", "invalid_grant"),
			wantToken:     "interactive-token",
			wantRuns:      1,
			wantRefreshes: 1,
			wantSaves:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryStore{cred: tt.cached}
			auth := &fakeAuthorizer{refreshErr: tt.refreshErr}
			m := NewManager(store, auth, WithManagerClock(func() time.Time { return now }))

			cred, err := m.EnsureValid(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, cred.AccessToken)
			assert.Equal(t, tt.wantRuns, auth.runs.Load(), "interactive runs")
			assert.Equal(t, tt.wantRefreshes, auth.refreshes.Load(), "refreshes")
			assert.Equal(t, tt.wantSaves, store.saves, "saves")
		})
	}
}

func TestManager_EnsureValid_SaveFailureStillReturnsCredential(t *testing.T) {
	store := &memoryStore{saveErr: newAuthErrorf(KindStoreUnavailable, "store", "read-only filesystem")}
	auth := &fakeAuthorizer{}
	m := NewManager(store, auth)

	cred, err := m.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "interactive-token", cred.AccessToken)
	assert.Equal(t, 1, store.saves)
}

func TestManager_EnsureValid_InteractiveErrorPropagates(t *testing.T) {
	store := &memoryStore{}
	auth := &fakeAuthorizer{runErr: newAuthErrorf(KindUserDenied, "callback", "access_denied")}
	m := NewManager(store, auth)

	_, err := m.EnsureValid(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserDenied)
	assert.Equal(t, 0, store.saves)
}

func TestManager_EnsureValid_ConcurrentCallersShareOneLogin(t *testing.T) {
	store := &memoryStore{}
	auth := &fakeAuthorizer{runDelay: 100 * time.Millisecond}
	m := NewManager(store, auth)

	var wg sync.WaitGroup
	tokens := make([]string, 5)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred, err := m.EnsureValid(context.Background())
			if err == nil {
				tokens[i] = cred.AccessToken
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), auth.runs.Load())
	for _, tok := range tokens {
		assert.Equal(t, "interactive-token", tok)
	}
}

func TestManager_Refresh(t *testing.T) {
	t.Run("no cached credential", func(t *testing.T) {
		m := NewManager(&memoryStore{}, &fakeAuthorizer{})
		_, err := m.Refresh(context.Background())
		assert.ErrorIs(t, err, ErrRefreshFailed)
	})

	t.Run("refreshes and stores", func(t *testing.T) {
		store := &memoryStore{cred: &Credential{AccessToken: "old", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)}}
		m := NewManager(store, &fakeAuthorizer{})

		cred, err := m.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "refreshed-token", cred.AccessToken)
		assert.Equal(t, "refreshed-token", store.cred.AccessToken)
	})

	t.Run("refresh error is returned", func(t *testing.T) {
		store := &memoryStore{cred: &Credential{AccessToken: "old", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)}}
		m := NewManager(store, &fakeAuthorizer{refreshErr: newAuthErrorf(KindRefreshFailed, "refresh", "invalid_grant")})

		_, err := m.Refresh(context.Background())
		assert.ErrorIs(t, err, ErrRefreshFailed)
		assert.Equal(t, "old", store.cred.AccessToken)
	})
}

func TestManager_LoginIgnoresCache(t *testing.T) {
	store := &memoryStore{cred: &Credential{AccessToken: "cached-token", ExpiresAt: time.Now().Add(time.Hour)}}
	auth := &fakeAuthorizer{}
	m := NewManager(store, auth)

	cred, err := m.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "interactive-token", cred.AccessToken)
	assert.Equal(t, int32(1), auth.runs.Load())
}

func TestManager_LogoutAndStatus(t *testing.T) {
	now := time.Now()
	store := &memoryStore{cred: &Credential{
		AccessToken:  "cached-token",
		RefreshToken: "r1",
		Issuer:       "https://auth.barndoor.ai/",
		Organization: "acme",
		ExpiresAt:    now.Add(time.Hour),
	}}
	m := NewManager(store, &fakeAuthorizer{}, WithManagerClock(func() time.Time { return now }))

	status := m.Status()
	assert.True(t, status.Authenticated)
	assert.False(t, status.Expired)
	assert.True(t, status.HasRefreshToken)
	assert.Equal(t, "acme", status.Organization)

	require.NoError(t, m.Logout())
	require.NoError(t, m.Logout())
	assert.Equal(t, Status{}, m.Status())

	_, ok := m.Current()
	assert.False(t, ok)
}

func TestManager_LoginLockReusesCredentialFromOtherProcess(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "login.lock")
	store := &memoryStore{}
	auth := &fakeAuthorizer{}
	m := NewManager(store, auth, WithLoginLock(lockPath, time.Second))

	// Simulate another process holding the lock and storing a credential.
	unlock, err := acquireLoginLock(context.Background(), lockPath, time.Second)
	require.NoError(t, err)

	done := make(chan *Credential, 1)
	go func() {
		cred, err := m.EnsureValid(context.Background())
		if err != nil {
			done <- nil
			return
		}
		done <- cred
	}()

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, store.Save(&Credential{AccessToken: "other-process-token", ExpiresAt: time.Now().Add(time.Hour)}))
	unlock()

	cred := <-done
	require.NotNil(t, cred)
	assert.Equal(t, "other-process-token", cred.AccessToken)
	assert.Equal(t, int32(0), auth.runs.Load())
}

func TestManager_LoginLockTimeout(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "login.lock")
	unlock, err := acquireLoginLock(context.Background(), lockPath, time.Second)
	require.NoError(t, err)
	defer unlock()

	m := NewManager(&memoryStore{}, &fakeAuthorizer{}, WithLoginLock(lockPath, 200*time.Millisecond))
	_, err = m.EnsureValid(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUserDenied))
	assert.Contains(t, err.Error(), "login lock")
}
