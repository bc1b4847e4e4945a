package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cimiento/cimiento/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	tokens map[int64]Token
	finds  int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tokens: map[int64]Token{}}
}

func (m *memoryRepo) FindToken(_ context.Context, id int64) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	t, ok := m.tokens[id]
	if !ok {
		return Token{}, shared.NotFound("api_token", id)
	}
	return t, nil
}

func (m *memoryRepo) InsertToken(_ context.Context, companyID, actorID int64, secretHash string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := Token{ID: int64(len(m.tokens) + 1), CompanyID: companyID, ActorID: actorID, SecretHash: secretHash, CreatedAt: time.Now()}
	m.tokens[t.ID] = t
	return t, nil
}

func (m *memoryRepo) RevokeToken(_ context.Context, companyID, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.CompanyID != companyID || t.RevokedAt != nil {
		return shared.NotFound("api_token", id)
	}
	t.RevokedAt = &at
	m.tokens[id] = t
	return nil
}

func newTestService(t *testing.T, withCache bool) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	var client *redis.Client
	if withCache {
		mr := miniredis.RunT(t)
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
	}
	svc := NewService(repo, client, time.Minute, nil)
	svc.cost = bcrypt.MinCost
	return svc, repo
}

func TestIssueAndAuthenticate(t *testing.T) {
	svc, repo := newTestService(t, false)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, shared.Tenant{CompanyID: 3, ActorID: 9})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(issued.Plaintext, "1."))
	require.NotContains(t, repo.tokens[1].SecretHash, strings.TrimPrefix(issued.Plaintext, "1."))

	tenant, err := svc.Authenticate(ctx, issued.Plaintext)
	require.NoError(t, err)
	require.Equal(t, shared.Tenant{CompanyID: 3, ActorID: 9}, tenant)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()
	issued, err := svc.Issue(ctx, shared.Tenant{CompanyID: 3, ActorID: 9})
	require.NoError(t, err)

	for _, credential := range []string{"", "nodot", "x.secret", "0.secret", "1.", "1.wrong", "42." + strings.Repeat("a", 10)} {
		_, err := svc.Authenticate(ctx, credential)
		require.ErrorIs(t, err, shared.ErrInvalidCredentials, credential)
	}

	require.NoError(t, svc.Revoke(ctx, 3, issued.Token.ID))
	_, err = svc.Authenticate(ctx, issued.Plaintext)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRevokeIsTenantScoped(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()
	issued, err := svc.Issue(ctx, shared.Tenant{CompanyID: 3, ActorID: 9})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Revoke(ctx, 4, issued.Token.ID), shared.ErrNotFound)
	_, err = svc.Authenticate(ctx, issued.Plaintext)
	require.NoError(t, err)
}

func TestIssueRequiresActor(t *testing.T) {
	svc, _ := newTestService(t, false)
	_, err := svc.Issue(context.Background(), shared.Tenant{CompanyID: 3})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCachedVerificationSkipsRepository(t *testing.T) {
	svc, repo := newTestService(t, true)
	ctx := context.Background()
	issued, err := svc.Issue(ctx, shared.Tenant{CompanyID: 3, ActorID: 9})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Authenticate(ctx, issued.Plaintext)
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.finds)

	// a wrong secret never matches the cached digest
	_, err = svc.Authenticate(ctx, issued.Token.IDString()+".wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.NoError(t, svc.Revoke(ctx, 3, issued.Token.ID))
	_, err = svc.Authenticate(ctx, issued.Plaintext)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestMiddlewareSetsTenant(t *testing.T) {
	svc, _ := newTestService(t, false)
	issued, err := svc.Issue(context.Background(), shared.Tenant{CompanyID: 5, ActorID: 6})
	require.NoError(t, err)

	var seen shared.Tenant
	handler := Middleware(svc, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.TenantFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/1", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Plaintext)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, shared.Tenant{CompanyID: 5, ActorID: 6}, seen)

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer 1.nope"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products/1", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}
