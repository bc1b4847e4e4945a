package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/cimiento/cimiento/internal/shared"
)

const secretBytes = 32

// Service resolves API tokens into tenants.
type Service struct {
	repo     Repository
	cache    *redis.Client
	cacheTTL time.Duration
	cost     int
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a new Service. A nil cache disables caching of
// verified credentials.
func NewService(repo Repository, cache *redis.Client, cacheTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL, cost: bcrypt.DefaultCost, logger: logger, now: time.Now}
}

// Authenticate verifies "<id>.<secret>" and returns the token's tenant.
func (s *Service) Authenticate(ctx context.Context, credential string) (shared.Tenant, error) {
	id, secret, ok := parseCredential(credential)
	if !ok {
		return shared.Tenant{}, shared.ErrInvalidCredentials
	}
	digest := secretDigest(secret)
	if tenant, ok := s.cached(ctx, id, digest); ok {
		return tenant, nil
	}
	token, err := s.repo.FindToken(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Tenant{}, shared.ErrInvalidCredentials
		}
		return shared.Tenant{}, fmt.Errorf("auth: find token: %w", err)
	}
	if !token.Active() {
		return shared.Tenant{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return shared.Tenant{}, shared.ErrInvalidCredentials
	}
	s.remember(ctx, token, digest)
	return token.Tenant(), nil
}

// Issue creates a token for the tenant and returns its plaintext once.
func (s *Service) Issue(ctx context.Context, tenant shared.Tenant) (IssuedToken, error) {
	if err := tenant.Validate(); err != nil {
		return IssuedToken{}, err
	}
	if tenant.ActorID <= 0 {
		return IssuedToken{}, shared.Invalid("actor_id", "required")
	}
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return IssuedToken{}, fmt.Errorf("auth: generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: hash secret: %w", err)
	}
	token, err := s.repo.InsertToken(ctx, tenant.CompanyID, tenant.ActorID, string(hash))
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: insert token: %w", err)
	}
	return IssuedToken{Token: token, Plaintext: token.IDString() + "." + secret}, nil
}

// Revoke disables a token of the company and drops any cached verification.
func (s *Service) Revoke(ctx context.Context, companyID, tokenID int64) error {
	if err := s.repo.RevokeToken(ctx, companyID, tokenID, s.now().UTC()); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cacheKey(tokenID)).Err(); err != nil {
			s.logger.Warn("auth cache evict", slog.Int64("token_id", tokenID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) cached(ctx context.Context, id int64, digest string) (shared.Tenant, bool) {
	if s.cache == nil {
		return shared.Tenant{}, false
	}
	value, err := s.cache.Get(ctx, cacheKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("auth cache read", slog.Any("error", err))
		}
		return shared.Tenant{}, false
	}
	parts := strings.Split(value, "|")
	if len(parts) != 3 || parts[0] != digest {
		return shared.Tenant{}, false
	}
	companyID, err1 := strconv.ParseInt(parts[1], 10, 64)
	actorID, err2 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil {
		return shared.Tenant{}, false
	}
	return shared.Tenant{CompanyID: companyID, ActorID: actorID}, true
}

func (s *Service) remember(ctx context.Context, token Token, digest string) {
	if s.cache == nil {
		return
	}
	value := fmt.Sprintf("%s|%d|%d", digest, token.CompanyID, token.ActorID)
	if err := s.cache.Set(ctx, cacheKey(token.ID), value, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("auth cache write", slog.Any("error", err))
	}
}

func cacheKey(id int64) string {
	return "auth:token:" + strconv.FormatInt(id, 10)
}

func secretDigest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
