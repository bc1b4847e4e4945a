package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/cimiento/cimiento/internal/shared"
)

// Token is an API credential bound to one company and actor. Only the bcrypt
// hash of the secret is stored.
type Token struct {
	ID         int64
	CompanyID  int64
	ActorID    int64
	SecretHash string
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Active reports whether the token has not been revoked.
func (t Token) Active() bool {
	return t.RevokedAt == nil
}

// Tenant returns the tenant the token authenticates as.
func (t Token) Tenant() shared.Tenant {
	return shared.Tenant{CompanyID: t.CompanyID, ActorID: t.ActorID}
}

// IssuedToken carries the plaintext credential, shown once at issue time.
type IssuedToken struct {
	Token     Token
	Plaintext string
}

// parseCredential splits "<id>.<secret>".
func parseCredential(raw string) (int64, string, bool) {
	idPart, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || secret == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, secret, true
}

// IDString formats the token id as it appears in the credential.
func (t Token) IDString() string {
	return strconv.FormatInt(t.ID, 10)
}
