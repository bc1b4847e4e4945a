package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimiento/cimiento/internal/shared"
)

// Repository defines persistence operations for API tokens.
type Repository interface {
	FindToken(ctx context.Context, id int64) (Token, error)
	InsertToken(ctx context.Context, companyID, actorID int64, secretHash string) (Token, error)
	RevokeToken(ctx context.Context, companyID, id int64, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindToken fetches a token by id.
func (r *PGRepository) FindToken(ctx context.Context, id int64) (Token, error) {
	var t Token
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, actor_id, secret_hash, created_at, revoked_at
FROM api_tokens WHERE id = $1`, id).Scan(&t.ID, &t.CompanyID, &t.ActorID, &t.SecretHash, &t.CreatedAt, &t.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, shared.NotFound("api_token", id)
	}
	return t, err
}

// InsertToken stores a new token hash.
func (r *PGRepository) InsertToken(ctx context.Context, companyID, actorID int64, secretHash string) (Token, error) {
	t := Token{CompanyID: companyID, ActorID: actorID, SecretHash: secretHash}
	err := r.pool.QueryRow(ctx, `INSERT INTO api_tokens (company_id, actor_id, secret_hash)
VALUES ($1, $2, $3) RETURNING id, created_at`, companyID, actorID, secretHash).Scan(&t.ID, &t.CreatedAt)
	return t, err
}

// RevokeToken marks a token revoked within the company.
func (r *PGRepository) RevokeToken(ctx context.Context, companyID, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_tokens SET revoked_at = $3
WHERE id = $1 AND company_id = $2 AND revoked_at IS NULL`, id, companyID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("api_token", id)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
