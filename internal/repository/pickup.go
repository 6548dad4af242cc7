package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/tokoku/commerce/internal/domain/pickup"
)

const (
	// One token per order: a second issue attempt hits the unique order_id
	// constraint and becomes a no-op.
	createTokenSQL = `INSERT INTO pickup_tokens (id, order_id, code, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO NOTHING`

	getTokenByCodeSQL = `SELECT id, order_id, code, status, expires_at, verified_by, verified_at, created_at
		FROM pickup_tokens WHERE code = $1`

	getTokenByOrderSQL = `SELECT id, order_id, code, status, expires_at, verified_by, verified_at, created_at
		FROM pickup_tokens WHERE order_id = $1`

	// The conditional update is the single point deciding a redemption race:
	// only one caller can move ACTIVE to USED.
	redeemTokenSQL = `UPDATE pickup_tokens
		SET status = $4, verified_by = $2, verified_at = $3
		WHERE code = $1 AND status = $5 AND expires_at > $3`
)

var _ pickup.Store = (*Store)(nil)

// CreateToken inserts the token unless the order already has one.
func (s *Store) CreateToken(ctx context.Context, t *pickup.Token) (bool, error) {
	tag, err := s.db.Exec(ctx, createTokenSQL,
		t.ID, t.OrderID, t.Code, string(t.Status), t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("creating pickup token for order %q: %w", t.OrderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetTokenByCode loads a token by its presentable code.
func (s *Store) GetTokenByCode(ctx context.Context, code string) (*pickup.Token, error) {
	rows, err := s.db.Query(ctx, getTokenByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("getting pickup token: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pickup.ErrTokenNotFound
		}
		return nil, fmt.Errorf("getting pickup token: %w", err)
	}
	return &t, nil
}

// GetTokenByOrder loads the order's pickup token.
func (s *Store) GetTokenByOrder(ctx context.Context, orderID string) (*pickup.Token, error) {
	rows, err := s.db.Query(ctx, getTokenByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting pickup token for order %q: %w", orderID, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pickup.ErrTokenNotFound
		}
		return nil, fmt.Errorf("getting pickup token for order %q: %w", orderID, err)
	}
	return &t, nil
}

// RedeemToken marks an ACTIVE, unexpired token as USED.
func (s *Store) RedeemToken(ctx context.Context, code, verifiedBy string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, redeemTokenSQL,
		code, verifiedBy, at, string(pickup.TokenUsed), string(pickup.TokenActive),
	)
	if err != nil {
		return false, fmt.Errorf("redeeming pickup token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanToken(row pgx.CollectableRow) (pickup.Token, error) {
	var (
		t          pickup.Token
		status     string
		verifiedBy *string
	)
	err := row.Scan(&t.ID, &t.OrderID, &t.Code, &status, &t.ExpiresAt, &verifiedBy, &t.VerifiedAt, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	t.Status = pickup.TokenStatus(status)
	if verifiedBy != nil {
		t.VerifiedBy = *verifiedBy
	}
	return t, nil
}
