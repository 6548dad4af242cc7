package pickup

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/go-faster/errors"
)

// TokenStatus enumerates the pickup token lifecycle. USED and EXPIRED are
// terminal.
type TokenStatus string

const (
	TokenActive  TokenStatus = "ACTIVE"
	TokenUsed    TokenStatus = "USED"
	TokenExpired TokenStatus = "EXPIRED"
)

// Sentinel errors for token verification.
var (
	ErrTokenNotFound = errors.New("pickup token not found")
	ErrTokenUsed     = errors.New("pickup token already used")
	ErrTokenExpired  = errors.New("pickup token expired")
)

// Token is the one-to-one pickup credential of a PICKUP order. The code is
// what the customer presents at the counter.
type Token struct {
	ID         string
	OrderID    string
	Code       string
	Status     TokenStatus
	ExpiresAt  time.Time
	VerifiedBy string
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// Store persists pickup tokens.
type Store interface {
	// CreateToken inserts the token unless the order already has one.
	// Returns false when a token already existed (the insert was a no-op).
	CreateToken(ctx context.Context, t *Token) (bool, error)
	// GetTokenByCode loads a token by its presentable code. Returns
	// ErrTokenNotFound when no token matches.
	GetTokenByCode(ctx context.Context, code string) (*Token, error)
	// GetTokenByOrder loads the order's token. Returns ErrTokenNotFound when
	// the order has none.
	GetTokenByOrder(ctx context.Context, orderID string) (*Token, error)
	// RedeemToken marks an ACTIVE, unexpired token as USED, recording who
	// verified it and when. Returns false when the conditional update matched
	// nothing (already used, expired, or gone).
	RedeemToken(ctx context.Context, code, verifiedBy string, at time.Time) (bool, error)
}

// crockford is the Crockford base32 alphabet: no I, L, O, U, so codes survive
// being read over a counter.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// newCode returns an 8-character human-presentable pickup code.
func newCode() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = crockford[int(b)%len(crockford)]
	}
	return string(out)
}
