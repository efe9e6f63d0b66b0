package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 30 * time.Minute

var (
	// ErrTokenInvalid indicates a malformed token or a failed signature check.
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrTokenExpired indicates a token that verified but is past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")

	errMissingSigningSecret = errors.New("signing secret must be provided")
)

// CodecConfig configures the stateless bearer-token codec.
type CodecConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// Codec signs and verifies HS256 bearer tokens carrying a user id subject.
// Access and refresh tokens share one claim shape and one TTL; only the
// token store distinguishes the two.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    func() time.Time
}

// NewCodec constructs a Codec with sane defaults. The signing secret is
// process-wide read-only state; tokens remain valid across restarts as long
// as the configured secret does not change.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Codec{
		secret:   append([]byte(nil), cfg.SigningSecret...),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		clock:    clock,
	}, nil
}

// IssueAccessToken produces a signed access token for the user id.
func (c *Codec) IssueAccessToken(userID int64) (string, error) {
	return c.issue(userID)
}

// IssueRefreshToken produces a signed refresh token for the user id.
func (c *Codec) IssueRefreshToken(userID int64) (string, error) {
	return c.issue(userID)
}

func (c *Codec) issue(userID int64) (string, error) {
	now := c.clock().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    c.issuer,
		Audience:  []string{c.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks the token signature and expiry and returns the subject user
// id. Expiry surfaces as ErrTokenExpired; every other failure as
// ErrTokenInvalid.
func (c *Codec) Verify(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return c.secret, nil
		},
		jwt.WithAudience(c.audience),
		jwt.WithIssuer(c.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed subject claim", ErrTokenInvalid)
	}
	return userID, nil
}
