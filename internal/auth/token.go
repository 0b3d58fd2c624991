package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuerName = "hrdesk"

// Claims is the session token payload. A token is a stateless bearer
// credential: nothing about it is persisted server-side.
type Claims struct {
	EmployeeID string   `json:"employeeId"`
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

// Issuer signs session tokens with a primary secret and verifies them
// against an ordered key list: primary first, then the optional rotation
// fallback. Old tokens signed with a rotated-out secret stay valid under the
// fallback until they naturally expire.
type Issuer struct {
	keys   [][]byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithFallbackSecret adds the rotation-grace verification secret.
func WithFallbackSecret(secret string) IssuerOption {
	return func(i *Issuer) {
		if strings.TrimSpace(secret) != "" {
			i.keys = append(i.keys, []byte(secret))
		}
	}
}

// WithIssuerName overrides the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		if strings.TrimSpace(name) != "" {
			i.issuer = strings.TrimSpace(name)
		}
	}
}

// WithClock overrides the time source. Useful for tests.
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer. The primary secret is required; ttl must
// be positive.
func NewIssuer(primarySecret string, ttl time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if strings.TrimSpace(primarySecret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	iss := &Issuer{
		keys:   [][]byte{[]byte(primarySecret)},
		ttl:    ttl,
		issuer: defaultIssuerName,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs an HS256 token for the identity with the configured TTL and
// returns the signed token alongside the claims it carries.
func (i *Issuer) Issue(employeeID, email string, roles []string) (string, *Claims, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return "", nil, errors.New("auth: employee id is required")
	}
	if roles == nil {
		roles = []string{}
	}
	now := i.now().UTC()
	claims := &Claims{
		EmployeeID: employeeID,
		Email:      email,
		Roles:      roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   employeeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.keys[0])
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Verify checks the token against the issuer's ordered key list.
func (i *Issuer) Verify(token string) (*Claims, error) {
	return VerifyWithKeys(token, i.keys, i.now)
}

// VerifyWithKeys validates a token against an ordered list of verification
// keys, accepting the first key under which both the signature and the
// expiry check pass. It has no state beyond its arguments.
func VerifyWithKeys(token string, keys [][]byte, now func() time.Time) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(keys) == 0 {
		return nil, ErrInvalidToken
	}
	if now == nil {
		now = time.Now
	}
	for _, key := range keys {
		claims, err := parseWithKey(token, key, now)
		if err == nil {
			return claims, nil
		}
	}
	return nil, ErrInvalidToken
}

func parseWithKey(token string, key []byte, now func() time.Time) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
