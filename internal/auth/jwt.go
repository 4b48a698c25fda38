package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"samaquiz-service/internal/domain"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the subject id in "sub" and the account role in "user_type".
type Claims struct {
	UserType domain.Role `json:"user_type"`
	jwt.RegisteredClaims
}

// Verifier signs and validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Sign issues a token for userID. It backs the token CLI and tests; tokens are
// normally issued by the account service.
func (v *Verifier) Sign(userID string, role domain.Role, ttl time.Duration) (string, error) {
	if role == "" {
		role = domain.RoleUser
	}
	now := v.now()
	claims := Claims{
		UserType: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Parse validates a raw token and returns the caller it identifies.
func (v *Verifier) Parse(raw string) (domain.Requester, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return domain.Requester{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Requester{}, ErrInvalidToken
	}
	role := claims.UserType
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}
	return domain.Requester{UserID: claims.Subject, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
