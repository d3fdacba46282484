package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
)

const (
	tokenCookie = "token"
	userIDClaim = "id"
)

// Authenticator verifies HS256 session tokens. The user ID is carried in the
// "id" claim.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) (*Authenticator, error) {
	if secret == "" {
		return nil, goerr.New("JWT secret is required")
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, goerr.New("unexpected signing method", goerr.V("alg", token.Header["alg"]))
	}
	return a.secret, nil
}

// Authenticate extracts the user ID from the token cookie, or from an
// Authorization bearer header when no cookie is present.
func (a *Authenticator) Authenticate(r *http.Request) (model.UserID, error) {
	raw := ""
	if c, err := r.Cookie(tokenCookie); err == nil {
		raw = c.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	}
	if raw == "" {
		return "", goerr.New("no token provided", goerr.T(model.ErrTagUnauthorized))
	}

	return a.Verify(raw)
}

// Verify parses a signed token and returns its user ID
func (a *Authenticator) Verify(raw string) (model.UserID, error) {
	token, err := jwt.Parse(raw, a.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", goerr.Wrap(err, "invalid token", goerr.T(model.ErrTagUnauthorized))
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", goerr.New("unexpected claims type", goerr.T(model.ErrTagUnauthorized))
	}
	id, ok := claims[userIDClaim].(string)
	if !ok || id == "" {
		return "", goerr.New("token has no user ID", goerr.T(model.ErrTagUnauthorized))
	}

	return model.UserID(id), nil
}

// Issue signs a token for userID. A zero ttl issues a token without expiry.
func (a *Authenticator) Issue(userID model.UserID, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		userIDClaim: string(userID),
		"iat":       now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", goerr.Wrap(err, "failed to sign token", goerr.V("user_id", userID))
	}
	return signed, nil
}
