package auth

import (
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/sauti/core"
)

// Roles
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

func (r Role) IsValid() bool { return r == RoleStudent || r == RoleAdmin }

// Principal is the authenticated identity performing an action.
// It is derived per request from a bearer credential and never persisted.
type Principal struct {
	ID   string
	Role Role
}

var (
	// errors
	ErrAuthentication   = errors.New("authentication failed")
	ErrPermissionDenied = errors.New("permission denied")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role,omitempty"`
}

// Authenticator issues bearer credentials and resolves them back into Principals.
type Authenticator struct {
	appName         string
	secretKey       []byte
	expirationDelta time.Duration
}

func NewAuthenticator(conf *core.Config) *Authenticator {
	return &Authenticator{
		appName:         conf.AppName,
		secretKey:       conf.SecretKey,
		expirationDelta: conf.Server.JWTExpirationDelta,
	}
}

// GenerateToken generates a signed JWT token string representing the Principal.
func (a *Authenticator) GenerateToken(p Principal, name, email string) (string, error) {
	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.appName,
			Subject:   p.ID,
			ExpiresAt: now.Add(a.expirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  name,
		Email: email,
		Role:  p.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(a.secretKey)
	return ss, errors.Wrap(err, "signing token")
}

// ResolveToken validates a presented bearer credential and yields the Principal
// it asserts. It fails with ErrAuthentication when the credential is missing,
// malformed, expired or carries an unknown role.
func (a *Authenticator) ResolveToken(credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Principal{}, ErrAuthentication
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAuthentication
		}
		return a.secretKey, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, ErrAuthentication
	}
	if claims.Subject == "" || !claims.Role.IsValid() {
		return Principal{}, ErrAuthentication
	}
	return Principal{ID: claims.Subject, Role: claims.Role}, nil
}
