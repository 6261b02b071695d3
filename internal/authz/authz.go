// Package authz mints the portal's placeholder login token and reads the
// caller's subject from a bearer token. Nothing here authorizes anything.
package authz

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrCredentials is returned when email or password is blank.
var ErrCredentials = errors.New("email and password required")

// TokenTTL is the lifetime of an issued token.
const TokenTTL = 8 * time.Hour

// User is the profile returned by the login stub.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Login accepts any non-blank credentials and returns a student profile
// with a signed token whose subject is the email.
func Login(secret, email, password string, now time.Time) (User, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return User{}, "", ErrCredentials
	}
	claims := jwt.RegisteredClaims{
		Subject:   email,
		ID:        uuid.NewString(),
		Issuer:    "ucehub",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return User{}, "", err
	}
	user := User{ID: claims.ID, Name: nameFromEmail(email), Email: email, Role: "student"}
	return user, tok, nil
}

// Subject extracts the "sub" claim from the Authorization header without
// verifying the token. It returns "" when there is none.
func Subject(h http.Header) string {
	auth := strings.TrimSpace(h.Get("Authorization"))
	if auth == "" {
		return ""
	}
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		auth = strings.TrimSpace(auth[7:])
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(auth, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' || r == '-' })
	for i, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(r)) + p[size:]
	}
	if len(parts) == 0 {
		return "Usuario"
	}
	return strings.Join(parts, " ")
}
