package auth

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type Claims struct {
	UserID   string   `json:"uid"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Name     string   `json:"name,omitempty"`
	Roles    []string `json:"roles"`

	// PasswordChange mirrors User.MustChangePassword at issue time.
	PasswordChange bool `json:"pwc,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) Identity() Identity {
	return Identity{
		UserID:   c.UserID,
		Email:    c.Email,
		Username: c.Username,
		Name:     c.Name,
		Roles:    NormalizeRoles(c.Roles),

		MustChangePassword: c.PasswordChange,
	}
}

func ClaimsFor(id Identity) Claims {
	return Claims{
		UserID:   id.UserID,
		Email:    id.Email,
		Username: id.Username,
		Name:     id.Name,
		Roles:    id.RoleNames(),

		PasswordChange: id.MustChangePassword,
	}
}

// TemporaryPassword returns a random password for an admin-initiated reset.
func TemporaryPassword() string {
	return rand.Text()
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func GenerateToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
