package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the canonical identity inside a service token.
type Claims struct {
	EmployeeID string `json:"employee_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and validates the JWTs handed out at HR sync time.
type TokenService struct {
	secret   []byte
	duration time.Duration
}

func NewTokenService(secret string, duration time.Duration) TokenService {
	return TokenService{secret: []byte(secret), duration: duration}
}

// Generate creates a signed token for a canonical employee id.
func (s TokenService) Generate(employeeID, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		EmployeeID: employeeID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "workchat",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses a token string and checks signature and expiration.
func (s TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
