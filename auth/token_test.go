package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func Test_Token_Round_Trip(t *testing.T) {
	req := require.New(t)
	svc := NewTokenService("unit-secret", time.Hour)

	token, err := svc.Generate("1001", "manager")
	req.NoError(err)
	req.NotEmpty(token)

	claims, err := svc.Validate(token)
	req.NoError(err)
	req.Equal("1001", claims.EmployeeID)
	req.Equal("manager", claims.Role)
	req.Equal("workchat", claims.Issuer)
}

func Test_Token_Wrong_Secret_Rejected(t *testing.T) {
	req := require.New(t)
	token, err := NewTokenService("secret-a", time.Hour).Generate("1001", "employee")
	req.NoError(err)

	_, err = NewTokenService("secret-b", time.Hour).Validate(token)
	req.Error(err)
}

func Test_Token_Expired_Rejected(t *testing.T) {
	req := require.New(t)
	svc := NewTokenService("unit-secret", -time.Minute)

	token, err := svc.Generate("1001", "employee")
	req.NoError(err)

	_, err = svc.Validate(token)
	req.ErrorIs(err, jwt.ErrTokenExpired)
}
