package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-council-planner/internal/dto"
	"github.com/noah-isme/sma-council-planner/internal/models"
	appErrors "github.com/noah-isme/sma-council-planner/pkg/errors"
)

func newTokenServiceForTest() *TokenService {
	return NewTokenService(nil, nil, TokenConfig{Secret: "secret", Expiration: time.Hour, Issuer: "sma-council-planner"})
}

func TestTokenServiceIssueAndValidate(t *testing.T) {
	svc := newTokenServiceForTest()

	issued, err := svc.Issue(dto.TokenRequest{Subject: " scheduler ", Role: "viewer"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "scheduler", issued.Subject)
	assert.Equal(t, models.RoleViewer, issued.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "scheduler", claims.Subject)
	assert.Equal(t, models.RoleViewer, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenServiceIssueValidation(t *testing.T) {
	svc := newTokenServiceForTest()

	_, err := svc.Issue(dto.TokenRequest{Subject: "", Role: models.RoleAdmin}, 0)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Issue(dto.TokenRequest{Subject: "ops", Role: "ROOT"}, 0)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestTokenServiceRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := newTokenServiceForTest()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := svc.Issue(dto.TokenRequest{Subject: "ops", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	svc.now = time.Now

	_, err = svc.ValidateToken(expired.Token)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))

	other := NewTokenService(nil, nil, TokenConfig{Secret: "other", Issuer: "sma-council-planner"})
	foreign, err := other.Issue(dto.TokenRequest{Subject: "ops", Role: models.RoleAdmin}, 0)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign.Token)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))

	_, err = svc.ValidateToken("not-a-token")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}

func TestTokenServiceRejectsUnknownRole(t *testing.T) {
	svc := newTokenServiceForTest()
	claims := &models.ServiceClaims{
		Role: "ROOT",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			Issuer:    "sma-council-planner",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}
