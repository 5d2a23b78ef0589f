package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidToken(t *testing.T) {
	v := &Verifier{Secret: []byte("secret"), Issuer: "test"}
	token, err := v.Sign("r1", "dev-9", 42, time.Hour)
	require.NoError(t, err)

	claims, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "r1", claims.RobotID)
	assert.Equal(t, "dev-9", claims.DeviceID)
	assert.Equal(t, uint(42), claims.UserID)
}

func TestParseExpiredDistinctFromInvalid(t *testing.T) {
	v := &Verifier{Secret: []byte("secret"), Issuer: "test"}

	expired, err := v.Sign("r1", "d", 1, -time.Minute)
	require.NoError(t, err)
	_, err = v.Parse(expired)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)

	other := &Verifier{Secret: []byte("wrong"), Issuer: "test"}
	forged, err := other.Sign("r1", "d", 1, time.Hour)
	require.NoError(t, err)
	_, err = v.Parse(forged)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestParseGarbage(t *testing.T) {
	v := &Verifier{Secret: []byte("secret")}
	_, err := v.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
