package jwtutil

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired means the signature checked out but the token is past its
// expiry. Kept distinct from ErrTokenInvalid so callers can report the
// difference to the device.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type Claims struct {
	RobotID  string `json:"robot_id"`
	DeviceID string `json:"device_id"`
	UserID   uint   `json:"uid"`
	jwt.RegisteredClaims
}

type Verifier struct {
	Secret []byte
	Issuer string
}

func (v *Verifier) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) { return v.Secret, nil })
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrTokenInvalid
}

// Sign issues a device token. The control plane issues tokens elsewhere;
// this exists for local tooling and tests.
func (v *Verifier) Sign(robotID, deviceID string, userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RobotID: robotID, DeviceID: deviceID, UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.Secret)
}
