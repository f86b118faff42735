package auth

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// FlexibleID decodes ids issued either as JSON numbers or numeric strings.
// Null, empty strings and absent values decode to zero.
type FlexibleID int64

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric id %q", raw)
	}
	*f = FlexibleID(v)
	return nil
}

// FlexibleString decodes a value issued either as a JSON string or number.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexibleString(n.String())
	return nil
}

// Claims is the identity token issued by the login flow.
type Claims struct {
	UserID  FlexibleString `json:"userId"`
	Role    string         `json:"role"`
	StoreID FlexibleID     `json:"storeId"`
	jwt.RegisteredClaims
}

// User returns the user id, falling back to the subject claim.
func (c *Claims) User() string {
	if id := strings.TrimSpace(string(c.UserID)); id != "" {
		return id
	}
	return strings.TrimSpace(c.RegisteredClaims.Subject)
}

type TokenValidator interface {
	Validate(token string) (*Claims, error)
}

type JWTValidator struct {
	secret    []byte
	publicKey *rsa.PublicKey
	now       func() time.Time
}

// NewJWTValidator creates a validator that uses HMAC (HS256) with the provided secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(strings.TrimSpace(secret)), now: time.Now}
}

// NewJWTValidatorWithPublicKey creates a validator that supports RS256 with an RSA public key.
// If publicKeyPEM is empty it falls back to HMAC with secret.
func NewJWTValidatorWithPublicKey(secret, publicKeyPEM string) (*JWTValidator, error) {
	v := NewJWTValidator(secret)
	if strings.TrimSpace(publicKeyPEM) == "" {
		return v, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key: %w", err)
	}
	v.publicKey = key
	return v, nil
}

func (v *JWTValidator) Validate(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	if v.publicKey == nil && len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: jwt key not configured (neither public key nor secret)", ErrInvalidToken)
	}

	claims := &Claims{}
	parsedToken, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if v.publicKey != nil {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v, expected RS256", t.Header["alg"])
			}
			return v.publicKey, nil
		}
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithLeeway(5*time.Second), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsedToken.Valid {
		return nil, ErrInvalidToken
	}

	if claims.User() == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	if strings.TrimSpace(claims.Role) == "" {
		return nil, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}
	if claims.StoreID < 0 {
		return nil, fmt.Errorf("%w: negative store id", ErrInvalidToken)
	}

	if exp := claims.RegisteredClaims.ExpiresAt; exp != nil && !exp.Time.After(v.now()) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}

	return claims, nil
}
