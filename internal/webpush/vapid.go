package webpush

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt"
)

var ErrVAPID = errors.New("invalid vapid authorization")

// VAPIDAuthorization is the parsed form of "vapid t=<jwt>, k=<public key>".
type VAPIDAuthorization struct {
	Token string
	Key   string
}

func ParseVAPIDAuthorization(header string) (VAPIDAuthorization, error) {
	var a VAPIDAuthorization
	scheme, params, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "vapid") {
		return a, fmt.Errorf("%w: scheme", ErrVAPID)
	}
	for _, part := range strings.Split(params, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			a.Token = v
		case "k":
			a.Key = v
		}
	}
	if a.Token == "" || a.Key == "" {
		return a, fmt.Errorf("%w: missing t or k", ErrVAPID)
	}
	return a, nil
}

// Verify checks that the header was signed with the application server key
// the subscription was created for.
func (a VAPIDAuthorization) Verify(applicationServerKey []byte) error {
	key, err := DecodeKey(a.Key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVAPID, err)
	}
	if !bytes.Equal(key, applicationServerKey) {
		return fmt.Errorf("%w: key does not match subscription", ErrVAPID)
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), key)
	if x == nil {
		return fmt.Errorf("%w: key is not a p256 point", ErrVAPID)
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

	token, err := jwt.Parse(a.Token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return pub, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrVAPID, err)
	}
	return nil
}
