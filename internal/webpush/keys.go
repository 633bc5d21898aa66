// Package webpush holds the subscriber half of Web Push: key material for a
// subscription, aes128gcm payload decryption and VAPID header checks.
package webpush

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const authSecretLen = 16

var ErrInvalidKey = errors.New("invalid key material")

// DecodeKey turns base64url key material into bytes. Padding and the
// standard alphabet are accepted as well, since servers are not consistent
// about which one they hand out.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	s = strings.TrimRight(s, "=")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return b, nil
}

// EncodeKey is the inverse of DecodeKey, producing unpadded base64url.
func EncodeKey(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// KeyPair is the user agent key material of one subscription.
type KeyPair struct {
	Private *ecdh.PrivateKey
	Auth    []byte
}

func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate p256 key: %w", err)
	}
	auth := make([]byte, authSecretLen)
	if _, err := rand.Read(auth); err != nil {
		return nil, fmt.Errorf("generate auth secret: %w", err)
	}
	return &KeyPair{Private: priv, Auth: auth}, nil
}

// ParseKeyPair restores a KeyPair stored with PrivateKeyString and AuthSecret.
func ParseKeyPair(private, auth string) (*KeyPair, error) {
	privBytes, err := DecodeKey(private)
	if err != nil {
		return nil, err
	}
	priv, err := ecdh.P256().NewPrivateKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	authBytes, err := DecodeKey(auth)
	if err != nil {
		return nil, err
	}
	if len(authBytes) != authSecretLen {
		return nil, fmt.Errorf("%w: auth secret must be %d bytes", ErrInvalidKey, authSecretLen)
	}
	return &KeyPair{Private: priv, Auth: authBytes}, nil
}

// P256dh is the public key as sent to the application server.
func (k *KeyPair) P256dh() string {
	return EncodeKey(k.Private.PublicKey().Bytes())
}

func (k *KeyPair) AuthSecret() string {
	return EncodeKey(k.Auth)
}

func (k *KeyPair) PrivateKeyString() string {
	return EncodeKey(k.Private.Bytes())
}
