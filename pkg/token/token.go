// Package token has convenience helpers for the bearer token handed out by
// the backend. Nothing here verifies signatures; the backend does that.
package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

const bearerPrefix = "Bearer "

// Bearer returns the value for an Authorization header.
func Bearer(tok string) string {
	tok = strings.TrimSpace(tok)
	if strings.HasPrefix(tok, bearerPrefix) {
		return tok
	}
	return bearerPrefix + tok
}

// Raw strips a leading "Bearer ".
func Raw(tok string) string {
	return strings.TrimPrefix(strings.TrimSpace(tok), bearerPrefix)
}

// Expired reports whether the token's exp claim lies before now. Tokens that
// cannot be decoded or carry no exp are not considered expired.
func Expired(tok string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(Raw(tok), claims); err != nil {
		return false
	}
	switch exp := claims["exp"].(type) {
	case float64:
		return now.Unix() > int64(exp)
	case int64:
		return now.Unix() > exp
	}
	return false
}

// Subject returns the sub claim, or "" when absent.
func Subject(tok string) string {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(Raw(tok), claims); err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}
