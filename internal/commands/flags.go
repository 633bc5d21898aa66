// Package commands holds the tourpush CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/franzego/tourpush/internal/config"
	pkgredis "github.com/franzego/tourpush/pkg/redis"
	"github.com/franzego/tourpush/pkg/token"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var Version = "dev"

var ErrTokenExpired = errors.New("auth token expired, log in again")

type Flags struct {
	ConfigPath string
	Token      string

	// Config and Log are set up in the Before hook and available to all commands
	Config *config.Config
	Log    *zap.Logger
}

// tokenFlag adds --token, falling back to auth.token from config.
func tokenFlag(flags *Flags) cli.Flag {
	return &cli.StringFlag{
		Name:        "token",
		Usage:       "bearer token for the booking backend (defaults to auth.token)",
		Destination: &flags.Token,
	}
}

// AuthToken returns the token to use, refusing one that has visibly expired.
func (f *Flags) AuthToken() (string, error) {
	tok := f.Token
	if tok == "" {
		tok = f.Config.Auth.Token
	}
	if tok == "" {
		return "", nil
	}
	if token.Expired(tok, time.Now()) {
		return "", ErrTokenExpired
	}
	return token.Raw(tok), nil
}

func (f *Flags) redis(ctx context.Context) (*redis.Client, error) {
	return pkgredis.InitRedis(ctx, f.Config.Redis, f.Log)
}

func userAgent() string {
	return fmt.Sprintf("tourpush/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
