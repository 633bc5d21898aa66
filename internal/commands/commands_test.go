package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/franzego/tourpush/internal/config"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func TestFlags_AuthToken(t *testing.T) {
	valid := signed(t, time.Now().Add(time.Hour))
	expired := signed(t, time.Now().Add(-time.Hour))

	f := &Flags{Config: &config.Config{Auth: config.AuthConfig{Token: "Bearer " + valid}}}
	tok, err := f.AuthToken()
	require.NoError(t, err)
	assert.Equal(t, valid, tok)

	f.Token = expired
	_, err = f.AuthToken()
	assert.ErrorIs(t, err, ErrTokenExpired)

	f = &Flags{Config: &config.Config{}}
	tok, err = f.AuthToken()
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestSendCmd_Message(t *testing.T) {
	cmd := &SendCmd{title: "Booking #12", body: "CONFIRMED", url: "/bookings/12", data: []string{"bookingId=12"}}
	msg, err := cmd.message()
	require.NoError(t, err)
	assert.Equal(t, "Booking #12", msg.Title)
	assert.Equal(t, "12", msg.Data["bookingId"])

	cmd.data = []string{"oops"}
	_, err = cmd.message()
	assert.Error(t, err)
}

func TestRelayURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8090/relay", relayURL("http://localhost:8090/"))
	assert.Equal(t, "wss://agent.example/relay", relayURL("https://agent.example"))
}

func TestVAPIDCmd(t *testing.T) {
	var out bytes.Buffer
	app := &cli.Command{Name: "tourpush", Writer: &out}
	app = NewVAPIDCmd().Register(app)

	require.NoError(t, app.Run(context.Background(), []string{"tourpush", "vapid"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "TOURPUSH_PUSH_VAPID_PUBLIC_KEY="))
	assert.True(t, strings.HasPrefix(lines[1], "TOURPUSH_PUSH_VAPID_PRIVATE_KEY="))
}
