package webpush

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedPush struct {
	body          []byte
	authorization string
	encoding      string
}

// sendViaProvider encrypts message for kp the way a push provider's sender
// would and returns what arrived at the endpoint.
func sendViaProvider(t *testing.T, kp *KeyPair, message []byte) (capturedPush, string) {
	t.Helper()

	captured := make(chan capturedPush, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured <- capturedPush{
			body:          body,
			authorization: r.Header.Get("Authorization"),
			encoding:      r.Header.Get("Content-Encoding"),
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	vapidPrivate, vapidPublic, err := webpushgo.GenerateVAPIDKeys()
	require.NoError(t, err)

	resp, err := webpushgo.SendNotification(message, &webpushgo.Subscription{
		Endpoint: srv.URL + "/push/abc",
		Keys: webpushgo.Keys{
			P256dh: kp.P256dh(),
			Auth:   kp.AuthSecret(),
		},
	}, &webpushgo.Options{
		Subscriber:      "ops@tours.example",
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		TTL:             60,
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	return <-captured, vapidPublic
}

func TestDecrypt_ProviderPayload(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	message := []byte(`{"title":"Booking #12 · CONFIRMED","body":"2024-01-01","url":"/bookings/12"}`)
	push, _ := sendViaProvider(t, kp, message)

	assert.Equal(t, ContentEncoding, push.encoding)
	plain, err := Decrypt(push.body, kp)
	require.NoError(t, err)
	assert.Equal(t, message, plain)
}

func TestDecrypt_WrongKeys(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	push, _ := sendViaProvider(t, kp, []byte(`{"title":"x"}`))

	_, err = Decrypt(push.body, other)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecrypt_Malformed(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = Decrypt([]byte("short"), kp)
	assert.ErrorIs(t, err, ErrDecrypt)

	body := make([]byte, headerLen)
	body[saltLen+3] = 0x10 // rs = 16, below the minimum
	_, err = Decrypt(body, kp)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestVAPIDAuthorization_Verify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	push, vapidPublic := sendViaProvider(t, kp, []byte(`{}`))

	auth, err := ParseVAPIDAuthorization(push.authorization)
	require.NoError(t, err)

	serverKey, err := DecodeKey(vapidPublic)
	require.NoError(t, err)
	assert.NoError(t, auth.Verify(serverKey))

	otherKey, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.ErrorIs(t, auth.Verify(otherKey.Private.PublicKey().Bytes()), ErrVAPID)
}

func TestParseVAPIDAuthorization_Invalid(t *testing.T) {
	for _, header := range []string{"", "Bearer abc", "vapid t=abc", "vapid k=abc"} {
		_, err := ParseVAPIDAuthorization(header)
		assert.ErrorIs(t, err, ErrVAPID, header)
	}
}

func TestDecodeKey(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0x01, 0x02, 0x03}

	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		got, err := DecodeKey(enc.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	}

	_, err := DecodeKey("")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = DecodeKey("!!!")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyPair_RoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	restored, err := ParseKeyPair(kp.PrivateKeyString(), kp.AuthSecret())
	require.NoError(t, err)
	assert.Equal(t, kp.P256dh(), restored.P256dh())
	assert.Equal(t, kp.Auth, restored.Auth)

	_, err = ParseKeyPair(kp.PrivateKeyString(), EncodeKey([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestUnpad(t *testing.T) {
	got, err := unpad([]byte{'h', 'i', 0x02, 0, 0}, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)

	got, err = unpad([]byte{'h', 'i', 0x01}, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)

	_, err = unpad([]byte{'h', 'i', 0x01}, true)
	assert.Error(t, err)
	_, err = unpad([]byte{0, 0}, true)
	assert.Error(t, err)
}
