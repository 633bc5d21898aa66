package webpush

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ContentEncoding is the only encoding Decrypt understands.
const ContentEncoding = "aes128gcm"

const (
	saltLen      = 16
	headerLen    = saltLen + 4 + 1
	gcmTagLen    = 16
	minRecordLen = gcmTagLen + 2
)

var ErrDecrypt = errors.New("push payload decryption failed")

// Decrypt opens an aes128gcm body addressed to kp. The key id in the
// content-coding header carries the sender's ephemeral public key.
func Decrypt(body []byte, kp *KeyPair) ([]byte, error) {
	if len(body) < headerLen {
		return nil, fmt.Errorf("%w: body too short", ErrDecrypt)
	}
	salt := body[:saltLen]
	rs := int(binary.BigEndian.Uint32(body[saltLen : saltLen+4]))
	idLen := int(body[saltLen+4])
	if rs < minRecordLen {
		return nil, fmt.Errorf("%w: record size %d", ErrDecrypt, rs)
	}
	if len(body) < headerLen+idLen {
		return nil, fmt.Errorf("%w: truncated key id", ErrDecrypt)
	}
	senderKey := body[headerLen : headerLen+idLen]
	ciphertext := body[headerLen+idLen:]
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrDecrypt)
	}

	senderPub, err := ecdh.P256().NewPublicKey(senderKey)
	if err != nil {
		return nil, fmt.Errorf("%w: sender key: %v", ErrDecrypt, err)
	}
	shared, err := kp.Private.ECDH(senderPub)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdh: %v", ErrDecrypt, err)
	}

	// Some senders encode the shared secret as a big integer and drop its
	// leading zero byte; try that variant before giving up.
	secrets := [][]byte{shared}
	if shared[0] == 0 {
		secrets = append(secrets, bytes.TrimLeft(shared, "\x00"))
	}

	var lastErr error
	for _, secret := range secrets {
		plain, err := openRecords(secret, kp, senderKey, salt, rs, ciphertext)
		if err == nil {
			return plain, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func openRecords(secret []byte, kp *KeyPair, senderKey, salt []byte, rs int, ciphertext []byte) ([]byte, error) {
	// RFC 8291 section 3.4
	prkKey := hkdf.Extract(sha256.New, secret, kp.Auth)
	keyInfo := make([]byte, 0, 14+65+65)
	keyInfo = append(keyInfo, "WebPush: info\x00"...)
	keyInfo = append(keyInfo, kp.Private.PublicKey().Bytes()...)
	keyInfo = append(keyInfo, senderKey...)
	ikm, err := expand(prkKey, keyInfo, 32)
	if err != nil {
		return nil, err
	}

	// RFC 8188 section 2.2
	prk := hkdf.Extract(sha256.New, ikm, salt)
	cek, err := expand(prk, []byte("Content-Encoding: aes128gcm\x00"), 16)
	if err != nil {
		return nil, err
	}
	baseNonce, err := expand(prk, []byte("Content-Encoding: nonce\x00"), 12)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	var out bytes.Buffer
	for seq := uint64(0); len(ciphertext) > 0; seq++ {
		n := min(rs, len(ciphertext))
		record := ciphertext[:n]
		ciphertext = ciphertext[n:]
		last := len(ciphertext) == 0

		plain, err := gcm.Open(nil, recordNonce(baseNonce, seq), record, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrDecrypt, seq, err)
		}
		data, err := unpad(plain, last)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrDecrypt, seq, err)
		}
		out.Write(data)
	}
	return out.Bytes(), nil
}

func expand(prk, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, fmt.Errorf("%w: hkdf: %v", ErrDecrypt, err)
	}
	return out, nil
}

// recordNonce XORs the record sequence number into the low bytes of the
// base nonce.
func recordNonce(base []byte, seq uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], seq)
	for i := range s {
		nonce[len(nonce)-8+i] ^= s[i]
	}
	return nonce
}

// unpad strips trailing zero padding and the delimiter: 0x02 ends the last
// record, 0x01 every other one.
func unpad(plain []byte, last bool) ([]byte, error) {
	i := len(plain) - 1
	for i >= 0 && plain[i] == 0 {
		i--
	}
	if i < 0 {
		return nil, errors.New("missing padding delimiter")
	}
	want := byte(0x01)
	if last {
		want = 0x02
	}
	if plain[i] != want {
		return nil, fmt.Errorf("unexpected padding delimiter %#x", plain[i])
	}
	return plain[:i], nil
}
