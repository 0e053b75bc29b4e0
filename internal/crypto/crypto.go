// Package crypto provides authenticated encryption for backup archives and
// the stored remote token. Uses AES-256-GCM with a SHA-256 derived key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

var (
	// ErrInvalidCiphertext is returned when decryption fails.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid key")
)

// Encrypt encrypts plaintext using AES-256-GCM.
// The key is derived from the passphrase using SHA-256.
func Encrypt(plaintext, passphrase []byte) ([]byte, error) {
	derivedKey := sha256.Sum256(passphrase)

	block, err := aes.NewCipher(derivedKey[:])
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts data produced by Encrypt.
func Decrypt(data, passphrase []byte) ([]byte, error) {
	derivedKey := sha256.Sum256(passphrase)

	block, err := aes.NewCipher(derivedKey[:])
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	nonce, cipherData := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, cipherData, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	return plaintext, nil
}

// EncryptString encrypts a string to a base64-encoded string.
func EncryptString(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrInvalidKey
	}
	data, err := Encrypt([]byte(plaintext), []byte(passphrase))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecryptString decrypts a base64-encoded string produced by EncryptString.
func DecryptString(ciphertext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrInvalidKey
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := Decrypt(data, []byte(passphrase))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DeriveWorkspaceKey derives a stable key for a workspace. Tokens stored in
// the local database are encrypted with it so they are unreadable when the
// data directory is copied elsewhere.
func DeriveWorkspaceKey(workspaceID string) []byte {
	if workspaceID == "" {
		workspaceID = "promptdeck-default"
	}
	hash := sha256.Sum256([]byte("promptdeck:" + workspaceID))
	return hash[:]
}

// EncryptToken encrypts a remote access token for local storage.
func EncryptToken(token, workspaceID string) (string, error) {
	if token == "" {
		return "", nil
	}
	return EncryptString(token, string(DeriveWorkspaceKey(workspaceID)))
}

// DecryptToken decrypts a token stored by EncryptToken. An empty input means
// no token is set.
func DecryptToken(stored, workspaceID string) (string, error) {
	if stored == "" {
		return "", nil
	}
	return DecryptString(stored, string(DeriveWorkspaceKey(workspaceID)))
}
