// Package secretbox cifra secretos at-rest (tokens OAuth) con AES-256-GCM.
//
// La clave de cada Box se deriva con HKDF-SHA256 desde una clave maestra y un
// "purpose", de modo que una misma master key sirve a usos distintos sin
// reutilizar material.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	nonceSizeGCM      = 12  // 96 bits
	requiredKeyLength = 32  // AES-256
	sep               = "|" // base64(nonce)|base64(ciphertext)
)

var (
	ErrInvalidKey    = errors.New("secretbox: invalid master key")
	ErrInvalidFormat = errors.New("secretbox: formato inválido, esperado base64(nonce)|base64(ciphertext)")
)

// Box cifra y descifra con una subclave fija.
type Box struct {
	aead cipher.AEAD
}

// ParseKey acepta la master key en base64 (std o raw) o hex de 64 chars.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: se requieren %d bytes (base64 o hex); genere una con: openssl rand -base64 32", ErrInvalidKey, requiredKeyLength)
}

// New deriva la subclave para purpose y construye el Box.
func New(masterKey []byte, purpose string) (*Box, error) {
	if len(masterKey) != requiredKeyLength {
		return nil, ErrInvalidKey
	}
	sub := make([]byte, requiredKeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(purpose)), sub); err != nil {
		return nil, fmt.Errorf("secretbox: hkdf: %w", err)
	}
	block, err := aes.NewCipher(sub)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func (b *Box) Seal(plainText string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open descifra el formato producido por Seal. Falla si el ciphertext fue alterado.
func (b *Box) Open(cipherText string) (string, error) {
	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", ErrInvalidFormat
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSizeGCM, len(nonce))
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}
