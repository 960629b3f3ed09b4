// ABOUTME: Encrypted at-rest storage for the signing key
// ABOUTME: scrypt-derived key wrapping the secret with XChaCha20-Poly1305

package identity

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

var (
	// ErrWrongPassphrase means decryption failed, almost always a bad
	// passphrase (or a tampered file, which is indistinguishable).
	ErrWrongPassphrase = errors.New("keystore passphrase incorrect")
	// ErrKeystoreCorrupt means the file is not a readable keystore.
	ErrKeystoreCorrupt = errors.New("keystore file corrupt")
)

const keystoreVersion = 1

// Interactive-login scrypt parameters.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

type keystoreFile struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	N          int    `json:"n"`
	R          int    `json:"r"`
	P          int    `json:"p"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// SaveKey encrypts the 64-char hex secret key under the passphrase and
// writes the keystore to path, creating parent directories as needed.
// The file is written with owner-only permissions.
func SaveKey(path, secHex, passphrase string) error {
	secret, err := hex.DecodeString(secHex)
	if err != nil || len(secret) != 32 {
		return fmt.Errorf("secret key must be 32 bytes of hex")
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return fmt.Errorf("deriving key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("initializing cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, secret, nil)

	data, err := json.MarshalIndent(keystoreFile{
		Version:    keystoreVersion,
		KDF:        "scrypt",
		N:          scryptN,
		R:          scryptR,
		P:          scryptP,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding keystore: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating keystore directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing keystore: %w", err)
	}
	return nil
}

// LoadKey reads the keystore at path and returns the decrypted secret
// key as 64-char hex.
func LoadKey(path, passphrase string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading keystore: %w", err)
	}

	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeystoreCorrupt, err)
	}
	if ks.Version != keystoreVersion || ks.KDF != "scrypt" {
		return "", fmt.Errorf("%w: unsupported version %d kdf %q", ErrKeystoreCorrupt, ks.Version, ks.KDF)
	}
	salt, err := base64.StdEncoding.DecodeString(ks.Salt)
	if err != nil {
		return "", fmt.Errorf("%w: bad salt", ErrKeystoreCorrupt)
	}
	nonce, err := base64.StdEncoding.DecodeString(ks.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: bad nonce", ErrKeystoreCorrupt)
	}
	sealed, err := base64.StdEncoding.DecodeString(ks.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrKeystoreCorrupt)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, ks.N, ks.R, ks.P, chacha20poly1305.KeySize)
	if err != nil {
		return "", fmt.Errorf("deriving key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("%w: bad nonce size", ErrKeystoreCorrupt)
	}
	secret, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrWrongPassphrase
	}
	return hex.EncodeToString(secret), nil
}
