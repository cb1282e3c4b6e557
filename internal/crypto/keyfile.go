package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 480_000
	kdfSaltLen    = 16
	kdfKeyLen     = 32
	keyFileV1     = 1
)

// ErrNoKey is returned when neither a raw key nor a key file is configured.
var ErrNoKey = errors.New("crypto: no wallet key configured")

type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource says where the wallet key comes from. A raw key wins over the
// key file.
type KeySource struct {
	Raw      string
	Path     string
	Password string
}

// Resolve returns the hex private key without 0x prefix.
func (ks KeySource) Resolve() (string, error) {
	if ks.Raw != "" {
		k := strings.TrimPrefix(strings.TrimSpace(ks.Raw), "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: private key is not hex: %w", err)
		}
		return k, nil
	}
	if ks.Path == "" {
		return "", ErrNoKey
	}
	data, err := os.ReadFile(ks.Path)
	if err != nil {
		return "", fmt.Errorf("crypto: read key file: %w", err)
	}
	return OpenKey(data, ks.Password)
}

// SealKey encrypts a hex private key with AES-256-GCM under a
// PBKDF2-SHA256 derived key. The wallet address is stored in clear so the
// file can be identified without the password.
func SealKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	signer, err := NewSigner(privateKeyHex, 0)
	if err != nil {
		return nil, err
	}
	raw, _ := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(keyFile{
		Version:    keyFileV1,
		Address:    signer.Address().Hex(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, raw, nil)),
	}, "", "  ")
}

// OpenKey decrypts a key file produced by SealKey.
func OpenKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Version != keyFileV1 {
		return "", fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}

	var salt, nonce, ct []byte
	for _, f := range []struct {
		dst  *[]byte
		name string
		val  string
	}{{&salt, "salt", kf.Salt}, {&nonce, "nonce", kf.Nonce}, {&ct, "ciphertext", kf.Ciphertext}} {
		b, err := base64.StdEncoding.DecodeString(f.val)
		if err != nil {
			return "", fmt.Errorf("crypto: decode %s: %w", f.name, err)
		}
		*f.dst = b
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt key (wrong password?): %w", err)
	}
	return hex.EncodeToString(plain), nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, kdfIterations, kdfKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}
