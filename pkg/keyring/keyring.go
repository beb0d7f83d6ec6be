// Package keyring loads and caches the node-local RSA key pair used by the
// login handshake. Agents fetch the public exponent and modulus alongside a
// salt, encrypt the salt-prefixed password with PKCS#1 v1.5 and post the
// ciphertext back hex-encoded.
package keyring

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultKeyPath is where the daemon looks for the private key unless
// configured otherwise.
const DefaultKeyPath = "./key"

// DefaultKeySize is used when generating a fresh key pair.
const DefaultKeySize = 2048

// ErrDecrypt indicates the ciphertext could not be decrypted with the node
// key. Callers map this to a DECRYPT_FAILED reply.
var ErrDecrypt = errors.New("keyring: decryption failed")

// Keyring holds the decoded private key. The key file is read once at
// startup; decryptions afterwards never touch the filesystem.
type Keyring struct {
	key *rsa.PrivateKey
}

// Load reads an RSA private key in PEM form from path.
func Load(path string) (*Keyring, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	kr, err := Parse(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid key file %s: %w", path, err)
	}
	return kr, nil
}

// Parse decodes a PEM-encoded RSA private key. Supports both PKCS#1 and
// PKCS#8 containers.
func Parse(pemBytes []byte) (*Keyring, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	// Try PKCS1 first, then PKCS8.
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &Keyring{key: key}, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T, need RSA", parsed)
	}
	return &Keyring{key: key}, nil
}

// Generate creates a new RSA key pair and writes it to path in PKCS#1 PEM
// form with owner-only permissions. Refuses to overwrite an existing file.
func Generate(path string, bits int) error {
	if bits <= 0 {
		bits = DefaultKeySize
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key file already exists: %s", path)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create key directory: %w", err)
		}
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return os.WriteFile(path, pemBytes, 0600)
}

// PublicKey returns the public exponent and modulus as lowercase hex
// strings, the shape the get_salt reply carries.
func (k *Keyring) PublicKey() (e, n string) {
	return strconv.FormatInt(int64(k.key.PublicKey.E), 16), k.key.PublicKey.N.Text(16)
}

// Decrypt hex-decodes the ciphertext and decrypts it with the node key.
func (k *Keyring) Decrypt(hexCiphertext string) ([]byte, error) {
	ciphertext, err := hex.DecodeString(hexCiphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex", ErrDecrypt)
	}
	plaintext, err := rsa.DecryptPKCS1v15(nil, k.key, ciphertext)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// EncryptCredentials performs the client half of the handshake: it rebuilds
// the public key from the hex components returned by get_salt and encrypts
// the salt-prefixed password, returning hex ciphertext.
func EncryptCredentials(eHex, nHex, salt, password string) (string, error) {
	e, err := strconv.ParseInt(eHex, 16, 64)
	if err != nil {
		return "", fmt.Errorf("invalid public exponent: %w", err)
	}
	n, ok := new(big.Int).SetString(nHex, 16)
	if !ok {
		return "", fmt.Errorf("invalid modulus")
	}

	pub := &rsa.PublicKey{N: n, E: int(e)}
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(salt+password))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return hex.EncodeToString(ciphertext), nil
}
