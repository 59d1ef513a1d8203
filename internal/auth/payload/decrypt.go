package payload

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"unicode/utf8"
)

// Keys copied verbatim when decrypting a map.
const (
	KeyType      = "type"
	KeySignature = "signature"
)

// DecryptionError reports a leaf that could not be decrypted.
type DecryptionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	msg := fmt.Sprintf("decrypt %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Decryptor decrypts base64 PKCS#1 v1.5 leaves with a fixed private key.
// It holds no mutable state and is safe for concurrent use.
type Decryptor struct {
	key *rsa.PrivateKey
}

func NewDecryptor(key *rsa.PrivateKey) *Decryptor {
	return &Decryptor{key: key}
}

// LoadPrivateKey reads a PEM encoded RSA key (PKCS#1 or PKCS#8).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParsePrivateKey(data)
}

func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("private key: no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key: expected RSA, got %T", parsed)
	}
	return key, nil
}

// Decrypt walks v and replaces every encrypted string leaf with its
// plaintext. Map entries named "type" and "signature" are left untouched.
func (d *Decryptor) Decrypt(v Value) (Value, error) {
	return d.decrypt(v, "$")
}

func (d *Decryptor) decrypt(v Value, path string) (Value, error) {
	switch t := v.(type) {
	case List:
		out := make(List, len(t))
		for i, e := range t {
			dv, err := d.decrypt(e, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case Map:
		out := make(Map, len(t))
		for k, e := range t {
			if k == KeyType || k == KeySignature {
				out[k] = e
				continue
			}
			dv, err := d.decrypt(e, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	case String:
		return d.decryptLeaf(string(t), path)
	case Number, Bool, Null:
		return nil, &DecryptionError{Path: path, Reason: fmt.Sprintf("unexpected %T value", v)}
	default:
		return nil, &DecryptionError{Path: path, Reason: fmt.Sprintf("unknown value %T", v)}
	}
}

func (d *Decryptor) decryptLeaf(s, path string) (Value, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecryptionError{Path: path, Reason: "invalid base64", Err: err}
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, d.key, raw)
	if err != nil {
		return nil, &DecryptionError{Path: path, Reason: "rsa", Err: err}
	}
	if !utf8.Valid(plain) {
		return nil, &DecryptionError{Path: path, Reason: "plaintext is not utf-8"}
	}
	return String(plain), nil
}
