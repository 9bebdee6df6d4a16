package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"receipts/internal/domain"
)

var errNoKeyMaterial = errors.New("no key material configured")

// SignerFromConfig builds a signer from base64 or hex encoded key material.
// Base64 takes precedence when both are set.
func SignerFromConfig(alg, kid, keyBase64, seedHex string) (domain.Signer, error) {
	var (
		raw []byte
		err error
	)
	switch {
	case keyBase64 != "":
		raw, err = base64.StdEncoding.DecodeString(strings.TrimSpace(keyBase64))
		if err != nil {
			return nil, fmt.Errorf("decode signing key base64: %w", err)
		}
	case seedHex != "":
		raw, err = hex.DecodeString(strings.TrimSpace(seedHex))
		if err != nil {
			return nil, fmt.Errorf("decode signing key hex: %w", err)
		}
	default:
		return nil, errNoKeyMaterial
	}
	return ParsePrivateKey(alg, kid, raw)
}

// IsNoKeyMaterial reports whether err came from an empty key configuration.
func IsNoKeyMaterial(err error) bool {
	return errors.Is(err, errNoKeyMaterial)
}

// DecodePublicKey accepts hex or standard base64.
func DecodePublicKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("public key is empty")
	}
	if raw, err := hex.DecodeString(value); err == nil {
		return raw, nil
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("public key is neither hex nor base64: %w", err)
	}
	return raw, nil
}

// DecodeSecretHex decodes a hex encoded sealing secret.
func DecodeSecretHex(value string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("decode seal secret: %w", err)
	}
	return raw, nil
}
