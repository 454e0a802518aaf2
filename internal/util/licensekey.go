package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	licenseKeyAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	licenseKeyGroups    = 3
	licenseKeyGroupSize = 4
)

var licenseKeyPattern = regexp.MustCompile(`^[A-Z0-9]+-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func generateRandomString(length int) (string, error) {
	max := big.NewInt(int64(len(licenseKeyAlphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = licenseKeyAlphabet[n.Int64()]
	}
	return string(b), nil
}

// GenerateLicenseKey returns PREFIX-XXXX-XXXX-XXXX with 12 characters drawn
// uniformly from [A-Z0-9] using crypto/rand.
func GenerateLicenseKey(prefix string) (string, error) {
	body, err := generateRandomString(licenseKeyGroups * licenseKeyGroupSize)
	if err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	parts := make([]string, 0, licenseKeyGroups+1)
	parts = append(parts, prefix)
	for i := 0; i < len(body); i += licenseKeyGroupSize {
		parts = append(parts, body[i:i+licenseKeyGroupSize])
	}
	return strings.Join(parts, "-"), nil
}

func NormalizeLicenseKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func IsWellFormedLicenseKey(key string) bool {
	return licenseKeyPattern.MatchString(key)
}

// MaskLicenseKey keeps the prefix and the last group so keys can be logged.
func MaskLicenseKey(key string) string {
	parts := strings.Split(key, "-")
	if len(parts) < 3 {
		if len(key) <= 4 {
			return "****"
		}
		return key[:2] + strings.Repeat("*", len(key)-4) + key[len(key)-2:]
	}
	for i := 1; i < len(parts)-1; i++ {
		parts[i] = "****"
	}
	return strings.Join(parts, "-")
}
