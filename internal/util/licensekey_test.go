package util

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLicenseKeyFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^(F2P|TRY)-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

	for _, prefix := range []string{"F2P", "TRY"} {
		for i := 0; i < 200; i++ {
			key, err := GenerateLicenseKey(prefix)
			require.NoError(t, err)
			require.Regexp(t, pattern, key)
			require.True(t, IsWellFormedLicenseKey(key))
		}
	}
}

func TestGenerateLicenseKeyIsNotRepeated(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		key, err := GenerateLicenseKey("F2P")
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key %s", key)
		seen[key] = struct{}{}
	}
}

func TestGenerateLicenseKeyUsesWholeAlphabet(t *testing.T) {
	counts := make(map[rune]int)
	for i := 0; i < 2000; i++ {
		key, err := GenerateLicenseKey("TRY")
		require.NoError(t, err)
		for _, r := range key[4:] {
			if r != '-' {
				counts[r]++
			}
		}
	}
	assert.Len(t, counts, len(licenseKeyAlphabet))
}

func TestNormalizeLicenseKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  f2p-abcd-efgh-1234 ", "F2P-ABCD-EFGH-1234"},
		{"TRY-AAAA-BBBB-CCCC", "TRY-AAAA-BBBB-CCCC"},
		{"   ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLicenseKey(tt.in))
	}
}

func TestIsWellFormedLicenseKey(t *testing.T) {
	assert.True(t, IsWellFormedLicenseKey("F2P-ABCD-EF12-3456"))
	assert.False(t, IsWellFormedLicenseKey("f2p-abcd-ef12-3456"))
	assert.False(t, IsWellFormedLicenseKey("F2P-ABCD-EF12"))
	assert.False(t, IsWellFormedLicenseKey("F2P-ABC!-EF12-3456"))
}

func TestMaskLicenseKey(t *testing.T) {
	assert.Equal(t, "F2P-****-****-3456", MaskLicenseKey("F2P-ABCD-EF12-3456"))
	assert.Equal(t, "****", MaskLicenseKey("ab"))
	assert.Equal(t, "ab**ef", MaskLicenseKey("abcdef"))
}
