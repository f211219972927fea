// internal/utils/crypto_test.go
package utils

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var licenseKeyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func TestGenerateLicenseKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		key, err := GenerateLicenseKey()
		require.NoError(t, err)
		assert.Regexp(t, licenseKeyPattern, key)
		assert.True(t, IsLicenseKey(key))
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestIsLicenseKey(t *testing.T) {
	assert.True(t, IsLicenseKey("7QK2-M9XA-04BZ-T1RC"))
	assert.False(t, IsLicenseKey("7qk2-M9XA-04BZ-T1RC"))
	assert.False(t, IsLicenseKey("7QK2-M9XA-04BZ"))
	assert.False(t, IsLicenseKey("7QK2M-9XA-04BZ-T1RC"))
	assert.False(t, IsLicenseKey(""))
}

func TestApprovalTokens(t *testing.T) {
	token, err := GenerateApprovalToken()
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.True(t, IsWellFormedToken(token))

	hash := HashString(token)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, token, hash)
	assert.True(t, TokenMatches(hash, token))
	assert.True(t, TokenMatches(strings.ToUpper(hash), token))

	other, err := GenerateApprovalToken()
	require.NoError(t, err)
	assert.False(t, TokenMatches(hash, other))
	assert.False(t, TokenMatches("", token))

	assert.False(t, IsWellFormedToken(token[:63]))
	assert.False(t, IsWellFormedToken(strings.Repeat("z", 64)))
}
