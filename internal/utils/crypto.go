// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"strings"
)

const (
	licenseKeyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	licenseKeyGroups  = 4
	licenseKeyGroupSz = 4

	// ApprovalTokenBytes is the entropy of an approval link token.
	ApprovalTokenBytes = 32
)

func randomFromCharset(charset string, length int) (string, error) {
	b := make([]byte, length)
	max := big.NewInt(int64(len(charset)))

	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}

	return string(b), nil
}

// GenerateLicenseKey returns a key such as "7QK2-M9XA-04BZ-T1RC".
func GenerateLicenseKey() (string, error) {
	groups := make([]string, licenseKeyGroups)
	for i := range groups {
		group, err := randomFromCharset(licenseKeyCharset, licenseKeyGroupSz)
		if err != nil {
			return "", err
		}
		groups[i] = group
	}
	return strings.Join(groups, "-"), nil
}

// IsLicenseKey reports whether key has the generated format.
func IsLicenseKey(key string) bool {
	groups := strings.Split(key, "-")
	if len(groups) != licenseKeyGroups {
		return false
	}
	for _, group := range groups {
		if len(group) != licenseKeyGroupSz {
			return false
		}
		for _, r := range group {
			if !strings.ContainsRune(licenseKeyCharset, r) {
				return false
			}
		}
	}
	return true
}

// GenerateApprovalToken returns a hex encoded random token. Only its hash is
// ever persisted.
func GenerateApprovalToken() (string, error) {
	b := make([]byte, ApprovalTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// IsWellFormedToken reports whether token could have come from
// GenerateApprovalToken.
func IsWellFormedToken(token string) bool {
	if len(token) != ApprovalTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

func HashString(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}

// TokenMatches compares the hash of token with storedHash in constant time.
func TokenMatches(storedHash, token string) bool {
	if storedHash == "" {
		return false
	}
	computed := HashString(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(storedHash))) == 1
}
