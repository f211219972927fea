// cmd/idlabctl/commands_test.go
package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/idlabstudio/idlab-backend/internal/utils"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestKeygen(t *testing.T) {
	out, err := run(t, "", "keygen", "-n", "3")
	require.NoError(t, err)

	keys := strings.Fields(out)
	require.Len(t, keys, 3)
	for _, key := range keys {
		assert.True(t, utils.IsLicenseKey(key), key)
	}
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "", "hash-password", "s3cret-pass")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("s3cret-pass")))

	out, err = run(t, "from-stdin\n", "hash-password")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))

	_, err = run(t, "\n", "hash-password")
	assert.Error(t, err)
}

func TestResendRejectsMalformedID(t *testing.T) {
	_, err := run(t, "", "resend", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid payment id")
}
