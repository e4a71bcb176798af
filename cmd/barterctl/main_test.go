package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"barter-service/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	token, err := execute(t, "token", "--id", "42", "--email", "ops@example.com")
	require.NoError(t, err)

	p, err := auth.NewAuthenticator("cli-secret", 0).Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "ops@example.com", p.Email)
}

func TestTokenCommandRequiresIdentity(t *testing.T) {
	tokenFlags.id, tokenFlags.email = 0, ""
	_, err := execute(t, "token", "--email", "ops@example.com")
	assert.ErrorContains(t, err, "--id and --email are required")
}

func TestSweepCommandOnEmptyStore(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "cli.db"))

	out, err := execute(t, "sweep", "--timeout", "1m")
	require.NoError(t, err)
	assert.Equal(t, "released 0 orphaned items", out)
}
