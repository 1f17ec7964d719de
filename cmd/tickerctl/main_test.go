package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQueryCommand(t *testing.T) {
	out, err := run(t, "query", "kxbtc-25dec05-t100000")
	require.NoError(t, err)

	assert.Contains(t, out, "Event:     KXBTC-25DEC05")
	assert.Contains(t, out, "Title:     Bitcoin Price")
	assert.Contains(t, out, "Category:  crypto")
	assert.Contains(t, out, "Topic:     http://track.superfeedr.com/?query=")
}

func TestQueryCommandRejectsMalformedTicker(t *testing.T) {
	_, err := run(t, "query", "BTC")
	assert.ErrorContains(t, err, "malformed ticker")

	_, err = run(t, "query")
	assert.Error(t, err)
}

func TestSecretCommand(t *testing.T) {
	out, err := run(t, "secret")
	require.NoError(t, err)

	secret := strings.TrimSpace(out)
	assert.Len(t, secret, 32)
	assert.Regexp(t, "^[0-9a-f]+$", secret)
}

func TestUserCreateRequiresFlags(t *testing.T) {
	_, err := run(t, "user", "create", "--name", "Alice")
	assert.ErrorContains(t, err, "email")
}
