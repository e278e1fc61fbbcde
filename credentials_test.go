package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvCredentialSource(t *testing.T) {
	t.Setenv("DECKHAND_EMAIL", "user@example.com")
	t.Setenv("DECKHAND_PASSWORD", "hunter2")

	creds, err := EnvCredentialSource{}.Credentials(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "user@example.com", creds.Email)
	require.Equal(t, "hunter2", creds.Password)
}

func TestEnvCredentialSourceMissing(t *testing.T) {
	t.Setenv("DECKHAND_EMAIL", "")
	t.Setenv("DECKHAND_PASSWORD", "")

	_, err := EnvCredentialSource{}.Credentials(context.Background(), false)
	require.Error(t, err)
}

func TestTerminalCredentialSource(t *testing.T) {
	var out bytes.Buffer
	source := &TerminalCredentialSource{
		In:  strings.NewReader("user@example.com\nhunter2\n"),
		Out: &out,
	}

	creds, err := source.Credentials(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "user@example.com", creds.Email)
	require.Equal(t, "hunter2", creds.Password)
	require.NotContains(t, out.String(), "rejected")
}

func TestTerminalCredentialSourceRetryPrompt(t *testing.T) {
	var out bytes.Buffer
	source := &TerminalCredentialSource{
		In:  strings.NewReader("user@example.com\nhunter2\n"),
		Out: &out,
	}

	_, err := source.Credentials(context.Background(), true)
	require.NoError(t, err)
	require.Contains(t, out.String(), "rejected")
}

func TestChainCredentialSourcePrefersEnv(t *testing.T) {
	t.Setenv("DECKHAND_EMAIL", "env@example.com")
	t.Setenv("DECKHAND_PASSWORD", "env-secret")

	chain := &ChainCredentialSource{
		Env: EnvCredentialSource{},
		Terminal: &TerminalCredentialSource{
			In:  strings.NewReader(""),
			Out: &bytes.Buffer{},
		},
	}

	creds, err := chain.Credentials(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "env@example.com", creds.Email)
}

func TestChainCredentialSourceSkipsEnvOnRetry(t *testing.T) {
	t.Setenv("DECKHAND_EMAIL", "env@example.com")
	t.Setenv("DECKHAND_PASSWORD", "env-secret")

	chain := &ChainCredentialSource{
		Env: EnvCredentialSource{},
		Terminal: &TerminalCredentialSource{
			In:  strings.NewReader("typed@example.com\nnew-secret\n"),
			Out: &bytes.Buffer{},
		},
	}

	creds, err := chain.Credentials(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, "typed@example.com", creds.Email)
	require.Equal(t, "new-secret", creds.Password)
}
