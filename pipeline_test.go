package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func pipelineTestConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()

	config := DefaultConfig()
	config.LoginSettleSeconds = 0
	config.ResolveDelayMs = 0
	config.SubmitDelayMs = 0
	config.CardsDir = dir
	config.ReportPath = filepath.Join(dir, "report.json")
	return config
}

func writeCardList(t *testing.T, dir, content string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, "deck.txt"), []byte(content), 0644)
	require.NoError(t, err)
}

func TestPipelineRun(t *testing.T) {
	config := pipelineTestConfig(t)
	writeCardList(t, config.CardsDir, `# wishlist
https://example.com/mtg/a, NM, 1
https://example.com/mtg/b, ex, 2
https://example.com/mtg/c, VG, 1
`)

	session := newFakeSession()
	session.locations = []string{"https://www.cardkingdom.com/"}
	session.fieldValues = map[string]string{
		"https://example.com/mtg/a": "111",
		"https://example.com/mtg/c": "333",
	}

	pipeline := NewPipeline(config, session, &fakeCredentialSource{}, &fakeWaiter{})
	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	// Card b never resolved, so only a and c reach the cart endpoint.
	require.Len(t, session.posts, 2)
	require.Equal(t, CartPayload{ProductID: "111", Style: "NM", Quantity: 1}, session.posts[0])
	require.Equal(t, CartPayload{ProductID: "333", Style: "VG", Quantity: 1}, session.posts[1])

	require.Equal(t, 2, report.Added)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 3, report.Total)
	require.True(t, report.SessionVerified)
	require.Equal(t, OutcomeSkippedNoIdentifier, report.Outcomes[1].Kind)

	_, err = os.Stat(config.ReportPath)
	require.NoError(t, err, "expected report file to be written")
}

func TestPipelineAuthFailureShortCircuits(t *testing.T) {
	config := pipelineTestConfig(t)
	writeCardList(t, config.CardsDir, "https://example.com/mtg/a, NM, 1\n")

	session := newFakeSession()
	session.locations = []string{"https://www.cardkingdom.com/customer_login"}

	pipeline := NewPipeline(config, session, &fakeCredentialSource{}, &fakeWaiter{})
	_, err := pipeline.Run(context.Background())

	require.ErrorIs(t, err, ErrAuthExhausted)
	require.Empty(t, session.posts, "no cart call may happen after a failed login")
	for _, url := range session.navigated {
		require.Equal(t, config.LoginURL(), url, "only the login page may be visited")
	}

	_, statErr := os.Stat(config.ReportPath)
	require.True(t, errors.Is(statErr, os.ErrNotExist), "no report on auth failure")
}

func TestPipelineMissingCardListFails(t *testing.T) {
	config := pipelineTestConfig(t)

	session := newFakeSession()
	session.locations = []string{"https://www.cardkingdom.com/"}

	pipeline := NewPipeline(config, session, &fakeCredentialSource{}, &fakeWaiter{})
	_, err := pipeline.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no .txt file")
}

func TestPipelineResolveOnly(t *testing.T) {
	config := pipelineTestConfig(t)
	writeCardList(t, config.CardsDir, `https://example.com/mtg/a, NM, 1
https://example.com/mtg/b, NM, 1
`)

	session := newFakeSession()
	session.locations = []string{"https://www.cardkingdom.com/"}
	session.fieldValues = map[string]string{
		"https://example.com/mtg/a": "111",
	}

	pipeline := NewPipeline(config, session, &fakeCredentialSource{}, &fakeWaiter{})
	resolved, err := pipeline.ResolveOnly(context.Background())
	require.NoError(t, err)

	require.Len(t, resolved, 2)
	require.Equal(t, "111", resolved[0].ProductID)
	require.Empty(t, resolved[1].ProductID)
	require.Empty(t, session.posts, "resolve-only must not touch the cart")
}

func TestPipelineUnverifiedSessionSurfacesInReport(t *testing.T) {
	config := pipelineTestConfig(t)
	writeCardList(t, config.CardsDir, "https://example.com/mtg/a, NM, 1\n")

	session := newFakeSession()
	session.locations = []string{"https://www.cardkingdom.com/welcome"}
	session.hasProfile = true
	session.fieldValues = map[string]string{
		"https://example.com/mtg/a": "111",
	}

	pipeline := NewPipeline(config, session, &fakeCredentialSource{}, &fakeWaiter{})
	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.SessionVerified)
	require.Equal(t, 1, report.Added)
}
