package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Credentials are held in memory for the duration of a login attempt and
// never persisted.
type Credentials struct {
	Email    string
	Password string
}

// CredentialSource supplies a credential pair on demand. retry is true when
// the previous attempt was rejected, so the source can adjust its prompting.
type CredentialSource interface {
	Credentials(ctx context.Context, retry bool) (Credentials, error)
}

// EnvCredentialSource reads DECKHAND_EMAIL / DECKHAND_PASSWORD. A .env file
// is honored because the CLI loads it before the pipeline starts.
type EnvCredentialSource struct{}

func (EnvCredentialSource) Credentials(ctx context.Context, retry bool) (Credentials, error) {
	email := os.Getenv("DECKHAND_EMAIL")
	password := os.Getenv("DECKHAND_PASSWORD")
	if email == "" || password == "" {
		return Credentials{}, fmt.Errorf("DECKHAND_EMAIL / DECKHAND_PASSWORD not set")
	}
	return Credentials{Email: email, Password: password}, nil
}

// TerminalCredentialSource prompts interactively, hiding the password when
// stdin is a terminal.
type TerminalCredentialSource struct {
	In  io.Reader
	Out io.Writer
}

func NewTerminalCredentialSource() *TerminalCredentialSource {
	return &TerminalCredentialSource{In: os.Stdin, Out: os.Stdout}
}

func (s *TerminalCredentialSource) Credentials(ctx context.Context, retry bool) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	fmt.Fprintln(s.Out, "--- Secure Login ---")
	if retry {
		fmt.Fprintln(s.Out, "Previous attempt was rejected, please re-enter your credentials.")
	}

	reader := bufio.NewReader(s.In)

	fmt.Fprint(s.Out, "Enter Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read email: %w", err)
	}
	email = strings.TrimSpace(email)

	fmt.Fprint(s.Out, "Enter Password: ")
	password, err := s.readPassword(reader)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(s.Out)

	return Credentials{Email: email, Password: password}, nil
}

func (s *TerminalCredentialSource) readPassword(reader *bufio.Reader) (string, error) {
	if f, ok := s.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	// Non-terminal stdin (tests, pipes): fall back to a plain line read.
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ChainCredentialSource tries the environment first, then the terminal. Once
// a retry is requested the environment is skipped: those credentials were
// just rejected, re-reading them would loop on the same failure.
type ChainCredentialSource struct {
	Env      CredentialSource
	Terminal CredentialSource
}

func NewChainCredentialSource() *ChainCredentialSource {
	return &ChainCredentialSource{
		Env:      EnvCredentialSource{},
		Terminal: NewTerminalCredentialSource(),
	}
}

func (s *ChainCredentialSource) Credentials(ctx context.Context, retry bool) (Credentials, error) {
	if !retry {
		creds, err := s.Env.Credentials(ctx, false)
		if err == nil {
			slog.Info("using credentials from environment")
			return creds, nil
		}
		slog.Debug("no credentials in environment, prompting", "err", err)
	}
	return s.Terminal.Credentials(ctx, retry)
}
