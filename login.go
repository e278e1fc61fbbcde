package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
)

// SessionToken is the cookie bundle captured once authentication succeeds.
// It is either fully valid or absent, never partial.
type SessionToken map[string]string

// HTTPCookies renders the token for a plain HTTP client.
func (t SessionToken) HTTPCookies() []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(t))
	for name, value := range t {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	return cookies
}

// AuthState classifies the navigation location after a login submission.
type AuthState int

const (
	StateSuccess AuthState = iota
	StateRejected
	StateChallenge
	StateAmbiguous
)

func (s AuthState) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateRejected:
		return "rejected"
	case StateChallenge:
		return "challenge"
	default:
		return "ambiguous"
	}
}

var (
	ErrAuthExhausted = fmt.Errorf("login failed: max retries exhausted")
	ErrOperatorAbort = fmt.Errorf("operation canceled by operator")
)

// Probe classifies the current navigation location of the shared session.
type Probe struct {
	home      string
	loginPath string
	challenge *regexp.Regexp
}

func NewProbe(config *Config) (*Probe, error) {
	re, err := regexp.Compile(config.ChallengePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid challenge_pattern: %w", err)
	}
	return &Probe{
		home:      strings.TrimRight(config.BaseURL, "/"),
		loginPath: config.LoginPath,
		challenge: re,
	}, nil
}

func (p *Probe) Classify(location string) AuthState {
	if strings.TrimRight(location, "/") == p.home {
		return StateSuccess
	}
	// An interstitial can sit on any path, including the login one, so it is
	// checked before the login-page comparison.
	if p.challenge.MatchString(location) {
		return StateChallenge
	}
	if strings.Contains(location, p.loginPath) {
		return StateRejected
	}
	return StateAmbiguous
}

// ChallengeWaiter blocks until a human confirms the challenge is resolved.
type ChallengeWaiter interface {
	Wait(ctx context.Context) error
}

// StdinChallengeWaiter waits for ENTER on stdin; ESC or context cancellation
// aborts the run.
type StdinChallengeWaiter struct {
	In  io.Reader
	Out io.Writer
}

func NewStdinChallengeWaiter() *StdinChallengeWaiter {
	return &StdinChallengeWaiter{In: os.Stdin, Out: os.Stdout}
}

func (w *StdinChallengeWaiter) Wait(ctx context.Context) error {
	fmt.Fprintln(w.Out)
	fmt.Fprintln(w.Out, strings.Repeat("=", 50))
	fmt.Fprintln(w.Out, "ACTION REQUIRED: Check the browser window.")
	fmt.Fprintln(w.Out, "1. Solve any CAPTCHAs.")
	fmt.Fprintln(w.Out, "2. Ensure you are fully logged in.")
	fmt.Fprintln(w.Out, strings.Repeat("=", 50))
	fmt.Fprint(w.Out, ">>> Press ENTER once resolved (ESC to abort)... ")

	done := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(w.In)
		for {
			input, err := reader.ReadByte()
			if err != nil {
				done <- fmt.Errorf("failed to read input: %w", err)
				return
			}
			if input == '\n' || input == '\r' {
				done <- nil
				return
			}
			if input == 27 { // ESC
				done <- ErrOperatorAbort
				return
			}
		}
	}()

	select {
	case err := <-done:
		fmt.Fprintln(w.Out)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuthResult is the outcome of a successful authentication. Verified is
// false when login was inferred from the profile-indicator heuristic rather
// than an observed navigation to the home location.
type AuthResult struct {
	Token    SessionToken
	Verified bool
	Attempts int
}

// Authenticator runs the bounded-retry login protocol over the shared
// session.
type Authenticator struct {
	session Session
	creds   CredentialSource
	waiter  ChallengeWaiter
	probe   *Probe
	config  *Config
}

func NewAuthenticator(session Session, creds CredentialSource, waiter ChallengeWaiter, config *Config) (*Authenticator, error) {
	probe, err := NewProbe(config)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		session: session,
		creds:   creds,
		waiter:  waiter,
		probe:   probe,
		config:  config,
	}, nil
}

// Authenticate attempts to log in at most maxAttempts times and returns the
// captured session token. Form-interaction failures consume an attempt but
// never abort; only credential-source errors, operator aborts and attempt
// exhaustion are fatal.
func (a *Authenticator) Authenticate(ctx context.Context, maxAttempts int) (*AuthResult, error) {
	rejected := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		creds, err := a.creds.Credentials(ctx, rejected)
		if err != nil {
			return nil, fmt.Errorf("credential source failed: %w", err)
		}

		slog.Info("submitting login form", "attempt", attempt, "max", maxAttempts)
		if err := a.submit(ctx, creds); err != nil {
			slog.Warn("form interaction failed, attempt consumed", "attempt", attempt, "err", err)
			continue
		}

		// The site offers no completion event for the submission, so give the
		// server a fixed interval to process it before classifying.
		if err := sleepCtx(ctx, a.config.LoginSettleDelay()); err != nil {
			return nil, err
		}

		location, err := a.session.CurrentLocation()
		if err != nil {
			slog.Warn("could not read location, attempt consumed", "attempt", attempt, "err", err)
			continue
		}

		state := a.probe.Classify(location)
		slog.Info("login outcome", "attempt", attempt, "location", location, "state", state.String())

		switch state {
		case StateSuccess:
			return a.capture(attempt, true)

		case StateRejected:
			rejected = true
			continue

		case StateChallenge:
			if err := a.waiter.Wait(ctx); err != nil {
				return nil, err
			}
			verified, err := a.recheck(ctx)
			if err != nil {
				return nil, err
			}
			if verified {
				return a.capture(attempt, true)
			}
			if a.probeLoggedIn() {
				return a.capture(attempt, false)
			}
			slog.Warn("still not logged in after challenge, attempt consumed", "attempt", attempt)

		case StateAmbiguous:
			if a.probeLoggedIn() {
				return a.capture(attempt, false)
			}
			slog.Warn("ambiguous location, no login indicator, attempt consumed",
				"attempt", attempt, "location", location)
		}
	}

	return nil, ErrAuthExhausted
}

func (a *Authenticator) submit(ctx context.Context, creds Credentials) error {
	if err := a.session.Navigate(ctx, a.config.LoginURL()); err != nil {
		return err
	}
	sel := a.config.Selectors
	if err := a.session.Fill(sel.EmailField, creds.Email); err != nil {
		return err
	}
	if err := a.session.Fill(sel.PasswordField, creds.Password); err != nil {
		return err
	}
	return a.session.Click(sel.SubmitButton)
}

// recheck verifies the session after a human resolved a challenge: first the
// current location, then a protected page that redirects to the login form
// when unauthenticated.
func (a *Authenticator) recheck(ctx context.Context) (bool, error) {
	location, err := a.session.CurrentLocation()
	if err != nil {
		return false, nil
	}
	if a.probe.Classify(location) == StateSuccess {
		return true, nil
	}

	if err := a.session.Navigate(ctx, a.config.AccountURL()); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, nil
	}
	location, err = a.session.CurrentLocation()
	if err != nil {
		return false, nil
	}
	return strings.TrimRight(location, "/") == strings.TrimRight(a.config.AccountURL(), "/"), nil
}

func (a *Authenticator) probeLoggedIn() bool {
	return a.session.HasElement(a.config.Selectors.ProfileMenu, 2*time.Second)
}

func (a *Authenticator) capture(attempt int, verified bool) (*AuthResult, error) {
	token, err := a.session.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to capture session cookies: %w", err)
	}
	if len(token) == 0 {
		return nil, fmt.Errorf("login looked successful but no cookies were captured")
	}

	for name := range token {
		if strings.Contains(strings.ToUpper(name), "SESS") {
			slog.Debug("session cookie captured", "name", name)
		}
	}

	if !verified {
		slog.Warn("login inferred from profile indicator only, session is unverified")
	}
	slog.Info("session captured", "cookies", len(token), "verified", verified, "attempts", attempt)

	return &AuthResult{Token: token, Verified: verified, Attempts: attempt}, nil
}
