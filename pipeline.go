package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pipeline sequences login, identifier resolution and cart submission over
// one shared session. It owns no state beyond threading the session handle
// from stage to stage; it never re-authenticates between stages.
type Pipeline struct {
	config  *Config
	session Session
	creds   CredentialSource
	waiter  ChallengeWaiter
}

func NewPipeline(config *Config, session Session, creds CredentialSource, waiter ChallengeWaiter) *Pipeline {
	return &Pipeline{
		config:  config,
		session: session,
		creds:   creds,
		waiter:  waiter,
	}
}

// Run executes the full pipeline and returns the final report.
// Authentication failure aborts before any cart operation.
func (p *Pipeline) Run(ctx context.Context) (*PipelineReport, error) {
	auth, resolved, transport, err := p.prepare(ctx)
	if err != nil {
		return nil, err
	}

	submitter := NewSubmitter(transport, p.config.SubmitDelay())
	report := submitter.SubmitAll(ctx, resolved)
	report.SessionVerified = auth.Verified

	if p.config.ReportPath != "" {
		if err := report.WriteFile(p.config.ReportPath); err != nil {
			slog.Warn("failed to write report file", "path", p.config.ReportPath, "err", err)
		} else {
			slog.Info("report written", "path", p.config.ReportPath)
		}
	}

	return report, nil
}

// ResolveOnly runs the pipeline up to identifier resolution, no cart writes.
func (p *Pipeline) ResolveOnly(ctx context.Context) ([]ResolvedCardRequest, error) {
	_, resolved, _, err := p.prepare(ctx)
	return resolved, err
}

func (p *Pipeline) prepare(ctx context.Context) (*AuthResult, []ResolvedCardRequest, CartTransport, error) {
	authenticator, err := NewAuthenticator(p.session, p.creds, p.waiter, p.config)
	if err != nil {
		return nil, nil, nil, err
	}

	auth, err := authenticator.Authenticate(ctx, p.config.MaxLoginAttempts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("authentication failed: %w", err)
	}

	cards, err := LoadCardList(p.config.CardsDir)
	if err != nil {
		return nil, nil, nil, err
	}

	extractor, transport, err := p.strategies(auth)
	if err != nil {
		return nil, nil, nil, err
	}

	resolver := NewResolver(extractor, p.config.ResolveDelay())
	resolved := resolver.Resolve(ctx, cards)
	return auth, resolved, transport, nil
}

func (p *Pipeline) strategies(auth *AuthResult) (FieldExtractor, CartTransport, error) {
	switch p.config.ResolverStrategy {
	case "http":
		client, err := NewSiteClient(p.config, auth.Token, p.session.UserAgent())
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		return NewBrowserExtractor(p.session, p.config),
			NewPageCartTransport(p.session, p.config.CartAddURL()),
			nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
