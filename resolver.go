package main

import (
	"context"
	"log/slog"
	"time"
)

// FieldExtractor resolves a card page address to the value of its embedded
// product-identifier field, or a definite not-found within a bounded wait.
// Both the rendered-page and plain-HTTP strategies satisfy this contract.
type FieldExtractor interface {
	ExtractField(ctx context.Context, pageURL string) (string, error)
}

type browserExtractor struct {
	session  Session
	selector string
	timeout  time.Duration
}

// NewBrowserExtractor resolves identifiers by rendering each page in the
// shared browsing context and waiting for the field to materialize.
func NewBrowserExtractor(session Session, config *Config) FieldExtractor {
	return &browserExtractor{
		session:  session,
		selector: config.Selectors.ProductIDField,
		timeout:  config.FieldWaitTimeout(),
	}
}

func (e *browserExtractor) ExtractField(ctx context.Context, pageURL string) (string, error) {
	if err := e.session.Navigate(ctx, pageURL); err != nil {
		return "", err
	}
	value, err := e.session.WaitForField(e.selector, e.timeout)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", ErrFieldNotFound
	}
	return value, nil
}

// Resolver maps card requests to resolved requests, one-to-one and in input
// order. Resolution misses are recorded, never retried here.
type Resolver struct {
	extractor FieldExtractor
	delay     time.Duration
}

func NewResolver(extractor FieldExtractor, delay time.Duration) *Resolver {
	return &Resolver{extractor: extractor, delay: delay}
}

func (r *Resolver) Resolve(ctx context.Context, requests []CardRequest) []ResolvedCardRequest {
	resolved := make([]ResolvedCardRequest, 0, len(requests))

	for i, req := range requests {
		if i > 0 {
			// Politeness delay between consecutive page loads.
			if err := sleepCtx(ctx, r.delay); err != nil {
				slog.Warn("resolution canceled, remaining cards left unresolved",
					"remaining", len(requests)-i)
				for _, rest := range requests[i:] {
					resolved = append(resolved, ResolvedCardRequest{CardRequest: rest})
				}
				return resolved
			}
		}

		slog.Info("resolving product identifier",
			"index", i+1, "total", len(requests), "url", req.URL)

		productID, err := r.extractor.ExtractField(ctx, req.URL)
		if err != nil {
			slog.Warn("product identifier not found", "url", req.URL, "err", err)
			productID = ""
		} else {
			slog.Info("product identifier resolved", "url", req.URL, "product_id", productID)
		}

		resolved = append(resolved, ResolvedCardRequest{
			CardRequest: req,
			ProductID:   productID,
		})
	}

	return resolved
}
