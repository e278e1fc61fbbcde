package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CartPayload is the JSON body of one cart mutation.
type CartPayload struct {
	ProductID string `json:"product_id"`
	Style     string `json:"style"`
	Quantity  int    `json:"quantity"`
}

// CartTransport submits one cart mutation through the authenticated session.
// The in-page XHR and the direct HTTP client are interchangeable here.
type CartTransport interface {
	SubmitCartAdd(ctx context.Context, payload CartPayload) (status int, body string, err error)
}

// PageCartTransport posts from inside the browsing context, carrying the
// page's live cookies and anti-bot tokens.
type PageCartTransport struct {
	session Session
	url     string
}

func NewPageCartTransport(session Session, url string) *PageCartTransport {
	return &PageCartTransport{session: session, url: url}
}

func (t *PageCartTransport) SubmitCartAdd(ctx context.Context, payload CartPayload) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	return t.session.PostJSON(t.url, payload)
}

const bodySnippetLen = 200

func truncateBody(body string) string {
	if len(body) > bodySnippetLen {
		return body[:bodySnippetLen]
	}
	return body
}

// Submitter pushes resolved card requests to the cart endpoint, one by one,
// in input order. Per-item failures never abort the batch.
type Submitter struct {
	transport CartTransport
	delay     time.Duration
}

func NewSubmitter(transport CartTransport, delay time.Duration) *Submitter {
	return &Submitter{transport: transport, delay: delay}
}

// SubmitAll submits every item and aggregates the outcomes. The report is
// assembled from this call's outcomes alone, so repeated calls never
// double-count.
func (s *Submitter) SubmitAll(ctx context.Context, items []ResolvedCardRequest) *PipelineReport {
	outcomes := make([]ItemOutcome, 0, len(items))
	contacted := false

	for i, item := range items {
		outcome := ItemOutcome{
			URL:       item.URL,
			Grade:     item.Grade,
			Quantity:  item.Quantity,
			ProductID: item.ProductID,
		}

		if item.ProductID == "" {
			slog.Warn("skipping card, no product identifier",
				"index", i+1, "total", len(items), "url", item.URL)
			outcome.Kind = OutcomeSkippedNoIdentifier
			outcomes = append(outcomes, outcome)
			continue
		}

		if contacted {
			// Politeness delay between consecutive submissions.
			if err := sleepCtx(ctx, s.delay); err != nil {
				slog.Warn("submission delay interrupted", "err", err)
			}
		}
		contacted = true

		slog.Info("adding card to cart",
			"index", i+1, "total", len(items),
			"url", item.URL, "product_id", item.ProductID,
			"style", item.Grade, "quantity", item.Quantity)

		status, body, err := s.transport.SubmitCartAdd(ctx, CartPayload{
			ProductID: item.ProductID,
			Style:     item.Grade,
			Quantity:  item.Quantity,
		})

		switch {
		case err != nil:
			slog.Warn("cart submission transport error", "url", item.URL, "err", err)
			outcome.Kind = OutcomeRejected
			outcome.Detail = "transport error: " + err.Error()
		case status == http.StatusOK:
			slog.Info("card added", "url", item.URL)
			outcome.Kind = OutcomeAdded
			outcome.Status = status
		default:
			slog.Warn("cart submission rejected",
				"url", item.URL, "status", status, "body", truncateBody(body))
			outcome.Kind = OutcomeRejected
			outcome.Status = status
			outcome.Detail = truncateBody(body)
		}

		outcomes = append(outcomes, outcome)
	}

	return NewPipelineReport(outcomes)
}
