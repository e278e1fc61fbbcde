package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("deckhand/site")

// SiteClient talks to the store over plain HTTP, replaying the cookies
// captured by the authenticated browsing session. It backs both the "http"
// resolution strategy and the direct cart transport.
type SiteClient struct {
	http   *resty.Client
	config *Config
}

func NewSiteClient(config *Config, token SessionToken, userAgent string) (*SiteClient, error) {
	client := resty.New()
	client.SetBaseURL(config.BaseURL)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", userAgent)
	client.SetCookies(token.HTTPCookies())
	// One bounded wait serves both field resolution and cart submission.
	client.SetTimeout(config.FieldWaitTimeout())

	return &SiteClient{http: client, config: config}, nil
}

// ExtractField fetches a card page with the session cookies and parses the
// product-identifier field out of the returned markup, no rendering.
func (c *SiteClient) ExtractField(ctx context.Context, pageURL string) (string, error) {
	ctx, span := tracer.Start(ctx, "ExtractField")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(pageURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch card page")
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	if res.StatusCode() != 200 {
		span.SetStatus(codes.Error, "unexpected status")
		return "", fmt.Errorf("page returned HTTP %d: %s", res.StatusCode(), pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return "", fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	value, exists := doc.Find(c.config.Selectors.ProductIDField).Attr("value")
	if !exists || value == "" {
		return "", ErrFieldNotFound
	}
	return value, nil
}

// SubmitCartAdd posts one cart mutation with the captured session cookies
// and the XHR-identifying headers the endpoint requires.
func (c *SiteClient) SubmitCartAdd(ctx context.Context, payload CartPayload) (int, string, error) {
	ctx, span := tracer.Start(ctx, "SubmitCartAdd")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("accept", "application/json;charset=UTF-8").
		SetHeader("content-type", "application/json;charset=UTF-8").
		SetHeader("x-requested-with", "XMLHttpRequest").
		SetBody(payload).
		Post(c.config.CartAddPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cart request failed")
		return 0, "", err
	}

	return res.StatusCode(), string(res.Body()), nil
}
