package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Session is the capability surface the pipeline needs from the shared
// authenticated browsing context. The authenticator, resolver and submitter
// stay transport-agnostic behind it.
type Session interface {
	Navigate(ctx context.Context, url string) error
	CurrentLocation() (string, error)
	Fill(selector, value string) error
	Click(selector string) error
	// WaitForField waits for the element to appear and returns its value
	// property. ErrFieldNotFound is returned once the timeout elapses.
	WaitForField(selector string, timeout time.Duration) (string, error)
	HasElement(selector string, timeout time.Duration) bool
	// PostJSON performs a synchronous in-page XHR carrying the page's live
	// cookies and anti-bot tokens.
	PostJSON(url string, payload any) (status int, body string, err error)
	Cookies() (SessionToken, error)
	UserAgent() string
}

var ErrFieldNotFound = fmt.Errorf("field not found on page")

const interactTimeout = 5 * time.Second

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// BrowserSession drives a real Chrome/Chromium instance through go-rod.
type BrowserSession struct {
	config   *Config
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	stopChan chan bool
}

func NewBrowserSession(config *Config) (*BrowserSession, error) {
	s := &BrowserSession{
		config:   config,
		stopChan: make(chan bool, 1),
	}
	if err := s.setup(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *BrowserSession) setup() error {
	slog.Info("launching browser")

	// Disable leakless mode on Windows to prevent deadlock
	// See: https://github.com/go-rod/rod/issues/853
	useLeakless := runtime.GOOS != "windows"

	// Prefer system Chrome, it avoids the Chromium download and permission issues
	chromePath, chromeExists := launcher.LookPath()

	s.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(s.config.Headless)

	if s.config.BrowserProfilePath != "" {
		s.launcher = s.launcher.UserDataDir(s.config.BrowserProfilePath)
	}

	if chromeExists {
		s.launcher = s.launcher.Bin(chromePath)
		slog.Debug("using system chrome", "path", chromePath)
	} else {
		slog.Info("system chrome not found, downloading chromium")
	}

	url, err := s.launcher.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	s.browser = rod.New().ControlURL(url).MustConnect()

	page, err := stealth.Page(s.browser)
	if err != nil {
		return fmt.Errorf("failed to create stealth page: %w", err)
	}
	s.page = page

	if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: defaultUserAgent,
	}); err != nil {
		slog.Warn("failed to set user agent", "err", err)
	}

	go s.watchBrowser()

	slog.Info("browser ready")
	return nil
}

func (s *BrowserSession) Close() {
	select {
	case s.stopChan <- true:
	default:
	}

	if s.page != nil {
		s.page.Close()
	}
	if s.browser != nil {
		s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
}

func (s *BrowserSession) isAlive() bool {
	if s.browser == nil {
		return false
	}
	if _, err := s.browser.Version(); err != nil {
		return false
	}
	if s.page != nil {
		if _, err := s.page.Info(); err != nil {
			return false
		}
	}
	return true
}

func (s *BrowserSession) watchBrowser() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if !s.isAlive() {
				slog.Error("browser window was closed, shutting down")
				os.Exit(1)
			}
		}
	}
}

func (s *BrowserSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := s.page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("page failed to load: %w", err)
	}
	return nil
}

func (s *BrowserSession) CurrentLocation() (string, error) {
	res, err := s.page.Eval(`() => window.location.href`)
	if err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return res.Value.Str(), nil
}

func (s *BrowserSession) Fill(selector, value string) error {
	el, err := s.page.Timeout(interactTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	// Clear any prefilled text before typing.
	el.SelectAllText()
	if err := el.Input(value); err != nil {
		return fmt.Errorf("failed to fill %q: %w", selector, err)
	}
	return nil
}

func (s *BrowserSession) Click(selector string) error {
	el, err := s.page.Timeout(interactTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

func (s *BrowserSession) WaitForField(selector string, timeout time.Duration) (string, error) {
	el, err := s.page.Timeout(timeout).Element(selector)
	if err != nil {
		return "", ErrFieldNotFound
	}
	value, err := el.Property("value")
	if err != nil {
		return "", fmt.Errorf("failed to read value of %q: %w", selector, err)
	}
	return value.Str(), nil
}

func (s *BrowserSession) HasElement(selector string, timeout time.Duration) bool {
	_, err := s.page.Timeout(timeout).Element(selector)
	return err == nil
}

// PostJSON sends a synchronous XMLHttpRequest from inside the page, so the
// request carries the browsing context's cookies and anti-bot state.
func (s *BrowserSession) PostJSON(url string, payload any) (int, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	// Marshal the JSON document once more so it lands in the script as a
	// plain JS string literal.
	body, _ := json.Marshal(string(data))

	js := fmt.Sprintf(`() => {
		var xhr = new XMLHttpRequest();
		xhr.open("POST", %q, false);
		xhr.setRequestHeader("accept", "application/json;charset=UTF-8");
		xhr.setRequestHeader("content-type", "application/json;charset=UTF-8");
		xhr.setRequestHeader("x-requested-with", "XMLHttpRequest");
		xhr.send(%s);
		return JSON.stringify({status: xhr.status, body: xhr.responseText});
	}`, url, string(body))

	res, err := s.page.Eval(js)
	if err != nil {
		return 0, "", fmt.Errorf("in-page request failed: %w", err)
	}

	var result struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &result); err != nil {
		return 0, "", fmt.Errorf("failed to parse in-page response: %w", err)
	}

	return result.Status, result.Body, nil
}

func (s *BrowserSession) Cookies() (SessionToken, error) {
	cookies, err := s.page.Cookies([]string{s.config.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}

	token := SessionToken{}
	for _, cookie := range cookies {
		token[cookie.Name] = cookie.Value
	}
	return token, nil
}

func (s *BrowserSession) UserAgent() string {
	res, err := s.page.Eval(`() => navigator.userAgent`)
	if err == nil && res.Value.Str() != "" {
		return res.Value.Str()
	}
	return defaultUserAgent
}
