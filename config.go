package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL   string `yaml:"base_url"`
	LoginPath string `yaml:"login_path"`
	// AccountPath is a protected location used to re-verify the session after a
	// challenge: it redirects back to the login page when unauthenticated.
	AccountPath string `yaml:"account_path"`
	CartAddPath string `yaml:"cart_add_path"`

	// ChallengePattern matches navigation locations that indicate an anti-bot
	// interstitial requiring a human.
	ChallengePattern string `yaml:"challenge_pattern"`

	CardsDir   string `yaml:"cards_dir"`
	ReportPath string `yaml:"report_path"`

	// ResolverStrategy selects how product identifiers are extracted:
	// "browser" renders each page in the shared browsing context,
	// "http" fetches the page with the captured session cookies and parses it.
	ResolverStrategy string `yaml:"resolver_strategy"`

	MaxLoginAttempts   int `yaml:"max_login_attempts"`
	LoginSettleSeconds int `yaml:"login_settle_seconds"`
	FieldWaitSeconds   int `yaml:"field_wait_seconds"`
	ResolveDelayMs     int `yaml:"resolve_delay_ms"`
	SubmitDelayMs      int `yaml:"submit_delay_ms"`

	BrowserProfilePath string `yaml:"browser_profile_path"`
	Headless           bool   `yaml:"headless"`
	KeepBrowserOpen    bool   `yaml:"keep_browser_open"`

	DebugMode bool `yaml:"debug_mode"`

	Selectors SelectorConfig `yaml:"selectors"`
}

type SelectorConfig struct {
	EmailField     string `yaml:"email_field"`
	PasswordField  string `yaml:"password_field"`
	SubmitButton   string `yaml:"submit_button"`
	ProfileMenu    string `yaml:"profile_menu"`
	ProductIDField string `yaml:"product_id_field"`
}

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		BaseURL:     "https://www.cardkingdom.com",
		LoginPath:   "/customer_login",
		AccountPath: "/myaccount",
		CartAddPath: "/api/cart/add",

		ChallengePattern: `(?i)(challenge|captcha|attention|cdn-cgi)`,

		CardsDir:   "cards",
		ReportPath: "deckhand-report.json",

		ResolverStrategy: "browser",

		MaxLoginAttempts:   3,
		LoginSettleSeconds: 4,
		FieldWaitSeconds:   10,
		ResolveDelayMs:     1000,
		SubmitDelayMs:      1000,

		BrowserProfilePath: filepath.Join(userDataDir, "browser-profile"),
		Headless:           false,
		KeepBrowserOpen:    false,

		DebugMode: false,

		Selectors: SelectorConfig{
			EmailField:     "input[name='email'], input[placeholder='Enter Email']",
			PasswordField:  "input[name='password'], input[placeholder='Enter Password']",
			SubmitButton:   "input[type='submit'], button[type='submit'], .submit-button",
			ProfileMenu:    ".customer-menu, .account-menu, a[href*='myaccount']",
			ProductIDField: `form.addToCartForm input[name="product_id[0]"]`,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("max_login_attempts must be at least 1, got %d", c.MaxLoginAttempts)
	}
	switch c.ResolverStrategy {
	case "browser", "http":
	default:
		return fmt.Errorf("resolver_strategy must be \"browser\" or \"http\", got %q", c.ResolverStrategy)
	}
	return nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) LoginURL() string   { return c.BaseURL + c.LoginPath }
func (c *Config) AccountURL() string { return c.BaseURL + c.AccountPath }
func (c *Config) CartAddURL() string { return c.BaseURL + c.CartAddPath }

func (c *Config) LoginSettleDelay() time.Duration {
	return time.Duration(c.LoginSettleSeconds) * time.Second
}

func (c *Config) FieldWaitTimeout() time.Duration {
	return time.Duration(c.FieldWaitSeconds) * time.Second
}

func (c *Config) ResolveDelay() time.Duration {
	return time.Duration(c.ResolveDelayMs) * time.Millisecond
}

func (c *Config) SubmitDelay() time.Duration {
	return time.Duration(c.SubmitDelayMs) * time.Millisecond
}

func getUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./deckhand-data"
	}
	return filepath.Join(home, ".deckhand")
}
