package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "deckhand",
		Short: "Adds a card shopping list to your store cart over one authenticated session",
		Long: `Deckhand logs into the card store (pausing for you when a CAPTCHA or
challenge appears), reads a shopping list of card page URLs, resolves each
card's product identifier, and submits add-to-cart requests through the same
session.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env if present (ignore errors)
			_ = godotenv.Load()
			setupLogging(debug)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newRunCmd(&configPath, &debug))
	cmd.AddCommand(newPreviewCmd(&configPath))
	cmd.AddCommand(newResolveCmd(&configPath, &debug))

	return cmd
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func loadConfigForCmd(configPath string, debug bool) (*Config, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		config.DebugMode = true
	}
	if config.DebugMode {
		setupLogging(true)
	}
	return config, nil
}

func newRunCmd(configPath *string, debug *bool) *cobra.Command {
	var cardsDir string
	var strategy string
	var headless bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: login, resolve identifiers, fill the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfigForCmd(*configPath, *debug)
			if err != nil {
				return err
			}
			if cardsDir != "" {
				config.CardsDir = cardsDir
			}
			if strategy != "" {
				config.ResolverStrategy = strategy
			}
			if headless {
				config.Headless = true
			}
			if err := config.Validate(); err != nil {
				return err
			}

			fmt.Println("══════════════════════════════════════════════════")
			fmt.Println("               Deckhand Cart Assistant")
			fmt.Println("══════════════════════════════════════════════════")
			fmt.Println()

			session, err := NewBrowserSession(config)
			if err != nil {
				return err
			}
			defer session.Close()

			pipeline := NewPipeline(config, session, NewChainCredentialSource(), NewStdinChallengeWaiter())
			report, err := pipeline.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println()
			fmt.Println(report.Summary())
			if !report.SessionVerified {
				fmt.Println("Note: login was inferred from a weak signal, results may be incomplete.")
			}

			if config.KeepBrowserOpen {
				fmt.Println("Keeping browser open for 30 seconds...")
				time.Sleep(30 * time.Second)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cardsDir, "cards-dir", "", "directory containing the shopping-list .txt file (overrides config)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "identifier resolution strategy: browser or http (overrides config)")
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser headless")

	return cmd
}

func newPreviewCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Parse the shopping list and print it, no network traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfigForCmd(*configPath, false)
			if err != nil {
				return err
			}

			cards, err := LoadCardList(config.CardsDir)
			if err != nil {
				return err
			}

			fmt.Printf("Card list preview (%d cards):\n", len(cards))
			PreviewCardList(os.Stdout, cards)
			return nil
		},
	}
}

func newResolveCmd(configPath *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Login and resolve product identifiers without touching the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfigForCmd(*configPath, *debug)
			if err != nil {
				return err
			}

			session, err := NewBrowserSession(config)
			if err != nil {
				return err
			}
			defer session.Close()

			pipeline := NewPipeline(config, session, NewChainCredentialSource(), NewStdinChallengeWaiter())
			resolved, err := pipeline.ResolveOnly(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println("Resolved product identifiers:")
			for _, item := range resolved {
				id := item.ProductID
				if id == "" {
					id = "(not found)"
				}
				fmt.Printf("  %s → %s\n", item.URL, id)
			}
			return nil
		},
	}
}
