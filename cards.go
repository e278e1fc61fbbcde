package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// CardRequest is one line item from the shopping list. Immutable once parsed.
type CardRequest struct {
	URL      string
	Grade    string
	Quantity int
}

// ResolvedCardRequest is a CardRequest plus the site-internal product
// identifier, empty when resolution failed.
type ResolvedCardRequest struct {
	CardRequest
	ProductID string
}

// LoadCardList reads the first .txt file found in dir. Format per line:
//
//	url, grade, quantity
//
// Blank lines and lines starting with # are skipped.
func LoadCardList(dir string) ([]CardRequest, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no .txt file found in %q", dir)
	}
	sort.Strings(matches)

	path := matches[0]
	slog.Info("reading card list", "file", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cards := ParseCardList(f)
	slog.Info("parsed card list", "cards", len(cards))
	return cards, nil
}

// ParseCardList parses shopping-list lines. Malformed lines are skipped with
// a warning, never fatal.
func ParseCardList(r io.Reader) []CardRequest {
	var cards []CardRequest

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			slog.Warn("skipping line, expected 3 fields", "line", lineNum, "text", line)
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		quantity, err := strconv.Atoi(parts[2])
		if err != nil {
			slog.Warn("skipping line, invalid quantity", "line", lineNum, "text", line)
			continue
		}
		if quantity <= 0 {
			slog.Warn("skipping line, quantity must be positive", "line", lineNum, "text", line)
			continue
		}

		cards = append(cards, CardRequest{
			URL:      parts[0],
			Grade:    strings.ToUpper(parts[1]),
			Quantity: quantity,
		})
	}

	return cards
}

// PreviewCardList prints the loaded list, one line per card.
func PreviewCardList(w io.Writer, cards []CardRequest) {
	if len(cards) == 0 {
		fmt.Fprintln(w, "No cards loaded.")
		return
	}
	for _, c := range cards {
		fmt.Fprintf(w, "  %s  |  %s  |  x%d\n", c.URL, c.Grade, c.Quantity)
	}
}
