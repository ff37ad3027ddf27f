package tickers

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Default is served when the ticker file cannot be read.
var Default = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"}

// Load reads one symbol per line. Blank lines are skipped, symbols are
// upper-cased and duplicates collapse to their first occurrence.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ticker file: %w", err)
	}
	defer f.Close()

	var out []string
	seen := make(map[string]bool)

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		sym := Normalize(sc.Text())
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ticker file: %w", err)
	}
	return out, nil
}

// LoadOrDefault falls back to Default when the file is unreadable or empty.
func LoadOrDefault(path string, logger *zap.Logger) []string {
	syms, err := Load(path)
	if err != nil || len(syms) == 0 {
		logger.Warn("Using default tickers", zap.String("path", path), zap.Error(err), zap.Strings("tickers", Default))
		return append([]string(nil), Default...)
	}
	return syms
}

// Normalize trims and upper-cases a symbol.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
