package generator

import (
	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/pkg/models"
)

const (
	minPrice     = 1.0
	maxStep      = 5.0
	initialLow   = 100.0
	initialHigh  = 1000.0
	majorVolBase = 1000.0
	majorVolSpan = 5000.0
	minorVolBase = 100.0
	minorVolSpan = 1000.0
)

// majors trade in the higher volume band
var majors = map[string]bool{"AAPL": true, "MSFT": true, "GOOGL": true, "TSLA": true}

// QuoteGenerator random-walks a price per ticker. Not safe for concurrent
// use; the feed pump is its only caller.
type QuoteGenerator struct {
	logger  *zap.Logger
	tickers []string
	prices  map[string]float64
	rand    Rand
	clock   Clock
}

func NewQuoteGenerator(logger *zap.Logger, tickers []string, rnd Rand, clock Clock) *QuoteGenerator {
	g := &QuoteGenerator{
		logger:  logger,
		tickers: append([]string(nil), tickers...),
		prices:  make(map[string]float64, len(tickers)),
		rand:    rnd,
		clock:   clock,
	}
	for _, t := range g.tickers {
		g.prices[t] = initialLow + g.rand.Float64()*(initialHigh-initialLow)
	}
	logger.Info("Generator Started", zap.Strings("tickers", g.tickers))
	return g
}

// Next produces one quote per ticker.
func (g *QuoteGenerator) Next() []models.Quote {
	ts := uint64(g.clock.Now().Unix())
	quotes := make([]models.Quote, 0, len(g.tickers))

	for _, symbol := range g.tickers {
		price := g.prices[symbol] + (g.rand.Float64()*2-1)*maxStep
		if price < minPrice {
			price = minPrice
		}
		g.prices[symbol] = price

		quotes = append(quotes, models.Quote{
			Ticker:    symbol,
			Price:     price,
			Volume:    g.volume(symbol),
			Timestamp: ts,
		})
	}
	return quotes
}

func (g *QuoteGenerator) volume(symbol string) float64 {
	if majors[symbol] {
		return majorVolBase + g.rand.Float64()*majorVolSpan
	}
	return minorVolBase + g.rand.Float64()*minorVolSpan
}

// Price returns the current walk value for a ticker.
func (g *QuoteGenerator) Price(symbol string) (float64, bool) {
	p, ok := g.prices[symbol]
	return p, ok
}
