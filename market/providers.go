package market

import "context"

// BarProvider supplies recent bar history for an instrument. Implementations
// live at the venue/data boundary; count is the maximum number of bars the
// caller wants, and a shorter (or nil) series is a valid answer.
type BarProvider interface {
	GetOHLCV(ctx context.Context, instrument, interval string, count int) (Series, error)
}

// PriceProvider supplies the latest traded price for an instrument.
type PriceProvider interface {
	GetCurrentPrice(ctx context.Context, instrument string) (float64, error)
}

// Data combines the two provider roles for callers that need both.
type Data interface {
	BarProvider
	PriceProvider
}
