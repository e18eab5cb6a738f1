package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/pairs-ledger/internal/types"
)

// DataGenerator generates random filled orders for testing the ledger.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how fills are generated.
type GeneratorConfig struct {
	// Symbols the fills are spread across
	Symbols []string
	// StartTime is the fill time of the first order
	StartTime time.Time
	// Interval is the duration between fills
	Interval time.Duration
	// Count is the number of fills to generate
	Count int
	// BasePrice is the center of the price range
	BasePrice float64
	// PriceSpread is the maximum distance from BasePrice
	PriceSpread float64
	// MinQuantity and MaxQuantity bound the filled quantity
	MinQuantity float64
	MaxQuantity float64
	// BuyProbability is the chance of a fill being a BUY (0.0 to 1.0)
	BuyProbability float64
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbols:        []string{"BTC/ETH"},
		StartTime:      time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		Interval:       time.Minute,
		Count:          100,
		BasePrice:      15.0,
		PriceSpread:    1.5,
		MinQuantity:    0.5,
		MaxQuantity:    2.5,
		BuyProbability: 0.5,
	}
}

// Generate creates FILLED market orders in fill time order.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Order {
	orders := make([]types.Order, 0, config.Count)
	currentTime := config.StartTime

	for i := 0; i < config.Count; i++ {
		symbol := config.Symbols[g.rng.Intn(len(config.Symbols))]

		side := types.OrderSideSell
		if g.rng.Float64() < config.BuyProbability {
			side = types.OrderSideBuy
		}

		price := roundToDecimals(config.BasePrice+(g.rng.Float64()*2-1)*config.PriceSpread, 4)
		quantity := roundToDecimals(config.MinQuantity+g.rng.Float64()*(config.MaxQuantity-config.MinQuantity), 4)

		id, err := uuid.NewRandomFromReader(g.rng)
		if err != nil {
			id = uuid.New()
		}

		orders = append(orders, types.Order{
			ID:          id.String(),
			SignalID:    optional.None[string](),
			Symbol:      symbol,
			Type:        types.OrderTypeMarket,
			Side:        side,
			Quantity:    quantity,
			Price:       optional.Some(price),
			Status:      types.OrderStatusFilled,
			SubmittedAt: currentTime.Add(-2 * time.Second),
			FilledAt:    optional.Some(currentTime),
		})

		currentTime = currentTime.Add(config.Interval)
	}

	return orders
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
