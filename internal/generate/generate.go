// Package generate produces synthetic order batches and stages them in the
// bucket for the loaders to pick up.
package generate

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"path"
	"strings"
	"time"

	"github.com/BartekS5/orderload/pkg/logger"
	"github.com/BartekS5/orderload/pkg/models"
)

// KeyLayout is the timestamp format embedded in generated object names.
const KeyLayout = "20060102_150405"

var (
	cities = []string{
		"Warsaw", "Krakow", "Gdansk", "Berlin", "Prague", "Vienna",
		"Lisbon", "Madrid", "Oslo", "Dublin", "Toronto", "Austin",
	}
	words = []string{
		"compact", "wireless", "steel", "organic", "portable", "classic",
		"lamp", "kettle", "backpack", "speaker", "blender", "notebook",
		"with", "for", "travel", "kitchen", "office", "outdoor",
	}
)

type Uploader interface {
	PutObject(ctx context.Context, key string, body []byte) error
}

// Generator builds pseudo-random orders. It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), now: time.Now}
}

// Orders returns n orders with distinct ids and timestamps within the last day.
func (g *Generator) Orders(n int) []models.Order {
	now := g.now().UTC()
	seen := make(map[int]bool, n)
	orders := make([]models.Order, 0, n)
	for len(orders) < n {
		id := g.rng.Intn(1_000_000) + 1
		if seen[id] && n < 1_000_000 {
			continue
		}
		seen[id] = true
		orders = append(orders, models.Order{
			OrderID:            id,
			OrderTimestamp:     now.Add(-time.Duration(g.rng.Int63n(int64(24 * time.Hour)))).Truncate(time.Second),
			CustomerID:         g.rng.Intn(1_000) + 1,
			ProductID:          g.rng.Intn(500) + 1,
			Quantity:           g.rng.Intn(10) + 1,
			UnitPrice:          float64(g.rng.Intn(10_000)) / 100,
			Location:           cities[g.rng.Intn(len(cities))],
			ProductDescription: g.sentence(4),
		})
	}
	return orders
}

func (g *Generator) sentence(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = words[g.rng.Intn(len(words))]
	}
	s := strings.Join(parts, " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

// EncodeCSV writes orders with a header row in the staged column layout.
func EncodeCSV(orders []models.Order) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(models.OrderHeader()); err != nil {
		return nil, err
	}
	for _, o := range orders {
		if err := w.Write(o.Record()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encoding orders: %w", err)
	}
	return buf.Bytes(), nil
}

// Key names a batch generated at t under prefix.
func Key(prefix string, t time.Time) string {
	return path.Join(strings.Trim(prefix, "/"), "orders_"+t.UTC().Format(KeyLayout)+".csv")
}

// Upload generates a batch of count orders and stores it under prefix,
// returning the object key.
func (g *Generator) Upload(ctx context.Context, u Uploader, prefix string, count int) (string, error) {
	if count <= 0 {
		return "", fmt.Errorf("count must be positive, got %d", count)
	}
	body, err := EncodeCSV(g.Orders(count))
	if err != nil {
		return "", err
	}
	key := Key(prefix, g.now())
	if err := u.PutObject(ctx, key, body); err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	logger.Info("uploaded order batch", "key", key, "orders", count, "bytes", len(body))
	return key, nil
}
