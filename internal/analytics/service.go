// Package analytics, menü kârlılığını salt-okunur olarak hesaplar.
// Tüm listeler tek bir sorguyla alınan anlık görüntü üzerinde çalışır.
package analytics

import (
	"context"
	"sort"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/database"
	"restoran-menu/internal/metrics"
	"restoran-menu/internal/observability"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 10

	// HighCostRatio: malzeme maliyeti satış fiyatının bu oranını aşarsa yemek "yüksek maliyetli"dir.
	HighCostRatio = 0.7
)

var tracer = otel.Tracer("restoran-menu/analytics")

// DishProfit: tek bir yemeğin maliyet/kâr özeti.
type DishProfit struct {
	DishID         uint    `json:"dish_id"`
	Name           string  `json:"name"`
	SellingPrice   float64 `json:"selling_price"`
	IngredientCost float64 `json:"ingredient_cost"`
	Margin         float64 `json:"margin"`
	CostRatio      float64 `json:"cost_ratio"`
}

type Report struct {
	GeneratedAt     time.Time    `json:"generated_at"`
	MostProfitable  []DishProfit `json:"most_profitable"`
	LeastProfitable []DishProfit `json:"least_profitable"`
	HighCost        []DishProfit `json:"high_cost"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, log: log}
}

type snapshotRow struct {
	DishID         uint
	Name           string
	SellingPrice   float64
	IngredientCost float64
}

// Snapshot: silinmemiş tüm yemeklerin fiyat ve toplam malzeme maliyeti.
// Reçetesi boş yemeğin maliyeti 0'dır.
func (s *Service) Snapshot(ctx context.Context) (out []DishProfit, err error) {
	ctx, span := tracer.Start(ctx, "Service.Snapshot")
	defer observability.End(span, &err)
	defer metrics.Observe("analytics_snapshot", time.Now(), &err)

	var rows []snapshotRow
	err = database.Transaction(ctx, s.db, "analytics_snapshot", func(tx *gorm.DB) error {
		return tx.Table("dishes AS d").
			Select(`d.id AS dish_id, d.name AS name, d.selling_price AS selling_price,
				COALESCE(SUM(di.quantity_needed * i.cost_per_unit), 0) AS ingredient_cost`).
			Joins("LEFT JOIN dish_ingredients di ON di.dish_id = d.id").
			Joins("LEFT JOIN ingredients i ON i.id = di.ingredient_id").
			Where("d.deleted = ?", false).
			Group("d.id, d.name, d.selling_price").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out = make([]DishProfit, 0, len(rows))
	for _, r := range rows {
		out = append(out, newDishProfit(r.DishID, r.Name, r.SellingPrice, r.IngredientCost))
	}
	return out, nil
}

func newDishProfit(id uint, name string, price, cost float64) DishProfit {
	p := DishProfit{
		DishID:         id,
		Name:           name,
		SellingPrice:   price,
		IngredientCost: cost,
		Margin:         price - cost,
	}
	if price > 0 {
		p.CostRatio = cost / price
	}
	return p
}

func (s *Service) MostProfitableDishes(ctx context.Context, limit int) ([]DishProfit, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return MostProfitable(snap, limit), nil
}

func (s *Service) LeastProfitableDishes(ctx context.Context, limit int) ([]DishProfit, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return LeastProfitable(snap, limit), nil
}

func (s *Service) HighIngredientCostDishes(ctx context.Context) ([]DishProfit, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return HighIngredientCost(snap), nil
}

// Report: üç liste aynı anlık görüntüden üretilir.
func (s *Service) Report(ctx context.Context, limit int) (*Report, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	r := &Report{
		GeneratedAt:     time.Now(),
		MostProfitable:  MostProfitable(snap, limit),
		LeastProfitable: LeastProfitable(snap, limit),
		HighCost:        HighIngredientCost(snap),
	}
	s.log.Debug("analiz raporu hazırlandı", zap.Int("dishes", len(snap)), zap.Int("high_cost", len(r.HighCost)))
	return r, nil
}

// MostProfitable: marja göre azalan sıralama, eşitlikte küçük dish id önce.
func MostProfitable(snap []DishProfit, limit int) []DishProfit {
	out := sortedCopy(snap, func(a, b DishProfit) bool {
		if a.Margin != b.Margin {
			return a.Margin > b.Margin
		}
		return a.DishID < b.DishID
	})
	return truncate(out, limit)
}

// LeastProfitable: marja göre artan sıralama, eşitlikte küçük dish id önce.
func LeastProfitable(snap []DishProfit, limit int) []DishProfit {
	out := sortedCopy(snap, func(a, b DishProfit) bool {
		if a.Margin != b.Margin {
			return a.Margin < b.Margin
		}
		return a.DishID < b.DishID
	})
	return truncate(out, limit)
}

// HighIngredientCost: maliyeti fiyatın %70'ini aşan yemekler, maliyete göre azalan.
func HighIngredientCost(snap []DishProfit) []DishProfit {
	var filtered []DishProfit
	for _, p := range snap {
		if p.IngredientCost > HighCostRatio*p.SellingPrice {
			filtered = append(filtered, p)
		}
	}
	return sortedCopy(filtered, func(a, b DishProfit) bool {
		if a.IngredientCost != b.IngredientCost {
			return a.IngredientCost > b.IngredientCost
		}
		return a.DishID < b.DishID
	})
}

func sortedCopy(in []DishProfit, less func(a, b DishProfit) bool) []DishProfit {
	out := make([]DishProfit, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func truncate(in []DishProfit, limit int) []DishProfit {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(in) > limit {
		return in[:limit]
	}
	return in
}

// ValidateLimit: HTTP katmanından gelen limit değerini denetler.
func ValidateLimit(limit int) error {
	if limit < 0 {
		return apperr.Validation("limit", "limit negatif olamaz")
	}
	return nil
}
