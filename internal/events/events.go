package events

import (
	"context"
	"sync"
	"time"
)

const (
	DishCreated   = "dish.created"
	DishUpdated   = "dish.updated"
	DishDeleted   = "dish.deleted"
	BatchReceived = "batch.received"
	StockConsumed = "stock.consumed"
	IngredientLow = "ingredient.low_stock"
)

// Event: commit edilmiş bir değişikliğin dışarıya duyurulan hali.
type Event struct {
	Type       string    `json:"type"`
	EntityID   uint      `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// Publisher, olayları commit sonrasında yayınlar. Yayın hatası asıl işlemi geri almaz.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...Event) error { return nil }

// Nop: Kafka yapılandırılmamışsa kullanılır.
func Nop() Publisher { return nopPublisher{} }

// Recorder: testlerde yayınlanan olayları biriktirir.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, events...)
	return nil
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
