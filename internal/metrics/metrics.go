package metrics

import (
	"errors"
	"time"

	"restoran-menu/internal/apperr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "menu",
		Name:      "operations_total",
		Help:      "Çekirdek işlemlerin sonuca göre sayısı.",
	}, []string{"operation", "outcome"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "menu",
		Name:      "operation_duration_seconds",
		Help:      "Çekirdek işlemlerin süresi.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	BatchesTouched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "batches_consumed_total",
		Help:      "Tüketim sırasında miktarı azaltılan parti sayısı.",
	})

	QuantityConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "quantity_consumed_total",
		Help:      "Tüketilen toplam miktar (birimden bağımsız).",
	})
)

// Outcome, hatayı düşük kardinaliteli bir etikete indirger.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		v  *apperr.ValidationError
		nf *apperr.NotFoundError
		is *apperr.InsufficientStockError
		ri *apperr.ReferentialIntegrityError
	)
	switch {
	case apperr.Retryable(err):
		return "transient"
	case errors.As(err, &is):
		return "insufficient_stock"
	case errors.As(err, &ri):
		return "referential_integrity"
	case errors.As(err, &v):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	default:
		return "error"
	}
}

// Observe: defer ile kullanılır, işlem süresini ve sonucunu kaydeder.
//
//	defer metrics.Observe("create_dish", time.Now(), &err)
func Observe(operation string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	Operations.WithLabelValues(operation, Outcome(err)).Inc()
}
