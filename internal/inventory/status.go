package inventory

import (
	"time"

	"restoran-menu/internal/models"
)

// Kalan miktar orijinalin bu oranının altına düşünce parti "Low" sayılır.
const LowBatchRatio = 0.2

// Kayan nokta artıklarını sıfır saymak için
const epsilon = 1e-9

// DeriveStatus, partinin durumunu yalnızca miktar ve son kullanma tarihinden türetir.
// Sıra önemlidir: tükenmiş parti, süresi geçmiş olsa bile Depleted'dır.
func DeriveStatus(remaining, original float64, expiry, now time.Time) models.BatchStatus {
	switch {
	case remaining <= epsilon:
		return models.BatchStatusDepleted
	case expiry.Before(now):
		return models.BatchStatusExpired
	case remaining < LowBatchRatio*original:
		return models.BatchStatusLow
	default:
		return models.BatchStatusAvailable
	}
}

// usable: tüketimde kullanılabilir mi? (iptal edilmemiş, tükenmemiş, süresi geçmemiş)
func usable(b *models.IngredientBatch, now time.Time) bool {
	if b.Deleted {
		return false
	}
	switch DeriveStatus(b.RemainingQuantity, b.OriginalQuantity, b.ExpiryDate, now) {
	case models.BatchStatusDepleted, models.BatchStatusExpired:
		return false
	}
	return true
}
