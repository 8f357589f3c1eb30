package inventory

import (
	"math/rand"
	"testing"
	"time"

	"restoran-menu/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name      string
		remaining float64
		original  float64
		expiry    time.Time
		want      models.BatchStatus
	}{
		{"depleted wins over expired", 0, 10, past, models.BatchStatusDepleted},
		{"depleted", 0, 10, future, models.BatchStatusDepleted},
		{"expired", 5, 10, past, models.BatchStatusExpired},
		{"expired even when low", 1, 10, past, models.BatchStatusExpired},
		{"low below 20 percent", 1.99, 10, future, models.BatchStatusLow},
		{"exactly 20 percent is available", 2, 10, future, models.BatchStatusAvailable},
		{"full", 10, 10, future, models.BatchStatusAvailable},
		{"expiry equal to now is not expired", 5, 10, now, models.BatchStatusAvailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.remaining, tc.original, tc.expiry, now))
		})
	}
}

// Rastgele (kalan, orijinal, son kullanma) üçlüleri için durum her zaman kurallardan birine denk gelir.
func TestDeriveStatus_Randomized(t *testing.T) {
	rng := rand.New(rand.NewSource(20260301))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5000; i++ {
		original := float64(rng.Intn(1000) + 1)
		remaining := float64(rng.Intn(int(original) + 1))
		expiry := now.Add(time.Duration(rng.Intn(240)-120) * time.Hour)

		got := DeriveStatus(remaining, original, expiry, now)

		var want models.BatchStatus
		switch {
		case remaining == 0:
			want = models.BatchStatusDepleted
		case expiry.Before(now):
			want = models.BatchStatusExpired
		case remaining < 0.2*original:
			want = models.BatchStatusLow
		default:
			want = models.BatchStatusAvailable
		}
		if !assert.Equal(t, want, got, "remaining=%v original=%v expiry=%v", remaining, original, expiry) {
			return
		}
		assert.True(t, got.Valid())
	}
}
