package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"restoran-menu/internal/apperr"
	"restoran-menu/internal/database"
	"restoran-menu/internal/events"
	"restoran-menu/internal/models"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ImportResult: Excel'den parti aktarımının özeti
type ImportResult struct {
	Imported  int            `json:"imported"`
	BatchIDs  []uint         `json:"batch_ids"`
	Unmatched []string       `json:"unmatched"`  // Eşleşmeyen malzeme adları
	RowErrors map[int]string `json:"row_errors"` // Satır numarası -> hata
}

// ImportBatches, bir .xlsx dosyasının ilk sayfasındaki satırları stok partisi
// olarak kaydeder. Sütunlar: malzeme adı, miktar, alış tarihi, son kullanma
// tarihi, alış fiyatı, tedarikçi id (opsiyonel). Geçerli satırların hepsi tek
// transaction'da yazılır; hatalı satırlar atlanıp raporlanır.
func (l *Ledger) ImportBatches(ctx context.Context, r io.Reader) (*ImportResult, error) {
	excelFile, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation("file", "Excel dosyası okunamadı: %v", err)
	}
	defer excelFile.Close()

	// İlk sheet'i al
	sheetList := excelFile.GetSheetList()
	if len(sheetList) == 0 {
		return nil, apperr.Validation("file", "Excel dosyasında sheet bulunamadı")
	}
	// Ham değer: tarih hücreleri biçimlenmiş metin yerine seri numarası olarak gelir
	rows, err := excelFile.GetRows(sheetList[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperr.Validation("file", "Sheet okunamadı: %v", err)
	}
	if len(rows) == 0 {
		return nil, apperr.Validation("file", "Excel dosyası boş")
	}

	// İlk satır başlık mı? ("MALZEME", "INGREDIENT" gibi)
	start := 0
	if len(rows[0]) > 0 {
		first := strings.ToUpper(strings.TrimSpace(rows[0][0]))
		if strings.Contains(first, "MALZEME") || strings.Contains(first, "INGREDIENT") {
			start = 1
		}
	}

	res := &ImportResult{BatchIDs: []uint{}, Unmatched: []string{}, RowErrors: map[int]string{}}
	var received []*models.IngredientBatch
	err = database.Transaction(ctx, l.db, "import_batches", func(tx *gorm.DB) error {
		var ingredients []models.Ingredient
		if err := tx.Where("deleted = ?", false).Find(&ingredients).Error; err != nil {
			return err
		}
		byName := make(map[string]uint, len(ingredients))
		for _, ing := range ingredients {
			byName[strings.ToLower(strings.TrimSpace(ing.Name))] = ing.ID
		}

		txl := l.WithTx(tx)
		for i := start; i < len(rows); i++ {
			row := rows[i]
			lineNo := i + 1
			// Boş satırları atla
			if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
				continue
			}

			name := strings.TrimSpace(row[0])
			ingredientID, ok := byName[strings.ToLower(name)]
			if !ok {
				res.Unmatched = append(res.Unmatched, name)
				continue
			}

			in, perr := parseBatchRow(row)
			if perr != nil {
				res.RowErrors[lineNo] = perr.Error()
				continue
			}
			in.IngredientID = ingredientID

			b, err := txl.ReceiveBatch(ctx, in)
			if err != nil {
				var v *apperr.ValidationError
				if errors.As(err, &v) {
					res.RowErrors[lineNo] = v.Error()
					continue
				}
				return err
			}
			received = append(received, b)
			res.BatchIDs = append(res.BatchIDs, b.ID)
			res.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("Excel'den parti aktarımı tamamlandı",
		zap.Int("imported", res.Imported),
		zap.Int("unmatched", len(res.Unmatched)),
		zap.Int("row_errors", len(res.RowErrors)),
	)
	if len(received) > 0 {
		now := l.now()
		evs := make([]events.Event, 0, len(received))
		for _, b := range received {
			evs = append(evs, events.Event{Type: events.BatchReceived, EntityID: b.ID, OccurredAt: now, Payload: b})
		}
		l.publish(ctx, evs...)
	}
	return res, nil
}

func parseBatchRow(row []string) (ReceiveInput, error) {
	var in ReceiveInput
	if len(row) < 4 {
		return in, fmt.Errorf("en az 4 sütun gerekli (malzeme, miktar, alış tarihi, son kullanma)")
	}

	qty, err := parseDecimal(row[1])
	if err != nil {
		return in, fmt.Errorf("miktar okunamadı: %q", row[1])
	}
	in.Quantity = qty

	if in.PurchaseDate, err = parseDate(row[2]); err != nil {
		return in, fmt.Errorf("alış tarihi okunamadı: %q", row[2])
	}
	if in.ExpiryDate, err = parseDate(row[3]); err != nil {
		return in, fmt.Errorf("son kullanma tarihi okunamadı: %q", row[3])
	}

	if len(row) > 4 && strings.TrimSpace(row[4]) != "" {
		if in.PurchasePrice, err = parseDecimal(row[4]); err != nil {
			return in, fmt.Errorf("alış fiyatı okunamadı: %q", row[4])
		}
	}
	if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
		sid, err := strconv.ParseUint(strings.TrimSpace(row[5]), 10, 64)
		if err != nil || sid == 0 {
			return in, fmt.Errorf("tedarikçi id geçersiz: %q", row[5])
		}
		id := uint(sid)
		in.SupplierID = &id
	}
	return in, nil
}

// parseDecimal: "12.5", "1.234,56" ve "12,5 TL" biçimlerini okur.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "TL", ""))
	if strings.Contains(s, ",") {
		// Türkçe biçim: binlik ayırıcı nokta, ondalık virgül
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

var dateLayouts = []string{"2006-01-02", "02.01.2006", "02/01/2006", "2006/01/02"}

// parseDate: Excel tarih seri numarasını ya da dateLayouts biçimlerinden birini okur.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial <= 0 || math.IsNaN(serial) || math.IsInf(serial, 0) {
			return time.Time{}, fmt.Errorf("geçersiz tarih seri numarası: %q", s)
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("tarih biçimi tanınmadı: %q", s)
}
