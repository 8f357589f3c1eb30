package analytics

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

var workbookHeader = []interface{}{"Yemek ID", "Yemek", "Satış Fiyatı", "Malzeme Maliyeti", "Kâr Marjı", "Maliyet Oranı"}

// WriteWorkbook, raporu her liste için ayrı sayfa içeren bir .xlsx olarak yazar.
func WriteWorkbook(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheets := []struct {
		name string
		rows []DishProfit
	}{
		{"En Karli", r.MostProfitable},
		{"En Az Karli", r.LeastProfitable},
		{"Yuksek Maliyet", r.HighCost},
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return fmt.Errorf("sayfa adı verilemedi: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("sayfa oluşturulamadı: %w", err)
		}
		if err := writeSheet(f, s.name, s.rows); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("excel yazılamadı: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows []DishProfit) error {
	header := workbookHeader
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("başlık yazılamadı: %w", err)
	}
	for i, p := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{p.DishID, p.Name, p.SellingPrice, p.IngredientCost, p.Margin, p.CostRatio}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("satır yazılamadı: %w", err)
		}
	}
	return nil
}
