package reporting

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/tpsl-guard/internal/calibration"
	"github.com/ducminhle1904/tpsl-guard/internal/ladder"
)

const (
	LadderSheet      = "Ladder"
	CalibrationSheet = "Calibration"
)

// LadderEntry is one symbol's policy, with its plan when one was built
type LadderEntry struct {
	Symbol string
	Policy ladder.Policy
	Plan   *ladder.Plan
}

// ExcelStyles holds the style ids shared by both sheets
type ExcelStyles struct {
	HeaderStyle  int
	NumberStyle  int
	DefaultStyle int
}

// WriteWorkbook writes the ladder and calibration sheets to path
func WriteWorkbook(path string, ladders []LadderEntry, estimates []calibration.Estimate) error {
	if err := EnsureDirectoryExists(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), LadderSheet)
	if _, err := fx.NewSheet(CalibrationSheet); err != nil {
		return err
	}

	styles, err := createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := writeLadderSheet(fx, LadderSheet, ladders, styles); err != nil {
		return err
	}
	if err := writeCalibrationSheet(fx, CalibrationSheet, estimates, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}

	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: border,
	})
	if err != nil {
		return styles, err
	}

	// 0.00
	styles.NumberStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    2,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    border,
	})
	if err != nil {
		return styles, err
	}

	// rows that fell back to the default stop distance
	styles.DefaultStyle, err = fx.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Italic: true, Color: "808080"},
		Border: border,
	})
	return styles, err
}

func writeHeader(fx *excelize.File, sheet string, headers []string, styles ExcelStyles) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}
}

func writeRow(fx *excelize.File, sheet string, row int, values []interface{}) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		fx.SetCellValue(sheet, cell, v)
	}
}

// writeLadderSheet writes one row per rung. Entries without a plan list
// their offsets only.
func writeLadderSheet(fx *excelize.File, sheet string, ladders []LadderEntry, styles ExcelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 12) // Symbol
	fx.SetColWidth(sheet, "B", "C", 10) // Class, Shape
	fx.SetColWidth(sheet, "D", "D", 8)  // Rung
	fx.SetColWidth(sheet, "E", "I", 14)

	writeHeader(fx, sheet, []string{
		"Symbol", "Class", "Shape", "Rung", "Offset (bps)", "Price", "Qty", "Stop Loss", "R:R",
	}, styles)

	row := 2
	for _, entry := range ladders {
		symbol := strings.ToUpper(entry.Symbol)
		for i, offset := range entry.Policy.TPOffsetsBps {
			values := []interface{}{symbol, entry.Policy.Class.String(), entry.Policy.Shape, i + 1, offset}
			if p := entry.Plan; p != nil && i < len(p.Rungs) {
				stop := ""
				if p.HasStopLoss {
					stop = p.FormatPrice(p.StopLoss)
				}
				values = append(values, p.FormatPrice(p.Rungs[i].Price), p.FormatQty(p.Rungs[i].Qty), stop, p.RewardRisk)
			}
			writeRow(fx, sheet, row, values)

			cell, _ := excelize.CoordinatesToCellName(5, row)
			fx.SetCellStyle(sheet, cell, cell, styles.NumberStyle)
			row++
		}
	}

	return fx.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeCalibrationSheet(fx *excelize.File, sheet string, estimates []calibration.Estimate, styles ExcelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 12)
	fx.SetColWidth(sheet, "B", "G", 14)

	writeHeader(fx, sheet, []string{
		"Symbol", "Samples", "Skipped", "Percentile", "Index", "Estimate (bps)", "Source",
	}, styles)

	for i, e := range estimates {
		row := i + 2
		source := "history"
		if e.UsedDefault {
			source = "default"
		}
		writeRow(fx, sheet, row, []interface{}{e.Symbol, e.Samples, e.Skipped, e.Percentile, e.Index, e.Bps, source})

		cell, _ := excelize.CoordinatesToCellName(6, row)
		fx.SetCellStyle(sheet, cell, cell, styles.NumberStyle)
		if e.UsedDefault {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(7, row)
			fx.SetCellStyle(sheet, first, last, styles.DefaultStyle)
		}
	}
	return nil
}
