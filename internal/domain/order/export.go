package order

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	ExportFilename     = "pharma-report.csv"
	ExportXLSXFilename = "pharma-report.xlsx"
	ExportSheet        = "Orders"
	MIMEXLSX           = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportHeader is the column order of both export formats.
var ExportHeader = []string{
	"orderID", "orderDate", "patientMRN", "patientFirstName", "patientLastName",
	"patientDOB", "patientSex", "providerNPI", "providerName", "medication",
	"primaryDiagnosis", "additionalDiagnoses", "medicationHistory",
}

func (e *ExportRow) record() []string {
	return []string{
		e.OrderID.String(),
		e.OrderDate.UTC().Format(time.RFC3339Nano),
		e.PatientMRN,
		e.PatientFirstName,
		e.PatientLastName,
		e.PatientDOB.Format("2006-01-02"),
		e.PatientSex,
		e.ProviderNPI,
		e.ProviderName,
		e.Medication,
		e.PrimaryDiagnosis,
		strings.Join(e.AdditionalDiagnoses, "; "),
		strings.Join(e.MedicationHistory, "; "),
	}
}

// WriteCSV writes the header followed by one line per row.
func WriteCSV(w io.Writer, rows []*ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.OrderID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX renders the same table as WriteCSV into a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []*ExportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ExportSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := setRow(f, 1, ExportHeader); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(ExportHeader))
	if err != nil {
		return fmt.Errorf("last column: %w", err)
	}
	if err := f.SetCellStyle(ExportSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}
	if err := f.SetColWidth(ExportSheet, "A", lastCol, 20); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	for i, r := range rows {
		if err := setRow(f, i+2, r.record()); err != nil {
			return err
		}
	}

	if err := f.SetPanes(ExportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	if err := f.SetSheetRow(ExportSheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
