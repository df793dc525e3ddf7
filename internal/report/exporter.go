// Package report renders batch results to spreadsheet files for the
// operations team reviewing disputed deliveries.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/forkline/reconciliation/internal/domain/entity"
	"github.com/forkline/reconciliation/internal/recon"
)

// Exporter writes batch reports as xlsx workbooks
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a new report exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// Export writes one workbook for a finished batch: a summary sheet with the
// run counters, a records sheet with one row per order, and a discrepancies
// sheet with one row per detected difference.
func (e *Exporter) Export(result *recon.BatchResult, records []*entity.ReconciliationRecord, outputPath string) error {
	e.logger.Info("Exporting batch report",
		zap.String("batch_id", result.BatchID),
		zap.String("output_path", outputPath))

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeSummary(f, result); err != nil {
		return err
	}
	if err := e.writeRecords(f, records); err != nil {
		return err
	}
	if err := e.writeDiscrepancies(f, records); err != nil {
		return err
	}

	// The default sheet is replaced by Summary.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		e.logger.Warn("Failed to drop default sheet", zap.Error(err))
	}
	idx, err := f.GetSheetIndex("Summary")
	if err != nil {
		return fmt.Errorf("failed to locate summary sheet: %w", err)
	}
	f.SetActiveSheet(idx)

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	e.logger.Info("Batch report exported",
		zap.String("batch_id", result.BatchID),
		zap.Int("records", len(records)))
	return nil
}

func (e *Exporter) writeSummary(f *excelize.File, result *recon.BatchResult) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Batch ID", result.BatchID},
		{"Supplier", result.SupplierID},
		{"Started", result.StartedAt.Format(time.RFC3339)},
		{"Completed", result.CompletedAt.Format(time.RFC3339)},
		{"Processed", result.ProcessedCount},
		{"Succeeded", result.SucceededCount},
		{"Disputed", result.DisputedCount},
		{"Failed", result.FailedCount},
		{"Pending delivery", result.PendingDeliveryCount},
		{"Cancelled", result.Cancelled},
	}
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	// Failed orders and their causes, sorted for stable output.
	if len(result.PerOrderErrors) > 0 {
		base := len(rows) + 2
		header := []interface{}{"Failed order", "Error"}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", base), &header); err != nil {
			return fmt.Errorf("failed to write error header: %w", err)
		}
		ids := make([]string, 0, len(result.PerOrderErrors))
		for id := range result.PerOrderErrors {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for i, id := range ids {
			row := []interface{}{id, result.PerOrderErrors[id]}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", base+1+i), &row); err != nil {
				return fmt.Errorf("failed to write error row: %w", err)
			}
		}
	}
	return nil
}

func (e *Exporter) writeRecords(f *excelize.File, records []*entity.ReconciliationRecord) error {
	const sheet = "Records"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create records sheet: %w", err)
	}

	header := []interface{}{"Order", "State", "Confidence", "Auto resolvable", "Discrepancies", "Match method", "Resolved by", "Updated"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write records header: %w", err)
	}

	for i, rec := range records {
		method := ""
		if rec.Candidate != nil {
			method = string(rec.Candidate.Method)
		}
		row := []interface{}{
			rec.OrderID,
			rec.State,
			rec.Confidence,
			rec.AutoResolvable,
			len(rec.Discrepancies),
			method,
			rec.HumanResolvedBy,
			rec.UpdatedAt.Format(time.RFC3339),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("failed to write record row: %w", err)
		}
	}
	return nil
}

func (e *Exporter) writeDiscrepancies(f *excelize.File, records []*entity.ReconciliationRecord) error {
	const sheet = "Discrepancies"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create discrepancies sheet: %w", err)
	}

	header := []interface{}{"Order", "Type", "Severity", "Product", "Expected", "Actual", "Resolution", "Notes"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write discrepancies header: %w", err)
	}

	rowNum := 2
	for _, rec := range records {
		for i, d := range rec.Discrepancies {
			action, notes := "", ""
			if i < len(rec.Resolutions) {
				action = string(rec.Resolutions[i].Action)
				notes = rec.Resolutions[i].Notes
			}
			row := []interface{}{
				rec.OrderID,
				string(d.Type),
				string(d.Severity),
				d.ProductCode,
				d.Expected,
				d.Actual,
				action,
				notes,
			}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", rowNum), &row); err != nil {
				return fmt.Errorf("failed to write discrepancy row: %w", err)
			}
			rowNum++
		}
	}
	return nil
}
