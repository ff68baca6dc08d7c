// Package excel renders training histories as xlsx workbooks and reads them back.
package excel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"goqem/domain/run"
	"goqem/internal/errors"
)

const (
	EpochSheet   = "Epochs"
	SummarySheet = "Summary"
)

var epochHeaders = []string{
	"epoch", "steps", "loss_d", "loss_g", "d_ideal", "d_noisy", "d_fake", "loss_mse",
	"metric", "metric_median", "metric_p95", "metric_max", "checkpointed", "duration_ms",
}

// HistoryWorkbook implements ports.HistoryReporter by writing one workbook per run
type HistoryWorkbook struct {
	path string
}

// NewHistoryWorkbook writes to path, replacing an existing file
func NewHistoryWorkbook(path string) *HistoryWorkbook {
	return &HistoryWorkbook{path: path}
}

// Path returns the workbook location
func (w *HistoryWorkbook) Path() string { return w.path }

// Report writes the Summary and Epochs sheets
func (w *HistoryWorkbook) Report(ctx context.Context, h *run.History) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return errors.StorageError(err, "failed to name summary sheet")
	}
	summary := [][2]interface{}{
		{"run_id", h.RunID.String()},
		{"kind", string(h.Kind)},
		{"started_at", h.StartedAt.String()},
		{"train_size", h.TrainSize},
		{"val_size", h.ValSize},
		{"best_metric", h.BestMetric},
		{"epochs", len(h.Epochs)},
		{"checkpoints", len(h.Improved())},
	}
	for i, kv := range summary {
		if err := setRow(f, SummarySheet, i+1, kv[0], kv[1]); err != nil {
			return errors.StorageError(err, "failed to write summary")
		}
	}

	if _, err := f.NewSheet(EpochSheet); err != nil {
		return errors.StorageError(err, "failed to create epochs sheet")
	}
	header := make([]interface{}, len(epochHeaders))
	for i, hd := range epochHeaders {
		header[i] = hd
	}
	if err := setRow(f, EpochSheet, 1, header...); err != nil {
		return errors.StorageError(err, "failed to write header")
	}
	for i, e := range h.Epochs {
		err := setRow(f, EpochSheet, i+2,
			e.Epoch, e.Steps, e.LossD, e.LossG, e.DIdeal, e.DNoisy, e.DFake, e.LossMSE,
			e.Metric, e.MetricMedian, e.MetricP95, e.MetricMax, e.Checkpointed, e.DurationMs)
		if err != nil {
			return errors.StorageError(err, fmt.Sprintf("failed to write epoch %d", e.Epoch))
		}
	}

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.StorageError(err, "failed to create report directory")
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return errors.StorageError(err, fmt.Sprintf("failed to save %s", w.path))
	}
	log.Info().Str("component", "excel").Str("path", w.path).Int("epochs", len(h.Epochs)).Msg("history report written")
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	for c, v := range values {
		cell, err := excelize.CoordinatesToCellName(c+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// ReadEpochs reads the Epochs sheet of a workbook written by Report
func ReadEpochs(path string) ([]run.EpochRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.StorageError(err, "failed to open history workbook")
	}
	defer f.Close()

	rows, err := f.GetRows(EpochSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.StorageError(err, fmt.Sprintf("failed to read %s", EpochSheet))
	}
	if len(rows) == 0 {
		return nil, errors.InvalidInput("history workbook has no header row")
	}

	out := make([]run.EpochRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseEpochRow(row)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("row %d: %v", i+2, err))
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseEpochRow(row []string) (run.EpochRecord, error) {
	if len(row) < len(epochHeaders) {
		return run.EpochRecord{}, fmt.Errorf("expected %d columns, got %d", len(epochHeaders), len(row))
	}
	ints := make([]int64, 0, 3)
	for _, idx := range []int{0, 1, 13} {
		v, err := strconv.ParseInt(row[idx], 10, 64)
		if err != nil {
			return run.EpochRecord{}, fmt.Errorf("column %s: %w", epochHeaders[idx], err)
		}
		ints = append(ints, v)
	}
	fl := make([]float64, 0, 10)
	for idx := 2; idx <= 11; idx++ {
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			return run.EpochRecord{}, fmt.Errorf("column %s: %w", epochHeaders[idx], err)
		}
		fl = append(fl, v)
	}
	checkpointed, err := strconv.ParseBool(row[12])
	if err != nil {
		return run.EpochRecord{}, fmt.Errorf("column checkpointed: %w", err)
	}
	return run.EpochRecord{
		Epoch: int(ints[0]), Steps: int(ints[1]),
		LossD: fl[0], LossG: fl[1], DIdeal: fl[2], DNoisy: fl[3], DFake: fl[4], LossMSE: fl[5],
		Metric: fl[6], MetricMedian: fl[7], MetricP95: fl[8], MetricMax: fl[9],
		Checkpointed: checkpointed, DurationMs: ints[2],
	}, nil
}
