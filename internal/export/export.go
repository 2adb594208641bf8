// Package export turns a log snapshot into spreadsheets: per-type log
// sheets, per-student sheets, a roster, a summary, a CSV archive and an
// attendance report.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pavelanni/classlog/internal/model"
	"github.com/pavelanni/classlog/internal/validate"
)

// Exporter runs the filter, materialize and serialize pipeline.
type Exporter struct {
	logger    *slog.Logger
	now       func() time.Time
	writeFile func(path string, write func(io.Writer) error) error

	// Unattended marks background exports. A locked destination is then
	// logged at warn level instead of error; it is still returned.
	Unattended bool
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides the time source used for report stamps.
func WithClock(now func() time.Time) Option {
	return func(x *Exporter) { x.now = now }
}

// WithUnattended marks the exporter as running without a user.
func WithUnattended(v bool) Option {
	return func(x *Exporter) { x.Unattended = v }
}

// NewExporter returns an exporter logging to logger, or to slog.Default()
// when logger is nil.
func NewExporter(logger *slog.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Exporter{logger: logger, now: time.Now, writeFile: atomicWrite}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// BuildSheets returns the sheets of a workbook export in output order:
// log sheets, student sheets, roster, summary.
func (x *Exporter) BuildSheets(snap *model.Snapshot, spec model.FilterSpec) ([]Sheet, Result, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, Result{}, err
	}
	res := Filter(snap.Entries, spec)
	if len(res.Entries) == 0 {
		return nil, res, ErrNoEntries
	}

	buckets := Group(res, spec)
	namer := NewSheetNamer(rosterTitle, summaryTitle)
	var sheets []Sheet
	for _, b := range buckets {
		sh := BuildLogSheet(b, snap)
		sh.Title = namer.Name(sh.Title)
		sheets = append(sheets, sh)
	}
	if spec.IncludeStudentInfo {
		sheets = append(sheets, BuildStudentSheets(res.Entries, snap, namer)...)
		if roster, ok := BuildRosterSheet(res.StudentIDs, snap); ok {
			sheets = append(sheets, roster)
		}
	}
	if spec.IncludeSummaries {
		sheets = append(sheets, BuildSummarySheet(Summarize(res.Entries, snap), spec))
	}
	x.logger.Debug("built workbook sheets",
		"entries", len(res.Entries), "students", len(res.StudentIDs), "sheets", len(sheets))
	return sheets, res, nil
}

// ExportWorkbook writes the filtered log as an .xlsx workbook to path.
func (x *Exporter) ExportWorkbook(ctx context.Context, snap *model.Snapshot, spec model.FilterSpec, path string) error {
	sheets, res, err := x.BuildSheets(snap, spec)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := renderWorkbook(sheets)
	if err != nil {
		return err
	}
	defer f.Close()

	err = x.writeFile(path, func(w io.Writer) error { return f.Write(w) })
	if err != nil {
		return x.reportWriteError(path, err)
	}
	x.logger.Info("exported workbook", "path", path, "entries", len(res.Entries), "sheets", len(sheets))
	return nil
}

// ExportCSVZip writes the filtered log as a ZIP archive of CSV files.
func (x *Exporter) ExportCSVZip(ctx context.Context, snap *model.Snapshot, spec model.FilterSpec, path string) error {
	if err := validate.Struct(spec); err != nil {
		return err
	}
	res := Filter(snap.Entries, spec)
	if len(res.Entries) == 0 {
		return ErrNoEntries
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var summary string
	if spec.IncludeSummaries {
		summary = summaryText(res, spec, x.now())
	}
	err := x.writeFile(path, func(w io.Writer) error { return writeCSVZip(w, res, snap, summary) })
	if err != nil {
		return x.reportWriteError(path, err)
	}
	x.logger.Info("exported csv archive", "path", path, "entries", len(res.Entries))
	return nil
}

func (x *Exporter) reportWriteError(path string, err error) error {
	switch {
	case errors.Is(err, ErrDestinationLocked) && x.Unattended:
		x.logger.Warn("export destination locked, skipping", "path", path, "error", err)
	case errors.Is(err, ErrDestinationLocked):
		x.logger.Error("export destination locked", "path", path, "error", err)
	default:
		x.logger.Error("export failed", "path", path, "error", err)
	}
	return fmt.Errorf("export %s: %w", path, err)
}
