package export

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrDestinationLocked is returned when the destination cannot be
	// written, typically because another program holds it open.
	ErrDestinationLocked = errors.New("destination is locked or not writable")
	// ErrNoEntries is returned when the filter leaves nothing to export.
	ErrNoEntries = errors.New("no log entries match the filter")
)

type workbookStyles struct {
	header    int
	title     int
	section   int
	subheader int
	centered  int
}

func newWorkbookStyles(f *excelize.File) (workbookStyles, error) {
	var s workbookStyles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	}); err != nil {
		return s, err
	}
	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}); err != nil {
		return s, err
	}
	if s.section, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, err
	}
	if s.subheader, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Italic: true}}); err != nil {
		return s, err
	}
	s.centered, err = f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Horizontal: "center"}})
	return s, err
}

func (s workbookStyles) of(style RowStyle) int {
	switch style {
	case StyleHeader:
		return s.header
	case StyleTitle:
		return s.title
	case StyleSection:
		return s.section
	case StyleSubheader:
		return s.subheader
	}
	return 0
}

// renderWorkbook lays the sheets out in order in a new workbook.
func renderWorkbook(sheets []Sheet) (*excelize.File, error) {
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	f := excelize.NewFile()
	styles, err := newWorkbookStyles(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create styles: %w", err)
	}
	for i, sh := range sheets {
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), sh.Title)
		} else {
			_, err = f.NewSheet(sh.Title)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %q: %w", sh.Title, err)
		}
		if err := writeSheet(f, sh, styles); err != nil {
			f.Close()
			return nil, fmt.Errorf("write sheet %q: %w", sh.Title, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, sh Sheet, styles workbookStyles) error {
	name := sh.Title
	for r, row := range sh.Rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return err
		}
		if style, ok := sh.Styles[r]; ok {
			last, _ := excelize.CoordinatesToCellName(len(row), r+1)
			if err := f.SetCellStyle(name, cell, last, styles.of(style)); err != nil {
				return err
			}
		}
	}
	for _, c := range sh.Centered {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if len(sh.Rows) > 1 {
			if err := f.SetCellStyle(name, fmt.Sprintf("%s2", col), fmt.Sprintf("%s%d", col, len(sh.Rows)), styles.centered); err != nil {
				return err
			}
		}
	}
	for i, w := range sh.Widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(name, col, col, w); err != nil {
			return err
		}
	}
	if sh.Freeze != "" {
		if err := f.SetPanes(name, freezePanes(sh.Freeze)); err != nil {
			return err
		}
	}
	return nil
}

func freezePanes(topLeft string) *excelize.Panes {
	col, row, err := excelize.CellNameToCoordinates(topLeft)
	if err != nil {
		return nil
	}
	p := &excelize.Panes{
		Freeze:      true,
		XSplit:      col - 1,
		YSplit:      row - 1,
		TopLeftCell: topLeft,
		ActivePane:  "bottomLeft",
	}
	if p.XSplit > 0 {
		p.ActivePane = "bottomRight"
	}
	return p
}

// atomicWrite streams into a temporary file next to path and renames it
// over path only after write succeeded. A failure leaves any existing file
// at path untouched.
func atomicWrite(path string, write func(io.Writer) error) (err error) {
	if err := checkWritable(path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return classifyWriteError(path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return fmt.Errorf("serialize %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return classifyWriteError(path, err)
	}
	return nil
}

// checkWritable opens an existing destination for writing without
// truncating it, so that a file held or protected elsewhere is reported
// before any work is done.
func checkWritable(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return classifyWriteError(path, err)
	}
	return f.Close()
}

func classifyWriteError(path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %s: %w", ErrDestinationLocked, path, err)
	}
	return fmt.Errorf("write %s: %w", path, err)
}
