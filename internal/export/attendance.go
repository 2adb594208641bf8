package export

import (
	"context"
	"io"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/pavelanni/classlog/internal/model"
	"github.com/pavelanni/classlog/internal/validate"
)

const (
	attendanceTitle = "Attendance Report"
	statusPresent   = "P"
	statusAbsent    = "A"
)

// AttendanceRow is one student's presence over the report days.
type AttendanceRow struct {
	StudentID string
	Name      string
	Statuses  []string
	Present   int
	Absent    int
}

// Attendance is a presence matrix: a student is present on a day when any
// log entry of any type exists for them on that day.
type Attendance struct {
	Days []time.Time
	Rows []AttendanceRow
}

// attendanceRange bounds a report. Days is capped so that the name column,
// one column per day and the two totals fit in excelize.MaxColumns.
type attendanceRange struct {
	Start time.Time `validate:"required"`
	End   time.Time `validate:"required,date_not_before=Start"`
	Days  int       `validate:"max=16381"`
}

// BuildAttendance computes presence for studentIDs on every day from start
// to end inclusive. Rows are sorted by surname and first name.
func BuildAttendance(snap *model.Snapshot, studentIDs []string, start, end time.Time) (Attendance, error) {
	start, end = dateOf(start), dateOf(end)
	days := int(end.Sub(start).Hours()/24) + 1
	if err := validate.Struct(attendanceRange{Start: start, End: end, Days: days}); err != nil {
		return Attendance{}, err
	}

	present := map[string]map[time.Time]bool{}
	for _, e := range snap.Entries {
		ts, err := model.ParseTimestamp(e.Timestamp)
		if err != nil {
			continue
		}
		if present[e.StudentID] == nil {
			present[e.StudentID] = map[time.Time]bool{}
		}
		present[e.StudentID][dateOf(ts)] = true
	}

	var att Attendance
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		att.Days = append(att.Days, d)
	}
	for _, id := range studentIDs {
		row := AttendanceRow{StudentID: id, Name: id}
		if st, ok := snap.Student(id); ok {
			row.Name = st.DisplayName()
		}
		for _, d := range att.Days {
			if present[id][d] {
				row.Statuses = append(row.Statuses, statusPresent)
				row.Present++
			} else {
				row.Statuses = append(row.Statuses, statusAbsent)
				row.Absent++
			}
		}
		att.Rows = append(att.Rows, row)
	}

	fold := cases.Fold()
	key := func(id string) (string, string) {
		st, _ := snap.Student(id)
		return fold.String(st.LastName), fold.String(st.FirstName)
	}
	slices.SortStableFunc(att.Rows, func(a, b AttendanceRow) int {
		al, af := key(a.StudentID)
		bl, bf := key(b.StudentID)
		if c := strings.Compare(al, bl); c != 0 {
			return c
		}
		return strings.Compare(af, bf)
	})
	return att, nil
}

// Sheet materializes the matrix with Total Present and Total Absent columns.
func (a Attendance) Sheet() Sheet {
	header := []any{"Student Name"}
	for _, d := range a.Days {
		header = append(header, d.Format("2006-01-02 (Mon)"))
	}
	header = append(header, "Total Present", "Total Absent")

	rows := [][]any{header}
	for _, r := range a.Rows {
		row := []any{r.Name}
		for _, s := range r.Statuses {
			row = append(row, s)
		}
		rows = append(rows, append(row, r.Present, r.Absent))
	}

	widths := make([]float64, len(header))
	centered := make([]int, 0, len(header)-1)
	for i := range widths {
		widths[i] = 15
		if i > 0 {
			centered = append(centered, i)
		}
	}
	widths[0] = 25
	return Sheet{
		Title:    attendanceTitle,
		Rows:     rows,
		Widths:   widths,
		Freeze:   "B2",
		Styles:   map[int]RowStyle{0: StyleHeader},
		Centered: centered,
	}
}

// ExportAttendance writes an attendance workbook to path. A nil studentIDs
// covers every student in the snapshot.
func (x *Exporter) ExportAttendance(ctx context.Context, snap *model.Snapshot, studentIDs []string, start, end time.Time, path string) error {
	if studentIDs == nil {
		for id := range snap.Students {
			studentIDs = append(studentIDs, id)
		}
		slices.Sort(studentIDs)
	}
	att, err := BuildAttendance(snap, studentIDs, start, end)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := renderWorkbook([]Sheet{att.Sheet()})
	if err != nil {
		return err
	}
	defer f.Close()

	if err := x.writeFile(path, func(w io.Writer) error { return f.Write(w) }); err != nil {
		return x.reportWriteError(path, err)
	}
	x.logger.Info("exported attendance", "path", path, "students", len(att.Rows), "days", len(att.Days))
	return nil
}
