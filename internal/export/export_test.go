package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/classlog/internal/model"
)

func intPtr(n int) *int { return &n }

func testSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Students: map[string]model.Student{
			"s1": {ID: "s1", FirstName: "Ann", LastName: "Lee", FullName: "Ann Lee", GroupID: "g1"},
			"s2": {ID: "s2", FirstName: "Bob", LastName: "Adams", FullName: "Bob Adams"},
			"s3": {ID: "s3", FirstName: "Cy", LastName: "Zed", FullName: "Cy Zed"},
		},
		Groups:            map[string]model.Group{"g1": {ID: "g1", Name: "Red Table"}},
		GroupsEnabled:     true,
		QuizMarkTypes:     model.DefaultQuizMarkTypes(),
		HomeworkMarkTypes: model.DefaultHomeworkMarkTypes(),
		SessionTypes: []model.SessionType{
			{ID: "ht1", Name: "Brought Materials"},
			{ID: "ht2", Name: "Reading"},
		},
		Entries: []model.LogEntry{
			{ID: "e1", Timestamp: "2024-03-04T09:00:00", StudentID: "s1", Item: "Talking",
				Comment: "line one\nline two", Detail: model.BehaviorDetail{}},
			{ID: "e2", Timestamp: "2024-03-04T10:00:00", StudentID: "s2", Item: "Fractions",
				Detail: model.QuizDetail{NumQuestions: 10, Marks: map[string]float64{model.MarkCorrect: 8}}},
			{ID: "e3", Timestamp: "2024-03-05T09:00:00", StudentID: "s1", Item: "Worksheet",
				Detail: model.HomeworkDetail{NumItems: intPtr(5), Marks: map[string]model.MarkValue{
					model.HomeworkComplete: model.Points(10),
					model.HomeworkEffort:   model.Label("Good"),
				}}},
			{ID: "e4", Timestamp: "2024-03-05T09:30:00", StudentID: "s2", Item: "Daily Check",
				Detail: model.YesNoSessionDetail{Statuses: map[string]string{"ht1": "yes", "ht2": "no"}}},
			{ID: "e5", Timestamp: "2024-03-06T08:00:00", StudentID: "s1", Item: "Packet",
				Detail: model.SelectSessionDetail{Selected: []string{"Complete", "Signed"}}},
			{ID: "e6", Timestamp: "2024-03-06T11:00:00", StudentID: "s3", Item: "Pop Quiz",
				Detail: model.QuizDetail{NumQuestions: 4, Score: &model.ScoreDetails{Correct: 3, TotalAsked: 4}}},
		},
	}
}

func sheetTitles(sheets []Sheet) []string {
	titles := make([]string, len(sheets))
	for i, sh := range sheets {
		titles[i] = sh.Title
	}
	return titles
}

func findSheet(t *testing.T, sheets []Sheet, title string) Sheet {
	t.Helper()
	for _, sh := range sheets {
		if sh.Title == title {
			return sh
		}
	}
	t.Fatalf("sheet %q not found in %v", title, sheetTitles(sheets))
	return Sheet{}
}

func newTestExporter() *Exporter {
	clock := func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	return NewExporter(nil, WithClock(clock))
}

func TestBuildSheetsDefaultLayout(t *testing.T) {
	sheets, res, err := newTestExporter().BuildSheets(testSnapshot(), model.DefaultFilterSpec())
	require.NoError(t, err)
	assert.Len(t, res.Entries, 6)
	assert.Equal(t, []string{
		"Behavior Log", "Quiz Log", "Homework Log", "Master Log",
		"Ann_Lee", "Bob_Adams", "Cy_Zed",
		"Students Info", "Summary",
	}, sheetTitles(sheets))
}

func TestBuildSheetsExcludedCategory(t *testing.T) {
	spec := model.DefaultFilterSpec()
	spec.IncludeHomework = false

	sheets, _, err := newTestExporter().BuildSheets(testSnapshot(), spec)
	require.NoError(t, err)
	assert.NotContains(t, sheetTitles(sheets), "Homework Log")

	summary := findSheet(t, sheets, "Summary")
	for _, row := range summary.Rows {
		for _, cell := range row {
			assert.NotEqual(t, "Homework Completion by Student", cell)
		}
	}
	assert.Equal(t, "Behavior Summary by Student", summary.Rows[2][0])
}

func TestRosterSuppression(t *testing.T) {
	x := newTestExporter()

	spec := model.DefaultFilterSpec()
	spec.Students = model.Selection{Mode: model.SelectSpecific, Values: []string{"s1"}}
	sheets, _, err := x.BuildSheets(testSnapshot(), spec)
	require.NoError(t, err)
	assert.NotContains(t, sheetTitles(sheets), rosterTitle)

	spec.Students.Values = []string{"s1", "s2"}
	sheets, _, err = x.BuildSheets(testSnapshot(), spec)
	require.NoError(t, err)
	roster := findSheet(t, sheets, rosterTitle)
	require.Len(t, roster.Rows, 3)
	// Sorted by surname: Adams before Lee.
	assert.Equal(t, "s2", roster.Rows[1][0])
	assert.Equal(t, "s1", roster.Rows[2][0])
	assert.Equal(t, "Red Table", roster.Rows[2][6])
}

func TestStudentInfoDisabled(t *testing.T) {
	spec := model.DefaultFilterSpec()
	spec.IncludeStudentInfo = false
	sheets, _, err := newTestExporter().BuildSheets(testSnapshot(), spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"Behavior Log", "Quiz Log", "Homework Log", "Master Log", "Summary"}, sheetTitles(sheets))
}

func TestBuildSheetsNoEntries(t *testing.T) {
	spec := model.DefaultFilterSpec()
	spec.Students = model.Selection{Mode: model.SelectSpecific, Values: []string{"nobody"}}
	_, _, err := newTestExporter().BuildSheets(testSnapshot(), spec)
	assert.ErrorIs(t, err, ErrNoEntries)
}

func TestBuildSheetsRejectsInvalidSpec(t *testing.T) {
	spec := model.DefaultFilterSpec()
	spec.BehaviorItems = model.Selection{Mode: "sometimes"}
	_, _, err := newTestExporter().BuildSheets(testSnapshot(), spec)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoEntries)
}

func TestExportWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.xlsx")
	err := newTestExporter().ExportWorkbook(context.Background(), testSnapshot(), model.DefaultFilterSpec(), path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{
		"Behavior Log", "Quiz Log", "Homework Log", "Master Log",
		"Ann_Lee", "Bob_Adams", "Cy_Zed",
		"Students Info", "Summary",
	}, f.GetSheetList())

	v, err := f.GetCellValue("Behavior Log", "H1")
	require.NoError(t, err)
	assert.Equal(t, "Behavior", v)
	v, err = f.GetCellValue("Behavior Log", "H2")
	require.NoError(t, err)
	assert.Equal(t, "Talking", v)

	rows, err := f.GetRows("Master Log")
	require.NoError(t, err)
	assert.Len(t, rows, 7)
	assert.Equal(t, "Log Type", rows[0][len(rows[0])-1])

	v, err = f.GetCellValue("Summary", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Log Summary", v)
}

func TestExportWorkbookReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("old contents"), 0o644))

	err := newTestExporter().ExportWorkbook(context.Background(), testSnapshot(), model.DefaultFilterSpec(), path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	f.Close()

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestAtomicWriteKeepsExistingOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("previous export"), 0o644))

	boom := errors.New("disk full")
	err := atomicWrite(path, func(w io.Writer) error {
		if _, err := w.Write([]byte("half a work")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous export", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestAtomicWriteMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "log.xlsx")
	err := atomicWrite(path, func(io.Writer) error { return nil })
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDestinationLocked)
}

func TestClassifyWriteError(t *testing.T) {
	locked := classifyWriteError("/tmp/x.xlsx", &fs.PathError{Op: "open", Path: "/tmp/x.xlsx", Err: fs.ErrPermission})
	assert.ErrorIs(t, locked, ErrDestinationLocked)
	assert.ErrorIs(t, locked, fs.ErrPermission)

	other := classifyWriteError("/tmp/x.xlsx", errors.New("short write"))
	assert.NotErrorIs(t, other, ErrDestinationLocked)
}

func TestExportWorkbookLongNameWithApostrophe(t *testing.T) {
	snap := testSnapshot()
	first := strings.Repeat("A", 28)
	snap.Students["s4"] = model.Student{ID: "s4", FirstName: first, LastName: "D'Angelo"}
	snap.Entries = append(snap.Entries, model.LogEntry{
		ID: "e7", Timestamp: "2024-03-06T12:00:00", StudentID: "s4", Item: "Talking", Detail: model.BehaviorDetail{},
	})
	path := filepath.Join(t.TempDir(), "log.xlsx")

	err := newTestExporter().ExportWorkbook(context.Background(), snap, model.DefaultFilterSpec(), path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), first+"_D")
}

func lockedWrite(path string, _ func(io.Writer) error) error {
	return classifyWriteError(path, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission})
}

// logLevels returns the level of every record with the given message.
func logLevels(t *testing.T, buf *bytes.Buffer, msg string) []string {
	t.Helper()
	var levels []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec["msg"] == msg {
			levels = append(levels, rec["level"].(string))
		}
	}
	return levels
}

func TestLockedDestination(t *testing.T) {
	tests := []struct {
		name       string
		unattended bool
		wantLevel  string
	}{
		{name: "interactive", unattended: false, wantLevel: "ERROR"},
		{name: "unattended", unattended: true, wantLevel: "WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			x := NewExporter(logger, WithUnattended(tt.unattended))
			x.writeFile = lockedWrite
			dir := t.TempDir()
			ctx := context.Background()

			err := x.ExportWorkbook(ctx, testSnapshot(), model.DefaultFilterSpec(), filepath.Join(dir, "log.xlsx"))
			require.ErrorIs(t, err, ErrDestinationLocked)
			err = x.ExportCSVZip(ctx, testSnapshot(), model.DefaultFilterSpec(), filepath.Join(dir, "log.zip"))
			require.ErrorIs(t, err, ErrDestinationLocked)

			msg := "export destination locked"
			if tt.unattended {
				msg = "export destination locked, skipping"
			}
			assert.Equal(t, []string{tt.wantLevel, tt.wantLevel}, logLevels(t, &buf, msg))
			assert.NotContains(t, buf.String(), `"msg":"export failed"`)
		})
	}
}

func TestExportWorkbookReadOnlyDestination(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	path := filepath.Join(t.TempDir(), "log.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("held by another program"), 0o444))

	err := newTestExporter().ExportWorkbook(context.Background(), testSnapshot(), model.DefaultFilterSpec(), path)
	require.ErrorIs(t, err, ErrDestinationLocked)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "held by another program", string(got))
}

func TestExportCSVZipRoundTrip(t *testing.T) {
	snap := testSnapshot()
	path := filepath.Join(t.TempDir(), "log.zip")
	err := newTestExporter().ExportCSVZip(context.Background(), snap, model.DefaultFilterSpec(), path)
	require.NoError(t, err)

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}
	require.Contains(t, files, "all_logs.csv")
	require.Contains(t, files, "students.csv")
	require.Contains(t, files, "summary.txt")

	records := readCSV(t, files["all_logs.csv"])
	require.Len(t, records, len(snap.Entries)+1)
	assert.Equal(t, logCSVHeader, records[0])

	col := map[string]int{}
	for i, h := range records[0] {
		col[h] = i
	}
	byTimestamp := map[string][]string{}
	for _, r := range records[1:] {
		byTimestamp[r[col["Timestamp"]]] = r
	}

	quiz := byTimestamp["2024-03-04T10:00:00"]
	var quizMarks map[string]float64
	require.NoError(t, json.Unmarshal([]byte(quiz[col["Marks_Data_JSON"]]), &quizMarks))
	assert.Equal(t, map[string]float64{model.MarkCorrect: 8}, quizMarks)
	assert.Equal(t, "", quiz[col["Score_Details_JSON"]])
	assert.Equal(t, "10", quiz[col["Num_Questions_Items"]])
	assert.Equal(t, "Quiz", quiz[col["Log_Type"]])

	hw := byTimestamp["2024-03-05T09:00:00"]
	var hwMarks map[string]model.MarkValue
	require.NoError(t, json.Unmarshal([]byte(hw[col["Marks_Data_JSON"]]), &hwMarks))
	assert.Equal(t, snap.Entries[2].Detail.(model.HomeworkDetail).Marks, hwMarks)

	yesNo := byTimestamp["2024-03-05T09:30:00"]
	var statuses map[string]string
	require.NoError(t, json.Unmarshal([]byte(yesNo[col["Homework_Details_JSON"]]), &statuses))
	assert.Equal(t, map[string]string{"ht1": "yes", "ht2": "no"}, statuses)

	sel := byTimestamp["2024-03-06T08:00:00"]
	var selected struct {
		Options []string `json:"selected_options"`
	}
	require.NoError(t, json.Unmarshal([]byte(sel[col["Homework_Details_JSON"]]), &selected))
	assert.Equal(t, []string{"Complete", "Signed"}, selected.Options)

	live := byTimestamp["2024-03-06T11:00:00"]
	var score model.ScoreDetails
	require.NoError(t, json.Unmarshal([]byte(live[col["Score_Details_JSON"]]), &score))
	assert.Equal(t, model.ScoreDetails{Correct: 3, TotalAsked: 4}, score)

	students := readCSV(t, files["students.csv"])
	assert.Len(t, students, 4)

	summary := readAll(t, files["summary.txt"])
	assert.Contains(t, summary, "Log Export Summary - 2024-03-10 12:00")
	assert.Contains(t, summary, "Date Range: Any to Any")
	assert.Contains(t, summary, "Total Log Entries Exported: 6")
}

func TestExportCSVZipWithoutSummary(t *testing.T) {
	spec := model.DefaultFilterSpec()
	spec.IncludeSummaries = false
	path := filepath.Join(t.TempDir(), "log.zip")
	require.NoError(t, newTestExporter().ExportCSVZip(context.Background(), testSnapshot(), spec, path))

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"all_logs.csv", "students.csv"}, names)
}

func readAll(t *testing.T, f *zip.File) string {
	t.Helper()
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func readCSV(t *testing.T, f *zip.File) [][]string {
	t.Helper()
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	records, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	return records
}
