package export

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/classlog/internal/model"
)

func bucketOf(t *testing.T, kind Kind) Bucket {
	t.Helper()
	res := Filter(testSnapshot().Entries, model.DefaultFilterSpec())
	for _, b := range Group(res, model.DefaultFilterSpec()) {
		if b.Kind == kind {
			return b
		}
	}
	t.Fatalf("no bucket of kind %d", kind)
	return Bucket{}
}

func TestBuildLogSheetHomework(t *testing.T) {
	snap := testSnapshot()
	sh := BuildLogSheet(bucketOf(t, KindHomework), snap)

	assert.Equal(t, []string{
		"Timestamp", "Date", "Time", "Day", "Student ID", "First Name", "Last Name",
		"Homework Type/Session Name", "Num Items",
		"Complete/Did", "Incomplete", "Not Done", "Effort",
		"Homework Score (Total Pts)", "Homework Effort",
		"Brought Materials", "Reading",
		"Comment",
	}, sh.Header())
	assert.Equal(t, "A2", sh.Freeze)
	require.Len(t, sh.Rows, 4)

	graded := sh.Rows[1]
	assert.Equal(t, "2024-03-05", graded[sh.Column("Date")])
	assert.Equal(t, "09:00:00", graded[sh.Column("Time")])
	assert.Equal(t, "Tuesday", graded[sh.Column("Day")])
	assert.Equal(t, 5, graded[sh.Column("Num Items")])
	assert.Equal(t, float64(10), graded[sh.Column("Complete/Did")])
	assert.Equal(t, "Good", graded[sh.Column("Effort")])
	assert.Equal(t, float64(10), graded[sh.Column("Homework Score (Total Pts)")])
	assert.Equal(t, "Good", graded[sh.Column("Homework Effort")])

	yesNo := sh.Rows[2]
	assert.Equal(t, "Yes", yesNo[sh.Column("Brought Materials")])
	assert.Equal(t, "No", yesNo[sh.Column("Reading")])
	assert.Equal(t, "", yesNo[sh.Column("Num Items")])

	selected := sh.Rows[3]
	assert.Equal(t, 2, selected[sh.Column("Num Items")])
	assert.Equal(t, "Complete, Signed", selected[sh.Column("Complete/Did")])
}

func TestBuildLogSheetQuiz(t *testing.T) {
	sh := BuildLogSheet(bucketOf(t, KindQuiz), testSnapshot())
	require.Len(t, sh.Rows, 3)
	score := sh.Column("Quiz Score (%)")
	require.GreaterOrEqual(t, score, 0)

	assert.Equal(t, 80.0, sh.Rows[1][score])
	assert.Equal(t, float64(8), sh.Rows[1][sh.Column("Correct")])
	assert.Equal(t, 75.0, sh.Rows[2][score])
	assert.Equal(t, "", sh.Rows[2][sh.Column("Correct")])
	assert.Equal(t, -1, sh.Column("Log Type"))
}

func TestBuildLogSheetMaster(t *testing.T) {
	sh := BuildLogSheet(bucketOf(t, KindMaster), testSnapshot())
	header := sh.Header()
	assert.Equal(t, "Log Type", header[len(header)-1])
	assert.Equal(t, "Comment", header[len(header)-2])
	require.Len(t, sh.Rows, 7)

	logType := sh.Column("Log Type")
	assert.Equal(t, "Behavior", sh.Rows[1][logType])
	assert.Equal(t, "Talking", sh.Rows[1][sh.Column("Behavior")])
	assert.Equal(t, "", sh.Rows[1][sh.Column("Quiz Name")])
	assert.Equal(t, "Homework Session (Select)", sh.Rows[5][logType])
}

func TestLogSheetWidths(t *testing.T) {
	snap := testSnapshot()
	snap.Entries[0].Comment = strings.Repeat("x", 80)
	b := Bucket{Kind: KindBehavior, Title: "Behavior Log", Entries: snap.Entries[:1]}
	sh := BuildLogSheet(b, snap)

	require.Len(t, sh.Widths, len(sh.Header()))
	assert.Equal(t, float64(21), sh.Widths[sh.Column("Timestamp")])
	assert.Equal(t, float64(10), sh.Widths[sh.Column("Day")])
	assert.Equal(t, float64(50), sh.Widths[sh.Column("Comment")])
}

func TestBuildStudentSheets(t *testing.T) {
	snap := testSnapshot()
	snap.Students["s4"] = model.Student{ID: "s4", FirstName: "ann", LastName: "lee"}
	entries := append(snap.Entries, model.LogEntry{
		Timestamp: "2024-03-07T09:00:00", StudentID: "s4", Item: "Talking", Detail: model.BehaviorDetail{},
	})

	sheets := BuildStudentSheets(entries, snap, NewSheetNamer())
	assert.Equal(t, []string{"Ann_Lee", "Bob_Adams", "Cy_Zed", "ann_lee_2"}, sheetTitles(sheets))

	ann := sheets[0]
	header := ann.Header()
	assert.Equal(t, studentSheetPrefix, header[:len(studentSheetPrefix)])
	assert.Len(t, header, len(studentSheetPrefix)+4+4+2)
	require.Len(t, ann.Rows, 4)
	assert.Equal(t, "2024-03-04 09:00:00", ann.Rows[1][0])
	assert.Equal(t, "line one line two", ann.Rows[1][6])
	assert.Equal(t, "Complete, Signed", ann.Rows[3][3])
	assert.Equal(t, 2, ann.Rows[3][4])
	assert.Equal(t, float64(20), ann.Widths[0])
	assert.Equal(t, float64(len("Correct/Did")+5), ann.Widths[3])

	bob := sheets[1]
	assert.Equal(t, float64(8), bob.Rows[1][3])
	assert.Equal(t, 10, bob.Rows[1][4])
	assert.Equal(t, "80%", bob.Rows[1][5])
	assert.Equal(t, "Yes", bob.Rows[2][bob.Column("Brought Materials")])

	cy := sheets[2]
	assert.Equal(t, 3, cy.Rows[1][3])
	assert.Equal(t, 4, cy.Rows[1][4])
	assert.Equal(t, "75%", cy.Rows[1][5])
}

func TestBuildSummarySheet(t *testing.T) {
	snap := testSnapshot()
	sh := BuildSummarySheet(Summarize(snap.Entries, snap), model.DefaultFilterSpec())

	assert.Equal(t, StyleTitle, sh.Styles[0])
	var sections []any
	for i, row := range sh.Rows {
		if sh.Styles[i] == StyleSection {
			sections = append(sections, row[0])
		}
	}
	assert.Equal(t, []any{"Behavior Summary by Student", "Quiz Averages by Student", "Homework Completion by Student"}, sections)
	assert.Equal(t, []float64{25, 25, 25, 25}, sh.Widths)

	var quizRow []any
	for _, row := range sh.Rows {
		if len(row) == 4 && row[1] == "Fractions" {
			quizRow = row
		}
	}
	require.NotNil(t, quizRow)
	assert.Equal(t, "80.00%", quizRow[2])
	assert.Equal(t, 1, quizRow[3])
}

func TestSheetNamer(t *testing.T) {
	n := NewSheetNamer("Summary", "Students Info")

	assert.Equal(t, "Summary_2", n.Name("Summary"))
	assert.Equal(t, "students info_2", n.Name("students info"))
	assert.Equal(t, "a_b_c_d", n.Name("a[b]c:d"))
	assert.Equal(t, "quoted", n.Name("'quoted'"))
	assert.Equal(t, "Sheet", n.Name("   "))

	long := strings.Repeat("n", 40)
	first := n.Name(long)
	second := n.Name(long)
	assert.Equal(t, 31, utf8.RuneCountInString(first))
	assert.Equal(t, strings.Repeat("n", 29)+"_2", second)

	quoted := strings.Repeat("q", 28) + "'zz"
	assert.Equal(t, quoted, n.Name(quoted))
	assert.Equal(t, strings.Repeat("q", 28)+"_2", n.Name(quoted))
}

func TestSanitizeSheetName(t *testing.T) {
	tests := map[string]string{
		"Ann_Lee":       "Ann_Lee",
		"what?*/\\now":  "what____now",
		"  spaced  ":    "spaced",
		"Ёлка_Пушистая": "Ёлка_Пушистая",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeSheetName(in), in)
	}
	assert.Equal(t, 31, utf8.RuneCountInString(SanitizeSheetName(strings.Repeat("й", 50))))

	// Truncation must not leave a quote or blank at the end.
	assert.Equal(t, strings.Repeat("A", 28)+"_D", SanitizeSheetName(strings.Repeat("A", 28)+"_D'Angelo"))
	assert.Equal(t, strings.Repeat("B", 29), SanitizeSheetName(strings.Repeat("B", 29)+" 'x"))
}
