package export

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/pavelanni/classlog/internal/model"
)

const (
	rosterTitle  = "Students Info"
	summaryTitle = "Summary"
)

var studentSheetPrefix = []string{
	"Timestamp", "Type", "Behavior/Homework/Quiz Name",
	"Correct/Did", "Total Qs/Total Selected", "Percentage", "Comment", "Day",
}

var studentSheetWidths = map[string]float64{
	"Timestamp":                   20,
	"Behavior/Homework/Quiz Name": 30,
	"Type":                        20,
	"Comment":                     40,
	"Day":                         12,
}

// BuildStudentSheets creates one sheet per student, in the order students
// first appear in entries.
func BuildStudentSheets(entries []model.LogEntry, snap *model.Snapshot, namer *SheetNamer) []Sheet {
	header := slices.Clone(studentSheetPrefix)
	for _, mt := range snap.QuizMarkTypes {
		header = append(header, mt.Name)
	}
	for _, mt := range snap.HomeworkMarkTypes {
		header = append(header, mt.Name)
	}
	for _, st := range snap.SessionTypes {
		header = append(header, st.Name)
	}
	widths := make([]float64, len(header))
	for i, h := range header {
		if w, ok := studentSheetWidths[h]; ok {
			widths[i] = w
		} else {
			widths[i] = float64(len(h) + 5)
		}
	}
	correctID := quizCorrectID(snap.QuizMarkTypes)

	var order []string
	sheets := map[string]*Sheet{}
	for _, e := range entries {
		sh, ok := sheets[e.StudentID]
		if !ok {
			sh = &Sheet{
				Title:  namer.Name(studentSheetName(snap, e.StudentID)),
				Rows:   [][]any{stringsToRow(header)},
				Widths: widths,
				Styles: map[int]RowStyle{0: StyleHeader},
			}
			sheets[e.StudentID] = sh
			order = append(order, e.StudentID)
		}
		sh.Rows = append(sh.Rows, studentRow(e, snap, len(header), correctID))
	}

	out := make([]Sheet, 0, len(order))
	for _, id := range order {
		out = append(out, *sheets[id])
	}
	return out
}

func studentSheetName(snap *model.Snapshot, id string) string {
	if st, ok := snap.Student(id); ok {
		return st.FirstName + "_" + st.LastName
	}
	return "Unknown_" + id
}

// quizCorrectID is the mark type named "Correct", falling back to the
// well-known id.
func quizCorrectID(types []model.MarkType) string {
	for _, mt := range types {
		if strings.EqualFold(mt.Name, "correct") {
			return mt.ID
		}
	}
	return model.MarkCorrect
}

func studentRow(e model.LogEntry, snap *model.Snapshot, width int, correctID string) []any {
	row := blankRow(width)
	if ts, err := model.ParseTimestamp(e.Timestamp); err == nil {
		row[0] = ts.Format("2006-01-02 15:04:05")
	} else {
		row[0] = e.Timestamp
	}
	row[1] = e.Type().Label()
	row[2] = e.Item
	row[6] = strings.ReplaceAll(e.Comment, "\n", " ")
	row[7] = e.Day()

	quizCols := len(studentSheetPrefix)
	homeworkCols := quizCols + len(snap.QuizMarkTypes)
	sessionCols := homeworkCols + len(snap.HomeworkMarkTypes)

	switch d := e.Detail.(type) {
	case model.QuizDetail:
		if d.Score != nil {
			row[3], row[4] = d.Score.Correct, d.Score.TotalAsked
			if d.Score.TotalAsked > 0 {
				row[5] = percentText(float64(d.Score.Correct), float64(d.Score.TotalAsked))
			}
			break
		}
		row[4] = d.NumQuestions
		if c, ok := d.Marks[correctID]; ok {
			row[3] = c
			if d.NumQuestions > 0 {
				row[5] = percentText(c, float64(d.NumQuestions))
			}
		}
		for i, mt := range snap.QuizMarkTypes {
			if v, ok := d.Marks[mt.ID]; ok {
				row[quizCols+i] = v
			}
		}
	case model.HomeworkDetail:
		for i, mt := range snap.HomeworkMarkTypes {
			if v, ok := d.Marks[mt.ID]; ok {
				row[homeworkCols+i] = v.Cell()
			}
		}
	case model.SelectSessionDetail:
		row[3], row[4] = SelectedDisplay(d), len(d.Selected)
	case model.YesNoSessionDetail:
		for i, s := range SessionStatuses(d, snap.SessionTypes) {
			row[sessionCols+i] = s
		}
	}
	return row
}

func percentText(part, whole float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(part/whole*100)))
}

var rosterHeader = []string{"Student ID", "First Name", "Last Name", "Nickname", "Full Name", "Gender", "Group Name"}

var rosterWidths = []float64{15, 15, 15, 15, 25, 10, 20}

// BuildRosterSheet lists the given students sorted by surname and first
// name. ok is false when fewer than two students are given.
func BuildRosterSheet(studentIDs []string, snap *model.Snapshot) (sheet Sheet, ok bool) {
	if len(studentIDs) < 2 {
		return Sheet{}, false
	}
	var students []model.Student
	for _, id := range studentIDs {
		if st, found := snap.Student(id); found {
			students = append(students, st)
		}
	}
	fold := cases.Fold()
	slices.SortStableFunc(students, func(a, b model.Student) int {
		if c := strings.Compare(fold.String(a.LastName), fold.String(b.LastName)); c != 0 {
			return c
		}
		return strings.Compare(fold.String(a.FirstName), fold.String(b.FirstName))
	})

	rows := [][]any{stringsToRow(rosterHeader)}
	for _, st := range students {
		rows = append(rows, []any{
			st.ID, st.FirstName, st.LastName, st.Nickname, st.FullName, st.Gender, snap.GroupName(st),
		})
	}
	return Sheet{
		Title:  rosterTitle,
		Rows:   rows,
		Widths: rosterWidths,
		Styles: map[int]RowStyle{0: StyleHeader},
	}, true
}
