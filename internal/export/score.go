package export

import (
	"math"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pavelanni/classlog/internal/model"
)

// QuizScore returns the percentage score of a quiz entry. ok is false when
// no score can be derived (nothing possible and nothing earned, or a live
// session with no questions asked).
func QuizScore(d model.QuizDetail, types []model.MarkType) (percent float64, ok bool) {
	if d.Score != nil {
		if d.Score.TotalAsked <= 0 {
			return 0, false
		}
		return 100 * float64(d.Score.Correct) / float64(d.Score.TotalAsked), true
	}

	var earned, extra, possible float64
	for _, mt := range types {
		pts := d.Marks[mt.ID]
		if pts <= 0 {
			continue
		}
		if mt.IsExtraCredit {
			extra += pts * mt.DefaultPoints
		} else {
			earned += pts * mt.DefaultPoints
		}
	}
	if i := slices.IndexFunc(types, func(mt model.MarkType) bool { return mt.ID == model.MarkCorrect }); i >= 0 && d.NumQuestions > 0 {
		possible = types[i].DefaultPoints * float64(d.NumQuestions)
	}

	switch {
	case possible > 0:
		return 100 * (earned + extra) / possible, true
	case earned+extra > 0:
		return 100, true
	}
	return 0, false
}

// HomeworkTotals sums the numeric marks of a graded homework entry and
// returns the effort mark separately.
func HomeworkTotals(d model.HomeworkDetail) (total float64, effort model.MarkValue) {
	for _, v := range d.Marks {
		if v.IsNumber {
			total += v.Number
		}
	}
	return total, d.Marks[model.HomeworkEffort]
}

// SessionStatuses renders a yes/no session as one capitalised status per
// configured session type, blank where the type was not recorded.
func SessionStatuses(d model.YesNoSessionDetail, types []model.SessionType) []string {
	title := cases.Title(language.English)
	out := make([]string, len(types))
	for i, st := range types {
		if s, ok := d.Statuses[st.ID]; ok {
			out[i] = title.String(strings.ToLower(s))
		}
	}
	return out
}

// SelectedDisplay joins the selected options for display.
func SelectedDisplay(d model.SelectSessionDetail) string {
	return strings.Join(d.Selected, ", ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BehaviorCount is one row of the behavior summary.
type BehaviorCount struct {
	StudentID string
	Student   string
	Item      string
	Count     int
}

// QuizAverage is one row of the quiz summary. Attempts counts every logged
// quiz; Average is taken over the attempts that produced a score.
type QuizAverage struct {
	StudentID string
	Student   string
	Item      string
	Average   float64
	Attempts  int

	scored int
}

// HomeworkTally is one row of the homework summary. Points for session
// entries are an approximation derived from mark type configuration.
type HomeworkTally struct {
	StudentID string
	Student   string
	Item      string
	Count     int
	Points    float64
}

// Summary holds the per student and item aggregates.
type Summary struct {
	Behavior []BehaviorCount
	Quiz     []QuizAverage
	Homework []HomeworkTally
}

type summaryKey struct {
	student string
	item    string
}

// Summarize aggregates entries by (student, item). Rows are ordered by
// student surname and then item name, both case-insensitively.
func Summarize(entries []model.LogEntry, snap *model.Snapshot) Summary {
	behavior := map[summaryKey]*BehaviorCount{}
	quiz := map[summaryKey]*QuizAverage{}
	homework := map[summaryKey]*HomeworkTally{}

	var completePoints float64
	for _, mt := range snap.HomeworkMarkTypes {
		if mt.ID == model.HomeworkComplete {
			completePoints = mt.DefaultPoints
		}
	}

	for _, e := range entries {
		k := summaryKey{student: e.StudentID, item: e.Item}
		name := studentName(snap, e.StudentID)
		switch d := e.Detail.(type) {
		case model.BehaviorDetail:
			row, ok := behavior[k]
			if !ok {
				row = &BehaviorCount{StudentID: e.StudentID, Student: name, Item: e.Item}
				behavior[k] = row
			}
			row.Count++
		case model.QuizDetail:
			row, ok := quiz[k]
			if !ok {
				row = &QuizAverage{StudentID: e.StudentID, Student: name, Item: e.Item}
				quiz[k] = row
			}
			row.Attempts++
			if pct, ok := QuizScore(d, snap.QuizMarkTypes); ok {
				row.Average += pct
				row.scored++
			}
		default:
			if !e.Type().IsHomework() {
				continue
			}
			row, ok := homework[k]
			if !ok {
				row = &HomeworkTally{StudentID: e.StudentID, Student: name, Item: e.Item}
				homework[k] = row
			}
			row.Count++
			row.Points += entryPoints(e, snap.HomeworkMarkTypes, completePoints)
		}
	}

	var sum Summary
	for _, row := range behavior {
		sum.Behavior = append(sum.Behavior, *row)
	}
	for _, row := range quiz {
		if row.scored > 0 {
			row.Average /= float64(row.scored)
		}
		sum.Quiz = append(sum.Quiz, *row)
	}
	for _, row := range homework {
		sum.Homework = append(sum.Homework, *row)
	}

	order := newSummaryOrder(snap)
	slices.SortFunc(sum.Behavior, func(a, b BehaviorCount) int { return order.compare(a.StudentID, a.Item, b.StudentID, b.Item) })
	slices.SortFunc(sum.Quiz, func(a, b QuizAverage) int { return order.compare(a.StudentID, a.Item, b.StudentID, b.Item) })
	slices.SortFunc(sum.Homework, func(a, b HomeworkTally) int { return order.compare(a.StudentID, a.Item, b.StudentID, b.Item) })
	return sum
}

// entryPoints applies the session heuristic: each "yes" is worth the
// complete mark's default points and each selected option named after a
// homework mark type is worth that type's default points.
func entryPoints(e model.LogEntry, types []model.MarkType, completePoints float64) float64 {
	var pts float64
	switch d := e.Detail.(type) {
	case model.HomeworkDetail:
		pts, _ = HomeworkTotals(d)
	case model.YesNoSessionDetail:
		for _, s := range d.Statuses {
			if strings.EqualFold(s, "yes") {
				pts += completePoints
			}
		}
	case model.SelectSessionDetail:
		for _, opt := range d.Selected {
			for _, mt := range types {
				if strings.EqualFold(mt.Name, opt) {
					pts += mt.DefaultPoints
					break
				}
			}
		}
	}
	return pts
}

func studentName(snap *model.Snapshot, id string) string {
	if st, ok := snap.Student(id); ok {
		return st.DisplayName()
	}
	return "Unknown"
}

type summaryOrder struct {
	fold    cases.Caser
	surname map[string]string
}

func newSummaryOrder(snap *model.Snapshot) *summaryOrder {
	o := &summaryOrder{fold: cases.Fold(), surname: make(map[string]string, len(snap.Students))}
	for id, st := range snap.Students {
		o.surname[id] = o.fold.String(st.LastName)
	}
	return o
}

func (o *summaryOrder) compare(aID, aItem, bID, bItem string) int {
	if c := strings.Compare(o.surname[aID], o.surname[bID]); c != 0 {
		return c
	}
	if c := strings.Compare(aID, bID); c != 0 {
		return c
	}
	return strings.Compare(o.fold.String(aItem), o.fold.String(bItem))
}
