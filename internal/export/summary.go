package export

import (
	"fmt"

	"github.com/pavelanni/classlog/internal/model"
)

const summaryWidth = 25

// BuildSummarySheet stacks the behavior, quiz and homework blocks. A block
// is left out when its category is excluded by spec.
func BuildSummarySheet(sum Summary, spec model.FilterSpec) Sheet {
	sh := Sheet{
		Title:  summaryTitle,
		Styles: map[int]RowStyle{},
	}
	add := func(style RowStyle, cells ...any) {
		if style != 0 {
			sh.Styles[len(sh.Rows)] = style
		}
		sh.Rows = append(sh.Rows, cells)
	}

	add(StyleTitle, "Log Summary")
	add(0)

	if spec.IncludeBehavior {
		add(StyleSection, "Behavior Summary by Student")
		add(StyleSubheader, "Student", "Behavior", "Count")
		for _, r := range sum.Behavior {
			add(0, r.Student, r.Item, r.Count)
		}
		add(0)
	}
	if spec.IncludeQuiz {
		add(StyleSection, "Quiz Averages by Student")
		add(StyleSubheader, "Student", "Quiz Name", "Avg Score (%)", "Times Taken")
		for _, r := range sum.Quiz {
			add(0, r.Student, r.Item, fmt.Sprintf("%.2f%%", r.Average), r.Attempts)
		}
		add(0)
	}
	if spec.IncludeHomework {
		add(StyleSection, "Homework Completion by Student")
		add(StyleSubheader, "Student", "Homework Type/Session", "Count", "Total Points (if applicable)")
		for _, r := range sum.Homework {
			points := ""
			if r.Points != 0 {
				points = fmt.Sprintf("%.2f", r.Points)
			}
			add(0, r.Student, r.Item, r.Count, points)
		}
		add(0)
	}

	cols := 0
	for _, row := range sh.Rows {
		cols = max(cols, len(row))
	}
	sh.Widths = make([]float64, cols)
	for i := range sh.Widths {
		sh.Widths[i] = summaryWidth
	}
	return sh
}
