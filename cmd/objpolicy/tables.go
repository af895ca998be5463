package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

// highlightTable is a table where individual cells can be highlighted.
type highlightTable struct {
	Table      *lgtable.Table
	count      int
	highlights map[[2]int]bool
}

// Row appends a row, highlighting the cells whose column is listed in highlightCols.
func (t *highlightTable) Row(highlightCols []int, row ...string) {
	for _, col := range highlightCols {
		t.highlights[[2]int{t.count, col}] = true
	}
	t.Table.Row(row...)
	t.count++
}

func newTable(withHeader bool, alignments ...lipgloss.Position) *highlightTable {
	t := &highlightTable{highlights: make(map[[2]int]bool)}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row < 0 {
				s = headerRowStyle
				return
			}
			switch {
			case t.highlights[[2]int{row, col}]:
				s = highlightStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			s = s.Align(alignment)
			return
		})
	return t
}

// formatValues formats a vector of floats compactly.
func formatValues(values []float32) string {
	parts := make([]string, len(values))
	for ii, v := range values {
		parts[ii] = fmt.Sprintf("%+.3f", v)
	}
	return strings.Join(parts, " ")
}

// argMax returns the index of the largest value, or -1 if values is empty.
func argMax(values []float32) int {
	best := -1
	for ii, v := range values {
		if best < 0 || v > values[best] {
			best = ii
		}
	}
	return best
}
