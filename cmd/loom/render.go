package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-json"

	"github.com/samcharles93/loom/internal/inference"
)

var (
	headerStyle       = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	promptStyle       = lipgloss.NewStyle().Bold(true)
	tableBorderColor  = "#705090"
)

func newTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col == 0 || col >= 2:
				return rightAlignedStyle
			default:
				return normalStyle
			}
		})
}

// renderTable prints one table per prompt, outputs in result order.
func renderTable(w io.Writer, res *inference.Result) error {
	for _, el := range res.Elements {
		t := newTable("#", "text", "score", "log p", "length", "done")
		for i, out := range el.Outputs {
			done := ""
			if out.Finished {
				done = "eos"
			}
			t.Row(
				strconv.Itoa(i+1),
				out.Text,
				strconv.FormatFloat(out.Score, 'f', 4, 64),
				strconv.FormatFloat(out.LogProb, 'f', 4, 64),
				strconv.Itoa(out.Length),
				done,
			)
		}
		if _, err := fmt.Fprintf(w, "%s %s\n%s\n", promptStyle.Render(res.Strategy+":"), el.Prompt, t.String()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d steps, %d beam steps in %s\n", res.Stats.Steps, res.Stats.BeamSteps, res.Stats.Duration)
	return err
}

func renderJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

type vocabLister interface {
	Size() int
	EOS() int
	Token(id int) string
}

func renderVocab(w io.Writer, v vocabLister, asJSON bool) error {
	if asJSON {
		return renderJSON(w, v)
	}
	t := newTable("id", "token")
	for id := range v.Size() {
		tok := v.Token(id)
		if id == v.EOS() {
			tok += " (eos)"
		}
		t.Row(strconv.Itoa(id), tok)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
