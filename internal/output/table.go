package output

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatFiles renders a catalog as a table.
func (f *TableFormatter) FormatFiles(catalog *Catalog) (string, error) {
	if catalog == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Date", "Type", "Name", "Size", "Caption"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 40},
		{Number: 6, WidthMax: 40},
	})

	for _, file := range catalog.Files {
		t.AppendRow(table.Row{
			strconv.FormatInt(file.ID, 10),
			file.Date,
			string(file.Type),
			file.Name,
			HumanSize(file.SizeBytes),
			orDash(file.Caption),
		})
	}

	summary := fmt.Sprintf("%d files", catalog.Total)
	if catalog.Channel != "" {
		summary += " in " + catalog.Channel
	}
	t.AppendFooter(table.Row{"", "", "", summary, "", ""})

	rendered := t.Render()
	if catalog.Message != "" {
		rendered += "\n" + catalog.Message
	}
	return rendered, nil
}

// FormatQuiz renders a quiz as a table.
func (f *TableFormatter) FormatQuiz(quiz *Quiz) (string, error) {
	if quiz == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Question", "Options", "Answer"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 50},
		{Number: 3, WidthMax: 60},
	})

	for _, q := range quiz.Questions {
		t.AppendRow(table.Row{q.ID, q.Text, optionLine(q), orDash(q.Answer)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d questions", quiz.Total), "", ""})

	return t.Render(), nil
}
