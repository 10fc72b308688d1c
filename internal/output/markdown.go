package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders results as markdown.
type MarkdownFormatter struct{}

// FormatFiles renders a catalog as a markdown table with download links.
func (f *MarkdownFormatter) FormatFiles(catalog *Catalog) (string, error) {
	if catalog == nil {
		return "", nil
	}

	var sb strings.Builder
	title := "Files"
	if catalog.Channel != "" {
		title = "Files in " + catalog.Channel
	}
	sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(title)))

	if len(catalog.Files) == 0 {
		message := catalog.Message
		if message == "" {
			message = "No files."
		}
		sb.WriteString("_" + message + "_\n")
		return sb.String(), nil
	}

	sb.WriteString("| ID | Date | Type | Name | Size | Caption |\n")
	sb.WriteString("|----|------|------|------|------|---------|\n")
	for _, file := range catalog.Files {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | [%s](%s) | %s | %s |\n",
			file.ID,
			escapeMarkdownCell(file.Date),
			escapeMarkdownCell(string(file.Type)),
			escapeMarkdownCell(file.Name),
			file.DownloadURL,
			HumanSize(file.SizeBytes),
			escapeMarkdownCell(strings.ReplaceAll(file.Caption, "\n", " ")),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Total**: %d\n", catalog.Total))
	return sb.String(), nil
}

// FormatQuiz renders a quiz as a numbered list.
func (f *MarkdownFormatter) FormatQuiz(quiz *Quiz) (string, error) {
	if quiz == nil {
		return "", nil
	}

	var sb strings.Builder
	for i, q := range quiz.Questions {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("### %d. %s\n\n", q.ID, q.Text))
		for _, opt := range q.Options {
			marker := " "
			if opt.Letter == q.Answer {
				marker = "x"
			}
			sb.WriteString(fmt.Sprintf("- [%s] **%s** %s\n", marker, opt.Letter, opt.Text))
		}
		if q.Explanation != "" {
			sb.WriteString(fmt.Sprintf("\n> %s\n", q.Explanation))
		}
	}
	if len(quiz.Questions) == 0 {
		sb.WriteString("_No questions found._\n")
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
