// Package ui renders cohortsql output for the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/satishbabariya/cohortsql/internal/core/sqlscan"
)

var (
	// Out and Err are where the Print helpers write.
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr

	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)

	sqlBlockStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SecondaryColor).
			Padding(0, 1)

	keywordColor = color.New(color.FgCyan, color.Bold)
	stringColor  = color.New(color.FgGreen)
	numberColor  = color.New(color.FgYellow)
	commentColor = color.New(color.FgHiBlack)
)

// PrintSuccess prints a success message.
func PrintSuccess(format string, args ...any) {
	fmt.Fprintln(Out, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message.
func PrintError(format string, args ...any) {
	fmt.Fprintln(Err, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning message.
func PrintWarning(format string, args ...any) {
	fmt.Fprintln(Out, WarningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// PrintInfo prints an info message.
func PrintInfo(format string, args ...any) {
	fmt.Fprintln(Out, InfoStyle.Render("ℹ "+fmt.Sprintf(format, args...)))
}

// PrintSection prints a section header.
func PrintSection(title string) {
	section := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(SecondaryColor).
		Render(TitleStyle.Render(title))
	fmt.Fprintln(Out, section)
}

// PrintList prints a bulleted list.
func PrintList(items []string) {
	for _, item := range items {
		fmt.Fprintf(Out, "  • %s\n", item)
	}
}

// RenderTable renders rows under headers.
func RenderTable(headers []string, rows [][]string) (string, error) {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// PrintTable prints a table.
func PrintTable(headers []string, rows [][]string) error {
	out, err := RenderTable(headers, rows)
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, out)
	return nil
}

// HighlightSQL colors keywords and literals. The text is unchanged when
// color output is disabled or the statement does not lex.
func HighlightSQL(sql string) string {
	if color.NoColor {
		return sql
	}
	ts, err := sqlscan.Tokenize(sql)
	if err != nil {
		return sql
	}
	var b strings.Builder
	for _, t := range ts {
		switch {
		case t.Kind == sqlscan.KindIdent && sqlscan.IsReserved(t.Text):
			b.WriteString(keywordColor.Sprint(t.Text))
		case t.Kind == sqlscan.KindString:
			b.WriteString(stringColor.Sprint(t.Text))
		case t.Kind == sqlscan.KindNumber:
			b.WriteString(numberColor.Sprint(t.Text))
		case t.Kind == sqlscan.KindComment:
			b.WriteString(commentColor.Sprint(t.Text))
		default:
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// PrintSQL prints sql in a bordered block with an optional title.
func PrintSQL(title, sql string) {
	if title != "" {
		fmt.Fprintln(Out, SecondaryStyle.Render(" "+title+" "))
	}
	fmt.Fprintln(Out, sqlBlockStyle.Render(HighlightSQL(strings.TrimSpace(sql))))
}

// PrintDiff prints a line diff of two statements.
func PrintDiff(before, after string) {
	oldLines := strings.Split(before, "\n")
	newLines := strings.Split(after, "\n")
	for i := 0; i < len(oldLines) || i < len(newLines); i++ {
		switch {
		case i < len(oldLines) && i < len(newLines):
			if oldLines[i] != newLines[i] {
				fmt.Fprintln(Out, ErrorStyle.Render("- "+oldLines[i]))
				fmt.Fprintln(Out, SuccessStyle.Render("+ "+newLines[i]))
			} else {
				fmt.Fprintln(Out, "  "+oldLines[i])
			}
		case i < len(oldLines):
			fmt.Fprintln(Out, ErrorStyle.Render("- "+oldLines[i]))
		default:
			fmt.Fprintln(Out, SuccessStyle.Render("+ "+newLines[i]))
		}
	}
}

// RenderMarkdown renders markdown for the terminal.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return r.Render(content)
}

// PrintMarkdown renders and prints markdown.
func PrintMarkdown(content string) error {
	out, err := RenderMarkdown(content)
	if err != nil {
		return err
	}
	fmt.Fprint(Out, out)
	return nil
}

// Spinner starts a spinner with message. Callers stop it with Success or Fail.
func Spinner(message string) (*pterm.SpinnerPrinter, error) {
	return pterm.DefaultSpinner.WithWriter(Err).Start(message)
}

// Confirm asks a yes/no question.
func Confirm(message string, def bool) (bool, error) {
	ok := def
	prompt := &survey.Confirm{Message: message, Default: def}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}
