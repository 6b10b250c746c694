package ui

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/cohortsql/internal/adapters/database"
	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
	"github.com/satishbabariya/cohortsql/internal/core/rewrite"
)

// ResultRows formats a result for RenderTable. NULLs print as NULL.
func ResultRows(res *database.Result) ([]string, [][]string) {
	if res == nil {
		return nil, nil
	}
	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatValue(v)
		}
		rows[i] = cells
	}
	return res.Columns, rows
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

// RepairReport describes a run as markdown: its status, the final
// statement and every attempt in order.
func RepairReport(o *orchestrator.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", o.RunID)
	fmt.Fprintf(&b, "- **Status:** %s\n", o.Status)
	fmt.Fprintf(&b, "- **Profile:** %s\n", o.Profile)
	fmt.Fprintf(&b, "- **Executions:** %d\n", o.Executions)
	if o.Result != nil {
		fmt.Fprintf(&b, "- **Rows:** %d\n", o.Result.RowCount)
	}
	if len(o.RiskSignals) > 0 {
		fmt.Fprintf(&b, "- **Risk signals:** %s\n", strings.Join(o.RiskSignals, ", "))
	}
	if o.LastError != nil {
		fmt.Fprintf(&b, "- **Last error:** `%s`\n", o.LastError)
	}
	if len(o.LearnedFixes) > 0 {
		fmt.Fprintf(&b, "- **Learned fixes written:** %d\n", len(o.LearnedFixes))
	}

	b.WriteString("\n## Final SQL\n\n```sql\n")
	b.WriteString(strings.TrimSpace(o.FinalSQL))
	b.WriteString("\n```\n")

	if len(o.Attempts) == 0 {
		return b.String()
	}
	b.WriteString("\n## Attempts\n\n| Round | Source | Rules | Error |\n|---|---|---|---|\n")
	for _, a := range o.Attempts {
		rules := strings.Join(rewrite.Names(a.AppliedRules), ", ")
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", a.Round, a.Source, cell(rules), cell(a.Error))
	}
	return b.String()
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
