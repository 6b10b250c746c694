package compiler

import (
	"fmt"

	"github.com/satishbabariya/cohortsql/internal/core/intent"
)

// window renders the time-anchor predicate for step. Steps whose source has
// no event time are never windowed.
func (c *Compiler) window(step intent.Step, policy intent.PopulationPolicy, projected []string, pop *population) (string, bool, error) {
	name := step.Base().Window
	if name == "" {
		name = policy.DefaultWindow
	}
	if name == "" || name == intent.WindowNone {
		return "", false, nil
	}
	if !contains(projected, timeColumn) {
		return "", false, nil
	}
	tmpl, ok := intent.LookupWindow(name)
	if !ok {
		return "", false, fmt.Errorf("unknown window %q", name)
	}

	cols := intent.WindowColumns{Time: "s." + timeColumn}
	if pop.hasColumn("anchor_start") {
		cols.Start = "p.anchor_start"
	}
	if pop.hasColumn("anchor_end") {
		cols.End = "p.anchor_end"
	}
	if pop.hasAdmit {
		cols.AdmitTime = "p.admittime"
	}
	if pop.hasDisch {
		cols.DischTime = "p.dischtime"
	}
	expr, err := tmpl.Render(cols, c.dialect.AddHours)
	if err != nil {
		return "", false, err
	}
	return expr, true, nil
}

func contains(cols []string, c string) bool {
	for _, x := range cols {
		if x == c {
			return true
		}
	}
	return false
}
