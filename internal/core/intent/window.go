package intent

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"text/template"
)

// WindowNone disables windowing for a step.
const WindowNone = "none"

// WindowTemplate is a named time-anchor predicate. Its expression is a
// text/template over the anchor row's time columns:
//
//	{{.Time}}       measurement time of the source row
//	{{.Start}}      anchor start (stay intime, or admittime without a stay)
//	{{.End}}        anchor end
//	{{.AdmitTime}}  admission time
//	{{.DischTime}}  discharge time
//
// and the function addHours EXPR N supplied by the target dialect.
type WindowTemplate struct {
	Name       string
	Expression string
	tmpl       *template.Template
}

// WindowColumns are the expressions substituted into a window template.
type WindowColumns struct {
	Time      string
	Start     string
	End       string
	AdmitTime string
	DischTime string
}

// HoursFunc adds hours to a datetime expression in the target dialect.
type HoursFunc func(expr string, hours int) string

// Render expands the template. Unknown keys are an error.
func (w WindowTemplate) Render(cols WindowColumns, addHours HoursFunc) (string, error) {
	t, err := w.tmpl.Clone()
	if err != nil {
		return "", err
	}
	if addHours == nil {
		return "", fmt.Errorf("window %s: no addHours function", w.Name)
	}
	// Clone does not carry template options over.
	t.Option("missingkey=error").Funcs(template.FuncMap{"addHours": addHours})

	data := map[string]string{
		"Time":      cols.Time,
		"Start":     cols.Start,
		"End":       cols.End,
		"AdmitTime": cols.AdmitTime,
		"DischTime": cols.DischTime,
	}
	for k, v := range data {
		if v == "" {
			delete(data, k)
		}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render window %s: %w", w.Name, err)
	}
	return buf.String(), nil
}

var (
	windowsMu sync.RWMutex
	windows   = map[string]WindowTemplate{}
)

func init() {
	builtins := map[string]string{
		"first_24h":        `{{.Time}} >= {{.Start}} AND {{.Time}} < {{addHours .Start 24}}`,
		"first_48h":        `{{.Time}} >= {{.Start}} AND {{.Time}} < {{addHours .Start 48}}`,
		"first_72h":        `{{.Time}} >= {{.Start}} AND {{.Time}} < {{addHours .Start 72}}`,
		"last_24h":         `{{.Time}} >= {{addHours .End -24}} AND {{.Time}} <= {{.End}}`,
		"during_stay":      `{{.Time}} >= {{.Start}} AND {{.Time}} <= {{.End}}`,
		"during_admission": `{{.Time}} >= {{.AdmitTime}} AND {{.Time}} <= {{.DischTime}}`,
		"before_stay_24h":  `{{.Time}} >= {{addHours .Start -24}} AND {{.Time}} < {{.Start}}`,
	}
	for name, expr := range builtins {
		if err := RegisterWindow(name, expr); err != nil {
			panic(err)
		}
	}
}

// RegisterWindow adds or replaces a named window template.
func RegisterWindow(name, expr string) error {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(template.FuncMap{"addHours": HoursFunc(func(string, int) string { return "" })}).
		Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid window template %s: %w", name, err)
	}
	windowsMu.Lock()
	defer windowsMu.Unlock()
	windows[name] = WindowTemplate{Name: name, Expression: expr, tmpl: tmpl}
	return nil
}

// LookupWindow returns the template registered under name.
func LookupWindow(name string) (WindowTemplate, bool) {
	windowsMu.RLock()
	defer windowsMu.RUnlock()
	w, ok := windows[name]
	return w, ok
}

// WindowNames lists the registered templates.
func WindowNames() []string {
	windowsMu.RLock()
	defer windowsMu.RUnlock()
	names := make([]string, 0, len(windows))
	for n := range windows {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
