package intent

// EpisodeSelector chooses which qualifying episode represents a unit.
type EpisodeSelector string

// Episode selectors.
const (
	EpisodeFirst EpisodeSelector = "first"
	EpisodeLast  EpisodeSelector = "last"
	EpisodeAll   EpisodeSelector = "all"
)

// EpisodeUnit is the unit episodes are ranked within.
type EpisodeUnit string

// Episode units.
const (
	PerSubject   EpisodeUnit = "subject"
	PerAdmission EpisodeUnit = "admission"
)

// PopulationPolicy shapes the base population every step narrows.
type PopulationPolicy struct {
	RequireICU      bool            `json:"require_icu"`
	EpisodeSelector EpisodeSelector `json:"episode_selector,omitempty"`
	EpisodeUnit     EpisodeUnit     `json:"episode_unit,omitempty"`
	DefaultWindow   string          `json:"default_window,omitempty"`
}

// DefaultPolicy keeps every admission, with or without an ICU stay.
func DefaultPolicy() PopulationPolicy {
	return PopulationPolicy{EpisodeSelector: EpisodeAll, EpisodeUnit: PerSubject}
}

// WithDefaults fills unset fields.
func (p PopulationPolicy) WithDefaults() PopulationPolicy {
	if p.EpisodeSelector == "" {
		p.EpisodeSelector = EpisodeAll
	}
	if p.EpisodeUnit == "" {
		p.EpisodeUnit = PerSubject
	}
	return p
}

// Validate checks enum fields and the default window.
func (p PopulationPolicy) Validate() error {
	switch p.EpisodeSelector {
	case "", EpisodeFirst, EpisodeLast, EpisodeAll:
	default:
		return fieldError("episode_selector", "unknown selector %q", p.EpisodeSelector)
	}
	switch p.EpisodeUnit {
	case "", PerSubject, PerAdmission:
	default:
		return fieldError("episode_unit", "unknown unit %q", p.EpisodeUnit)
	}
	if p.DefaultWindow != "" && p.DefaultWindow != WindowNone {
		if _, ok := LookupWindow(p.DefaultWindow); !ok {
			return fieldError("default_window", "unknown window template %q", p.DefaultWindow)
		}
	}
	return nil
}
