// Package catalog holds the schema facts the compiler and the rewrite rules
// consult: which tables and columns exist, which measurement item ids a signal
// name maps to, which ICD prefixes a diagnosis name maps to, and the
// vocabulary used to repair generated SQL. A Catalog is immutable once built.
package catalog

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"
)

// Identifier columns shared by every clinical table.
const (
	SubjectID = "subject_id"
	HadmID    = "hadm_id"
	StayID    = "stay_id"
)

// IdentifierColumns lists identifier columns from the finest hospital-level
// key to the coarsest.
var IdentifierColumns = []string{HadmID, StayID, SubjectID}

// IsIdentifier reports whether col is one of the identifier columns.
func IsIdentifier(col string) bool {
	switch col {
	case SubjectID, HadmID, StayID:
		return true
	}
	return false
}

// SupportedVersions is the document version range this build understands.
const SupportedVersions = ">= 1.0, < 2.0"

var (
	// ErrCatalogVersion is returned when a document version is missing or unsupported.
	ErrCatalogVersion = errors.New("unsupported catalog version")

	// ErrInvalidCatalog is returned when a document is structurally invalid.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// Document is the on-disk YAML form of a catalog.
type Document struct {
	Version          string                  `yaml:"version"`
	Dialect          string                  `yaml:"dialect"`
	Tables           map[string][]string     `yaml:"tables"`
	Sources          Sources                 `yaml:"sources"`
	Signals          map[string]Signal       `yaml:"signals"`
	Diagnoses        map[string][]Code       `yaml:"diagnoses"`
	Procedures       map[string][]Code       `yaml:"procedures"`
	DerivedScores    map[string]DerivedScore `yaml:"derived_scores"`
	Renames          Renames                 `yaml:"renames"`
	Dictionaries     map[string]Dictionary   `yaml:"dictionaries"`
	KeywordTables    []KeywordTable          `yaml:"keyword_tables"`
	OneToMany        []string                `yaml:"one_to_many"`
	FirstStayColumns []string                `yaml:"first_stay_columns"`
	Values           map[string][]string     `yaml:"values"`
	ICDVersions      map[string]int          `yaml:"icd_versions"`
}

// Sources maps the roles the compiler needs to concrete table names.
type Sources struct {
	Admissions  string `yaml:"admissions"`
	Stays       string `yaml:"stays"`
	Patients    string `yaml:"patients"`
	Diagnoses   string `yaml:"diagnoses"`
	Procedures  string `yaml:"procedures"`
	ChartEvents string `yaml:"chart_events"`
	LabEvents   string `yaml:"lab_events"`
	Items       string `yaml:"items"`
	LabItems    string `yaml:"lab_items"`
}

// Role names a source table.
type Role string

// Source roles.
const (
	RoleAdmissions  Role = "admissions"
	RoleStays       Role = "stays"
	RolePatients    Role = "patients"
	RoleDiagnoses   Role = "diagnoses"
	RoleProcedures  Role = "procedures"
	RoleChartEvents Role = "chart_events"
	RoleLabEvents   Role = "lab_events"
	RoleItems       Role = "items"
	RoleLabItems    Role = "lab_items"
)

func (s Sources) byRole() map[Role]string {
	return map[Role]string{
		RoleAdmissions:  s.Admissions,
		RoleStays:       s.Stays,
		RolePatients:    s.Patients,
		RoleDiagnoses:   s.Diagnoses,
		RoleProcedures:  s.Procedures,
		RoleChartEvents: s.ChartEvents,
		RoleLabEvents:   s.LabEvents,
		RoleItems:       s.Items,
		RoleLabItems:    s.LabItems,
	}
}

// Signal maps a measurement name to the rows that record it.
type Signal struct {
	Table       string `yaml:"table"`
	ItemIDs     []int  `yaml:"itemids"`
	ValueColumn string `yaml:"value_column,omitempty"`
	TimeColumn  string `yaml:"time_column,omitempty"`
}

// Code is one ICD prefix with its coding-system version (9 or 10, 0 when unknown).
type Code struct {
	Prefix  string `yaml:"prefix"`
	Version int    `yaml:"version,omitempty"`
}

// DerivedScore points at a precomputed severity score.
type DerivedScore struct {
	Table      string `yaml:"table"`
	Column     string `yaml:"column"`
	Key        string `yaml:"key,omitempty"`
	TimeColumn string `yaml:"time_column,omitempty"`
}

// Renames maps names generators commonly emit to the real schema names.
// Column keys are either "column" or "table.column".
type Renames struct {
	Tables  map[string]string `yaml:"tables"`
	Columns map[string]string `yaml:"columns"`
}

// Dictionary describes the lookup table that labels an events table's item ids.
type Dictionary struct {
	Table string `yaml:"table"`
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// KeywordTable forces Table when the question mentions one of Keywords and
// the query reads one of Replaces instead.
type KeywordTable struct {
	Keywords []string `yaml:"keywords"`
	Table    string   `yaml:"table"`
	Replaces []string `yaml:"replaces"`
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(doc)
}

// Validate checks the document version and cross references.
func (d *Document) Validate() error {
	if d.Version == "" {
		return fmt.Errorf("%w: version is required", ErrCatalogVersion)
	}
	v, err := version.NewVersion(d.Version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogVersion, err)
	}
	constraint, err := version.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrCatalogVersion, d.Version, SupportedVersions)
	}

	if len(d.Tables) == 0 {
		return fmt.Errorf("%w: no tables declared", ErrInvalidCatalog)
	}
	for role, table := range d.Sources.byRole() {
		if table == "" {
			continue
		}
		if _, ok := d.Tables[table]; !ok {
			return fmt.Errorf("%w: source %s refers to unknown table %q", ErrInvalidCatalog, role, table)
		}
	}
	if d.Sources.Admissions == "" {
		return fmt.Errorf("%w: sources.admissions is required", ErrInvalidCatalog)
	}
	for name, sig := range d.Signals {
		if _, ok := d.Tables[sig.Table]; !ok {
			return fmt.Errorf("%w: signal %q refers to unknown table %q", ErrInvalidCatalog, name, sig.Table)
		}
		if len(sig.ItemIDs) == 0 {
			return fmt.Errorf("%w: signal %q has no itemids", ErrInvalidCatalog, name)
		}
	}
	for name, score := range d.DerivedScores {
		if _, ok := d.Tables[score.Table]; !ok {
			return fmt.Errorf("%w: derived score %q refers to unknown table %q", ErrInvalidCatalog, name, score.Table)
		}
	}
	for i, kt := range d.KeywordTables {
		if len(kt.Keywords) == 0 || kt.Table == "" {
			return fmt.Errorf("%w: keyword_tables[%d] needs keywords and a table", ErrInvalidCatalog, i)
		}
	}
	return nil
}
