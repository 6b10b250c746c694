// Package intent is the typed model of a cohort specification: an ordered
// list of inclusion, exclusion and measurement steps plus the population
// policy they are applied to.
package intent

import (
	"fmt"
	"strings"
)

// StepKind is the wire discriminator of a step variant.
type StepKind string

// Step kinds.
const (
	KindAgeRange            StepKind = "age_range"
	KindDiagnosisPrefix     StepKind = "diagnosis_prefix"
	KindProcedurePrefix     StepKind = "procedure_prefix"
	KindIcuLengthOfStay     StepKind = "icu_length_of_stay"
	KindDeathWithinDays     StepKind = "death_within_days"
	KindMeasurementRequired StepKind = "measurement_required"
	KindVitalOrLabSignal    StepKind = "vital_or_lab_signal"
	KindDerivedScore        StepKind = "derived_score"
)

// Step is one cohort-narrowing step. The set of implementations is closed;
// callers dispatch through Visit so that every variant is handled.
type Step interface {
	Kind() StepKind
	Base() *StepBase
	Visit(v StepVisitor)
	Label() string
	validate() error
}

// StepVisitor has one method per step variant.
type StepVisitor interface {
	VisitAgeRange(s *AgeRange)
	VisitDiagnosisPrefix(s *DiagnosisPrefix)
	VisitProcedurePrefix(s *ProcedurePrefix)
	VisitIcuLengthOfStay(s *IcuLengthOfStay)
	VisitDeathWithinDays(s *DeathWithinDays)
	VisitMeasurementRequired(s *MeasurementRequired)
	VisitVitalOrLabSignal(s *VitalOrLabSignal)
	VisitDerivedScore(s *DerivedScore)
}

// StepBase carries the fields every step shares.
type StepBase struct {
	Name        string `json:"name,omitempty"`
	IsExclusion bool   `json:"is_exclusion,omitempty"`
	IsMandatory bool   `json:"is_mandatory,omitempty"`
	// Window names a WindowTemplate; empty means the policy default and
	// "none" disables windowing for the step.
	Window string `json:"window,omitempty"`
}

// Base returns the shared fields.
func (b *StepBase) Base() *StepBase { return b }

func (b *StepBase) label(fallback string) string {
	if b.Name != "" {
		return b.Name
	}
	if b.IsExclusion {
		return "Exclude " + fallback
	}
	return fallback
}

// Code is an ICD prefix with an optional coding-system version.
type Code struct {
	Prefix     string `json:"prefix"`
	ICDVersion int    `json:"icd_version,omitempty"`
}

// AgeRange keeps patients whose age at admission lies in [Min, Max].
type AgeRange struct {
	StepBase
	Min int `json:"min"`
	Max int `json:"max"`
}

// DiagnosisPrefix keeps admissions with a diagnosis code starting with one of
// Codes. Names are resolved to further codes through the catalog.
type DiagnosisPrefix struct {
	StepBase
	Codes []Code   `json:"codes,omitempty"`
	Names []string `json:"diagnoses,omitempty"`
}

// ProcedurePrefix is DiagnosisPrefix over procedure codes.
type ProcedurePrefix struct {
	StepBase
	Codes []Code   `json:"codes,omitempty"`
	Names []string `json:"procedures,omitempty"`
}

// IcuLengthOfStay keeps stays lasting at least MinDays (and at most MaxDays when set).
type IcuLengthOfStay struct {
	StepBase
	MinDays float64  `json:"min_days"`
	MaxDays *float64 `json:"max_days,omitempty"`
}

// DeathWithinDays keeps admissions whose patient died within Days of admission.
type DeathWithinDays struct {
	StepBase
	Days int `json:"days"`
}

// MeasurementRequired keeps rows with at least one recorded value of any of Signals.
type MeasurementRequired struct {
	StepBase
	Signals []string `json:"signals"`
}

// VitalOrLabSignal keeps rows with a measurement of Signal satisfying Operator Value.
type VitalOrLabSignal struct {
	StepBase
	Signal   string   `json:"signal"`
	Operator Operator `json:"operator"`
	Value    float64  `json:"value"`
}

// DerivedScore keeps rows with a derived score, optionally above a threshold.
type DerivedScore struct {
	StepBase
	Score    string   `json:"score"`
	Operator Operator `json:"operator,omitempty"`
	Value    *float64 `json:"value,omitempty"`
}

// Kind implementations.

func (*AgeRange) Kind() StepKind            { return KindAgeRange }
func (*DiagnosisPrefix) Kind() StepKind     { return KindDiagnosisPrefix }
func (*ProcedurePrefix) Kind() StepKind     { return KindProcedurePrefix }
func (*IcuLengthOfStay) Kind() StepKind     { return KindIcuLengthOfStay }
func (*DeathWithinDays) Kind() StepKind     { return KindDeathWithinDays }
func (*MeasurementRequired) Kind() StepKind { return KindMeasurementRequired }
func (*VitalOrLabSignal) Kind() StepKind    { return KindVitalOrLabSignal }
func (*DerivedScore) Kind() StepKind        { return KindDerivedScore }

func (s *AgeRange) Visit(v StepVisitor)            { v.VisitAgeRange(s) }
func (s *DiagnosisPrefix) Visit(v StepVisitor)     { v.VisitDiagnosisPrefix(s) }
func (s *ProcedurePrefix) Visit(v StepVisitor)     { v.VisitProcedurePrefix(s) }
func (s *IcuLengthOfStay) Visit(v StepVisitor)     { v.VisitIcuLengthOfStay(s) }
func (s *DeathWithinDays) Visit(v StepVisitor)     { v.VisitDeathWithinDays(s) }
func (s *MeasurementRequired) Visit(v StepVisitor) { v.VisitMeasurementRequired(s) }
func (s *VitalOrLabSignal) Visit(v StepVisitor)    { v.VisitVitalOrLabSignal(s) }
func (s *DerivedScore) Visit(v StepVisitor)        { v.VisitDerivedScore(s) }

// Label returns the human-readable step label used in diagnostics.
func (s *AgeRange) Label() string {
	return s.label(fmt.Sprintf("Age %d-%d", s.Min, s.Max))
}

func (s *DiagnosisPrefix) Label() string {
	return s.label("Diagnosis " + joinCodes(s.Codes, s.Names))
}

func (s *ProcedurePrefix) Label() string {
	return s.label("Procedure " + joinCodes(s.Codes, s.Names))
}

func (s *IcuLengthOfStay) Label() string {
	if s.MaxDays != nil {
		return s.label(fmt.Sprintf("ICU stay %g-%g days", s.MinDays, *s.MaxDays))
	}
	return s.label(fmt.Sprintf("ICU stay >= %g days", s.MinDays))
}

func (s *DeathWithinDays) Label() string {
	return s.label(fmt.Sprintf("Death within %d days", s.Days))
}

func (s *MeasurementRequired) Label() string {
	return s.label("Measured " + strings.Join(s.Signals, ", "))
}

func (s *VitalOrLabSignal) Label() string {
	return s.label(fmt.Sprintf("%s %s %g", s.Signal, s.Operator, s.Value))
}

func (s *DerivedScore) Label() string {
	if s.Value != nil && s.Operator != "" {
		return s.label(fmt.Sprintf("%s %s %g", s.Score, s.Operator, *s.Value))
	}
	return s.label(s.Score + " available")
}

func joinCodes(codes []Code, names []string) string {
	parts := make([]string, 0, len(codes)+len(names))
	for _, c := range codes {
		parts = append(parts, c.Prefix)
	}
	parts = append(parts, names...)
	return strings.Join(parts, ", ")
}
