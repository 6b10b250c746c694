package intent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Spec is a complete cohort specification.
type Spec struct {
	Policy PopulationPolicy `json:"policy"`
	Steps  []Step           `json:"steps"`
}

type rawSpec struct {
	Policy PopulationPolicy  `json:"policy"`
	Steps  []json.RawMessage `json:"steps"`
}

type stepHeader struct {
	Type StepKind `json:"type"`
}

func newStep(kind StepKind) (Step, bool) {
	switch kind {
	case KindAgeRange:
		return &AgeRange{}, true
	case KindDiagnosisPrefix:
		return &DiagnosisPrefix{}, true
	case KindProcedurePrefix:
		return &ProcedurePrefix{}, true
	case KindIcuLengthOfStay:
		return &IcuLengthOfStay{}, true
	case KindDeathWithinDays:
		return &DeathWithinDays{}, true
	case KindMeasurementRequired:
		return &MeasurementRequired{}, true
	case KindVitalOrLabSignal:
		return &VitalOrLabSignal{}, true
	case KindDerivedScore:
		return &DerivedScore{}, true
	}
	return nil, false
}

// Decode reads and validates a JSON specification.
func Decode(r io.Reader) (*Spec, error) {
	var raw rawSpec
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}

	spec := &Spec{Policy: raw.Policy, Steps: make([]Step, 0, len(raw.Steps))}
	for i, msg := range raw.Steps {
		step, err := decodeStep(msg)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Index = i
				return nil, ve
			}
			return nil, &ValidationError{Index: i, Reason: err.Error()}
		}
		spec.Steps = append(spec.Steps, step)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec.Policy = spec.Policy.WithDefaults()
	return spec, nil
}

// UnmarshalJSON decodes and validates a specification.
func (s *Spec) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeBytes(data)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}

// DecodeBytes is Decode over a byte slice.
func DecodeBytes(data []byte) (*Spec, error) {
	return Decode(bytes.NewReader(data))
}

func decodeStep(msg json.RawMessage) (Step, error) {
	var h stepHeader
	if err := json.Unmarshal(msg, &h); err != nil {
		return nil, err
	}
	step, ok := newStep(h.Type)
	if !ok {
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown step type %q", h.Type), Err: ErrUnknownStepType}
	}

	// The discriminator is not a field of the variant; strip it before a
	// strict decode so misspelled fields are still rejected.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return nil, err
	}
	delete(fields, "type")
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(step); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return step, nil
}

// Validate checks the policy and every step.
func (s *Spec) Validate() error {
	if err := s.Policy.Validate(); err != nil {
		return err
	}
	for i, step := range s.Steps {
		if step == nil {
			return &ValidationError{Index: i, Reason: "step is nil"}
		}
		if err := step.validate(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Index = i
				return ve
			}
			return err
		}
	}
	return nil
}

// MarshalStep encodes a step with its type discriminator.
func MarshalStep(step Step) ([]byte, error) {
	body, err := json.Marshal(step)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(step.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}

// MarshalJSON encodes the specification with typed steps.
func (s Spec) MarshalJSON() ([]byte, error) {
	steps := make([]json.RawMessage, len(s.Steps))
	for i, step := range s.Steps {
		b, err := MarshalStep(step)
		if err != nil {
			return nil, err
		}
		steps[i] = b
	}
	return json.Marshal(rawSpec{Policy: s.Policy, Steps: steps})
}
