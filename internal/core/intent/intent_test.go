package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cohortJSON = `{
  "policy": {"require_icu": true, "episode_selector": "first", "episode_unit": "subject", "default_window": "during_stay"},
  "steps": [
    {"type": "age_range", "name": "Adults", "min": 18, "max": 89},
    {"type": "diagnosis_prefix", "codes": [{"prefix": "I21", "icd_version": 10}], "diagnoses": ["sepsis"]},
    {"type": "icu_length_of_stay", "min_days": 2, "is_exclusion": true},
    {"type": "death_within_days", "days": 30},
    {"type": "measurement_required", "signals": ["lactate", "heart_rate"], "window": "first_24h", "is_mandatory": true},
    {"type": "vital_or_lab_signal", "signal": "heart_rate", "operator": ">", "value": 100},
    {"type": "derived_score", "score": "sofa", "operator": ">=", "value": 2},
    {"type": "procedure_prefix", "procedures": ["mechanical_ventilation"]}
  ]
}`

type kindCollector struct{ kinds []StepKind }

func (k *kindCollector) VisitAgeRange(s *AgeRange)               { k.kinds = append(k.kinds, s.Kind()) }
func (k *kindCollector) VisitDiagnosisPrefix(s *DiagnosisPrefix) { k.kinds = append(k.kinds, s.Kind()) }
func (k *kindCollector) VisitProcedurePrefix(s *ProcedurePrefix) { k.kinds = append(k.kinds, s.Kind()) }
func (k *kindCollector) VisitIcuLengthOfStay(s *IcuLengthOfStay) { k.kinds = append(k.kinds, s.Kind()) }
func (k *kindCollector) VisitDeathWithinDays(s *DeathWithinDays) { k.kinds = append(k.kinds, s.Kind()) }
func (k *kindCollector) VisitMeasurementRequired(s *MeasurementRequired) {
	k.kinds = append(k.kinds, s.Kind())
}
func (k *kindCollector) VisitVitalOrLabSignal(s *VitalOrLabSignal) {
	k.kinds = append(k.kinds, s.Kind())
}
func (k *kindCollector) VisitDerivedScore(s *DerivedScore) { k.kinds = append(k.kinds, s.Kind()) }

func TestDecode(t *testing.T) {
	spec, err := DecodeBytes([]byte(cohortJSON))
	require.NoError(t, err)

	assert.True(t, spec.Policy.RequireICU)
	assert.Equal(t, EpisodeFirst, spec.Policy.EpisodeSelector)
	require.Len(t, spec.Steps, 8)

	var kc kindCollector
	for _, s := range spec.Steps {
		s.Visit(&kc)
	}
	assert.Equal(t, []StepKind{
		KindAgeRange, KindDiagnosisPrefix, KindIcuLengthOfStay, KindDeathWithinDays,
		KindMeasurementRequired, KindVitalOrLabSignal, KindDerivedScore, KindProcedurePrefix,
	}, kc.kinds)

	age := spec.Steps[0].(*AgeRange)
	assert.Equal(t, "Adults", age.Label())
	dx := spec.Steps[1].(*DiagnosisPrefix)
	assert.Equal(t, []Code{{Prefix: "I21", ICDVersion: 10}}, dx.Codes)
	assert.Equal(t, []string{"sepsis"}, dx.Names)
	los := spec.Steps[2].(*IcuLengthOfStay)
	assert.True(t, los.IsExclusion)
	assert.Equal(t, "Exclude ICU stay >= 2 days", los.Label())
	m := spec.Steps[4].(*MeasurementRequired)
	assert.True(t, m.Base().IsMandatory)
	assert.Equal(t, "first_24h", m.Window)
	score := spec.Steps[6].(*DerivedScore)
	require.NotNil(t, score.Value)
	assert.Equal(t, "sofa >= 2", score.Label())
}

func TestDecode_Defaults(t *testing.T) {
	spec, err := DecodeBytes([]byte(`{"steps": []}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), spec.Policy)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		sentinel error
		index    int
	}{
		{
			name:     "unknown type",
			doc:      `{"steps":[{"type":"age_range","min":1,"max":2},{"type":"bmi_range"}]}`,
			sentinel: ErrUnknownStepType,
			index:    1,
		},
		{
			name:     "misspelled field",
			doc:      `{"steps":[{"type":"age_range","minimum":18,"max":90}]}`,
			sentinel: ErrInvalidIntent,
			index:    0,
		},
		{
			name:     "bad operator",
			doc:      `{"steps":[{"type":"vital_or_lab_signal","signal":"hr","operator":"~","value":1}]}`,
			sentinel: ErrInvalidIntent,
			index:    0,
		},
		{
			name:     "unknown window",
			doc:      `{"steps":[{"type":"measurement_required","signals":["hr"],"window":"first_week"}]}`,
			sentinel: ErrInvalidIntent,
			index:    0,
		},
		{
			name:     "inverted age range",
			doc:      `{"steps":[{"type":"age_range","min":90,"max":18}]}`,
			sentinel: ErrInvalidIntent,
			index:    0,
		},
		{
			name:     "bad policy",
			doc:      `{"policy":{"episode_selector":"middle"},"steps":[]}`,
			sentinel: ErrInvalidIntent,
			index:    -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), fmt.Sprintf("%T", err))
			assert.Equal(t, tt.index, ve.Index)
		})
	}
}

func TestSpec_RoundTrip(t *testing.T) {
	spec, err := DecodeBytes([]byte(cohortJSON))
	require.NoError(t, err)

	data, err := json.Marshal(spec)
	require.NoError(t, err)

	var again Spec
	require.NoError(t, json.Unmarshal(data, &again))
	require.Len(t, again.Steps, len(spec.Steps))
	for i := range spec.Steps {
		assert.Equal(t, spec.Steps[i], again.Steps[i])
	}
}

func TestWindowRender(t *testing.T) {
	w, ok := LookupWindow("first_24h")
	require.True(t, ok)

	addHours := func(expr string, n int) string { return fmt.Sprintf("%s%+dh", expr, n) }
	got, err := w.Render(WindowColumns{Time: "s.charttime", Start: "p.anchor_start", End: "p.anchor_end"}, addHours)
	require.NoError(t, err)
	assert.Equal(t, "s.charttime >= p.anchor_start AND s.charttime < p.anchor_start+24h", got)

	adm, ok := LookupWindow("during_admission")
	require.True(t, ok)
	got, err = adm.Render(WindowColumns{Time: "s.charttime", Start: "p.anchor_start", AdmitTime: "p.admittime"}, addHours)
	assert.Error(t, err)
	assert.Empty(t, got)

	last, ok := LookupWindow("last_24h")
	require.True(t, ok)
	_, err = last.Render(WindowColumns{Time: "s.charttime", Start: "p.anchor_start"}, addHours)
	assert.Error(t, err)
}

func TestRegisterWindow(t *testing.T) {
	require.NoError(t, RegisterWindow("test_first_6h", `{{.Time}} < {{addHours .Start 6}}`))
	assert.Contains(t, WindowNames(), "test_first_6h")
	assert.Error(t, RegisterWindow("broken", `{{.Time`))
}
