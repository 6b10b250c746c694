package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
)

func newEngine(opts ...Option) *Engine {
	return NewEngine(catalog.Default(), opts...)
}

func TestParseQuestion(t *testing.T) {
	tests := []struct {
		question string
		check    func(t *testing.T, h Hints)
	}{
		{"Show the top 10 most common diagnoses", func(t *testing.T, h Hints) {
			assert.Equal(t, 10, h.TopN)
			assert.True(t, h.LimitMentioned)
			assert.True(t, h.NonTrivial())
		}},
		{"vitals in the first 24 hours of the ICU stay", func(t *testing.T, h Hints) {
			assert.Zero(t, h.TopN)
			assert.True(t, h.ICU)
			assert.False(t, h.FirstICU)
			assert.False(t, h.LimitMentioned)
		}},
		{"list the first five patients", func(t *testing.T, h Hints) {
			assert.Equal(t, 5, h.TopN)
		}},
		{"mortality rate of women within 30 days of admission", func(t *testing.T, h Hints) {
			assert.True(t, h.Ratio)
			assert.True(t, h.Mortality)
			assert.Equal(t, "F", h.Gender)
			assert.Equal(t, 30, h.WithinDays)
		}},
		{"length of stay during the first ICU stay for men", func(t *testing.T, h Hints) {
			assert.True(t, h.FirstICU)
			assert.Equal(t, "M", h.Gender)
		}},
		{"compare admissions per year for male and female patients", func(t *testing.T, h Hints) {
			assert.True(t, h.Trend)
			assert.True(t, h.Comparison)
			assert.Empty(t, h.Gender)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			tt.check(t, ParseQuestion(tt.question))
		})
	}
}

func TestHints_Mentions(t *testing.T) {
	h := ParseQuestion("Which blood test results were abnormal?")
	assert.True(t, h.Mentions("blood test"))
	assert.True(t, h.Mentions("Blood"))
	assert.False(t, h.Mentions("lab"))
	assert.False(t, h.Mentions("blood pressure"))
}

func TestStripFences(t *testing.T) {
	out, ok := stripFences{}.Apply("```sql\nSELECT 1 FROM dual;\n```", nil)
	require.True(t, ok)
	assert.Equal(t, "SELECT 1 FROM dual", out)
}

func TestDialectRules(t *testing.T) {
	e := newEngine()
	rc := e.Context("", Relaxed)

	out, ok := booleanLiterals{}.Apply("SELECT subject_id FROM t WHERE a = TRUE AND b IS FALSE", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT subject_id FROM t WHERE a = 1 AND b = 0", out)

	out, ok = intervalLiterals{}.Apply("SELECT hadm_id FROM admissions WHERE dischtime > admittime + INTERVAL '7 days'", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT hadm_id FROM admissions WHERE dischtime > admittime + INTERVAL '7' DAY", out)

	out, ok = rowLimitSyntax{}.Apply("SELECT subject_id FROM patients LIMIT 10", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM (\nSELECT subject_id FROM patients\n) WHERE ROWNUM <= 10", out)

	_, ok = rowLimitSyntax{}.Apply(out, rc)
	assert.False(t, ok)

	out, ok = lockingClause{}.Apply("SELECT subject_id FROM patients FOR UPDATE", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT subject_id FROM patients", out)
}

func TestDialectRules_Postgres(t *testing.T) {
	e := newEngine(WithDialect(dialect.PostgreSQL))
	rc := e.Context("", Relaxed)

	_, ok := booleanLiterals{}.Apply("SELECT 1 FROM t WHERE a = TRUE", rc)
	assert.False(t, ok)

	out, ok := intervalLiterals{}.Apply("SELECT 1 FROM t WHERE x > y + INTERVAL '2' DAY", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT 1 FROM t WHERE x > y + INTERVAL '2 days'", out)

	out, ok = rowLimitSyntax{}.Apply("SELECT TOP 5 subject_id FROM patients", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT subject_id FROM patients\nLIMIT 5", out)
}

func TestEngine_RenamedColumns(t *testing.T) {
	e := newEngine()
	out, apps := e.Apply("", "SELECT icustay_id, los_icu FROM icustays", Relaxed)
	assert.Equal(t, "SELECT stay_id, los FROM icustays", out)
	assert.Equal(t, []string{"rename_identifiers"}, Names(apps))
	require.Len(t, apps, 1)
	assert.Equal(t, Hash("SELECT icustay_id, los_icu FROM icustays"), apps[0].BeforeHash)
	assert.Equal(t, Hash(out), apps[0].AfterHash)
}

func TestEngine_RenamedTableKeepsQualifiers(t *testing.T) {
	e := newEngine()
	out, _ := e.Apply("", "SELECT icu_stays.stay_id FROM icu_stays", Relaxed)
	assert.Equal(t, "SELECT icu_stays.stay_id FROM icustays icu_stays", out)
}

func TestEngine_MissingColumnJoin(t *testing.T) {
	e := newEngine()

	out, apps := e.Apply("", "SELECT subject_id, gender FROM admissions WHERE insurance = 'Medicare'", Relaxed)
	assert.Equal(t, "SELECT admissions.subject_id, pat.gender FROM admissions\n"+
		"JOIN patients pat ON pat.subject_id = admissions.subject_id WHERE admissions.insurance = 'Medicare'", out)
	assert.Equal(t, []string{"missing_column_join"}, Names(apps))

	out, _ = e.Apply("", "SELECT label, COUNT(*) AS n FROM chartevents GROUP BY label", Relaxed)
	assert.Contains(t, out, "JOIN d_items dct ON dct.itemid = chartevents.itemid")
	assert.Contains(t, out, "SELECT dct.label,")
	assert.Contains(t, out, "GROUP BY dct.label")
}

func TestEngine_KeywordTable(t *testing.T) {
	e := newEngine()
	sql := "SELECT AVG(c.valuenum) AS v FROM chartevents c JOIN d_items di ON di.itemid = c.itemid WHERE di.label = 'Glucose'"

	out, _ := e.Apply("average lab glucose", sql, Relaxed)
	assert.Equal(t, sql, out, "keyword_table is aggressive-only")

	out, apps := e.Apply("average lab glucose", sql, Aggressive)
	assert.Contains(t, out, "FROM labevents c JOIN d_labitems di")
	assert.Contains(t, Names(apps), "keyword_table")
}

func TestCountAlias(t *testing.T) {
	e := newEngine()
	rc := e.Context("", Relaxed)
	out, ok := countAlias{}.Apply("SELECT icd_code, COUNT(*) FROM diagnoses_icd GROUP BY icd_code ORDER BY COUNT(*) DESC", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT icd_code, COUNT(*) AS cnt FROM diagnoses_icd GROUP BY icd_code ORDER BY cnt DESC", out)
}

func TestNonNullTargets(t *testing.T) {
	e := newEngine()
	rc := e.Context("", Aggressive)

	out, ok := nonNullTargets{}.Apply("SELECT race, AVG(anchor_age) AS a FROM t GROUP BY race", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT race, AVG(anchor_age) AS a FROM t WHERE race IS NOT NULL AND anchor_age IS NOT NULL\nGROUP BY race", out)

	out, ok = nonNullTargets{}.Apply("SELECT race, COUNT(*) AS n FROM t WHERE x = 1 OR y = 2 GROUP BY race", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT race, COUNT(*) AS n FROM t WHERE race IS NOT NULL AND (x = 1 OR y = 2) GROUP BY race", out)
}

func TestEngine_RatioDenominator(t *testing.T) {
	e := newEngine()
	q := "mortality rate among sepsis admissions"
	sql := "SELECT SUM(a.hospital_expire_flag) / COUNT(*) AS rate FROM admissions a " +
		"JOIN diagnoses_icd d ON d.hadm_id = a.hadm_id WHERE d.icd_code LIKE 'A41%'"

	out, _ := e.Apply(q, sql, Relaxed)
	assert.Equal(t, sql, out)

	out, apps := e.Apply(q, sql, Aggressive)
	assert.Contains(t, out, "/ COUNT(DISTINCT a.hadm_id) AS rate")
	assert.Equal(t, []string{"ratio_denominator"}, Names(apps))

	profile, sigs := Recommend(q, sql, catalog.Default())
	assert.Equal(t, Aggressive, profile)
	assert.Equal(t, []string{SignatureRatioFanout}, sigs)
}

func TestEngine_DeathTimeAlignment(t *testing.T) {
	e := newEngine()
	q := "ICU mortality for heart failure"
	sql := "SELECT COUNT(*) AS n FROM admissions a JOIN icustays i ON i.hadm_id = a.hadm_id WHERE a.hospital_expire_flag = 1"

	out, apps := e.Apply(q, sql, Aggressive)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM admissions a JOIN icustays i ON i.hadm_id = a.hadm_id "+
		"WHERE a.deathtime BETWEEN i.intime AND i.outtime", out)
	assert.Equal(t, []string{"death_time_alignment"}, Names(apps))

	profile, sigs := e.Recommend(q, sql)
	assert.Equal(t, Aggressive, profile)
	assert.Contains(t, sigs, SignatureMortalityUnaligned)
}

func TestICDVersion(t *testing.T) {
	e := newEngine()
	rc := e.Context("", Relaxed)

	out, ok := icdVersion{}.Apply("SELECT hadm_id FROM diagnoses_icd WHERE icd_code LIKE 'I21%' AND icd_version = 9", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT hadm_id FROM diagnoses_icd WHERE icd_code LIKE 'I21%' AND icd_version = 10", out)

	out, ok = icdVersion{}.Apply("SELECT hadm_id FROM diagnoses_icd WHERE icd_version = 10 AND icd_code LIKE 'V45%'", rc)
	require.True(t, ok)
	assert.Contains(t, out, "icd_version = 9")

	// Each OR branch keeps its own version.
	sql := "SELECT hadm_id FROM diagnoses_icd WHERE (icd_code LIKE 'I21%' AND icd_version = 10) OR (icd_code LIKE '410%' AND icd_version = 9)"
	_, ok = icdVersion{}.Apply(sql, rc)
	assert.False(t, ok)

	_, ok = icdVersion{}.Apply("SELECT hadm_id FROM diagnoses_icd WHERE icd_code IN ('I21', '410') AND icd_version = 9", rc)
	assert.False(t, ok, "mixed code systems are ambiguous")

	profile, sigs := Recommend("", "SELECT hadm_id FROM diagnoses_icd WHERE icd_code LIKE 'I21%' AND icd_version = 9", catalog.Default())
	assert.Equal(t, Aggressive, profile)
	assert.Equal(t, []string{SignatureICDVersionMismatch}, sigs)
}

func TestValueExpansion(t *testing.T) {
	e := newEngine()
	rc := e.Context("", Aggressive)

	out, ok := valueExpansion{}.Apply("SELECT COUNT(*) AS n FROM admissions WHERE insurance = 'medicare' AND admission_type = 'EMER'", rc)
	require.True(t, ok)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM admissions WHERE insurance = 'Medicare' AND admission_type IN ('EW EMER.', 'DIRECT EMER.')", out)

	_, ok = valueExpansion{}.Apply("SELECT COUNT(*) AS n FROM admissions WHERE insurance = 'Medicare'", rc)
	assert.False(t, ok)

	_, ok = valueExpansion{}.Apply("SELECT COUNT(*) AS n FROM admissions WHERE insurance = 'Blue Cross'", rc)
	assert.False(t, ok)

	small := newEngine(WithMaxValueExpansion(1)).Context("", Aggressive)
	out, ok = valueExpansion{}.Apply("SELECT COUNT(*) AS n FROM admissions WHERE admission_type = 'EMER'", small)
	require.True(t, ok)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM admissions WHERE admission_type = 'EW EMER.'", out)
}

func TestEngine_UnrequestedFirstStay(t *testing.T) {
	e := newEngine()
	sql := "SELECT AVG(los_icu) AS avg_los FROM icustay_detail WHERE first_icu_stay = 1 AND los_icu > 0"

	out, apps := e.Apply("average ICU length of stay", sql, Aggressive)
	assert.Equal(t, "SELECT AVG(los_icu) AS avg_los FROM icustay_detail WHERE los_icu > 0", out)
	assert.Equal(t, []string{"unrequested_first_stay"}, Names(apps))

	out, _ = e.Apply("average length of the first ICU stay", sql, Aggressive)
	assert.Equal(t, sql, out)

	out, _ = unrequestedFirstStay{}.Apply(
		"SELECT stay_id FROM icustay_detail WHERE first_icu_stay = 1 AND first_hosp_stay = 1",
		e.Context("", Aggressive))
	assert.Equal(t, "SELECT stay_id FROM icustay_detail", out)
}

func TestEngine_UnrequestedRowCap(t *testing.T) {
	e := newEngine()
	sql := "SELECT insurance, COUNT(*) AS n FROM admissions GROUP BY insurance FETCH FIRST 10 ROWS ONLY"

	out, apps := e.Apply("number of admissions by insurance", sql, Aggressive)
	assert.Equal(t, "SELECT insurance, COUNT(*) AS n FROM admissions WHERE insurance IS NOT NULL\nGROUP BY insurance", out)
	assert.Equal(t, []string{"row_limit_syntax", "non_null_targets", "unrequested_row_cap"}, Names(apps))

	out, _ = e.Apply("number of admissions by insurance", sql, Relaxed)
	assert.Contains(t, out, "WHERE ROWNUM <= 10")
}

func TestEngine_TopNConsistency(t *testing.T) {
	e := newEngine()
	sql := "SELECT icd_code, COUNT(*) AS n FROM diagnoses_icd GROUP BY icd_code ORDER BY n DESC FETCH FIRST 10 ROWS ONLY"

	out, apps := e.Apply("top 5 diagnoses", sql, Relaxed)
	assert.Equal(t, "SELECT * FROM (\nSELECT icd_code, COUNT(*) AS n FROM diagnoses_icd GROUP BY icd_code ORDER BY n DESC\n) WHERE ROWNUM <= 5", out)
	assert.Equal(t, []string{"row_limit_syntax", "top_n_consistency"}, Names(apps))

	// Stacked caps collapse into one.
	stacked := "SELECT * FROM (\nSELECT * FROM (\nSELECT subject_id FROM patients\n) WHERE ROWNUM <= 5\n) WHERE ROWNUM <= 5"
	out, _ = topNConsistency{}.Apply(stacked, e.Context("top 5 patients", Relaxed))
	assert.Equal(t, "SELECT * FROM (\nSELECT subject_id FROM patients\n) WHERE ROWNUM <= 5", out)

	pg := newEngine(WithDialect(dialect.PostgreSQL))
	out, _ = pg.Apply("top 3 races", "SELECT race FROM admissions", Relaxed)
	assert.Equal(t, "SELECT race FROM admissions\nLIMIT 3", out)
}

func TestEngine_DefaultRowCap(t *testing.T) {
	e := newEngine()
	sql := "SELECT EXTRACT(YEAR FROM admittime) AS yr, COUNT(*) AS n FROM admissions GROUP BY EXTRACT(YEAR FROM admittime)"

	out, apps := e.Apply("admissions per year", sql, Relaxed)
	assert.Equal(t, "SELECT * FROM (\n"+sql+"\n) WHERE ROWNUM <= 1000", out)
	assert.Equal(t, []string{"default_row_cap"}, Names(apps))

	again, apps := e.Apply("admissions per year", out, Aggressive)
	assert.Equal(t, out, again)
	assert.Empty(t, apps)

	out, _ = e.Apply("admissions per year, limit to 20", sql, Relaxed)
	assert.Equal(t, sql, out)

	out, _ = newEngine(WithDefaultRowCap(0)).Apply("admissions per year", sql, Relaxed)
	assert.Equal(t, sql, out)
}

func TestGuard(t *testing.T) {
	e := newEngine()

	out, apps := e.RunPipeline(Guard(), "how many female patients died in hospital",
		"SELECT COUNT(*) AS n FROM patients p JOIN admissions a ON a.subject_id = p.subject_id WHERE a.hospital_expire_flag = 1",
		Aggressive)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM patients p JOIN admissions a ON a.subject_id = p.subject_id "+
		"WHERE a.hospital_expire_flag = 1 AND p.gender = 'F'", out)
	assert.Equal(t, []string{"gender_filter"}, Names(apps))

	out, _ = e.RunPipeline(Guard(), "how many men died",
		"SELECT COUNT(*) AS n FROM patients WHERE gender = 'F'", Aggressive)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM patients WHERE gender = 'M'", out)

	out, _ = e.RunPipeline(Guard(), "how many patients are older than 60",
		"SELECT COUNT(*) AS n FROM patients WHERE gender = 'M' AND anchor_age > 60", Aggressive)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM patients WHERE anchor_age > 60", out)
}

func TestRelaxer(t *testing.T) {
	e := newEngine()

	out, apps := e.RunPipeline(Relaxer(), "patients in the medical ICU",
		"SELECT COUNT(*) AS n FROM icustays WHERE first_careunit = 'MICU'", Aggressive)
	assert.Contains(t, out, "first_careunit IN ('Medical Intensive Care Unit (MICU)', 'Medical/Surgical Intensive Care Unit (MICU/SICU)'")
	assert.Equal(t, []string{"value_expansion"}, Names(apps))

	out, _ = e.RunPipeline(Relaxer(), "heart rate readings",
		"SELECT COUNT(*) AS n FROM d_items WHERE label = 'heart rate'", Aggressive)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM d_items WHERE UPPER(label) LIKE UPPER('%heart rate%')", out)

	out, _ = e.RunPipeline(Relaxer(), "sepsis admissions",
		"SELECT hadm_id FROM diagnoses_icd WHERE icd_code LIKE 'A41%' AND icd_version = 10", Relaxed)
	assert.Equal(t, "SELECT hadm_id FROM diagnoses_icd WHERE icd_code LIKE 'A41%'", out)
}

func TestRecommend_Relaxed(t *testing.T) {
	profile, sigs := Recommend("how many admissions", "SELECT COUNT(*) AS n FROM admissions", catalog.Default())
	assert.Equal(t, Relaxed, profile)
	assert.Empty(t, sigs)
}

type countingObserver map[string]int

func (c countingObserver) RuleApplied(pipeline, rule string) { c[pipeline+"/"+rule]++ }

func TestEngine_Observer(t *testing.T) {
	obs := countingObserver{}
	e := newEngine(WithObserver(obs))
	e.Apply("", "SELECT icustay_id FROM icustays", Relaxed)
	e.RunPipeline(Guard(), "top 2 stays", "SELECT stay_id FROM icustays", Relaxed)
	assert.Equal(t, 1, obs["postprocess/rename_identifiers"])
	assert.Equal(t, 1, obs["guard/top_n_consistency"])
}

// corpus pairs questions with candidate SQL exercising every rule.
var corpus = []struct{ question, sql string }{
	{"", "```sql\nSELECT subject_id FROM patients;\n```"},
	{"", "SELECT subject_id FROM t WHERE a = TRUE AND b IS NOT FALSE"},
	{"", "SELECT hadm_id FROM admissions WHERE dischtime > admittime + INTERVAL '7 days'"},
	{"", "SELECT hadm_id FROM admissions WHERE dischtime > admittime + INTERVAL 3 HOUR"},
	{"", "SELECT subject_id FROM patients LIMIT 10"},
	{"", "SELECT TOP 5 subject_id FROM patients"},
	{"", "SELECT subject_id FROM patients FOR UPDATE"},
	{"", "SELECT icustay_id, los_icu FROM icustays"},
	{"", "SELECT icu_stays.stay_id FROM icu_stays"},
	{"", "SELECT subject_id, gender FROM admissions WHERE insurance = 'Medicare'"},
	{"", "SELECT label, COUNT(*) FROM chartevents GROUP BY label ORDER BY COUNT(*) DESC"},
	{"average lab glucose", "SELECT AVG(c.valuenum) FROM chartevents c JOIN d_items di ON di.itemid = c.itemid WHERE di.label = 'Glucose'"},
	{"", "SELECT race, AVG(anchor_age) FROM t WHERE x = 1 OR y = 2 GROUP BY race"},
	{"mortality rate among sepsis admissions", "SELECT SUM(a.hospital_expire_flag) / NULLIF(COUNT(*), 0) AS rate FROM admissions a JOIN diagnoses_icd d ON d.hadm_id = a.hadm_id"},
	{"ICU mortality", "SELECT COUNT(*) FROM admissions a JOIN icustays i ON i.hadm_id = a.hadm_id WHERE a.hospital_expire_flag = 1"},
	{"in-hospital deaths by time of death", "SELECT a.deathtime FROM admissions a WHERE a.hospital_expire_flag = 1"},
	{"", "SELECT hadm_id FROM diagnoses_icd WHERE icd_code LIKE 'I21%' AND icd_version = 9"},
	{"", "SELECT COUNT(*) AS n FROM admissions WHERE insurance = 'medicare' AND admission_type = 'EMER'"},
	{"", "SELECT COUNT(*) AS n FROM icustays WHERE first_careunit = 'MICU'"},
	{"", "SELECT stay_id FROM icustay_detail WHERE first_icu_stay = 1 AND first_hosp_stay = 1"},
	{"", "SELECT insurance, COUNT(*) AS n FROM admissions GROUP BY insurance FETCH FIRST 10 ROWS ONLY"},
	{"top 5 diagnoses", "SELECT icd_code, COUNT(*) AS n FROM diagnoses_icd GROUP BY icd_code ORDER BY n DESC FETCH FIRST 10 ROWS ONLY"},
	{"top 5 patients", "SELECT * FROM (\nSELECT * FROM (\nSELECT subject_id FROM patients\n) WHERE ROWNUM <= 5\n) WHERE ROWNUM <= 5"},
	{"admissions per year", "SELECT EXTRACT(YEAR FROM admittime) AS yr, COUNT(*) AS n FROM admissions GROUP BY EXTRACT(YEAR FROM admittime)"},
	{"how many female patients died", "SELECT COUNT(*) AS n FROM patients p JOIN admissions a ON a.subject_id = p.subject_id WHERE a.hospital_expire_flag = 1"},
	{"how many patients are older than 60", "SELECT COUNT(*) AS n FROM patients WHERE gender = 'M' AND anchor_age > 60"},
	{"", "SELECT COUNT(*) AS n FROM d_items WHERE label = 'heart rate'"},
	{"", "WITH x AS (SELECT hadm_id FROM admissions) SELECT COUNT(*) FROM x"},
	{"", "not sql at all"},
}

func allRules() []Rule {
	rules := DefaultRules()
	rules = append(rules, Guard().Rules()...)
	return append(rules, Relaxer().Rules()...)
}

func TestRules_Idempotent(t *testing.T) {
	for _, d := range []dialect.Dialect{dialect.Oracle, dialect.PostgreSQL, dialect.SQLite} {
		e := newEngine(WithDialect(d))
		for _, rule := range allRules() {
			for _, c := range corpus {
				rc := e.Context(c.question, Aggressive)
				once, _ := rule.Apply(c.sql, rc)
				twice, changed := rule.Apply(once, rc)
				assert.Equal(t, once, twice, "%s/%s: %q", d, rule.Name(), c.sql)
				assert.False(t, changed && twice != once, "%s/%s reported a change", d, rule.Name())
			}
		}
	}
}

func TestEngine_Deterministic(t *testing.T) {
	e := newEngine()
	for _, c := range corpus {
		for _, p := range []Profile{Relaxed, Aggressive} {
			out1, apps1 := e.Apply(c.question, c.sql, p)
			out2, apps2 := e.Apply(c.question, c.sql, p)
			assert.Equal(t, out1, out2)
			assert.Equal(t, apps1, apps2)
		}
	}
}
