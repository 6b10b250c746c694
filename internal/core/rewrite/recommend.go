package rewrite

import (
	"strings"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
)

// Risk signatures reported by Recommend.
const (
	SignatureRatioFanout        = "ratio_under_one_to_many"
	SignatureMortalityUnaligned = "icu_mortality_unaligned"
	SignatureICDVersionMismatch = "icd_version_mismatch"
	SignatureFirstStay          = "unrequested_first_stay"
)

// Recommend inspects sql for known failure patterns and returns the profile a
// first attempt should use, with the signatures that matched.
func Recommend(question, sql string, cat *catalog.Catalog) (Profile, []string) {
	rc := &Context{
		Question: question,
		Hints:    ParseQuestion(question),
		Catalog:  cat,
		Dialect:  cat.Dialect(),
		Profile:  Aggressive,
	}
	return recommend(sql, rc)
}

// Recommend is the package-level Recommend bound to the engine's catalog and dialect.
func (e *Engine) Recommend(question, sql string) (Profile, []string) {
	return recommend(sql, e.Context(question, Aggressive))
}

func recommend(sql string, rc *Context) (Profile, []string) {
	var matched []string
	fires := func(r Rule) bool {
		_, ok := r.Apply(sql, rc)
		return ok
	}
	if rc.Hints.Ratio && fires(ratioDenominator{}) {
		matched = append(matched, SignatureRatioFanout)
	}
	if rc.Hints.ICU && rc.Hints.Mortality && strings.Contains(strings.ToLower(sql), expireFlag) {
		matched = append(matched, SignatureMortalityUnaligned)
	}
	if fires(icdVersion{}) {
		matched = append(matched, SignatureICDVersionMismatch)
	}
	if fires(unrequestedFirstStay{}) {
		matched = append(matched, SignatureFirstStay)
	}
	if len(matched) > 0 {
		return Aggressive, matched
	}
	return Relaxed, nil
}
