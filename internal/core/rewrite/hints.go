package rewrite

import (
	"regexp"
	"strconv"
	"strings"
)

// Hints are the coarse intent signals read from the question text. They are
// keyword matches only; nothing here interprets the question's meaning.
type Hints struct {
	// TopN is the row count of an explicit "top N" request, or 0.
	TopN int
	// WithinDays is K from "within K days", or 0.
	WithinDays     int
	Ratio          bool
	Trend          bool
	Distribution   bool
	Comparison     bool
	ICU            bool
	Mortality      bool
	FirstICU       bool
	LimitMentioned bool
	// Gender is "F" or "M" when the question restricts to one sex.
	Gender   string
	Keywords map[string]bool
}

// NonTrivial reports whether the question asks for an aggregate or comparison
// that is implausible to be legitimately empty.
func (h Hints) NonTrivial() bool {
	return h.Ratio || h.Trend || h.Distribution || h.Comparison || h.TopN > 0
}

// Mentions reports whether the question contains phrase.
func (h Hints) Mentions(phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if !strings.Contains(phrase, " ") {
		return h.Keywords[phrase]
	}
	words := strings.Fields(phrase)
	for _, w := range words {
		if !h.Keywords[w] {
			return false
		}
	}
	return true
}

var (
	wordRe       = regexp.MustCompile(`[a-z0-9]+`)
	firstNRe     = regexp.MustCompile(`\bfirst\s+(\d+|[a-z]+)\s+([a-z]+)`)
	topNRe       = regexp.MustCompile(`\b(?:top|highest|lowest|largest|smallest|most common|least common|leading)\s+(\d+|[a-z]+)\b`)
	nMostRe      = regexp.MustCompile(`\b(\d+)\s+(?:most|least|highest|lowest|largest|smallest|top)\b`)
	withinDaysRe = regexp.MustCompile(`\bwithin\s+(\d+|[a-z]+)\s+days?\b`)
	limitRe      = regexp.MustCompile(`\b(?:limit|top|at most|no more than)\b`)
	ratioRe      = regexp.MustCompile(`\b(?:ratio|rate|rates|proportion|percent|percentage|fraction|share)\b`)
	trendRe      = regexp.MustCompile(`\b(?:trend|trends|over time|per year|per month|by year|by month|monthly|yearly|annual|annually|each year|each month)\b`)
	distRe       = regexp.MustCompile(`\b(?:distribution|histogram|breakdown|spread)\b`)
	compareRe    = regexp.MustCompile(`\b(?:compare|comparing|comparison|versus|vs|difference|differ)\b`)
	icuRe        = regexp.MustCompile(`\b(?:icu|intensive care|critical care|micu|sicu|ccu)\b`)
	mortalityRe  = regexp.MustCompile(`\b(?:death|deaths|died|die|mortality|deceased|expire|expired|survival)\b`)
	firstICURe   = regexp.MustCompile(`\bfirst\s+(?:icu\s+)?(?:stay|stays|icu admission|icu)\b`)
	femaleRe     = regexp.MustCompile(`\b(?:female|females|women|woman)\b`)
	maleRe       = regexp.MustCompile(`\b(?:male|males|men|man)\b`)
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
	"eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "fifteen": 15,
	"twenty": 20, "thirty": 30, "fifty": 50, "hundred": 100,
}

var timeUnits = map[string]bool{
	"minute": true, "minutes": true, "hour": true, "hours": true, "day": true, "days": true,
	"week": true, "weeks": true, "month": true, "months": true, "year": true, "years": true,
}

func parseCount(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return numberWords[s]
}

// ParseQuestion extracts hints from question.
func ParseQuestion(question string) Hints {
	q := strings.ToLower(question)
	h := Hints{Keywords: make(map[string]bool)}
	for _, w := range wordRe.FindAllString(q, -1) {
		h.Keywords[w] = true
	}

	if m := topNRe.FindStringSubmatch(q); m != nil {
		h.TopN = parseCount(m[1])
	}
	if h.TopN == 0 {
		if m := firstNRe.FindStringSubmatch(q); m != nil && !timeUnits[m[2]] {
			h.TopN = parseCount(m[1])
		}
	}
	if h.TopN == 0 {
		if m := nMostRe.FindStringSubmatch(q); m != nil {
			h.TopN = parseCount(m[1])
		}
	}
	if m := withinDaysRe.FindStringSubmatch(q); m != nil {
		h.WithinDays = parseCount(m[1])
	}
	h.LimitMentioned = h.TopN > 0 || limitRe.MatchString(q)
	h.Ratio = ratioRe.MatchString(q)
	h.Trend = trendRe.MatchString(q)
	h.Distribution = distRe.MatchString(q)
	h.Comparison = compareRe.MatchString(q)
	h.ICU = icuRe.MatchString(q)
	h.Mortality = mortalityRe.MatchString(q)
	h.FirstICU = firstICURe.MatchString(q)

	female, male := femaleRe.MatchString(q), maleRe.MatchString(q)
	switch {
	case female && !male:
		h.Gender = "F"
	case male && !female:
		h.Gender = "M"
	}
	return h
}
