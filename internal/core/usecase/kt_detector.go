package usecase

import (
	"regexp"
	"strings"
)

var specificKTPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"kt_with_title_and_date", regexp.MustCompile(`(?i)kt\s*[-\s]*([a-záéíóúãõç\s]+)[-\s]*\d{8}_\d{6}`)},
	{"kt_with_common_types", regexp.MustCompile(`(?i)kt\s+(sustentação|iflow|correção|estratégia|estorno|integração|mm|fi|sd|ewm)`)},
	{"discussion_about_kt", regexp.MustCompile(`(?i)(no|do|sobre)\s+kt\s*[-\s]*([a-záéíóúãõç\s]+)`)},
	{"kt_analysis_request", regexp.MustCompile(`(?i)(temas|pontos|informações|transações|problemas|principais)\s.*kt`)},
	{"specific_kt_reference", regexp.MustCompile(`(?i)discutidos?\s+no\s+kt`)},
}

var analysisIndicators = []string{
	"temas relevantes", "principais pontos", "resumo", "resuma", "principais ponto",
	"o que motivou", "transações explicadas", "foram discutidos", "pontos discutidos",
	"informações sobre", "detalhes", "conteúdo", "explicadas no", "abordados no",
}

var temporalPeriodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)últimos?\s+\d+\s+(dias?|semanas?|meses?|anos?)`),
	regexp.MustCompile(`(?i)(janeiro|fevereiro|março|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\s+\d{4}`),
	regexp.MustCompile(`(?i)kts?\s+dos?\s+últimos?`),
	regexp.MustCompile(`(?i)reuniões\s+de\s+\w+`),
	regexp.MustCompile(`(?i)problemas\s+recentes?`),
	regexp.MustCompile(`(?i)nos?\s+últimos?`),
}

// ktDetection tells a question about one specific KT session apart from a
// question about a time period.
type ktDetection struct {
	SpecificKT     bool
	TemporalPeriod bool
	Confidence     float64
	Title          string
	Matched        []string
}

func detectSpecificKT(query string) ktDetection {
	lower := strings.ToLower(query)
	var d ktDetection

	patternMatches := 0
	for _, p := range specificKTPatterns {
		m := p.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		patternMatches++
		d.Matched = append(d.Matched, p.name)
		if len(m) > 1 {
			d.Title = strings.TrimSpace(m[1])
		}
	}
	analysisMatches := countContains(lower, analysisIndicators)

	if patternMatches > 0 || analysisMatches > 0 {
		d.SpecificKT = true
		d.Confidence = max(min(0.9, float64(patternMatches)*0.3), min(0.6, float64(analysisMatches)*0.15))
		return d
	}

	temporalMatches := 0
	for _, re := range temporalPeriodPatterns {
		if re.MatchString(lower) {
			temporalMatches++
		}
	}
	if temporalMatches > 0 {
		d.TemporalPeriod = true
		d.Confidence = min(0.9, float64(temporalMatches)*0.4)
	}
	return d
}
