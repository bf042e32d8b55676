package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

var (
	highlightsPhrases  = []string{"principais pontos", "pontos importantes", "resumo da reunião", "highlights", "pontos-chave", "tópicos principais"}
	projectPhrases     = []string{"quais projetos", "projetos foram", "projetos mencionados", "lista de projetos"}
	participantPhrases = []string{"quem participou", "participantes", "quem estava", "pessoas que"}
	decisionWords      = []string{"decisão", "decidido", "aprovado", "definido", "acordo", "resolução"}
	problemWords       = []string{"problema", "erro", "falha", "dificuldade", "issue", "bug", "crítico"}
	videoWords         = []string{"vídeos", "videos", "kts", "reuniões", "meetings"}
)

var metadataKeywords = []string{
	"quais", "que", "liste", "listar", "enumere", "enumerar", "mostre", "mostrar", "exiba", "exibir",
	"apresente", "apresentar", "listagem", "lista", "relação", "catálogo", "inventário", "índice",
	"vídeos", "videos", "kts", "reuniões", "reunioes", "meetings", "clientes", "projetos", "arquivos",
	"temos", "disponíveis", "disponivel", "existem", "possuímos", "base", "conhecimento",
	"informações", "informacoes", "dados", "conteúdo", "conteudo", "material", "nomes",
}

var listingRes = []*regexp.Regexp{
	regexp.MustCompile(`(quais?|que)\s+.*(nomes?|clientes?).*(temos|kt|informaç)`),
	regexp.MustCompile(`nomes?\s+.*clientes?.*(kt|informaç)`),
	regexp.MustCompile(`temos\s+.*clientes?.*(base|conhecimento)`),
	regexp.MustCompile(`clientes?\s+.*(disponíve|temos|base|conhecimento)`),
	regexp.MustCompile(`liste?\s+.*(clientes?|kts?|documentos?|vídeos?)`),
	regexp.MustCompile(`(quais?|que)\s+.*(kts?|documentos?|vídeos?)\s+.*temos`),
	regexp.MustCompile(`base\s+.*conhecimento.*clientes?`),
	regexp.MustCompile(`temos\s+.*informaç.*clientes?`),
}

var (
	listingVerbs    = []string{"liste", "listar", "quais", "que", "mostre", "exiba"}
	listingEntities = []string{"clientes", "cliente", "kts", "kt", "documentos", "vídeos"}
	listingContext  = []string{"temos", "disponíveis", "base", "conhecimento", "informações", "nomes"}
)

const listingScoreThreshold = 8

var (
	genericListingRes = []*regexp.Regexp{
		regexp.MustCompile(`liste.*kts`),
		regexp.MustCompile(`quantos.*kts`),
		regexp.MustCompile(`quais.*kts.*temos`),
		regexp.MustCompile(`kts.*disponíveis`),
		regexp.MustCompile(`kts.*que.*temos`),
		regexp.MustCompile(`todos.*os.*kts`),
	}
	specificAnalysisRes = []*regexp.Regexp{
		regexp.MustCompile(`temas.*discutidos`),
		regexp.MustCompile(`pontos.*discutidos`),
		regexp.MustCompile(`principais.*pontos`),
		regexp.MustCompile(`o que foi.*abordado`),
		regexp.MustCompile(`que foi.*explicado`),
		regexp.MustCompile(`resuma.*pontos`),
		regexp.MustCompile(`resumo.*do kt`),
		regexp.MustCompile(`conteúdo.*do kt`),
		regexp.MustCompile(`assuntos.*tratados`),
		regexp.MustCompile(`no kt|neste kt|deste kt|kt.*específico`),
		regexp.MustCompile(`resum(a|ir)|analis(e|ar)|explic(a|ar|que)`),
	}
	specificKTWords = []string{"iflow", "estorno", "sustentação", "correção", "pc"}
)

// clientMentionRe captures the name following the word "cliente".
var clientMentionRe = regexp.MustCompile(`(?i)cliente\s+(\p{L}[\p{L}\p{N}_]*)`)

// clientQuestionRe matches queries asking which client something belongs to.
var clientQuestionRe = regexp.MustCompile(`(?i)\b(qual|que|quais)\s+(o\s+)?clientes?\b`)

// clientTokenVerbs are question words and verbs that often follow "cliente"
// and would pass the capitalisation check at the start of a sentence.
var clientTokenVerbs = map[string]struct{}{
	"veio": {}, "vem": {}, "pediu": {}, "solicitou": {}, "falou": {}, "disse": {}, "usa": {},
	"utiliza": {}, "possui": {}, "teve": {}, "quer": {}, "precisa": {}, "participou": {},
	"quando": {}, "porque": {}, "por": {}, "cujo": {}, "cuja": {}, "ainda": {}, "também": {},
}

// intentDetector picks the secondary intent from lexical patterns only.
// clientKnown reports whether a mentioned client exists; nil means always.
type intentDetector struct {
	clientKnown func(name string) bool
}

func (d intentDetector) detect(query string, candidates []domain.Candidate) domain.InsightIntent {
	lower := strings.ToLower(query)

	if containsAny(lower, highlightsPhrases...) {
		return domain.IntentHighlightsSummary
	}
	if containsAny(lower, projectPhrases...) {
		return domain.IntentProjectListing
	}
	if containsAny(lower, metadataKeywords...) {
		listing := isListingQuery(lower)
		specific := isSpecificKTAnalysis(lower)
		switch {
		case listing && !specific:
			if name := MentionedClient(query); name != "" && d.clientKnown != nil && !d.clientKnown(name) {
				return domain.IntentClientNotFound
			}
			return domain.IntentMetadataListing
		case specific:
			return domain.IntentGeneral
		}
		for _, c := range candidates {
			if c.Metadata.ContentType == "metadata" {
				return domain.IntentMetadataListing
			}
		}
		if len(candidates) >= 5 && containsAny(lower, videoWords...) {
			return domain.IntentMetadataListing
		}
	}
	if containsAny(lower, participantPhrases...) {
		return domain.IntentParticipants
	}
	if containsAny(lower, decisionWords...) {
		return domain.IntentDecision
	}
	if containsAny(lower, problemWords...) {
		return domain.IntentProblem
	}
	return domain.IntentGeneral
}

func isListingQuery(lower string) bool {
	has := func(w string) bool { return strings.Contains(lower, w) }
	switch {
	case has("liste") && (has("vídeos") || has("kts") || has("reuniões")),
		has("mostre") && (has("vídeos") || has("kts")),
		has("quais") && (has("kts") || has("reuniões") || has("vídeos")),
		has("temos") && has("disponíveis"),
		has("base") && has("conhecimento"):
		return true
	}
	for _, re := range listingRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return listingScore(lower) >= listingScoreThreshold
}

func listingScore(lower string) int {
	words := strings.Fields(lower)
	anyWord := func(needle string) bool {
		for _, w := range words {
			if strings.Contains(w, needle) {
				return true
			}
		}
		return false
	}
	score := 0
	for _, groups := range []struct {
		words  []string
		weight int
	}{{listingVerbs, 3}, {listingEntities, 2}, {listingContext, 1}} {
		for _, w := range groups.words {
			if anyWord(w) {
				score += groups.weight
			}
		}
	}
	return score
}

// isSpecificKTAnalysis separates "summarise the KT about X" from
// "list every KT we have".
func isSpecificKTAnalysis(lower string) bool {
	for _, re := range genericListingRes {
		if re.MatchString(lower) {
			return false
		}
	}
	for _, re := range specificAnalysisRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return strings.Contains(lower, "kt") && containsAny(lower, specificKTWords...)
}

// MentionedClient returns the upper-cased name following "cliente", or "" when
// the query asks which client it is or the word does not look like a name.
// Names are capitalised or all-caps in the original text.
func MentionedClient(query string) string {
	if clientQuestionRe.MatchString(query) {
		return ""
	}
	m := clientMentionRe.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	token := m[1]
	lower := strings.ToLower(token)
	if _, stop := clientTokenStopWords[lower]; stop {
		return ""
	}
	if _, verb := clientTokenVerbs[lower]; verb {
		return ""
	}
	if first, _ := utf8.DecodeRuneInString(token); !unicode.IsUpper(first) {
		return ""
	}
	return strings.ToUpper(token)
}
