package usecase

import (
	"fmt"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

// Heuristics groups every hand-tuned constant of the classifier and selector.
// Defaults come from DefaultHeuristics; a YAML file may override any subset.
// The multiplier and booster values have no documented derivation and should be
// re-tuned against a labelled query set.
type Heuristics struct {
	Classifier ClassifierHeuristics `yaml:"classifier"`
	Selector   SelectorHeuristics   `yaml:"selector"`
}

type PhraseWeight struct {
	Phrase string  `yaml:"phrase"`
	Weight float64 `yaml:"weight"`
}

// TypePhrases holds the lexical phrase table of each query type.
type TypePhrases struct {
	Semantic []PhraseWeight `yaml:"semantic"`
	Metadata []PhraseWeight `yaml:"metadata"`
	Entity   []PhraseWeight `yaml:"entity"`
	Temporal []PhraseWeight `yaml:"temporal"`
	Content  []PhraseWeight `yaml:"content"`
}

func (p TypePhrases) table() [len(domain.QueryTypes)][]PhraseWeight {
	var out [len(domain.QueryTypes)][]PhraseWeight
	out[domain.QuerySemantic] = p.Semantic
	out[domain.QueryMetadata] = p.Metadata
	out[domain.QueryEntity] = p.Entity
	out[domain.QueryTemporal] = p.Temporal
	out[domain.QueryContent] = p.Content
	return out
}

// TypeWeights holds one number per query type.
type TypeWeights struct {
	Semantic float64 `yaml:"semantic"`
	Metadata float64 `yaml:"metadata"`
	Entity   float64 `yaml:"entity"`
	Temporal float64 `yaml:"temporal"`
	Content  float64 `yaml:"content"`
}

func (w TypeWeights) Table() domain.ScoreTable {
	var out domain.ScoreTable
	out[domain.QuerySemantic] = w.Semantic
	out[domain.QueryMetadata] = w.Metadata
	out[domain.QueryEntity] = w.Entity
	out[domain.QueryTemporal] = w.Temporal
	out[domain.QueryContent] = w.Content
	return out
}

type BoosterHeuristics struct {
	PatternTrigger        float64 `yaml:"pattern_trigger"`
	Content               float64 `yaml:"content"`
	Metadata              float64 `yaml:"metadata"`
	Temporal              float64 `yaml:"temporal"`
	Semantic              float64 `yaml:"semantic"`
	EntityTrigger         float64 `yaml:"entity_trigger"`
	EntitySemanticCeiling float64 `yaml:"entity_semantic_ceiling"`
	Entity                float64 `yaml:"entity"`
	SemanticWeakTrigger   float64 `yaml:"semantic_weak_trigger"`
	SemanticWeak          float64 `yaml:"semantic_weak"`
}

type ClassifierHeuristics struct {
	Phrases             TypePhrases       `yaml:"phrases"`
	DefaultPhraseWeight float64           `yaml:"default_phrase_weight"`
	PatternWeight       float64           `yaml:"pattern_weight"`
	EntityWeight        float64           `yaml:"entity_weight"`
	ContextWeight       float64           `yaml:"context_weight"`
	Multipliers         TypeWeights       `yaml:"priority_multipliers"`
	NoiseFloor          float64           `yaml:"noise_floor"`
	Boosters            BoosterHeuristics `yaml:"boosters"`
	FallbackThreshold   float64           `yaml:"fallback_threshold"`
	MaxFallbacks        int               `yaml:"max_fallbacks"`
}

type QualityWeights struct {
	RichContent        float64 `yaml:"rich_content"`
	ClientMatch        float64 `yaml:"client_match"`
	TechnicalRich      float64 `yaml:"technical_rich"`
	Highlights         float64 `yaml:"highlights_available"`
	RelevantPhase      float64 `yaml:"relevant_phase"`
	HighImpact         float64 `yaml:"high_impact"`
	DefinedSpeaker     float64 `yaml:"defined_speaker"`
	QueryMatch         float64 `yaml:"query_match"`
	SmallContent       float64 `yaml:"small_content"`
	NoiseContent       float64 `yaml:"noise_content"`
	FragmentContent    float64 `yaml:"fragment_content"`
	IntroOnly          float64 `yaml:"intro_only"`
	UnknownSpeaker     float64 `yaml:"unknown_speaker"`
	LowImpact          float64 `yaml:"low_impact"`
	IncompleteMetadata float64 `yaml:"incomplete_metadata"`
	Conversational     float64 `yaml:"conversational_noise"`
}

// TopKRule is the adaptive result-count table of one query type. Zero fields
// mean the rule does not apply to that type.
type TopKRule struct {
	Base          int `yaml:"base"`
	WithClient    int `yaml:"with_client"`
	ClientFocused int `yaml:"client_focused"`
	Technical     int `yaml:"technical_query"`
	Broad         int `yaml:"broad_query"`
	SummaryView   int `yaml:"summary_view"`
	ClientList    int `yaml:"client_list"`
	VideoList     int `yaml:"video_list"`
	MaxLimit      int `yaml:"max_limit"`
}

type TopKTable struct {
	Semantic TopKRule `yaml:"semantic"`
	Metadata TopKRule `yaml:"metadata"`
	Entity   TopKRule `yaml:"entity"`
	Temporal TopKRule `yaml:"temporal"`
	Content  TopKRule `yaml:"content"`
}

func (t TopKTable) For(queryType domain.QueryType) TopKRule {
	rules := [len(domain.QueryTypes)]TopKRule{
		domain.QuerySemantic: t.Semantic,
		domain.QueryMetadata: t.Metadata,
		domain.QueryEntity:   t.Entity,
		domain.QueryTemporal: t.Temporal,
		domain.QueryContent:  t.Content,
	}
	if !queryType.Valid() {
		return t.Semantic
	}
	return rules[queryType]
}

type SelectorHeuristics struct {
	QualityThreshold   float64        `yaml:"quality_threshold"`
	Quality            QualityWeights `yaml:"quality_weights"`
	TopK               TopKTable      `yaml:"top_k"`
	FillRatio          float64        `yaml:"fill_ratio"`
	ComplianceRatio    float64        `yaml:"compliance_ratio"`
	SemanticQuality    float64        `yaml:"semantic_quality_weight"`
	SemanticSimilarity float64        `yaml:"semantic_similarity_weight"`
	ComplexFactor      float64        `yaml:"complex_factor"`
	SimpleFactor       float64        `yaml:"simple_factor"`
}

func weighted(weight float64, phrases ...string) []PhraseWeight {
	out := make([]PhraseWeight, 0, len(phrases))
	for _, phrase := range phrases {
		out = append(out, PhraseWeight{Phrase: phrase, Weight: weight})
	}
	return out
}

func DefaultHeuristics() Heuristics {
	const def = 0.4
	return Heuristics{
		Classifier: ClassifierHeuristics{
			Phrases: TypePhrases{
				Semantic: append([]PhraseWeight{
					{"o que temos", 0.95},
					{"principais pontos", 0.9},
					{"informações sobre", 0.85},
					{"como funciona", 0.9},
					{"qual o objetivo", def},
					{"resumo", def},
					{"resuma", def},
					{"me traga", 0.85},
					{"principais", 0.6},
					{"informação", 0.5},
					{"processo", 0.6},
					{"como foram", 0.85},
					{"o que sabemos", 0.9},
					{"sabemos sobre", 0.9},
					{"temos de informação", 0.95},
				}, weighted(def, "discutidos", "pontos discutidos", "foram discutidos")...),
				Metadata: append([]PhraseWeight{
					{"liste", 0.9},
					{"quais", 0.8},
					{"quantos", 0.8},
					{"disponíveis", 0.7},
				}, weighted(def, "base de conhecimento", "vídeos", "kts", "reuniões", "clientes", "projetos", "mostre", "exiba", "documentos")...),
				Entity: append([]PhraseWeight{
					{"quem participou", 0.95},
					{"participantes", 0.8},
					{"de qual cliente", 0.9},
				}, weighted(def, "informações do cliente", "pessoas envolvidas", "quem estava", "equipe")...),
				Temporal: []PhraseWeight{
					{"últimos", 0.9},
					{"dias", def},
					{"mês", def},
					{"ano", def},
					{"recentes", 0.85},
					{"setembro", 0.9},
					{"outubro", def},
					{"2024", 0.7},
					{"2025", def},
					{"ontem", def},
					{"semana", def},
				},
				Content: append([]PhraseWeight{
					{"onde mencionaram", 0.98},
					{"menção", def},
					{"literal", 0.95},
					{"exata", 0.95},
					{"procurar", def},
					{"chunk:", 0.99},
				}, weighted(def, "busca literal", "encontre", "texto", "transação", "tcode", "código", "específica sobre")...),
			},
			DefaultPhraseWeight: def,
			PatternWeight:       0.5,
			EntityWeight:        0.3,
			ContextWeight:       0.2,
			Multipliers: TypeWeights{
				Semantic: 1.0,
				Metadata: 1.8,
				Entity:   1.3,
				Temporal: 1.6,
				Content:  2.0,
			},
			NoiseFloor: 0.1,
			Boosters: BoosterHeuristics{
				PatternTrigger:        0.3,
				Content:               1.0,
				Metadata:              0.8,
				Temporal:              0.8,
				Semantic:              0.8,
				EntityTrigger:         0.5,
				EntitySemanticCeiling: 0.2,
				Entity:                0.4,
				SemanticWeakTrigger:   0.1,
				SemanticWeak:          0.5,
			},
			FallbackThreshold: 0.3,
			MaxFallbacks:      2,
		},
		Selector: SelectorHeuristics{
			QualityThreshold: 0.3,
			Quality: QualityWeights{
				RichContent:        0.2,
				ClientMatch:        0.3,
				TechnicalRich:      0.15,
				Highlights:         0.1,
				RelevantPhase:      0.1,
				HighImpact:         0.15,
				DefinedSpeaker:     0.05,
				QueryMatch:         0.1,
				SmallContent:       0.3,
				NoiseContent:       0.6,
				FragmentContent:    0.2,
				IntroOnly:          0.2,
				UnknownSpeaker:     0.1,
				LowImpact:          0.1,
				IncompleteMetadata: 0.15,
				Conversational:     0.5,
			},
			TopK: TopKTable{
				Semantic: TopKRule{Base: 8, WithClient: 12, Technical: 6, Broad: 15, MaxLimit: 20},
				Metadata: TopKRule{Base: 20, ClientList: 100, VideoList: 500, SummaryView: 30, MaxLimit: 500},
				Entity:   TopKRule{Base: 10, ClientFocused: 8, MaxLimit: 25},
				Temporal: TopKRule{Base: 12, MaxLimit: 30},
				Content:  TopKRule{Base: 15, MaxLimit: 30},
			},
			FillRatio:          0.8,
			ComplianceRatio:    0.8,
			SemanticQuality:    0.7,
			SemanticSimilarity: 0.3,
			ComplexFactor:      1.2,
			SimpleFactor:       0.8,
		},
	}
}

// Validate rejects tables that would make scoring meaningless.
func (h Heuristics) Validate() error {
	c := h.Classifier
	if c.PatternWeight < 0 || c.EntityWeight < 0 || c.ContextWeight < 0 {
		return fmt.Errorf("classifier weights must be non-negative")
	}
	if c.PatternWeight+c.EntityWeight+c.ContextWeight == 0 {
		return fmt.Errorf("classifier weights must not all be zero")
	}
	if c.MaxFallbacks < 0 || c.MaxFallbacks > 2 {
		return fmt.Errorf("max_fallbacks must be between 0 and 2")
	}
	s := h.Selector
	if s.QualityThreshold < 0 || s.QualityThreshold > 1 {
		return fmt.Errorf("quality_threshold must be within [0,1]")
	}
	for _, t := range domain.QueryTypes {
		rule := s.TopK.For(t)
		if rule.Base <= 0 || rule.MaxLimit <= 0 {
			return fmt.Errorf("top_k rule for %s needs positive base and max_limit", t)
		}
	}
	return nil
}
