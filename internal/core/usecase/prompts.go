package usecase

import (
	"fmt"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

const promptPreamble = "Analise reuniões corporativas e extraia insights objetivos.\n\n"

const clientVsVideoRules = `IMPORTANTE - DISTINÇÃO CLIENTE vs VÍDEO:
- CLIENTE = empresa responsável (ex: DEXCO, VÍSSIMO, ARCO, PC_FACTORY)
- VÍDEO = título da reunião (ex: "KT Sustentação", "KT IMS")
- Sempre identifique o CLIENTE, não confunda com o título do vídeo`

const generalTemplate = `PERGUNTA: "%[1]s"

INFORMAÇÕES ENCONTRADAS:
%[2]s

INSTRUÇÕES:
Responda DIRETAMENTE à pergunta usando apenas as informações dos contextos.

` + clientVsVideoRules + `

DIRETRIZES:
1. Responda especificamente o que foi perguntado
2. Se a pergunta for "sobre X", foque nas informações sobre X
3. Se a pergunta for "qual/quem/quando", forneça a resposta precisa
4. Fundamente a resposta nos contextos

FORMATO:
**Resposta à Pergunta:** [resposta direta baseada nos contextos]

**Detalhes Relevantes:** [informações que complementam a resposta]

RESPOSTA:
`

const decisionTemplate = `PERGUNTA SOBRE DECISÕES: "%[1]s"

CONTEXTOS DAS REUNIÕES:
%[2]s

INSTRUÇÕES:
1. Identifique QUAIS decisões foram tomadas e por quê
2. Indique QUEM tomou as decisões
3. Indique QUANDO foram tomadas (timestamps)
4. Extraia valores, prazos e status de implementação se houver

FORMATO:
**Insight sobre Decisão(ões):** [decisões identificadas]
**Insight sobre Responsáveis:** [quem decidiu e em que contexto]
**Insights sobre Impacto:** [valores, prazos e condições]
**Insight sobre Status:** [andamento, se mencionado]

RESPOSTA (INSIGHTS):
`

const problemTemplate = `PERGUNTA SOBRE PROBLEMAS: "%[1]s"

CONTEXTOS DAS REUNIÕES:
%[2]s

INSTRUÇÕES:
1. Identifique QUAL é o problema e sua natureza
2. Extraia a causa raiz se foi discutida
3. Indique QUEM relatou o problema
4. Descreva soluções propostas e status de resolução

FORMATO:
**Insight sobre o Problema:** [natureza do problema]
**Insight sobre Causas:** [causas raiz identificadas]
**Insight sobre Soluções:** [propostas discutidas]
**Insight sobre Resolução:** [status e próximos passos]

RESPOSTA (INSIGHTS):
`

const metadataListingTemplate = `PERGUNTA: "%[1]s"
ENTIDADES ENCONTRADAS NA BASE DE CONHECIMENTO:
%[2]s

INSTRUÇÕES:
1. Para VÍDEOS, liste o nome do vídeo e o link se disponível
2. Para outras entidades, use bullets simples (•)
3. Ordene por cliente primeiro
4. Seja direto e objetivo

FORMATO:
VÍDEOS DE KT REGISTRADOS NA BASE:
• **[CLIENTE] - [TIPO KT]**
  Link: [URL se disponível]

RESPOSTA (LISTA FORMATADA):
`

const participantsTemplate = `PERGUNTA: "%[1]s"
CONTEXTOS COM INFORMAÇÕES DE PARTICIPANTES:
%[2]s

INSTRUÇÕES:
1. Liste os participantes encontrados nos contextos
2. Para cada um indique nome, papel e contexto em que aparece
3. Foque em NOMES e PAPÉIS, não em conteúdo técnico
4. Resposta máxima: 150 palavras

FORMATO:
PARTICIPANTES IDENTIFICADOS:
• [Nome]: [Papel se conhecido]

RESPOSTA (PARTICIPANTES):
`

const projectListingTemplate = `PERGUNTA: "%[1]s"
CONTEXTOS COM INFORMAÇÕES DE PROJETOS:
%[2]s

INSTRUÇÕES:
1. Identifique TODOS os projetos mencionados nos contextos
2. Para cada projeto indique nome, cliente associado, breve descrição e status
3. Ordene por frequência de menção
4. Resposta máxima: 200 palavras

FORMATO:
PROJETOS IDENTIFICADOS NAS TRANSCRIÇÕES:
• **[Nome do Projeto]** ([Cliente]): [breve descrição]

RESPOSTA (LISTA DE PROJETOS):
`

const highlightsSummaryTemplate = `PERGUNTA: %[1]s

CONTEXTOS DAS REUNIÕES:
%[2]s

INSTRUÇÕES:
Extraia e organize os principais pontos da reunião de forma estruturada.

FORMATO:
**PRINCIPAIS PONTOS DA REUNIÃO:**

**DECISÕES TOMADAS:**
• [decisão]

**AÇÕES DEFINIDAS:**
• [ação - responsável se mencionado]

**PROBLEMAS IDENTIFICADOS:**
• [problema e contexto]

**ASPECTOS TÉCNICOS:**
• [informação técnica relevante]

Omita seções sem informação.

RESPOSTA:
`

// promptTemplates is indexed by intent. Fast-path intents never reach the
// language model and fall back to the general template if they do.
var promptTemplates = [len(domain.InsightIntents)]string{
	domain.IntentGeneral:             generalTemplate,
	domain.IntentMetadataListing:     metadataListingTemplate,
	domain.IntentParticipants:        participantsTemplate,
	domain.IntentProjectListing:      projectListingTemplate,
	domain.IntentHighlightsSummary:   highlightsSummaryTemplate,
	domain.IntentDecision:            decisionTemplate,
	domain.IntentProblem:             problemTemplate,
	domain.IntentClientNotFound:      generalTemplate,
	domain.IntentCrossEntityMismatch: generalTemplate,
}

func buildInsightPrompt(intent domain.InsightIntent, query, contexts, guidance string) string {
	template := generalTemplate
	if intent.Valid() {
		template = promptTemplates[intent]
	}
	return promptPreamble + fmt.Sprintf(template, query, contexts) + guidance
}

const quickResponseMaxResults = 5

var (
	fastListingProfile = domain.PerformanceProfile{MaxTokens: 400, Temperature: 0, TopP: 0.8, Timeout: 8 * time.Second}
	quickProfile       = domain.PerformanceProfile{MaxTokens: 600, Temperature: 0, TopP: 0.85, Timeout: 10 * time.Second}
	quickAnalysis      = domain.PerformanceProfile{MaxTokens: 800, Temperature: 0, TopP: 0.85, Timeout: 10 * time.Second}
	balancedProfile    = domain.PerformanceProfile{MaxTokens: 800, Temperature: 0, TopP: 0.9, Timeout: 12 * time.Second}
)

// profileFor picks the completion limits for an intent. Listings are short and
// deterministic; open-ended synthesis gets more room.
func profileFor(intent domain.InsightIntent, results int) domain.PerformanceProfile {
	switch {
	case intent.MetadataLike():
		return fastListingProfile
	case (intent == domain.IntentParticipants || intent == domain.IntentGeneral) && results <= quickResponseMaxResults:
		return quickProfile
	case intent == domain.IntentHighlightsSummary:
		return quickAnalysis
	default:
		return balancedProfile
	}
}
