package persona

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

// Agent ids with special handling.
const (
	AgentBase       = "base"
	AgentCustom     = "custom"
	AgentProgrammer = "programmer"
)

const (
	// HistoryWindow is how many recent messages are replayed into a new
	// live session.
	HistoryWindow = 12
	// HistoryMaxRunes truncates each replayed message.
	HistoryMaxRunes = 800

	truncatedSuffix = "... [Texto truncado]"
)

// Role of a conversation message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is a prior conversation turn.
type Message struct {
	Role Role
	Text string
}

// Request describes the session an instruction is composed for.
type Request struct {
	Agent             string
	CustomInstruction string
	ProgrammerLevel   string
	Summarized        bool
	History           []Message

	// Text sessions get the current time and the agent switch tag rule,
	// since they run without function declarations.
	Text bool
	Now  time.Time
}

const summarizedMode = `=== MODO RESUMIDO ATIVO (PRIORIDADE MÁXIMA) ===
1. SUAS RESPOSTAS DEVEM TER NO MÁXIMO 2 LINHAS (aprox. 30 palavras).
2. SE A RESPOSTA EXIGIR UMA EXPLICAÇÃO MAIS LONGA QUE 2 LINHAS:
   - NÃO DÊ A RESPOSTA.
   - DIGA APENAS: "Por favor, desative o modo resumido para que eu possa explicar isso detalhadamente."
3. SEJA DIRETO. SEM ENROLAÇÃO.`

const memoryHeader = `=== MEMÓRIA DA CONVERSA (HISTÓRICO RECENTE) ===
Atenção: A conexão de áudio foi retomada. Você DEVE continuar a conversa exatamente de onde parou.
Abaixo estão as últimas 12 mensagens trocadas. Analise-as para entender o contexto, o tópico e a lógica da discussão.
1. Se o usuário perguntar "O que estávamos falando?", use este histórico para responder com precisão.
2. Aja com naturalidade, sem saudações repetitivas como "Olá" ou "Pois não", a menos que o histórico esteja vazio.
3. Mantenha a linha de raciocínio das mensagens anteriores.`

const switchTagRule = `COMANDO DE TROCA DE AGENTE (TEXTO): Se o usuário pedir para trocar de agente, NÃO APENAS FALE. ` +
	`Responda com a tag especial: [[SWITCH_AGENT:nome_do_agente]]. Exemplo: [[SWITCH_AGENT:programmer]].`

// Compose builds the system instruction for req. Unknown agents fall back
// to the custom instruction when one is given, then to the base agent.
func (c *Catalog) Compose(req Request) string {
	var sections []string

	agent, ok := c.Get(req.Agent)
	custom := strings.TrimSpace(req.CustomInstruction)
	switch {
	case ok && req.Agent != AgentCustom && req.Agent != AgentBase:
		sections = append(sections, agent.Instruction)
	case custom != "":
		sections = append(sections, custom)
	default:
		base, _ := c.Get(AgentBase)
		sections = append(sections, base.Instruction)
	}

	if req.Text {
		now := req.Now
		if now.IsZero() {
			now = time.Now()
		}
		sections = append(sections, "DATA E HORA ATUAL: "+live.FormatBrazilTime(now), switchTagRule)
	}
	if req.Agent == AgentProgrammer && strings.TrimSpace(req.ProgrammerLevel) != "" {
		sections = append(sections, fmt.Sprintf("NÍVEL DE PROGRAMAÇÃO DO USUÁRIO: %s. Adapte suas explicações de código para este nível.", strings.TrimSpace(req.ProgrammerLevel)))
	}
	if req.Summarized {
		sections = append(sections, summarizedMode)
	}
	if block := HistoryBlock(req.History); block != "" {
		sections = append(sections, block)
	}
	return strings.Join(sections, "\n\n")
}

// HistoryBlock renders the last HistoryWindow messages as the memory block
// replayed into a resumed live session. It is empty without history.
func HistoryBlock(history []Message) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	var b strings.Builder
	b.WriteString(memoryHeader)
	b.WriteString("\n\n")
	for _, m := range history {
		label := "Gideão"
		if m.Role == RoleUser {
			label = "Usuário"
		}
		fmt.Fprintf(&b, "%s: \"%s\"\n", label, Truncate(m.Text, HistoryMaxRunes))
	}
	b.WriteString("=== FIM DA MEMÓRIA ===")
	return b.String()
}

// Truncate cuts s to max runes and marks the cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + truncatedSuffix
}

var switchTag = regexp.MustCompile(`\[\[SWITCH_AGENT:\s*([^\]]+?)\s*\]\]`)

// ParseSwitchTag finds an agent switch tag in a text reply. It returns the
// requested agent and the reply with the tag removed.
func ParseSwitchTag(reply string) (agent, cleaned string, ok bool) {
	m := switchTag.FindStringSubmatchIndex(reply)
	if m == nil {
		return "", reply, false
	}
	agent = reply[m[2]:m[3]]
	cleaned = strings.TrimSpace(reply[:m[0]] + reply[m[1]:])
	return agent, cleaned, true
}

var voiceMap = map[string]string{
	"carioca_masc":     "Fenrir",
	"pernambucana_fem": "Zephyr",
	"carioca_sexy_fem": "Zephyr",
}

// Voice names accepted by the live API as-is.
var prebuiltVoices = map[string]bool{
	"Puck": true, "Charon": true, "Kore": true, "Fenrir": true, "Aoede": true,
	"Leda": true, "Orus": true, "Zephyr": true,
}

// VoiceFor maps a voice style or prebuilt voice name to a prebuilt voice.
// Known styles map through the style table, prebuilt names pass through,
// an empty style yields def and anything else yields Zephyr.
func VoiceFor(style, def string) string {
	style = strings.TrimSpace(style)
	if style == "" {
		return def
	}
	if v, ok := voiceMap[style]; ok {
		return v
	}
	if prebuiltVoices[style] {
		return style
	}
	return "Zephyr"
}

// LiveConfig fills base with the composed instruction, the resolved voice
// and, when base declares none, the built-in tools.
func (c *Catalog) LiveConfig(base live.SessionConfig, req Request, voiceStyle string) live.SessionConfig {
	cfg := base
	cfg.SystemInstruction = c.Compose(req)

	def := base.Voice
	if def == "" {
		def = live.DefaultVoice
	}
	if a, ok := c.Get(req.Agent); ok && a.Voice != "" && strings.TrimSpace(voiceStyle) == "" {
		voiceStyle = a.Voice
	}
	cfg.Voice = VoiceFor(voiceStyle, def)

	if len(cfg.Tools) == 0 {
		cfg.Tools = live.BuiltinDeclarations()
	}
	return cfg
}
