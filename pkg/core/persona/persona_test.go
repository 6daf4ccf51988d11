package persona

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	for _, id := range []string{AgentBase, "traffic_manager", "google_ads", AgentCustom} {
		if _, ok := c.Get(id); !ok {
			t.Errorf("default catalog missing %q", id)
		}
	}
}

func TestLoadCatalog_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing base", "agents:\n  - id: x\n    instruction: hi\n"},
		{"duplicate", "agents:\n  - id: base\n    instruction: a\n  - id: base\n    instruction: b\n"},
		{"no instruction", "agents:\n  - id: base\n"},
		{"unknown field", "agents:\n  - id: base\n    instruction: a\n    colour: red\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadCatalog(strings.NewReader(tt.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCatalog_Lookup(t *testing.T) {
	c := DefaultCatalog()
	tests := []struct {
		term string
		want string
	}{
		{"google_ads", "google_ads"},
		{"Google Ads", "google_ads"},
		{"gestor de tráfego", "traffic_manager"},
		{"GESTOR DE TRAFEGO", "traffic_manager"},
		{"padrão", AgentBase},
		{"o programador por favor", "programmer"},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got, ok := c.Lookup(tt.term)
			if !ok || got.ID != tt.want {
				t.Errorf("Lookup(%q) = %q, %v; want %q", tt.term, got.ID, ok, tt.want)
			}
		})
	}
	if _, ok := c.Lookup("astronauta"); ok {
		t.Error("Lookup matched an unknown agent")
	}
	if _, ok := c.Lookup("   "); ok {
		t.Error("Lookup matched a blank term")
	}
}

func TestCompose(t *testing.T) {
	c := DefaultCatalog()
	google, _ := c.Get("google_ads")
	base, _ := c.Get(AgentBase)

	got := c.Compose(Request{Agent: "google_ads", Summarized: true})
	if !strings.HasPrefix(got, google.Instruction) {
		t.Error("agent instruction should lead")
	}
	if !strings.Contains(got, "MODO RESUMIDO ATIVO") {
		t.Error("summarized mode missing")
	}

	got = c.Compose(Request{Agent: AgentCustom, CustomInstruction: "Fale como pirata."})
	if !strings.HasPrefix(got, "Fale como pirata.") {
		t.Errorf("custom instruction not used: %q", got)
	}

	got = c.Compose(Request{Agent: "unknown"})
	if got != base.Instruction {
		t.Errorf("unknown agent should fall back to base, got %q", got)
	}

	got = c.Compose(Request{Agent: AgentProgrammer, ProgrammerLevel: "iniciante"})
	if !strings.Contains(got, "NÍVEL DE PROGRAMAÇÃO DO USUÁRIO: iniciante") {
		t.Error("programmer level missing")
	}

	now := time.Date(2025, 10, 17, 15, 0, 0, 0, time.UTC)
	got = c.Compose(Request{Agent: AgentBase, Text: true, Now: now})
	if !strings.Contains(got, "DATA E HORA ATUAL: sexta-feira, 17 de outubro de 2025 às 12:00:00") {
		t.Errorf("text mode datetime missing: %q", got)
	}
	if !strings.Contains(got, "[[SWITCH_AGENT:") {
		t.Error("text mode switch rule missing")
	}
}

func TestHistoryBlock(t *testing.T) {
	if HistoryBlock(nil) != "" {
		t.Fatal("empty history should render nothing")
	}

	var history []Message
	for i := 0; i < 15; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleModel
		}
		history = append(history, Message{Role: role, Text: fmt.Sprintf("msg-%02d", i)})
	}
	history[14].Text = strings.Repeat("á", 900)

	got := HistoryBlock(history)
	if strings.Contains(got, "msg-02") {
		t.Error("messages older than the window should be dropped")
	}
	if !strings.Contains(got, `Gideão: "msg-03"`) {
		t.Error("model messages should be labeled Gideão")
	}
	if !strings.Contains(got, `Usuário: "msg-04"`) {
		t.Error("user messages should be labeled Usuário")
	}
	if !strings.Contains(got, strings.Repeat("á", 800)+"... [Texto truncado]") {
		t.Error("long message not truncated at 800 runes")
	}
	if strings.Contains(got, strings.Repeat("á", 801)) {
		t.Error("truncation kept too much text")
	}
}

func TestParseSwitchTag(t *testing.T) {
	agent, cleaned, ok := ParseSwitchTag("Claro! [[SWITCH_AGENT: google ads ]] Mudando agora.")
	if !ok || agent != "google ads" {
		t.Fatalf("ParseSwitchTag() = %q, %v", agent, ok)
	}
	if cleaned != "Claro!  Mudando agora." {
		t.Errorf("cleaned = %q", cleaned)
	}
	if _, _, ok := ParseSwitchTag("sem tag"); ok {
		t.Error("matched text without a tag")
	}
}

func TestVoiceFor(t *testing.T) {
	tests := []struct {
		style, def, want string
	}{
		{"carioca_masc", "Kore", "Fenrir"},
		{"pernambucana_fem", "Kore", "Zephyr"},
		{"carioca_sexy_fem", "Kore", "Zephyr"},
		{"Puck", "Kore", "Puck"},
		{"", "Kore", "Kore"},
		{"sotaque_desconhecido", "Kore", "Zephyr"},
	}
	for _, tt := range tests {
		if got := VoiceFor(tt.style, tt.def); got != tt.want {
			t.Errorf("VoiceFor(%q) = %q, want %q", tt.style, got, tt.want)
		}
	}
}

func TestLiveConfig(t *testing.T) {
	c := DefaultCatalog()
	cfg := c.LiveConfig(live.DefaultSessionConfig(), Request{Agent: AgentBase}, "carioca_masc")
	if cfg.Voice != "Fenrir" {
		t.Errorf("Voice = %q", cfg.Voice)
	}
	if len(cfg.Tools) != len(live.BuiltinDeclarations()) {
		t.Errorf("Tools = %d", len(cfg.Tools))
	}
	if cfg.SystemInstruction == "" {
		t.Error("instruction not composed")
	}

	cfg = c.LiveConfig(live.DefaultSessionConfig(), Request{Agent: AgentBase}, "")
	if cfg.Voice != live.DefaultVoice {
		t.Errorf("default Voice = %q, want %q", cfg.Voice, live.DefaultVoice)
	}
}
