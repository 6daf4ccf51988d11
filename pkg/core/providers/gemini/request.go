package gemini

import (
	"strings"

	"google.golang.org/genai"

	"github.com/hypley-ai/hypley-live/pkg/core/live"
	"github.com/hypley-ai/hypley-live/pkg/core/persona"
)

// buildConnectConfig translates a session config into a Live connect setup.
func buildConnectConfig(cfg live.SessionConfig) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		Tools:              buildTools(cfg.Tools, cfg.GoogleSearch),
	}
	if cfg.Voice != "" {
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		out.SystemInstruction = systemContent(cfg.SystemInstruction)
	}
	if cfg.InputTranscription {
		out.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		out.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return out
}

func systemContent(text string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: text}}}
}

// buildTools puts search grounding first, then one tool with every function.
func buildTools(decls []live.ToolDeclaration, search bool) []*genai.Tool {
	var tools []*genai.Tool
	if search {
		tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if len(decls) == 0 {
		return tools
	}
	fns := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		fns = append(fns, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  buildSchema(d.Parameters),
		})
	}
	return append(tools, &genai.Tool{FunctionDeclarations: fns})
}

func buildSchema(s *live.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = buildSchema(p)
		}
	}
	return out
}

// buildContents turns history, prompt and an optional attachment into the
// request contents. The attachment rides on the final user turn.
func buildContents(history []persona.Message, prompt string, att *Attachment) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == persona.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	parts := []*genai.Part{}
	if att != nil && len(att.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(att.Data, att.MIMEType))
	}
	if prompt != "" {
		parts = append(parts, genai.NewPartFromText(prompt))
	}
	if len(parts) > 0 {
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}
	return contents
}
