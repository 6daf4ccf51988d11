package gemini

import (
	"google.golang.org/genai"

	"github.com/hypley-ai/hypley-live/pkg/core/live"
)

// convertServerMessage flattens a Live server message into the session's
// transport-neutral shape. Setup acknowledgements and usage metadata carry
// nothing the session acts on and produce an empty message.
func convertServerMessage(msg *genai.LiveServerMessage) live.ServerMessage {
	var out live.ServerMessage
	if msg == nil {
		return out
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil {
			out.InputTranscription = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscription = sc.OutputTranscription.Text
		}
		out.TurnComplete = sc.TurnComplete
		out.Interrupted = sc.Interrupted
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				out.Audio = append(out.Audio, live.AudioChunk{
					MIMEType: part.InlineData.MIMEType,
					Data:     part.InlineData.Data,
				})
			}
		}
	}

	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, live.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	return out
}

func convertToolResponses(responses []live.ToolResponse) []*genai.FunctionResponse {
	out := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		out = append(out, &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return out
}
