package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/persona"
	"github.com/hypley-ai/hypley-live/pkg/core/providers/gemini"
	"github.com/hypley-ai/hypley-live/pkg/gateway/config"
	"github.com/hypley-ai/hypley-live/pkg/store"
)

// TextCompleter is the text model behind /v1/chat.
type TextCompleter interface {
	Complete(ctx context.Context, req gemini.TextRequest) (string, error)
	Summarize(ctx context.Context, text string) string
}

type ChatHandler struct {
	Config  config.Config
	Text    TextCompleter
	Store   store.Store
	Catalog *persona.Catalog
	Logger  *slog.Logger
	Now     func() time.Time
}

type chatAttachment struct {
	MIMEType string `json:"mime_type"`
	DataB64  string `json:"data_b64"`
}

type chatRequest struct {
	ConversationID    string          `json:"conversation_id,omitempty"`
	Agent             string          `json:"agent,omitempty"`
	Message           string          `json:"message"`
	CustomInstruction string          `json:"custom_instruction,omitempty"`
	ProgrammerLevel   string          `json:"programmer_level,omitempty"`
	Summarized        bool            `json:"summarized,omitempty"`
	Attachment        *chatAttachment `json:"attachment,omitempty"`
}

type chatResponse struct {
	ConversationID string `json:"conversation_id"`
	Agent          string `json:"agent"`
	Reply          string `json:"reply"`
	// SwitchAgent is set when the model asked to hand over to another agent.
	SwitchAgent string `json:"switch_agent,omitempty"`
	Title       string `json:"title,omitempty"`
}

func (h ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if h.Text == nil {
		unavailable(w, r, "unconfigured", "text model is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	var req chatRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeErr(w, r, core.NewInvalidRequestError("invalid request body: "+err.Error()))
		return
	}
	attachment, err := h.attachment(req.Attachment)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	prompt := strings.TrimSpace(req.Message)
	if prompt == "" && attachment == nil {
		writeErr(w, r, core.NewInvalidRequestErrorWithParam("message or attachment is required", "message"))
		return
	}

	ctx := r.Context()
	if h.Config.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Config.HandlerTimeout)
		defer cancel()
	}

	catalog := h.Catalog
	if catalog == nil {
		catalog = persona.DefaultCatalog()
	}
	agent := strings.TrimSpace(req.Agent)
	if agent == "" {
		agent = persona.AgentBase
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	var history []persona.Message
	if conversationID == "" {
		conversationID = store.NewID()
	} else if h.Store != nil {
		prior, err := h.Store.RecentMessages(ctx, conversationID, persona.HistoryWindow)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		history = store.PersonaHistory(prior)
	}

	textReq := gemini.TextRequest{
		Model: h.Config.ChatModel,
		Instruction: catalog.Compose(persona.Request{
			Agent:             agent,
			CustomInstruction: req.CustomInstruction,
			ProgrammerLevel:   req.ProgrammerLevel,
			Summarized:        req.Summarized,
			Text:              true,
			Now:               now(),
		}),
		History:    history,
		Prompt:     prompt,
		Attachment: attachment,
	}
	if agent == persona.AgentProgrammer {
		textReq.ThinkingBudget = int32(h.Config.ProgrammerThinkingBudget)
	}

	reply, err := h.Text.Complete(ctx, textReq)
	if err != nil {
		h.logger().Warn("chat completion failed", "request_id", requestID(r), "conversation_id", conversationID, "error", err)
		writeErr(w, r, err)
		return
	}

	resp := chatResponse{ConversationID: conversationID, Agent: agent, Reply: reply}
	if requested, cleaned, ok := persona.ParseSwitchTag(reply); ok {
		resp.Reply = cleaned
		if a, found := catalog.Lookup(requested); found {
			resp.SwitchAgent = a.ID
		}
	}

	if h.Store != nil {
		userText := prompt
		if userText == "" {
			userText = "[" + attachment.MIMEType + "]"
		}
		h.save(ctx, conversationID, userText, resp.Reply, agent)
		if len(history) == 0 {
			resp.Title = h.Text.Summarize(ctx, userText+"\n"+resp.Reply)
			if err := h.Store.SetTitle(ctx, conversationID, resp.Title); err != nil {
				h.logger().Warn("set title failed", "conversation_id", conversationID, "error", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h ChatHandler) attachment(in *chatAttachment) (*gemini.Attachment, error) {
	if in == nil {
		return nil, nil
	}
	mime := strings.TrimSpace(in.MIMEType)
	if mime == "" {
		return nil, core.NewInvalidRequestErrorWithParam("attachment.mime_type is required", "attachment.mime_type")
	}
	if limit := h.Config.MaxAttachmentBytes; limit > 0 && int64(base64.StdEncoding.DecodedLen(len(in.DataB64))) > limit {
		return nil, core.NewInvalidRequestErrorWithParam("attachment is too large", "attachment.data_b64")
	}
	data, err := base64.StdEncoding.DecodeString(in.DataB64)
	if err != nil || len(data) == 0 {
		return nil, core.NewInvalidRequestErrorWithParam("attachment.data_b64 must be non-empty base64", "attachment.data_b64")
	}
	return &gemini.Attachment{MIMEType: mime, Data: data}, nil
}

func (h ChatHandler) save(ctx context.Context, conversationID, user, model, agent string) {
	for _, m := range []store.Message{
		{ConversationID: conversationID, Role: store.RoleUser, Text: user},
		{ConversationID: conversationID, Role: store.RoleModel, Text: model, Agent: agent},
	} {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		if _, err := h.Store.AppendMessage(ctx, m); err != nil {
			h.logger().Warn("store chat message failed", "conversation_id", conversationID, "role", m.Role, "error", err)
			return
		}
	}
}

func (h ChatHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
