package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/store"
)

const defaultGatewayURL = "http://127.0.0.1:8080"

// gatewayClient talks to the JSON routes of a running gateway.
type gatewayClient struct {
	baseURL string
	http    *http.Client
}

func newGatewayClient(baseURL string, httpClient *http.Client) (*gatewayClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("gateway must be a valid absolute URL")
	}
	if u.User != nil {
		return nil, errors.New("gateway must not include credentials")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &gatewayClient{baseURL: baseURL, http: httpClient}, nil
}

type chatTurnRequest struct {
	ConversationID    string `json:"conversation_id,omitempty"`
	Agent             string `json:"agent,omitempty"`
	Message           string `json:"message"`
	CustomInstruction string `json:"custom_instruction,omitempty"`
	ProgrammerLevel   string `json:"programmer_level,omitempty"`
	Summarized        bool   `json:"summarized,omitempty"`
}

type chatTurnResponse struct {
	ConversationID string `json:"conversation_id"`
	Agent          string `json:"agent"`
	Reply          string `json:"reply"`
	SwitchAgent    string `json:"switch_agent,omitempty"`
	Title          string `json:"title,omitempty"`
}

func (c *gatewayClient) chat(ctx context.Context, req chatTurnRequest) (chatTurnResponse, error) {
	var resp chatTurnResponse
	err := c.do(ctx, http.MethodPost, "/v1/chat", req, &resp)
	return resp, err
}

func (c *gatewayClient) conversations(ctx context.Context, limit int) ([]store.Conversation, error) {
	var resp struct {
		Conversations []store.Conversation `json:"conversations"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/conversations?limit="+strconv.Itoa(limit), nil, &resp)
	return resp.Conversations, err
}

func (c *gatewayClient) messages(ctx context.Context, conversationID string, limit int) ([]store.Message, error) {
	var resp struct {
		Messages []store.Message `json:"messages"`
	}
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages?limit=" + strconv.Itoa(limit)
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Messages, err
}

func (c *gatewayClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return core.NewTransportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return core.NewTransportError("read response", err)
	}
	if resp.StatusCode >= 400 {
		var env struct {
			Error *core.Error `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error != nil {
			return env.Error
		}
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
