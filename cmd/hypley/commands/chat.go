package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hypley-ai/hypley-live/pkg/core/persona"
)

type chatOptions struct {
	gateway           string
	agent             string
	conversationID    string
	customInstruction string
	programmerLevel   string
	summarized        bool
	timeout           time.Duration
}

func newChatCmd() *cobra.Command {
	opts := chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Text chat through a running gateway",
		Long: `Send text turns to the gateway's /v1/chat route.

With a message argument, one turn is sent and the reply printed. Without
one, an interactive prompt reads lines from stdin.

Prompt commands:
  /agent            show the current agent
  /agent:<name>     switch agent (id, name or alias)
  /new              start a new conversation
  /exit, /quit      leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newGatewayClient(opts.gateway, &http.Client{Timeout: opts.timeout})
			if err != nil {
				return err
			}
			if len(args) > 0 {
				return chatOnce(cmd.Context(), client, opts, strings.Join(args, " "), cmd.OutOrStdout())
			}
			return runChat(cmd.Context(), client, opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.gateway, "gateway", envOrDefault("HYPLEY_GATEWAY_URL", defaultGatewayURL), "gateway base URL (or HYPLEY_GATEWAY_URL)")
	f.StringVarP(&opts.agent, "agent", "a", persona.AgentBase, "agent id or alias")
	f.StringVarP(&opts.conversationID, "conversation", "c", "", "conversation id to continue")
	f.StringVar(&opts.customInstruction, "custom-instruction", "", "instruction for the custom agent")
	f.StringVar(&opts.programmerLevel, "programmer-level", "", "programmer agent level")
	f.BoolVar(&opts.summarized, "summarized", false, "ask for short answers")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "per-turn timeout")
	return cmd
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func chatOnce(ctx context.Context, client *gatewayClient, opts chatOptions, message string, out io.Writer) error {
	resp, err := client.chat(ctx, opts.request(message))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, resp.Reply)
	if resp.SwitchAgent != "" {
		fmt.Fprintf(out, "[agente sugerido: %s]\n", resp.SwitchAgent)
	}
	if opts.conversationID == "" {
		fmt.Fprintf(out, "[conversa %s]\n", resp.ConversationID)
	}
	return nil
}

func (o chatOptions) request(message string) chatTurnRequest {
	return chatTurnRequest{
		ConversationID:    o.conversationID,
		Agent:             o.agent,
		Message:           message,
		CustomInstruction: o.customInstruction,
		ProgrammerLevel:   o.programmerLevel,
		Summarized:        o.summarized,
	}
}

// handleChatCommand applies a prompt command to state. It reports whether
// line was a command.
func handleChatCommand(line string, state *chatOptions, catalog *persona.Catalog, out io.Writer) bool {
	switch {
	case line == "/agent":
		fmt.Fprintf(out, "agente atual: %s\n", state.agent)
		return true
	case strings.HasPrefix(line, "/agent:"):
		target := strings.TrimSpace(strings.TrimPrefix(line, "/agent:"))
		a, ok := catalog.Lookup(target)
		if !ok {
			fmt.Fprintf(out, "agente desconhecido: %s\n", target)
			return true
		}
		state.agent = a.ID
		fmt.Fprintf(out, "agente: %s\n", a.Name)
		return true
	case line == "/new":
		state.conversationID = ""
		fmt.Fprintln(out, "nova conversa")
		return true
	default:
		return false
	}
}

func runChat(ctx context.Context, client *gatewayClient, opts chatOptions, in io.Reader, out, errOut io.Writer) error {
	if client == nil {
		return errors.New("missing gateway client")
	}
	catalog := persona.DefaultCatalog()

	fmt.Fprintf(out, "conectado a %s como %s. /exit para sair.\n", client.baseURL, opts.agent)

	state := opts
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			fmt.Fprintln(out, "tchau")
			return nil
		}
		if handleChatCommand(line, &state, catalog, out) {
			continue
		}

		resp, err := client.chat(ctx, state.request(line))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(errOut, "erro: %v\n", err)
			continue
		}
		state.conversationID = resp.ConversationID
		if resp.Title != "" {
			fmt.Fprintf(out, "[%s]\n", resp.Title)
		}
		fmt.Fprintln(out, resp.Reply)
		if resp.SwitchAgent != "" && resp.SwitchAgent != state.agent {
			state.agent = resp.SwitchAgent
			if a, ok := catalog.Get(resp.SwitchAgent); ok {
				fmt.Fprintf(out, "[trocando para %s]\n", a.Name)
			}
		}
	}
}
