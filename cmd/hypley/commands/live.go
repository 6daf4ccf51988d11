package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hypley-ai/hypley-live/pkg/core/audio"
	"github.com/hypley-ai/hypley-live/pkg/core/audio/device"
	"github.com/hypley-ai/hypley-live/pkg/core/live"
	"github.com/hypley-ai/hypley-live/pkg/core/persona"
	"github.com/hypley-ai/hypley-live/pkg/gateway/config"
	"github.com/hypley-ai/hypley-live/pkg/store"
)

type liveOptions struct {
	agent             string
	conversationID    string
	voiceStyle        string
	customInstruction string
	programmerLevel   string
	summarized        bool
	recordPath        string
	noMic             bool
}

// speakerOutput is a live.Output that owns a device.
type speakerOutput interface {
	live.Output
	Close() error
}

type liveDeps struct {
	loadConfig  func() (config.Config, error)
	newBackends func(context.Context, config.Config, *slog.Logger) (modelBackends, error)
	openStore   func(context.Context, config.Config, *slog.Logger) (historyStore, error)
	openOutput  func(audio.Format) (speakerOutput, error)
	input       live.InputDevice
	now         func() time.Time
}

func defaultLiveDeps() liveDeps {
	return liveDeps{
		loadConfig:  config.LoadFromEnv,
		newBackends: newModelBackends,
		openStore:   openHistoryStore,
		openOutput: func(f audio.Format) (speakerOutput, error) {
			return device.OpenSpeaker(f, 0)
		},
		input: device.Microphone{},
		now:   time.Now,
	}
}

func newLiveCmd(g *globalOptions, deps liveDeps) *cobra.Command {
	opts := liveOptions{}
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Talk to an agent through the local microphone and speaker",
		Long: `Open a Gemini Live session on the local sound card.

The microphone streams 16 kHz PCM to the model and the model's 24 kHz audio
plays gaplessly on the default output device. Turns are stored in the history
store so a later session (or the browser) can continue the conversation.
When the model switches agent, the session reconnects with the new persona.

Examples:
  hypley live
  hypley live --agent programmer --programmer-level iniciante
  hypley live --conversation 0b6f... --record session.wav`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLive(ctx, cmd.OutOrStdout(), g.log(), opts, deps)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.agent, "agent", "a", persona.AgentBase, "agent id or alias")
	f.StringVarP(&opts.conversationID, "conversation", "c", "", "conversation id to continue")
	f.StringVar(&opts.voiceStyle, "voice-style", "", "voice style, e.g. carioca_masc")
	f.StringVar(&opts.customInstruction, "custom-instruction", "", "instruction for the custom agent")
	f.StringVar(&opts.programmerLevel, "programmer-level", "", "programmer agent level")
	f.BoolVar(&opts.summarized, "summarized", false, "ask for short answers")
	f.StringVar(&opts.recordPath, "record", "", "write the model audio to this WAV file")
	f.BoolVar(&opts.noMic, "no-mic", false, "do not open the microphone")
	return cmd
}

func runLive(ctx context.Context, out io.Writer, logger *slog.Logger, opts liveOptions, deps liveDeps) error {
	if deps.loadConfig == nil || deps.newBackends == nil || deps.openStore == nil || deps.openOutput == nil {
		return errors.New("missing live dependency")
	}
	if deps.now == nil {
		deps.now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	// Tool actions print from their own goroutines.
	out = &syncWriter{w: out}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	agent, ok := catalog.Lookup(opts.agent)
	if !ok {
		return fmt.Errorf("unknown agent %q", opts.agent)
	}
	backends, err := deps.newBackends(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init gemini: %w", err)
	}
	history, err := deps.openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer history.Close()

	speaker, err := deps.openOutput(audio.L16Mono24K)
	if err != nil {
		return err
	}
	defer speaker.Close()

	var output speakerOutput = speaker
	var rec *recordingOutput
	if opts.recordPath != "" {
		rec = &recordingOutput{speakerOutput: speaker}
		output = rec
	}

	conversationID := strings.TrimSpace(opts.conversationID)
	if conversationID == "" {
		conversationID = store.NewID()
	}
	fmt.Fprintf(out, "conversa %s com %s. Ctrl+C para sair.\n", conversationID, agent.Name)

	ls := &localSession{
		cfg:            cfg,
		catalog:        catalog,
		backends:       backends,
		store:          history.Store,
		output:         output,
		input:          deps.input,
		out:            out,
		logger:         logger,
		now:            deps.now,
		opts:           opts,
		conversationID: conversationID,
	}
	runErr := func() error {
		next := agent.ID
		for next != "" && ctx.Err() == nil {
			switched, err := ls.run(ctx, next)
			if err != nil {
				return err
			}
			next = switched
		}
		return nil
	}()

	if rec != nil {
		if err := rec.writeWAV(opts.recordPath); err != nil {
			logger.Warn("write recording failed", "path", opts.recordPath, "error", err)
		} else {
			fmt.Fprintf(out, "gravação salva em %s\n", opts.recordPath)
		}
	}
	return runErr
}

// localSession runs successive live sessions of one conversation on the
// local devices.
type localSession struct {
	cfg      config.Config
	catalog  *persona.Catalog
	backends modelBackends
	store    store.Store
	output   live.Output
	input    live.InputDevice
	out      io.Writer
	logger   *slog.Logger
	now      func() time.Time
	opts     liveOptions

	conversationID string
	turns          int
}

// run holds one live session open until ctx is done, the session ends or the
// model switches agent. It returns the agent to reconnect with, if any.
func (l *localSession) run(ctx context.Context, agentID string) (string, error) {
	prior, err := l.store.RecentMessages(ctx, l.conversationID, persona.HistoryWindow)
	if err != nil {
		l.logger.Warn("load history failed", "conversation_id", l.conversationID, "error", err)
	}
	sc := l.catalog.LiveConfig(l.cfg.LiveSessionConfig(), persona.Request{
		Agent:             agentID,
		CustomInstruction: l.opts.customInstruction,
		ProgrammerLevel:   l.opts.programmerLevel,
		Summarized:        l.opts.summarized,
		History:           store.PersonaHistory(prior),
		Now:               l.now(),
	}, l.opts.voiceStyle)

	events := make(chan live.Event, 256)
	loopDone := make(chan struct{})
	switchCh := make(chan string, 1)

	dispatcher := live.NewDispatcher(l.logger)
	live.RegisterBuiltins(dispatcher, live.Actions{
		SwitchAgent: func(name string) {
			select {
			case switchCh <- name:
			default:
			}
		},
		SetCamera: func(on bool) {
			fmt.Fprintf(l.out, "[câmera: %s]\n", onOff(on))
		},
		SetScreenSharing: func(on bool) {
			fmt.Fprintf(l.out, "[compartilhamento de tela: %s]\n", onOff(on))
		},
	}, l.now)

	sess := live.NewSession(sc, l.backends.Dialer, live.SessionOptions{
		Output:     l.output,
		Dispatcher: dispatcher,
		Logger:     l.logger,
		Observer: live.ObserverFunc(func(ev live.Event) {
			select {
			case events <- ev:
			case <-loopDone:
			}
		}),
	})
	defer sess.Close()

	if err := sess.Open(ctx); err != nil {
		return "", fmt.Errorf("open live session: %w", err)
	}
	if !l.opts.noMic && l.input != nil {
		if err := sess.StartCapture(ctx, l.input); err != nil {
			return "", fmt.Errorf("start microphone: %w", err)
		}
	}

	var next string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for next == "" {
			select {
			case <-gctx.Done():
				return sess.Close()
			case <-loopDone:
				return sess.Close()
			case name := <-switchCh:
				a, ok := l.catalog.Lookup(name)
				if !ok || a.ID == agentID {
					fmt.Fprintf(l.out, "[agente desconhecido ou já ativo: %s]\n", name)
					continue
				}
				next = a.ID
				fmt.Fprintf(l.out, "[trocando para %s]\n", a.Name)
			}
		}
		return sess.Close()
	})
	g.Go(func() error {
		defer close(loopDone)
		for ev := range events {
			if err := l.handleEvent(gctx, sess, agentID, ev); err != nil {
				return err
			}
			if st, ok := ev.(*live.StateChangedEvent); ok && st.To == live.StateClosed {
				return nil
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}
	return next, nil
}

func (l *localSession) handleEvent(ctx context.Context, sess *live.Session, agentID string, ev live.Event) error {
	switch e := ev.(type) {
	case *live.TurnCompleteEvent:
		if e.User != "" {
			fmt.Fprintf(l.out, "você: %s\n", e.User)
		}
		if e.Model != "" {
			fmt.Fprintf(l.out, "hypley: %s\n", e.Model)
		}
		l.saveTurn(ctx, agentID, e.User, e.Model)
	case *live.InterruptedEvent:
		fmt.Fprintln(l.out, "[interrompido]")
	case *live.ToolCalledEvent:
		l.logger.Debug("tool called", "name", e.Call.Name, "id", e.Call.ID)
	case *live.ErrorEvent:
		if sess.State() == live.StateErrored {
			return fmt.Errorf("live session failed: %w", e.Err)
		}
		l.logger.Warn("live session error", "error", e.Err)
	}
	return nil
}

func (l *localSession) saveTurn(ctx context.Context, agentID, user, model string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, m := range []store.Message{
		{ConversationID: l.conversationID, Role: store.RoleUser, Text: user},
		{ConversationID: l.conversationID, Role: store.RoleModel, Text: model, Agent: agentID},
	} {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		if _, err := l.store.AppendMessage(ctx, m); err != nil {
			l.logger.Warn("store turn failed", "conversation_id", l.conversationID, "error", err)
			return
		}
	}
	l.turns++
	if l.turns == 1 && l.opts.conversationID == "" && l.backends.Text != nil {
		title := l.backends.Text.Summarize(ctx, user+"\n"+model)
		if err := l.store.SetTitle(ctx, l.conversationID, title); err != nil {
			l.logger.Warn("set title failed", "conversation_id", l.conversationID, "error", err)
		}
	}
}

func onOff(on bool) string {
	if on {
		return "ligada"
	}
	return "desligada"
}

// recordingOutput keeps a copy of every buffer handed to the speaker, in
// arrival order. Interrupted buffers are kept whole.
type recordingOutput struct {
	speakerOutput

	mu     sync.Mutex
	pcm    []byte
	format audio.Format
}

func (r *recordingOutput) Start(buf live.Buffer, at time.Duration, onEnded func()) (live.Source, error) {
	r.mu.Lock()
	r.pcm = append(r.pcm, audio.PCM16Bytes(audio.FloatToPCM16(buf.Samples))...)
	r.format = buf.Format
	r.mu.Unlock()
	return r.speakerOutput.Start(buf, at, onEnded)
}

func (r *recordingOutput) writeWAV(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.format
	if f == 0 {
		f = audio.L16Mono24K
	}
	return os.WriteFile(path, audio.WAV(r.pcm, f), 0o644)
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
