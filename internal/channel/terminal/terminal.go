// Package terminal implements the interactive REPL channel: a local
// readline loop that feeds typed lines into the gateway and prints
// replies back to stdout. It is the one channel with no wire protocol —
// its "network" is the controlling TTY.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/chzyer/readline"

	"github.com/deca-sh/gateway/internal/channel"
	"github.com/deca-sh/gateway/internal/config"
	"github.com/deca-sh/gateway/internal/pkg/logs"
)

var _ channel.Channel = (*Terminal)(nil)

const defaultUserID = "local"

type Terminal struct {
	id      string
	config  Config
	handler func(ctx context.Context, msg *channel.Message) error

	mu     sync.Mutex
	rl     *readline.Instance
	cancel context.CancelFunc
}

type Config struct {
	Prompt      string
	HistoryFile string
}

func ParseConfig(raw map[string]interface{}) (Config, error) {
	cfg := Config{
		Prompt:      "deca> ",
		HistoryFile: filepath.Join(os.TempDir(), ".deca_terminal_history"),
	}
	if v, ok := raw["prompt"].(string); ok && v != "" {
		cfg.Prompt = v
	}
	if v, ok := raw["history_file"].(string); ok && v != "" {
		cfg.HistoryFile = v
	}
	return cfg, nil
}

func NewChannel(chanId string, chCfg *config.ChannelConfig) (channel.Channel, error) {
	cfg, err := ParseConfig(chCfg.Config)
	if err != nil {
		return nil, fmt.Errorf("parse terminal config: %w", err)
	}
	return &Terminal{id: chanId, config: cfg}, nil
}

func (t *Terminal) ID() string      { return t.id }
func (t *Terminal) Type() channel.Type { return channel.Terminal }

func (t *Terminal) RegisterMessageHandler(handler func(ctx context.Context, msg *channel.Message) error) error {
	if handler == nil {
		return errors.New("terminal: handler cannot be nil")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
	return nil
}

// Start blocks reading lines from stdin until ctx is cancelled or the user
// exits, dispatching each non-empty line through the registered handler.
func (t *Terminal) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.handler == nil {
		t.mu.Unlock()
		return errors.New("terminal: no message handler registered")
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          t.config.Prompt,
		HistoryFile:     t.config.HistoryFile,
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("terminal: init readline: %w", err)
	}
	t.mu.Lock()
	t.rl = rl
	t.mu.Unlock()
	defer rl.Close()

	go func() {
		<-runCtx.Done()
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			if runCtx.Err() != nil {
				return nil
			}
			logs.CtxWarn(runCtx, "[terminal:%s] read error: %v", t.id, err)
			continue
		}

		content := line
		if content == "" {
			continue
		}
		if content == "exit" || content == "quit" {
			return nil
		}

		msg := &channel.Message{
			ChannelID:   t.id,
			ChannelType: channel.Terminal,
			UserID:      defaultUserID,
			ChatID:      defaultUserID,
			Content:     content,
			Metadata:    map[string]string{"chat_type": "private"},
		}

		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()

		if err := handler(runCtx, msg); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func (t *Terminal) Stop(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

// SendMessage prints the reply to stdout; chatID is ignored since the
// terminal has exactly one destination, the controlling TTY.
func (t *Terminal) SendMessage(_ context.Context, _ string, content string) error {
	t.mu.Lock()
	rl := t.rl
	t.mu.Unlock()
	if rl != nil {
		fmt.Fprintln(rl.Stdout(), content)
		return nil
	}
	fmt.Println(content)
	return nil
}

func (t *Terminal) SendChatAction(_ context.Context, _ string, _ channel.ChatAction) error {
	return channel.ErrUnsupportedOperation
}

func (t *Terminal) ReactMessage(_ context.Context, _ string, _ string, _ string) error {
	return channel.ErrUnsupportedOperation
}
