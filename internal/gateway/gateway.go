// Package gateway assembles the Dispatch Core, the Scheduled Dispatch
// layer, the Gateway Lock, and the channel adapters into one runnable
// process: Start acquires the lock, builds agents and the Dispatcher, wires
// every channel and the cron/heartbeat schedulers into it, and brings up
// the HTTP server; Stop reverses that order.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	hzconsts "github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/deca-sh/gateway/internal/agent"
	"github.com/deca-sh/gateway/internal/channel"
	"github.com/deca-sh/gateway/internal/channel/http"
	"github.com/deca-sh/gateway/internal/channel/lark"
	"github.com/deca-sh/gateway/internal/channel/telegram"
	"github.com/deca-sh/gateway/internal/channel/terminal"
	"github.com/deca-sh/gateway/internal/config"
	"github.com/deca-sh/gateway/internal/consts"
	"github.com/deca-sh/gateway/internal/cronjob"
	"github.com/deca-sh/gateway/internal/dispatch"
	"github.com/deca-sh/gateway/internal/gatewaylock"
	"github.com/deca-sh/gateway/internal/heartbeat"
	"github.com/deca-sh/gateway/internal/pkg/logs"
	pkgutils "github.com/deca-sh/gateway/internal/pkg/utils"
	"github.com/deca-sh/gateway/internal/provider"
	"github.com/deca-sh/gateway/internal/provider/anthropic"
	"github.com/deca-sh/gateway/internal/provider/gemini"
	"github.com/deca-sh/gateway/internal/provider/ollama"
	"github.com/deca-sh/gateway/internal/provider/openai"
	"github.com/deca-sh/gateway/internal/provider/qwen"
	"github.com/deca-sh/gateway/internal/scheduled"
	"github.com/deca-sh/gateway/internal/sessionkey"
)

const typingInterval = 3 * time.Second

// Gateway wires together every component of the gateway process: agents,
// channels, the Dispatcher, the cron and heartbeat schedulers, and the
// single-instance lock.
type Gateway struct {
	agents   *AgentRegistry
	commands *CommandRouter
	security *SecurityGuard

	dispatcher      *dispatch.Dispatcher
	chatAdapter     *dispatch.SourceAdapter
	httpAdapter     *dispatch.SourceAdapter
	terminalAdapter *dispatch.SourceAdapter

	httpServer *hzServer.Hertz

	lockHandle         *gatewaylock.Handle
	cronScheduler      *cronjob.Scheduler
	heartbeatScheduler *heartbeat.Scheduler

	primaryAgentID      string
	mainChannelPlatform string

	runCtx    context.Context
	runCancel context.CancelFunc

	mu       sync.Mutex
	stopOnce sync.Once
	stopErr  error
}

func NewGateway(cfg config.GatewayConfig) *Gateway {
	bind := cfg.Bind
	if bind == "" {
		bind = "0.0.0.0:8080"
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	hzSvr := hzServer.Default(
		hzServer.WithHostPorts(bind),
		hzServer.WithReadTimeout(timeout),
		hzServer.WithWriteTimeout(timeout),
		hzServer.WithExitWaitTime(5*time.Second),
	)

	commands := newCommandRouter()
	registerBuiltinCommands(commands)

	return &Gateway{
		httpServer:          hzSvr,
		commands:            commands,
		security:            &SecurityGuard{},
		agents:              NewAgentRegistry(),
		primaryAgentID:      cfg.PrimaryAgent,
		mainChannelPlatform: cfg.MainChannelPlatform,
	}
}

// Start brings up every component in dependency order: lock, providers,
// agents, Dispatcher and its source adapters, channels, HTTP server, then
// the cron and heartbeat schedulers. If any step fails the caller should
// treat the Gateway as unusable; Stop is still safe to call to clean up
// whatever did start.
func (gw *Gateway) Start(ctx context.Context) error {
	gw.runCtx, gw.runCancel = context.WithCancel(ctx)

	cfg, err := config.Get()
	if err != nil {
		return err
	}

	handle, err := gatewaylock.Acquire(gatewaylock.Options{
		Path:          consts.GatewayLockPath(),
		AllowMultiple: cfg.Gateway.AllowMultiGateway,
		HTTPPort:      httpPortFromBind(cfg.Gateway.Bind),
	})
	if err != nil {
		return fmt.Errorf("acquire gateway lock: %w", err)
	}
	gw.lockHandle = handle

	if err := gw.initProviders(gw.runCtx, cfg.Providers); err != nil {
		return fmt.Errorf("init providers: %w", err)
	}
	if err := gw.initAgents(gw.runCtx, cfg.Agents); err != nil {
		return fmt.Errorf("init agents: %w", err)
	}
	if gw.primaryAgentID == "" {
		gw.primaryAgentID = firstAgentID(cfg.Agents)
	}

	gw.initDispatcher(cfg.Gateway)

	if err := gw.initChannels(gw.runCtx, cfg.Channels); err != nil {
		return fmt.Errorf("init channels: %w", err)
	}
	if err := gw.initHTTPServer(gw.runCtx); err != nil {
		return fmt.Errorf("init http server: %w", err)
	}
	if err := gw.initScheduledDispatch(gw.runCtx, cfg); err != nil {
		return fmt.Errorf("init scheduled dispatch: %w", err)
	}

	go gw.httpServer.Spin()

	logs.CtxInfo(gw.runCtx, "[gateway] ready")
	return nil
}

// Stop reverses Start's order: schedulers first (so no new work is
// produced), then channels, then the Dispatcher (letting in-flight agent
// calls finish), then the HTTP server, and finally the lock.
func (gw *Gateway) Stop(ctx context.Context) error {
	gw.stopOnce.Do(func() {
		if gw.heartbeatScheduler != nil {
			gw.heartbeatScheduler.Stop()
		}
		if gw.cronScheduler != nil {
			gw.cronScheduler.Shutdown()
		}

		if gw.runCancel != nil {
			gw.runCancel()
		}

		for _, ch := range channel.List() {
			if err := ch.Stop(ctx); err != nil {
				logs.CtxWarn(ctx, "[gateway] stop channel %s error: %v", ch.ID(), err)
			}
		}

		if gw.dispatcher != nil {
			if err := gw.dispatcher.Shutdown(ctx); err != nil {
				logs.CtxWarn(ctx, "[gateway] dispatcher shutdown error: %v", err)
			}
		}

		if err := gw.httpServer.Shutdown(ctx); err != nil {
			logs.CtxWarn(ctx, "[gateway] shutdown http server error: %v", err)
		}

		if err := gw.lockHandle.Release(); err != nil {
			logs.CtxWarn(ctx, "[gateway] release lock error: %v", err)
		}

		logs.CtxInfo(ctx, "[gateway] all resources stopped")
	})
	return gw.stopErr
}

func httpPortFromBind(bind string) int {
	idx := strings.LastIndex(bind, ":")
	if idx < 0 {
		return 0
	}
	var port int
	_, _ = fmt.Sscanf(bind[idx+1:], "%d", &port)
	return port
}

func firstAgentID(agents map[string]config.AgentConfig) string {
	for id := range agents {
		return id
	}
	return ""
}

func (gw *Gateway) initProviders(ctx context.Context, providers map[string]config.ProviderConfig) error {
	for id, cfg := range providers {
		cfg.ID = id
		p, err := newProvider(ctx, cfg)
		if err != nil {
			logs.CtxError(ctx, "[%s] create provider #%s error: %v", strings.ToUpper(cfg.Type), cfg.ID, err)
			return fmt.Errorf("create provider %s: %w", cfg.ID, err)
		}

		if err = provider.Register(p); err != nil {
			logs.CtxError(ctx, "[%s] register provider #%s error: %v", strings.ToUpper(cfg.Type), cfg.ID, err)
			return fmt.Errorf("register provider %s: %w", cfg.ID, err)
		}

		logs.CtxInfo(ctx, "[%s] register provider #%s success", strings.ToUpper(cfg.Type), cfg.ID)
	}
	return nil
}

func newProvider(ctx context.Context, cfg config.ProviderConfig) (provider.Provider, error) {
	cfgMap := make(map[string]interface{}, len(cfg.Config))
	for k, v := range cfg.Config {
		cfgMap[k] = v
	}

	switch provider.Type(strings.ToLower(strings.TrimSpace(cfg.Type))) {
	case provider.OpenAI:
		oaiCfg, err := openai.ParseConfig(cfg.ID, cfgMap)
		if err != nil {
			return nil, err
		}
		return openai.NewProvider(ctx, *oaiCfg)
	case provider.Anthropic:
		return anthropic.NewProvider(ctx, cfg.ID, cfgMap)
	case provider.Gemini:
		gemCfg, err := gemini.ParseConfig(cfg.ID, cfgMap)
		if err != nil {
			return nil, err
		}
		return gemini.NewProvider(ctx, *gemCfg)
	case provider.Ollama:
		return ollama.NewProvider(ctx, cfg.ID, cfgMap)
	case provider.Qwen:
		qwenCfg, err := qwen.ParseConfig(cfg.ID, cfgMap)
		if err != nil {
			return nil, err
		}
		return qwen.NewProvider(*qwenCfg)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

func (gw *Gateway) initAgents(ctx context.Context, agents map[string]config.AgentConfig) error {
	for id, cfg := range agents {
		cfg.ID = id

		ag, err := agent.NewAgent(ctx, cfg)
		if err != nil {
			logs.CtxError(ctx, "[gateway] create agent #%s error: %v", id, err)
			return fmt.Errorf("create agent %s: %w", id, err)
		}

		if err = ag.Init(ctx); err != nil {
			logs.CtxError(ctx, "[gateway] init agent #%s error: %v", id, err)
			return fmt.Errorf("init agent %s: %w", id, err)
		}

		if err := gw.agents.Register(ag); err != nil {
			return fmt.Errorf("register agent %s: %w", id, err)
		}
		logs.CtxInfo(ctx, "[gateway] register agent #%s success", id)
	}
	return nil
}

// initDispatcher builds the Dispatch Core and one SourceAdapter per
// request origin. handleDispatch is the single Handler every adapter
// funnels into; it is the only place a session key is resolved back to an
// agent.
func (gw *Gateway) initDispatcher(cfg config.GatewayConfig) {
	gw.dispatcher = dispatch.New(gw.handleDispatch, dispatch.Options{
		Concurrency: cfg.DispatchConcurrency,
		Hooks: dispatch.EventHooks{
			OnError: func(req *dispatch.Request, err error) {
				logs.Warn("[dispatch] request %s (source=%s) failed: %v", req.ID, req.Source, err)
			},
		},
	})
	gw.chatAdapter = dispatch.NewSourceAdapter(gw.dispatcher, dispatch.SourceChat)
	gw.httpAdapter = dispatch.NewSourceAdapter(gw.dispatcher, dispatch.SourceHTTP)
	gw.terminalAdapter = dispatch.NewSourceAdapter(gw.dispatcher, dispatch.SourceTerminal)
}

// handleDispatch is the Dispatcher's Handler. It resolves the owning agent
// from the request's session key and forwards the request as a
// channel.Message, the shape the agent layer already understands.
func (gw *Gateway) handleDispatch(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	agentID, err := gw.resolveAgentID(req.SessionKey)
	if err != nil {
		return nil, err
	}
	ag, err := gw.agents.Get(agentID)
	if err != nil {
		return nil, err
	}

	msg := &channel.Message{
		ID:         req.ID,
		UserID:     req.Sender.ID,
		Content:    req.Content,
		SessionKey: req.SessionKey,
	}

	resp, err := ag.ProcessMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("agent %s process message failed: %w", agentID, err)
	}
	if resp == nil {
		return &dispatch.Response{Success: true}, nil
	}
	return &dispatch.Response{Text: resp.Content, Success: true}, nil
}

// resolveAgentID maps a session key to the agent that owns it. Reserved
// keys (heartbeat, cron, main) always belong to the configured primary
// agent.
func (gw *Gateway) resolveAgentID(sessKey string) (string, error) {
	if sessionkey.IsReserved(sessKey) {
		if gw.primaryAgentID == "" {
			return "", fmt.Errorf("session %s has no primary agent configured", sessKey)
		}
		return gw.primaryAgentID, nil
	}
	parsed, err := sessionkey.Parse(sessKey)
	if err != nil {
		return "", fmt.Errorf("resolve agent for session %s: %w", sessKey, err)
	}
	return parsed.AgentID, nil
}

func (gw *Gateway) initChannels(ctx context.Context, channels map[string]config.ChannelConfig) error {
	for id, cfg := range channels {
		cfg.ID = id
		if !cfg.Enabled {
			logs.CtxInfo(ctx, "[gateway] channel #%s is disabled, skipping", id)
			continue
		}

		ch, err := newChannel(id, cfg)
		if err != nil {
			logs.CtxError(ctx, "[gateway] create channel #%s error: %v", id, err)
			return fmt.Errorf("create channel %s: %w", id, err)
		}

		if err = ch.RegisterMessageHandler(gw.handleChannelMessage); err != nil {
			return fmt.Errorf("register handler for channel %s: %w", id, err)
		}

		if err = channel.Register(ch); err != nil {
			return fmt.Errorf("register channel %s: %w", id, err)
		}

		if rp, ok := ch.(channel.RouteProvider); ok {
			for _, route := range rp.Routes() {
				gw.httpServer.Handle(route.Method, route.Path, route.Handler)
			}
		}

		go func(id string, ch channel.Channel) {
			logs.CtxInfo(ctx, "[gateway] starting channel #%s (%s)", id, ch.Type())
			if err := ch.Start(ctx); err != nil {
				logs.CtxError(ctx, "[gateway] channel #%s stopped with error: %v", id, err)
			}
		}(id, ch)
	}
	return nil
}

func newChannel(id string, cfg config.ChannelConfig) (channel.Channel, error) {
	switch channel.Type(strings.ToLower(strings.TrimSpace(cfg.Type))) {
	case channel.Telegram:
		return telegram.NewChannel(id, &cfg)
	case channel.Lark:
		return lark.NewChannel(id, &cfg)
	case channel.HTTP:
		return http.NewChannel(id, &cfg)
	case channel.Terminal:
		return terminal.NewChannel(id, &cfg)
	default:
		return nil, fmt.Errorf("unsupported channel type: %s", cfg.Type)
	}
}

func (gw *Gateway) initHTTPServer(_ context.Context) error {
	gw.httpServer.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(hzconsts.StatusOK, utils.H{"status": "ok"})
	})
	return nil
}

// handleChannelMessage is the inbound callback every channel registers.
// It applies the security check and built-in command interception, then
// routes anything left through the chat SourceAdapter and delivers the
// reply.
func (gw *Gateway) handleChannelMessage(ctx context.Context, msg *channel.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	logs.CtxDebug(ctx, "[msg] <- (%s/%s#%s) %s", msg.ChannelType, msg.ChannelID, msg.UserID, pkgutils.Truncate80(msg.Content))

	ch, err := channel.Get(msg.ChannelID)
	if err != nil {
		return fmt.Errorf("channel %s not found: %w", msg.ChannelID, err)
	}

	cfg, err := config.Get()
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}
	if chCfg, ok := cfg.Channels[msg.ChannelID]; ok {
		allowed, reply := gw.security.Check(ctx, msg, chCfg)
		if reply != "" {
			_ = ch.SendMessage(ctx, msg.ChatID, reply)
		}
		if !allowed {
			return nil
		}
	}

	if cmd, _, matched := gw.commands.Match(msg.Content); matched {
		reply, cmdErr := cmd.Handler(ctx, gw, msg)
		if cmdErr != nil {
			return fmt.Errorf("command %s failed: %w", cmd.Name, cmdErr)
		}
		if reply != "" {
			_ = ch.SendMessage(ctx, msg.ChatID, reply)
		}
		return nil
	}

	agentID, err := gw.agentIDForChannel(msg.ChannelID)
	if err != nil {
		return err
	}
	msg.SessionKey = gw.buildChannelSessionKey(agentID, msg)

	adapter := gw.chatAdapter
	switch msg.ChannelType {
	case channel.HTTP:
		adapter = gw.httpAdapter
	case channel.Terminal:
		adapter = gw.terminalAdapter
	}

	stopTyping := gw.keepTyping(ctx, ch, msg.ChatID)
	resp, err := adapter.Handle(ctx, &dispatch.Request{
		SessionKey: msg.SessionKey,
		Content:    msg.Content,
		Sender:     dispatch.Sender{ID: msg.UserID},
	})
	stopTyping()
	if err != nil {
		return fmt.Errorf("dispatch message from channel %s failed: %w", msg.ChannelID, err)
	}

	if resp == nil || resp.Text == "" {
		return nil
	}
	if err := ch.SendMessage(ctx, msg.ChatID, resp.Text); err != nil {
		return fmt.Errorf("send reply via channel %s failed: %w", msg.ChannelID, err)
	}
	logs.CtxDebug(ctx, "[msg] -> (%s/%s#%s) %s", msg.ChannelType, msg.ChannelID, msg.ChatID, pkgutils.Truncate80(resp.Text))
	return nil
}

// buildChannelSessionKey derives a session key from a channel message's
// chat-type metadata, then applies the configured main-channel reroute.
func (gw *Gateway) buildChannelSessionKey(agentID string, msg *channel.Message) string {
	platform := string(msg.ChannelType)
	chatType := msg.Metadata["chat_type"]

	var key string
	switch {
	case strings.EqualFold(chatType, "private") || chatType == "":
		key = sessionkey.DM(platform, agentID, msg.UserID)
	case msg.Metadata["thread_id"] != "":
		key = sessionkey.Thread(platform, agentID, msg.ChatID, msg.ChannelID, msg.Metadata["thread_id"], msg.UserID)
	default:
		key = sessionkey.Guild(platform, agentID, msg.ChatID, msg.ChannelID, msg.UserID)
	}

	return sessionkey.Reroute(key, gw.mainChannelPlatform, gw.mainChannelPlatform != "")
}

func (gw *Gateway) agentIDForChannel(channelID string) (string, error) {
	cfg, err := config.Get()
	if err != nil {
		return "", fmt.Errorf("get config: %w", err)
	}

	for id, agCfg := range cfg.Agents {
		for _, chID := range agCfg.Channels {
			if chID == channelID {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("no agent bound to channel %s", channelID)
}

func (gw *Gateway) getAgentByChannel(channelID string) (*agent.Agent, error) {
	agentID, err := gw.agentIDForChannel(channelID)
	if err != nil {
		return nil, err
	}
	return gw.agents.Get(agentID)
}

// initScheduledDispatch wires the cron and heartbeat schedulers to the
// Dispatcher through a scheduled.Builder, and starts both.
func (gw *Gateway) initScheduledDispatch(ctx context.Context, cfg *config.Config) error {
	builder := scheduled.NewBuilder(gw.dispatcher, func(err error, source string) {
		logs.CtxWarn(ctx, "[scheduled:%s] %v", source, err)
	})

	if cfg.Cronjob.Enabled == nil || *cfg.Cronjob.Enabled {
		storePath := cfg.Cronjob.Store
		if storePath == "" {
			storePath = cronjob.DefaultStorePath()
		}
		gw.cronScheduler = cronjob.Init(storePath)
		gw.cronScheduler.SetCallback(builder.CronCallback(gw.deliverToPrimaryAgentChannel))
		gw.cronScheduler.SetErrorHandler(func(jobID string, err error) {
			logs.CtxWarn(ctx, "[cronjob] job %s error: %v", jobID, err)
		})
		if err := gw.cronScheduler.Initialize(); err != nil {
			return fmt.Errorf("initialize cron scheduler: %w", err)
		}
	} else {
		logs.CtxInfo(ctx, "[gateway] cronjob disabled, skipping")
	}

	if cfg.Heartbeat.Enabled == nil || *cfg.Heartbeat.Enabled {
		gw.heartbeatScheduler = heartbeat.New(heartbeat.Options{
			TaskFilePath:    gw.heartbeatTaskFilePath(cfg),
			Interval:        time.Duration(cfg.Heartbeat.IntervalSec) * time.Second,
			CoalesceWindow:  time.Duration(cfg.Heartbeat.CoalesceMs) * time.Millisecond,
			DedupWindowSize: cfg.Heartbeat.DedupWindowSize,
			DedupWindowAge:  time.Duration(cfg.Heartbeat.DedupWindowSec) * time.Second,
			OnTasks:         builder.HeartbeatCallback(),
			OnDeliver:       gw.deliverToPrimaryAgentChannel,
			OnError: func(err error) {
				logs.CtxWarn(ctx, "[heartbeat] %v", err)
			},
		})
		gw.heartbeatScheduler.Start(ctx)
	} else {
		logs.CtxInfo(ctx, "[gateway] heartbeat disabled, skipping")
	}

	return nil
}

// heartbeatTaskFilePath resolves the configured task file, defaulting to
// HEARTBEAT.md in the primary agent's workspace.
func (gw *Gateway) heartbeatTaskFilePath(cfg *config.Config) string {
	if cfg.Heartbeat.TaskFile != "" {
		return cfg.Heartbeat.TaskFile
	}
	if agCfg, ok := cfg.Agents[gw.primaryAgentID]; ok {
		return agCfg.Workspace + "/HEARTBEAT.md"
	}
	return ""
}

// deliverToPrimaryAgentChannel is the Deliverer used by both scheduled
// callbacks: it sends the reply to the first channel bound to the primary
// agent, using that channel's ID as the chat ID. When no channel is bound
// the reply is only logged; when the bound channel is not registered a
// warning is logged and the reply is dropped.
func (gw *Gateway) deliverToPrimaryAgentChannel(ctx context.Context, text string) error {
	agCfg, ok, err := gw.primaryAgentDeliveryChannel()
	if err != nil {
		return err
	}
	if !ok {
		logs.CtxInfo(ctx, "[scheduled] %s", text)
		return nil
	}

	ch, err := channel.Get(agCfg)
	if err != nil {
		logs.CtxWarn(ctx, "[scheduled] delivery channel %s not found: %v", agCfg, err)
		return nil
	}
	return ch.SendMessage(ctx, agCfg, text)
}

// primaryAgentDeliveryChannel returns the first channel bound to the
// primary agent, used as the default destination for heartbeat and cron
// replies.
func (gw *Gateway) primaryAgentDeliveryChannel() (string, bool, error) {
	cfg, err := config.Get()
	if err != nil {
		return "", false, fmt.Errorf("get config: %w", err)
	}
	agCfg, ok := cfg.Agents[gw.primaryAgentID]
	if !ok || len(agCfg.Channels) == 0 {
		return "", false, nil
	}
	return agCfg.Channels[0], true, nil
}

func (gw *Gateway) keepTyping(ctx context.Context, ch channel.Channel, chatID string) (stop func()) {
	_ = ch.SendChatAction(ctx, chatID, channel.ChatActionTyping)

	ticker := time.NewTicker(typingInterval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = ch.SendChatAction(ctx, chatID, channel.ChatActionTyping)
			}
		}
	}()

	return func() { close(done) }
}
