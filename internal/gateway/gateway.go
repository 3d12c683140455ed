// Package gateway wires the bot together: the Discord adapter feeds the
// message bus, and every inbound message runs through the dispatch
// order: recruitment first, then the watched-channel cache, then the
// $wisdom and $summary commands, then the moderation filter.
package gateway

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Nanomace/Nyx/internal/bus"
	"github.com/Nanomace/Nyx/internal/cache"
	"github.com/Nanomace/Nyx/internal/config"
	"github.com/Nanomace/Nyx/internal/corpus"
	"github.com/Nanomace/Nyx/internal/digest"
	"github.com/Nanomace/Nyx/internal/discord"
	"github.com/Nanomace/Nyx/internal/llm"
	"github.com/Nanomace/Nyx/internal/moderation"
	"github.com/Nanomace/Nyx/internal/platform"
	"github.com/Nanomace/Nyx/internal/recruit"
	"github.com/Nanomace/Nyx/internal/summary"
)

// Options for creating a Gateway
type Options struct {
	RuntimeFactory llm.RuntimeFactory
	SessionFactory discord.SessionFactory
	SignalChan     chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg     *config.Config
	bus     *bus.MessageBus
	client  *llm.Client
	adapter *discord.Adapter
	corpus  *corpus.Corpus
	cache   *cache.Store

	moderation *moderation.Filter
	summary    *summary.Dispatcher
	recruit    *recruit.Machine
	digest     *digest.Service

	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)
	g.corpus = corpus.Load(cfg.Agent.Workspace, cfg.Corpus)

	// Create runtime using factory (allows injection for testing)
	factory := opts.RuntimeFactory
	if factory == nil {
		factory = llm.DefaultRuntimeFactory
	}
	rt, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	g.client = llm.NewClient(rt)

	discordCfg := discord.Config{
		Token:            cfg.Discord.Token,
		RecruitPrefix:    cfg.Recruit.ChannelPrefix,
		RecruitViewRoles: cfg.Recruit.OfficerRoles,
	}
	var adapter *discord.Adapter
	if opts.SessionFactory != nil {
		adapter, err = discord.NewWithFactory(discordCfg, g.bus, opts.SessionFactory)
	} else {
		adapter, err = discord.New(discordCfg, g.bus)
	}
	if err != nil {
		g.client.Close()
		return nil, fmt.Errorf("create discord adapter: %w", err)
	}
	g.adapter = adapter
	g.bus.SubscribeOutbound(discord.PlatformName, func(msg bus.OutboundMessage) {
		_ = adapter.Send(msg)
	})

	g.cache = cache.NewStore()
	g.moderation = moderation.NewFilter(cfg.Moderation, g.corpus, g.client, g.bus)
	g.summary = summary.NewDispatcher(cfg.Summary, g.cache, g.client, adapter, g.bus)
	g.recruit = recruit.NewMachine(cfg.Recruit, recruit.NewStore(), g.client, adapter, g.bus)
	g.digest = digest.NewService(cfg.Digests, g.summary, g.bus, discord.PlatformName)

	g.signalChan = opts.SignalChan
	return g, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.adapter.Start(); err != nil {
		return fmt.Errorf("start discord adapter: %w", err)
	}

	g.recruit.Start(ctx)
	if err := g.digest.Start(ctx); err != nil {
		log.Printf("[gateway] digest start warning: %v", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running")

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

// processLoop consumes the inbound bus. Interview buffering and the
// watched-channel cache depend on arrival order, so those stages run
// inline; only the command/moderation tail, which may block on the
// model, is detached per message.
func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.ChannelID, msg.AuthorName, truncate(msg.Content, 80))
			if g.claim(ctx, msg) {
				continue
			}
			go func(msg bus.InboundMessage) {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("[gateway] handler panic: %v", r)
					}
				}()
				g.route(ctx, msg)
			}(msg)
		case <-ctx.Done():
			return
		}
	}
}

// HandleMessage routes one inbound message. The recruitment machine gets
// first claim; unclaimed messages are cached when from a watched channel,
// then matched against the command surface, then moderated.
func (g *Gateway) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	if g.claim(ctx, msg) {
		return
	}
	g.route(ctx, msg)
}

// claim runs the order-sensitive stages and reports whether the
// recruitment machine consumed the message.
func (g *Gateway) claim(ctx context.Context, msg bus.InboundMessage) (claimed bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[gateway] handler panic: %v", r)
			claimed = true
		}
	}()

	if g.recruit.Handle(ctx, msg) {
		return true
	}
	if g.watched(msg.ChannelID) {
		g.cache.Append(msg.ChannelID, msg.DisplayName, msg.Content, msg.Timestamp)
	}
	return false
}

func (g *Gateway) route(ctx context.Context, msg bus.InboundMessage) {
	command := strings.ToLower(strings.TrimSpace(msg.Content))
	switch {
	case command == "$wisdom":
		g.wisdom(msg)
	case strings.HasPrefix(command, "$summary"):
		g.summary.Handle(ctx, msg)
	default:
		g.moderation.Handle(ctx, msg)
	}
}

func (g *Gateway) watched(channelID string) bool {
	return channelID != "" &&
		(channelID == g.cfg.Watch.GeneralsChannelID || channelID == g.cfg.Watch.OfficerChannelID)
}

func (g *Gateway) wisdom(msg bus.InboundMessage) {
	if len(g.corpus.Quotes) == 0 {
		g.bus.Outbound <- bus.OutboundMessage{
			Platform:  msg.Platform,
			ChannelID: msg.ChannelID,
			Content:   "No wisdom available.",
		}
		return
	}

	quote := g.corpus.Quotes[rand.Intn(len(g.corpus.Quotes))]
	g.bus.Outbound <- bus.OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Embed: &platform.Embed{
			Title:       "A word of wisdom",
			Description: quote,
			Color:       platform.ColorWhite,
		},
	}
}

func (g *Gateway) Shutdown() error {
	g.digest.Stop()
	if err := g.adapter.Stop(); err != nil {
		log.Printf("[gateway] stop discord adapter warning: %v", err)
	}
	g.client.Close()
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
