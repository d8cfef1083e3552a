package container

import (
	"github.com/flowgrid/flowgrid/cmd/engine/executor"
	"github.com/flowgrid/flowgrid/cmd/engine/nodes"
	"github.com/flowgrid/flowgrid/cmd/engine/resolver"
	"github.com/flowgrid/flowgrid/cmd/engine/sandbox"
	"github.com/flowgrid/flowgrid/cmd/engine/scheduler"
	"github.com/flowgrid/flowgrid/common/bootstrap"
	"github.com/flowgrid/flowgrid/common/clients"
	"github.com/flowgrid/flowgrid/common/crypto"
	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/oauth"
	"github.com/flowgrid/flowgrid/common/progress"
	"github.com/flowgrid/flowgrid/common/store"
)

// Container holds all initialized engine services (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	Store     store.Store
	Crypto    *crypto.Service
	OAuth     *oauth.Client
	Bus       *progress.Bus
	Registry  *nodes.Registry
	Scheduler *scheduler.Scheduler
	Consumer  *executor.Consumer
}

// NewContainer initializes all services once, bottom-up
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	st := store.NewPostgresStore(components.DB, components.Cache, cfg.Cache.DefaultTTL, log)

	cryptoService, err := crypto.New(cfg.Crypto.EncryptionKey, log)
	if err != nil {
		return nil, err
	}
	oauthClient := oauth.NewClient(log)

	bus := progress.NewBus(log)
	if cfg.Features.EnableRedisMirror && components.Redis != nil {
		bus.AttachSink(progress.NewRedisSink(components.Redis))
		log.Info("redis progress mirror enabled")
	}

	res := resolver.New()
	sb := sandbox.New(cfg.Sandbox, log)
	llm := clients.NewLLMClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.HTTPTimeout, log)
	gmail := clients.NewGmailClient(log)

	registry := nodes.NewRegistry(log)
	registry.Register(models.NodeTypeWebhook, nodes.NewWebhookHandler())
	registry.Register(models.NodeTypeHTTPRequest, nodes.NewHTTPRequestHandler(res, 0, log))
	registry.Register(models.NodeTypeCode, nodes.NewCodeHandler(sb))
	registry.Register(models.NodeTypeAIChat, nodes.NewAIChatHandler(res, llm, cfg.LLM.APIKey != ""))
	registry.Register(models.NodeTypeDatabase, nodes.NewDatabaseHandler(res, log))
	registry.Register(models.NodeTypeEmail, nodes.NewEmailHandler(
		res, st, cryptoService, oauthClient, gmail, cfg.SMTP, components.Redis, log))

	sched := scheduler.New(registry, st, bus, cfg.Features.EnableStrictGraph, log)
	consumer := executor.NewConsumer(components.Queue, st, sched, log)

	return &Container{
		Components: components,
		Store:      st,
		Crypto:     cryptoService,
		OAuth:      oauthClient,
		Bus:        bus,
		Registry:   registry,
		Scheduler:  sched,
		Consumer:   consumer,
	}, nil
}
