package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	agentrepo "github.com/landovsky/gmail-assistant-sub002/internal/agent/repository"
	agentuc "github.com/landovsky/gmail-assistant-sub002/internal/agent/usecase"
	classifyuc "github.com/landovsky/gmail-assistant-sub002/internal/classify/usecase"
	draftuc "github.com/landovsky/gmail-assistant-sub002/internal/draft/usecase"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	jobrepo "github.com/landovsky/gmail-assistant-sub002/internal/job/repository"
	lifecycle "github.com/landovsky/gmail-assistant-sub002/internal/lifecycle/usecase"
	llmcallrepo "github.com/landovsky/gmail-assistant-sub002/internal/llmcall/repository"
	routing "github.com/landovsky/gmail-assistant-sub002/internal/routing/usecase"
	"github.com/landovsky/gmail-assistant-sub002/internal/scheduler"
	"github.com/landovsky/gmail-assistant-sub002/internal/schema"
	syncuc "github.com/landovsky/gmail-assistant-sub002/internal/sync/usecase"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"
	useruc "github.com/landovsky/gmail-assistant-sub002/internal/user/usecase"
	"github.com/landovsky/gmail-assistant-sub002/internal/worker"
	"github.com/landovsky/gmail-assistant-sub002/pkg/config"
	"github.com/landovsky/gmail-assistant-sub002/pkg/database"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm/openai"
	"github.com/landovsky/gmail-assistant-sub002/pkg/styles"

	"gorm.io/gorm"
)

// app holds the configuration, the database and every repository. The
// LLM-backed services are built on demand by pipeline().
type app struct {
	cfg    *config.Config
	appCfg *config.AppConfig
	db     *gorm.DB

	users     userrepo.UserRepository
	states    userrepo.SyncStateRepository
	settings  userrepo.SettingsRepository
	emails    emailrepo.EmailRecordRepository
	events    emailrepo.EmailEventRepository
	labels    emailrepo.LabelMappingRepository
	jobs      jobrepo.JobRepository
	llmCalls  llmcallrepo.LLMCallRepository
	agentRuns agentrepo.AgentRunRepository

	mailboxes useruc.Mailboxes
	lifecycle *lifecycle.Manager
	sync      *syncuc.Engine
}

// pipeline is the job processing stack.
type pipeline struct {
	styles    *styles.Store
	pool      *worker.Pool
	scheduler *scheduler.Scheduler
}

func newApp() (*app, error) {
	cfg := config.Load()

	appCfg, err := config.LoadAppConfig(cfg.AppConfig)
	if err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency > 0 {
		appCfg.Worker.Concurrency = cfg.WorkerConcurrency
	}
	if cfg.ClassifyModel != "" {
		appCfg.LLM.ClassifyModel = cfg.ClassifyModel
	}
	if cfg.DraftModel != "" {
		appCfg.LLM.DraftModel = cfg.DraftModel
	}

	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := schema.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	a := &app{
		cfg:       cfg,
		appCfg:    appCfg,
		db:        db,
		users:     userrepo.NewUserRepository(db),
		states:    userrepo.NewSyncStateRepository(db),
		settings:  userrepo.NewSettingsRepository(db),
		emails:    emailrepo.NewEmailRecordRepository(db),
		events:    emailrepo.NewEmailEventRepository(db),
		labels:    emailrepo.NewLabelMappingRepository(db),
		jobs:      jobrepo.NewJobRepository(db),
		llmCalls:  llmcallrepo.NewLLMCallRepository(db),
		agentRuns: agentrepo.NewAgentRunRepository(db),
	}

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	a.mailboxes = useruc.NewGmailMailboxes(gmailService, a.users)
	a.lifecycle = lifecycle.NewManager(a.emails, a.events, a.labels)

	router, err := routing.NewRouter(appCfg.Routing)
	if err != nil {
		return nil, err
	}
	a.sync = syncuc.NewEngine(a.jobs, a.emails, a.labels, a.states, a.lifecycle, router, appCfg.Sync)
	return a, nil
}

// watchTopic is the fully qualified topic Gmail publishes to.
func (a *app) watchTopic() string {
	topic := a.cfg.GooglePubSubTopic
	if topic == "" || strings.Contains(topic, "/") || a.cfg.GoogleProjectID == "" {
		return topic
	}
	return fmt.Sprintf("projects/%s/topics/%s", a.cfg.GoogleProjectID, topic)
}

// topicName is the short topic name the Pub/Sub client expects.
func (a *app) topicName() string {
	topic := a.cfg.GooglePubSubTopic
	if parts := strings.Split(topic, "/"); len(parts) > 1 {
		topic = parts[len(parts)-1]
	}
	return topic
}

func (a *app) newScheduler() *scheduler.Scheduler {
	return scheduler.New(a.jobs, a.users, a.mailboxes, a.sync, a.appCfg.Sync, a.watchTopic())
}

// pipeline builds the LLM provider, the classification and drafting
// engines, the agent profiles and the worker pool.
func (a *app) pipeline() (*pipeline, error) {
	cfg, llmCfg := a.cfg, a.appCfg.LLM

	provider, err := openai.NewProvider(openai.Settings{
		Provider:         openai.ProviderType(cfg.LLMProvider),
		BaseURL:          cfg.LLMBaseURL,
		APIKey:           cfg.LLMAPIKey,
		Model:            llmCfg.DraftModel,
		FallbackProvider: openai.ProviderType(cfg.LLMFallbackProvider),
		FallbackBaseURL:  cfg.LLMFallbackBaseURL,
		FallbackAPIKey:   cfg.LLMFallbackAPIKey,
		FallbackModel:    cfg.LLMFallbackModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	tokens := llm.NewTokenCounter(llmCfg.DraftModel)
	gateway := llm.NewGateway(provider, a.llmCalls, tokens, llmCfg.ClassifyModel)

	styleStore, err := styles.Load(cfg.StylesFile)
	if err != nil {
		return nil, err
	}

	classifier := classifyuc.NewEngine(gateway, styleStore, llmCfg.ClassifyModel, llmCfg.MaxClassifyTokens)
	gatherer := draftuc.NewContextGatherer(gateway, llmCfg.ContextModel)
	drafter := draftuc.NewEngine(gateway, styleStore, gatherer, tokens, llmCfg.DraftModel, llmCfg.MaxDraftTokens)

	agents, err := a.agents(gateway)
	if err != nil {
		return nil, err
	}

	pool := worker.NewPool(a.jobs, a.users, a.mailboxes, a.lifecycle, a.appCfg.Worker)
	handlers := &worker.Handlers{
		Jobs:      a.jobs,
		Emails:    a.emails,
		Settings:  a.settings,
		Lifecycle: a.lifecycle,
		Sync:      a.sync,
		Classify:  classifier,
		Drafts:    draftuc.NewService(drafter, a.emails, a.settings, a.lifecycle),
		Agents:    agents,
	}
	handlers.Register(pool)

	return &pipeline{styles: styleStore, pool: pool, scheduler: a.newScheduler()}, nil
}

// agents loads the agent profiles. Without profiles there is no processor
// and routing rules must not point at one.
func (a *app) agents(completer llm.Completer) (*agentuc.Processor, error) {
	router, err := routing.NewRouter(a.appCfg.Routing)
	if err != nil {
		return nil, err
	}

	registry := agentuc.NewRegistry()
	for _, tool := range agentuc.MailboxTools(a.labels) {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	profiles, err := agentuc.LoadProfiles(a.appCfg.Agent, registry, filepath.Dir(a.cfg.AppConfig))
	if err != nil {
		return nil, err
	}

	var processor *agentuc.Processor
	if len(profiles) > 0 {
		processor = agentuc.NewProcessor(agentuc.NewLoop(completer, registry), profiles, a.agentRuns, a.events)
		log.Printf("[Agent] Loaded %d profiles, %d tools", len(profiles), len(registry.Names()))
	}
	for _, name := range router.Profiles() {
		if processor == nil || !processor.HasProfile(name) {
			return nil, fmt.Errorf("routing refers to unknown agent profile %q", name)
		}
	}
	return processor, nil
}
