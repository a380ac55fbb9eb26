// Package capflow simulates a regulated capital-raising process from
// private company to public listing.
//
// The Client is the single entry point presentation layers consume: it
// wires the workflow engine, the notification dispatcher, and the injected
// persistence into one explicit service instance. Multiple isolated
// clients can coexist, each over its own repository, which is what tests
// and horizontally scaled deployments rely on.
package capflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/capflow/capflow-go/notify"
	"github.com/capflow/capflow-go/workflow"
)

// Client bundles the workflow processor and notification dispatcher behind
// the operations dashboards need
type Client struct {
	processor  *workflow.Processor
	dispatcher *notify.Dispatcher
	graph      *workflow.StageGraph
	logger     *slog.Logger
}

type clientConfig struct {
	repo      workflow.Repository
	store     notify.Store
	graph     *workflow.StageGraph
	publisher workflow.EventPublisher
	logger    *slog.Logger
	clock     func() time.Time
}

// ClientOption configures a client
type ClientOption func(*clientConfig)

// WithRepository injects the workflow persistence; defaults to in-memory
func WithRepository(repo workflow.Repository) ClientOption {
	return func(c *clientConfig) {
		c.repo = repo
	}
}

// WithNotificationStore injects the notification persistence; defaults to
// in-memory
func WithNotificationStore(store notify.Store) ClientOption {
	return func(c *clientConfig) {
		c.store = store
	}
}

// WithStageGraph replaces the default pipeline definition, e.g. to tune
// per-stage SLAs
func WithStageGraph(graph *workflow.StageGraph) ClientOption {
	return func(c *clientConfig) {
		c.graph = graph
	}
}

// WithEventPublisher enables transition event publishing
func WithEventPublisher(publisher workflow.EventPublisher) ClientOption {
	return func(c *clientConfig) {
		c.publisher = publisher
	}
}

// WithLogger sets the logger for the client and everything it wires
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithClock injects the time source, for tests
func WithClock(clock func() time.Time) ClientOption {
	return func(c *clientConfig) {
		c.clock = clock
	}
}

// NewClient creates a fully wired engine instance
func NewClient(opts ...ClientOption) *Client {
	cfg := &clientConfig{
		repo:   workflow.NewInMemoryRepository(),
		store:  notify.NewInMemoryStore(),
		graph:  workflow.NewStageGraph(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	dispatcher := notify.NewDispatcher(cfg.store, cfg.graph,
		notify.WithDispatcherLogger(cfg.logger))

	procOpts := []workflow.ProcessorOption{
		workflow.WithLogger(cfg.logger),
		workflow.WithStageGraph(cfg.graph),
		workflow.WithObserver(dispatcher),
	}
	if cfg.publisher != nil {
		procOpts = append(procOpts, workflow.WithEventPublisher(cfg.publisher))
	}
	if cfg.clock != nil {
		procOpts = append(procOpts, workflow.WithClock(cfg.clock))
	}

	return &Client{
		processor:  workflow.NewProcessor(cfg.repo, procOpts...),
		dispatcher: dispatcher,
		graph:      cfg.graph,
		logger:     cfg.logger,
	}
}

// Graph returns the stage graph, the single source of truth for what each
// role can do at each stage
func (c *Client) Graph() *workflow.StageGraph {
	return c.graph
}

// Submit creates a new capital-raise workflow from an issuer's intent
func (c *Client) Submit(ctx context.Context, intent workflow.Intent, actor workflow.Actor) (*workflow.Workflow, error) {
	return c.processor.Submit(ctx, intent, actor)
}

// Execute applies one action to a workflow
func (c *Client) Execute(ctx context.Context, workflowID string, action workflow.Action, actor workflow.Actor, payload workflow.Payload, idempotencyKey string) (*workflow.Workflow, error) {
	return c.processor.Execute(ctx, workflowID, action, actor, payload, idempotencyKey)
}

// Get returns a workflow snapshot
func (c *Client) Get(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	return c.processor.Get(ctx, workflowID)
}

// ListForParticipant returns the workflows where the user occupies the role
func (c *Client) ListForParticipant(ctx context.Context, userID string, role workflow.Role) ([]*workflow.Workflow, error) {
	return c.processor.ListForParticipant(ctx, userID, role)
}

// ChangedSince returns workflows modified after the given instant
func (c *Client) ChangedSince(ctx context.Context, since time.Time) ([]*workflow.Workflow, error) {
	return c.processor.ChangedSince(ctx, since)
}

// Pause suspends an active workflow, keeping the open stage entry
func (c *Client) Pause(ctx context.Context, workflowID string, actor workflow.Actor, notes string) (*workflow.Workflow, error) {
	return c.processor.Pause(ctx, workflowID, actor, notes)
}

// Resume re-enables actions on a paused workflow
func (c *Client) Resume(ctx context.Context, workflowID string, actor workflow.Actor) (*workflow.Workflow, error) {
	return c.processor.Resume(ctx, workflowID, actor)
}

// IsOverdue reports whether the open stage exceeded its SLA at the instant
func (c *Client) IsOverdue(ctx context.Context, workflowID string, now time.Time) (bool, error) {
	return c.processor.IsOverdue(ctx, workflowID, now)
}

// AssignParticipant binds an identity to a vacant role
func (c *Client) AssignParticipant(ctx context.Context, workflowID string, role workflow.Role, participant workflow.Participant) (*workflow.Workflow, error) {
	return c.processor.AssignParticipant(ctx, workflowID, role, participant)
}

// ReplaceParticipant explicitly swaps the identity occupying a role
func (c *Client) ReplaceParticipant(ctx context.Context, workflowID string, role workflow.Role, participant workflow.Participant) (*workflow.Workflow, error) {
	return c.processor.ReplaceParticipant(ctx, workflowID, role, participant)
}

// ResolveParticipant returns the identity occupying a role
func (c *Client) ResolveParticipant(ctx context.Context, workflowID string, role workflow.Role) (*workflow.Participant, error) {
	return c.processor.ResolveParticipant(ctx, workflowID, role)
}

// AttachDocument records document metadata against a stage
func (c *Client) AttachDocument(ctx context.Context, workflowID string, stage workflow.Stage, docType workflow.DocumentType, fileRef string, actor workflow.Actor) (*workflow.Workflow, error) {
	return c.processor.AttachDocument(ctx, workflowID, stage, docType, fileRef, actor)
}

// ReviewDocument decides a pending document
func (c *Client) ReviewDocument(ctx context.Context, workflowID, documentID string, decision workflow.DocumentStatus, reviewer workflow.Actor) (*workflow.Workflow, error) {
	return c.processor.ReviewDocument(ctx, workflowID, documentID, decision, reviewer)
}

// PrerequisitesMet reports whether a stage's required documents are all
// approved
func (c *Client) PrerequisitesMet(ctx context.Context, workflowID string, stage workflow.Stage) (bool, error) {
	return c.processor.PrerequisitesMet(ctx, workflowID, stage)
}

// ListNotifications returns the notifications addressed to a user in a role
func (c *Client) ListNotifications(ctx context.Context, userID string, role workflow.Role) ([]notify.Notification, error) {
	return c.dispatcher.ListFor(ctx, userID, role)
}

// MarkNotificationRead stamps a notification as read
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.dispatcher.MarkRead(ctx, id)
}
