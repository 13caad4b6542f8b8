package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/audit"
	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
	"github.com/ManuelReschke/ChatFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ChatFox/internal/pkg/rules"
	"github.com/ManuelReschke/ChatFox/internal/pkg/tenant"
)

// TenantResolver maps a LINE destination to its routing context
type TenantResolver interface {
	Resolve(ctx context.Context, destinationID string) (*tenant.Config, error)
}

// SecretSource looks up LINE channel credentials
type SecretSource interface {
	ChannelSecret(ctx context.Context, integrationID uint) (string, error)
	AccessToken(ctx context.Context, integrationID uint) (string, error)
}

// RuleSource lists a project's active rules
type RuleSource interface {
	ListActiveByProject(ctx context.Context, projectID uint) ([]models.Rule, error)
}

// Queue is the part of the job store the gateway writes to
type Queue interface {
	IsProcessed(ctx context.Context, webhookEventID string) (bool, error)
	Enqueue(ctx context.Context, p jobqueue.Payload, webhookEventID string) (string, error)
}

// Replier sends a text reply to a LINE event
type Replier interface {
	Reply(ctx context.Context, accessToken, replyToken, text string) error
}

type Dependencies struct {
	Tenants TenantResolver
	Secrets SecretSource
	Rules   RuleSource
	Queue   Queue
	Replier Replier
	Audit   audit.Sink
}

type Config struct {
	EventTimeout time.Duration
	Concurrency  int
}

func LoadConfig() Config {
	return Config{
		EventTimeout: env.GetEnvDuration("WEBHOOK_EVENT_TIMEOUT", 10*time.Second),
		Concurrency:  env.GetEnvInt("WEBHOOK_CONCURRENCY", 8),
	}
}

type Request struct {
	Method    string
	Signature string
	Body      []byte
}

type Response struct {
	Status  int
	Message string
}

// outcome of one event, tallied into the webhook_received audit entry
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDuplicate
	outcomeNoMatch
	outcomeEnqueued
	outcomeError
	outcomeInvalid
)

type Gateway struct {
	deps Dependencies
	cfg  Config
	now  func() time.Time
}

func NewGateway(deps Dependencies, cfg Config) *Gateway {
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Gateway{deps: deps, cfg: cfg, now: time.Now}
}

// Handle authenticates and dispatches one webhook delivery. The only non-200
// answers are 405, 401 and 400; storage and per-event failures are logged and
// audited so LINE does not redeliver the whole batch.
func (g *Gateway) Handle(ctx context.Context, req Request) Response {
	if req.Method != http.MethodPost {
		return Response{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}
	if req.Signature == "" {
		return Response{Status: http.StatusUnauthorized, Message: "missing signature"}
	}

	envelope, err := ParseEnvelope(req.Body)
	if err != nil {
		log.Warnf("[Webhook] %v", err)
		return Response{Status: http.StatusBadRequest, Message: "invalid payload"}
	}

	cfg, err := g.deps.Tenants.Resolve(ctx, envelope.Destination)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			log.Infof("[Webhook] ignoring delivery for unknown destination %s", envelope.Destination)
			return Response{Status: http.StatusOK, Message: "ignored"}
		}
		// no tenant to audit against
		log.Errorf("[Webhook] tenant resolution failed for %s, dropping delivery: %v", envelope.Destination, err)
		return Response{Status: http.StatusOK, Message: "ok"}
	}

	secret, err := g.deps.Secrets.ChannelSecret(ctx, cfg.IntegrationID)
	if err != nil {
		log.Errorf("[Webhook] channel secret lookup failed for integration %d: %v", cfg.IntegrationID, err)
		return Response{Status: http.StatusUnauthorized, Message: "invalid signature"}
	}
	if !VerifySignature(req.Body, req.Signature, secret) {
		log.Warnf("[Webhook] %v for tenant %d", ErrInvalidSignature, cfg.TenantID)
		return Response{Status: http.StatusUnauthorized, Message: "invalid signature"}
	}

	if len(envelope.Events) == 0 {
		return Response{Status: http.StatusOK, Message: "ok"}
	}

	ruleSet, rulesErr := g.loadRules(ctx, cfg.ProjectID)
	if rulesErr != nil {
		log.Errorf("[Webhook] failed to load rules for project %d: %v", cfg.ProjectID, rulesErr)
	}
	tally := g.dispatch(ctx, cfg, envelope.Events, ruleSet, rulesErr)

	g.deps.Audit.Record(ctx, audit.Event{
		TenantID: cfg.TenantID,
		Name:     models.AuditWebhookReceived,
		Detail: map[string]interface{}{
			"events":     len(envelope.Events),
			"enqueued":   tally[outcomeEnqueued],
			"no_match":   tally[outcomeNoMatch],
			"duplicates": tally[outcomeDuplicate],
			"skipped":    tally[outcomeSkipped],
			"errors":     tally[outcomeError],
			"invalid":    tally[outcomeInvalid],
		},
	})
	return Response{Status: http.StatusOK, Message: "ok"}
}

func (g *Gateway) loadRules(ctx context.Context, projectID uint) ([]rules.Rule, error) {
	stored, err := g.deps.Rules.ListActiveByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]rules.Rule, 0, len(stored))
	for _, m := range stored {
		r, err := rules.FromModel(m)
		if err != nil {
			log.Warnf("[Webhook] skipping rule: %v", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// dispatch handles every event independently. rulesErr marks the rule set as
// unavailable: such events end up as errors, never as no_match.
func (g *Gateway) dispatch(ctx context.Context, cfg *tenant.Config, events []Event, ruleSet []rules.Rule, rulesErr error) map[outcome]int {
	var (
		mu    sync.Mutex
		tally = make(map[outcome]int)
	)
	var eg errgroup.Group
	eg.SetLimit(g.cfg.Concurrency)
	for i := range events {
		ev := events[i]
		eg.Go(func() error {
			evCtx, cancel := context.WithTimeout(ctx, g.cfg.EventTimeout)
			defer cancel()

			res, err := g.handleEvent(evCtx, cfg, ev, ruleSet, rulesErr)
			if err != nil {
				log.Errorf("[Webhook] tenant %d event %s: %v", cfg.TenantID, ev.WebhookEventID, err)
				res = outcomeError
			}
			mu.Lock()
			tally[res]++
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return tally
}

func (g *Gateway) handleEvent(ctx context.Context, cfg *tenant.Config, ev Event, ruleSet []rules.Rule, rulesErr error) (outcome, error) {
	if !ev.Supported() {
		log.Debugf("[Webhook] skipping %s event", ev.Type)
		return outcomeSkipped, nil
	}
	if !ev.Valid() {
		log.Warnf("[Webhook] tenant %d: skipping %s message without id (event %s)", cfg.TenantID, ev.Message.Type, ev.WebhookEventID)
		return outcomeInvalid, nil
	}
	msg := ev.Message
	key := jobqueue.DedupKey(cfg.TenantID, msg.ID)

	seen, err := g.deps.Queue.IsProcessed(ctx, key)
	if err != nil {
		return outcomeError, fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		log.Infof("[Webhook] duplicate message %s (redelivery=%t)", key, ev.DeliveryContext.IsRedelivery)
		return outcomeDuplicate, nil
	}
	if rulesErr != nil {
		return outcomeError, fmt.Errorf("rules unavailable: %w", rulesErr)
	}

	match, ok := rules.Match(msg.MatchText(), ruleSet, g.now())
	if !ok {
		g.deps.Audit.Record(ctx, audit.Event{
			TenantID:       cfg.TenantID,
			Name:           models.AuditNoMatch,
			WebhookEventID: key,
			Detail:         map[string]interface{}{"message_type": msg.Type},
		})
		g.reply(ctx, cfg, ev.ReplyToken, cfg.Settings.ReplyMessages.NoMatch)
		return outcomeNoMatch, nil
	}

	payload := buildPayload(cfg, ev, match)
	jobID, err := g.deps.Queue.Enqueue(ctx, payload, key)
	if err != nil {
		return outcomeError, fmt.Errorf("enqueue: %w", err)
	}
	g.deps.Audit.Record(ctx, audit.Event{
		TenantID:       cfg.TenantID,
		Name:           models.AuditJobEnqueued,
		JobID:          jobID,
		WebhookEventID: key,
		Detail: map[string]interface{}{
			"rule_id":     match.Rule.ID,
			"database_id": match.Rule.Action.DatabaseID,
		},
	})
	log.Infof("[Webhook] enqueued job %s for %s (rule %d)", jobID, key, match.Rule.ID)

	g.reply(ctx, cfg, ev.ReplyToken, cfg.Settings.ReplyMessages.Received)
	return outcomeEnqueued, nil
}

// reply is best effort: a lost acknowledgement never fails the event
func (g *Gateway) reply(ctx context.Context, cfg *tenant.Config, replyToken, text string) {
	if !cfg.Settings.ReplyEnabled || text == "" || replyToken == "" || g.deps.Replier == nil {
		return
	}
	token, err := g.deps.Secrets.AccessToken(ctx, cfg.IntegrationID)
	if err != nil {
		log.Warnf("[Webhook] no access token for reply on integration %d: %v", cfg.IntegrationID, err)
		return
	}
	if err := g.deps.Replier.Reply(ctx, token, replyToken, text); err != nil {
		log.Warnf("[Webhook] reply failed for tenant %d: %v", cfg.TenantID, err)
	}
}

func buildPayload(cfg *tenant.Config, ev Event, match *rules.MatchResult) jobqueue.Payload {
	msg := ev.Message
	p := jobqueue.Payload{
		TenantID:                cfg.TenantID,
		TeamID:                  cfg.TeamID,
		ProjectID:               cfg.ProjectID,
		IntegrationID:           cfg.IntegrationID,
		DownstreamIntegrationID: cfg.DownstreamIntegrationID,
		DatabaseID:              match.Rule.Action.DatabaseID,
		MessageID:               msg.ID,
		MessageType:             models.JobEventType(msg.Type),
		SourceUserID:            ev.Source.UserID,
		ReplyToken:              ev.ReplyToken,
		Text:                    msg.Text,
		ProcessedText:           match.ProcessedText,
		Properties:              match.Properties,
		RuleID:                  match.Rule.ID,
	}
	switch msg.Type {
	case MessageTypeLocation:
		p.Location = &jobqueue.Location{
			Title:     msg.Title,
			Address:   msg.Address,
			Latitude:  msg.Latitude,
			Longitude: msg.Longitude,
		}
	case MessageTypeImage:
		p.Content = &jobqueue.Content{Provider: jobqueue.ContentProviderLine}
		if msg.ContentProvider != nil && msg.ContentProvider.Type != "" {
			p.Content.Provider = msg.ContentProvider.Type
			p.Content.OriginalContentURL = msg.ContentProvider.OriginalContentURL
		}
	}
	return p
}
