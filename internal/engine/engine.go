// Package engine orchestrates reply generation: admission, context
// gathering, budgeting, prompting, validation and the audit record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	ctxengine "github.com/replypass/replypass/internal/context"
	"github.com/replypass/replypass/internal/prompt"
	"github.com/replypass/replypass/internal/provider"
	"github.com/replypass/replypass/internal/regen"
	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/internal/suggest"
	"github.com/replypass/replypass/internal/usage"
	"github.com/replypass/replypass/pkg/reply"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("engine: invalid request")

// errGather marks failures to read the case store after admission.
var errGather = errors.New("engine: gathering context")

// Generator sends prompts to the model.
type Generator interface {
	Generate(ctx context.Context, prompt, model string, timeout time.Duration) (provider.Completion, error)
	ContextWindowSize() int
	DefaultModel() string
}

// Store is the persistence the engine needs.
type Store interface {
	store.CaseReader
	store.GenerationLog
}

// Deps are the collaborators of an Engine. Store, Limiter and Client are
// required.
type Deps struct {
	Store   Store
	Limiter *usage.Limiter
	Client  Generator
	Roles   prompt.RoleSource
	Metrics *Metrics
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Now     func() time.Time
	NewID   func() string
}

// Engine generates reply suggestions. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	cfg       Config
	store     Store
	limiter   *usage.Limiter
	client    Generator
	roles     prompt.RoleSource
	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
	extractor *ctxengine.Extractor
	selector  *ctxengine.Selector
	personas  *ctxengine.PersonaBuilder
	budget    *ctxengine.ContextAssembler
	prompts   *prompt.Assembler
	validator *suggest.Validator
	policy    *regen.Policy
}

// New creates an Engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil || deps.Limiter == nil || deps.Client == nil {
		return nil, errors.New("engine: store, limiter and client are required")
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		store:   deps.Store,
		limiter: deps.Limiter,
		client:  deps.Client,
		roles:   deps.Roles,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		tracer:  deps.Tracer,
		now:     deps.Now,
		newID:   deps.NewID,
	}
	if e.roles == nil {
		e.roles = prompt.StaticRole("")
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/replypass/replypass/internal/engine")
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}

	e.extractor = ctxengine.NewExtractor(deps.Store)
	e.selector = ctxengine.NewSelector(deps.Store)
	e.personas = ctxengine.NewPersonaBuilder(deps.Store)
	e.budget = ctxengine.NewContextAssembler(cfg.Context)
	e.prompts = prompt.New("")
	e.validator = suggest.NewValidator(e.prompts, e.logger)
	e.policy = regen.New(cfg.Regeneration, e.logger)
	return e, nil
}

// Generate runs one generation request. Every domain outcome, including
// quota rejection and model failure, is a typed Result with a nil error.
// An error is returned only for invalid requests.
func (e *Engine) Generate(ctx context.Context, req reply.Request) (reply.Result, error) {
	if err := req.Validate(); err != nil {
		return reply.Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	ctx, span := e.tracer.Start(ctx, "engine.generate", trace.WithAttributes(
		attribute.String("case_id", req.CaseID),
		attribute.String("mode", string(req.Mode)),
	))
	defer span.End()

	logger := e.logger.With("user_id", req.UserID, "case_id", req.CaseID, "session_id", req.SessionID, "mode", string(req.Mode))

	decision, err := e.limiter.TryAdmit(ctx, req.UserID, reply.UsageReplyGeneration)
	if err != nil {
		logger.ErrorContext(ctx, "quota check failed, rejecting", "error", err)
		span.SetStatus(codes.Error, "quota check unavailable")
		return e.finish(reply.Result{Status: reply.StatusUnavailable}), nil
	}
	if !decision.Admitted {
		logger.InfoContext(ctx, "quota exceeded", "count", decision.Count, "limit", decision.Limit)
		return e.finish(reply.Result{
			Status: reply.StatusQuotaExceeded,
			Quota:  &reply.Quota{Count: decision.Count, Limit: decision.Limit},
		}), nil
	}

	// From here on the request is charged and must leave an audit record.
	start := e.now()
	gen := reply.Generation{
		ID:        e.newID(),
		UserID:    req.UserID,
		CaseID:    req.CaseID,
		SessionID: req.SessionID,
		Mode:      req.Mode,
		Round:     1,
		CreatedAt: start,
	}
	span.SetAttributes(attribute.String("generation_id", gen.ID))
	defer func() {
		e.audit(ctx, logger, gen)
		e.metrics.observeDuration(e.now().Sub(start).Seconds())
	}()

	model := ""
	if plan, ok := e.limiter.Plan(decision.Plan); ok {
		model = plan.Model
	}

	suggestions, err := e.run(ctx, logger, req, model, &gen)
	if err != nil {
		kind := failureKind(err)
		gen.Status, gen.FailureKind = reply.GenerationFailed, kind
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))

		status := reply.StatusGenerationFailed
		if kind == reply.FailureContextUnavailable {
			status = reply.StatusUnavailable
			logger.ErrorContext(ctx, "generation failed", "generation_id", gen.ID, "error", err)
		} else {
			logger.WarnContext(ctx, "generation failed", "generation_id", gen.ID, "failure", kind, "error", err)
		}
		return e.finish(reply.Result{Status: status, GenerationID: gen.ID, Failure: kind}), nil
	}

	gen.Status, gen.Suggestions = reply.GenerationSucceeded, suggestions
	logger.InfoContext(ctx, "generation succeeded", "generation_id", gen.ID, "round", gen.Round, "model", gen.Model)
	return e.finish(reply.Result{Status: reply.StatusOK, GenerationID: gen.ID, Suggestions: suggestions}), nil
}

func (e *Engine) finish(r reply.Result) reply.Result {
	e.metrics.observeResult(r)
	return r
}

// gathered holds the outputs of the fan-out stage.
type gathered struct {
	role          string
	persona       *ctxengine.PersonaMaterial
	conversation  *ctxengine.Conversation
	feedback      ctxengine.FeedbackCorpus
	prior         *reply.Generation
	priorFeedback []reply.FeedbackRecord
}

// gather loads every context source concurrently and waits for all of them.
func (e *Engine) gather(ctx context.Context, req reply.Request) (gathered, error) {
	ctx, span := e.tracer.Start(ctx, "engine.gather")
	defer span.End()

	var g gathered
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		role, err := e.roles.Load()
		if err != nil {
			return fmt.Errorf("loading role: %w", err)
		}
		g.role = role
		return nil
	})
	eg.Go(func() error {
		m, err := e.personas.Load(gctx, req.CaseID)
		g.persona = m
		return err
	})
	eg.Go(func() error {
		c, err := e.extractor.Load(gctx, req.SessionID)
		g.conversation = c
		return err
	})
	eg.Go(func() error {
		fb, err := e.selector.Select(gctx, req.CaseID, e.cfg.Context.FeedbackPerSide)
		g.feedback = fb
		return err
	})
	if req.Mode == reply.ModeRegenerate {
		eg.Go(func() error {
			prior, err := e.store.LatestGeneration(gctx, req.SessionID)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("loading previous round: %w", err)
			}
			fb, err := e.store.FeedbackFor(gctx, prior.ID)
			if err != nil {
				return fmt.Errorf("loading feedback of %s: %w", prior.ID, err)
			}
			g.prior, g.priorFeedback = &prior, fb
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		return gathered{}, fmt.Errorf("%w: %w", errGather, err)
	}
	return g, nil
}

// fit budgets the gathered sources against overhead and renders the prompt.
func (e *Engine) fit(in prompt.Input, g gathered, overhead int) (ctxengine.AssemblyResult, string) {
	fitted := e.budget.Assemble(ctxengine.AssemblyRequest{
		WindowSize:   e.client.ContextWindowSize(),
		Overhead:     overhead,
		Persona:      g.persona,
		Conversation: g.conversation,
		Feedback:     g.feedback,
	})
	in.Persona = fitted.Persona
	in.Conversation = fitted.Conversation.Text
	in.Feedback = fitted.Feedback
	return fitted, e.prompts.Assemble(in)
}

func (e *Engine) run(ctx context.Context, logger *slog.Logger, req reply.Request, model string, gen *reply.Generation) ([]reply.Suggestion, error) {
	g, err := e.gather(ctx, req)
	if err != nil {
		return nil, err
	}

	round := e.policy.Begin(ctx, req.Mode, g.prior, g.priorFeedback)
	gen.Round, gen.PreviousID = round.Number, round.PreviousID()

	in := prompt.Input{
		Role:      g.role,
		Persona:   ctxengine.PersonaContext{Persona: g.persona.Persona},
		Goal:      req.Goal,
		Exclusion: round.Exclusion(),
	}
	est := e.budget.Estimator()
	overhead := est.Estimate(e.prompts.Assemble(in.Skeleton()))
	fitted, text := e.fit(in, g, overhead)
	if limit := fitted.Budget.WindowSize - fitted.Budget.Reserved; fitted.Unabsorbed == 0 {
		if excess := est.Estimate(text) - limit; excess > 0 {
			logger.DebugContext(ctx, "prompt over budget, refitting", "excess_tokens", excess)
			fitted, text = e.fit(in, g, overhead+excess)
		}
	}
	if fitted.Unabsorbed > 0 {
		logger.WarnContext(ctx, "context exceeds the budget", "overflow_tokens", fitted.Unabsorbed)
	}

	logger.DebugContext(ctx, "prompt assembled",
		"prompt_chars", len([]rune(text)),
		"goal_chars", len([]rune(req.Goal)),
		"messages", len(fitted.Conversation.Messages),
		"positive_examples", len(fitted.Feedback.Positive),
		"negative_examples", len(fitted.Feedback.Negative),
		"reference_truncated", fitted.Persona.Truncated,
	)

	generate := func(ctx context.Context, p string) (string, error) {
		ctx, span := e.tracer.Start(ctx, "engine.llm")
		defer span.End()
		c, err := e.client.Generate(ctx, p, model, e.cfg.Generation.Timeout)
		if err != nil {
			span.RecordError(err)
			return "", err
		}
		gen.Model = c.Model
		span.SetAttributes(attribute.String("model", c.Model), attribute.Int("attempts", c.Attempts))
		return c.Text, nil
	}

	raw, err := generate(ctx, text)
	if err != nil {
		return nil, err
	}
	out, err := e.validator.Validate(ctx, text, raw, generate)
	if out.Corrected {
		e.metrics.observeCorrection("invalid_output")
	}
	if err != nil {
		if errors.Is(err, suggest.ErrInvalidOutput) {
			e.metrics.observeCorrection("invalid_output")
		}
		return nil, err
	}

	if dups := round.Duplicates(out.Suggestions); len(dups) > 0 {
		e.metrics.observeCorrection("duplicate_output")
		logger.WarnContext(ctx, "suggestions repeat the previous round, re-prompting", "indices", dups)
		out, err = e.validator.Correct(ctx, text, out.Raw, duplicateDefect(dups), generate)
		if err != nil {
			return nil, err
		}
		if len(round.Duplicates(out.Suggestions)) > 0 {
			return nil, regen.ErrDuplicateOutput
		}
	}
	return out.Suggestions, nil
}

func duplicateDefect(indices []int) string {
	nums := make([]string, len(indices))
	for i, idx := range indices {
		nums[i] = strconv.Itoa(idx + 1)
	}
	return "suggestion " + strings.Join(nums, ", ") +
		" repeats a previous suggestion word for word. Every suggestion must be new and materially different."
}

func failureKind(err error) reply.FailureKind {
	switch {
	case errors.Is(err, errGather):
		return reply.FailureContextUnavailable
	case errors.Is(err, suggest.ErrInvalidOutput):
		return reply.FailureInvalidOutput
	case errors.Is(err, regen.ErrDuplicateOutput):
		return reply.FailureDuplicateOutput
	default:
		return provider.Classify(err)
	}
}

// audit persists the generation record. It runs detached from caller
// cancellation so a cancelled request is still recorded.
func (e *Engine) audit(ctx context.Context, logger *slog.Logger, gen reply.Generation) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AuditTimeout)
	defer cancel()
	if err := e.store.SaveGeneration(actx, gen); err != nil {
		logger.ErrorContext(actx, "saving generation record", "generation_id", gen.ID, "status", gen.Status, "error", err)
	}
}

// RecordFeedback attaches a rating or partner reaction to a suggestion.
func (e *Engine) RecordFeedback(ctx context.Context, rec reply.FeedbackRecord) (reply.FeedbackRecord, error) {
	if err := rec.Validate(); err != nil {
		return reply.FeedbackRecord{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return e.store.RecordFeedback(ctx, rec)
}

// Generation returns an audit record by ID.
func (e *Engine) Generation(ctx context.Context, id string) (reply.Generation, error) {
	return e.store.Generation(ctx, id)
}

// Usage reports the user's quota for reply generation.
func (e *Engine) Usage(ctx context.Context, userID string) (usage.Decision, error) {
	return e.limiter.Usage(ctx, userID, reply.UsageReplyGeneration)
}

// Health reports provider health when the generator tracks it.
func (e *Engine) Health() []provider.HealthReport {
	if h, ok := e.client.(interface{ Health() []provider.HealthReport }); ok {
		return h.Health()
	}
	return nil
}
