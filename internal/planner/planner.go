package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dagplan/dagplan/internal/llm"
	"github.com/dagplan/dagplan/internal/store"
	"github.com/dagplan/dagplan/internal/stopcoord"
	"github.com/dagplan/dagplan/internal/tools"
)

const (
	maxAttempts           = 3
	minSystemPromptChars  = 100
	maxResponseChars      = 100_000
	titleMasterMaxTokens  = 100
	defaultTemperature    = 0.7
	defaultMaxTokens      = 10_000
)

// ResultKind tags the three possible outcomes of CreateFromGoal /
// ResumeFromClarification; callers branch exhaustively on it.
type ResultKind string

const (
	ResultSuccess             ResultKind = "success"
	ResultClarificationNeeded ResultKind = "clarification_required"
	ResultValidationError     ResultKind = "validation_error"
)

// PlanningResult is the sum-typed outcome of a planning call: callers
// branch exhaustively on Kind.
type PlanningResult struct {
	Kind  ResultKind
	DAGID string
	Query string // set when Kind == ResultClarificationNeeded
}

// CreateFromGoalOptions carries everything CreateFromGoal needs to turn
// a goal into a persisted DAG.
type CreateFromGoalOptions struct {
	GoalText       string
	AgentName      string
	Provider       string
	Model          string
	Temperature    *float64
	MaxTokens      *int
	Seed           *int64
	CronSchedule   string
	ScheduleActive bool
	Timezone       string
}

// ProviderResolver constructs an llm.Provider for a named provider type,
// decoupling the planner from any concrete provider package (callers
// wire this with llm.NewProvider + llm.DefaultConfig, after blank-
// importing the provider packages they support).
type ProviderResolver func(providerName string) (llm.Provider, error)

// Planner drives the decomposer agent through a bounded retry loop and
// persists every outcome as a DAG row.
type Planner struct {
	store       store.Store
	stops       *stopcoord.Coordinator
	agents      *agentCache
	resolve     ProviderResolver
	clock       func() time.Time
	titleAgent  string // optional agent name used for the TitleMaster side-call
	logger      *slog.Logger
}

// New builds a Planner. titleAgentName may be empty to disable the
// TitleMaster side-call entirely.
func New(s store.Store, stops *stopcoord.Coordinator, resolve ProviderResolver, titleAgentName string, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		store:      s,
		stops:      stops,
		agents:     newAgentCache(),
		resolve:    resolve,
		clock:      time.Now,
		titleAgent: titleAgentName,
		logger:     logger,
	}
}

// resolveAgent looks up the active agent by name through the LRU+TTL
// cache, falling back to the store on a miss.
func (p *Planner) resolveAgent(ctx context.Context, name string) (*store.Agent, error) {
	if cached, ok := p.agents.get(name); ok {
		return &cached, nil
	}
	agent, err := p.store.GetActiveAgentByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAgentNotFound, err)
	}
	p.agents.set(name, *agent)
	return agent, nil
}

// buildSystemPrompt substitutes {{tools}} and {{currentDate}} in the
// agent's prompt template. A too-short result means a misconfigured
// template and is rejected.
func buildSystemPrompt(template string, now time.Time) (string, error) {
	toolDefs := registeredToolDefinitionsJSON()
	replacer := strings.NewReplacer(
		"{{tools}}", toolDefs,
		"{{currentDate}}", now.Format("2006-01-02"),
	)
	expanded := replacer.Replace(template)
	if len(expanded) < minSystemPromptChars {
		return "", ErrPromptTooShort
	}
	return expanded, nil
}

// registeredToolDefinitionsJSON renders every registered tool's
// {name, description, inputSchema} as a JSON array for prompt injection.
func registeredToolDefinitionsJSON() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, name := range tools.Names() {
		tool, ok := tools.Get(name)
		if !ok {
			continue
		}
		if i > 0 {
			sb.WriteString(",")
		}
		schema, err := json.Marshal(tool.InputSchema())
		if err != nil {
			schema = []byte("{}")
		}
		fmt.Fprintf(&sb, "{%q:%q,%q:%q,%q:%s}", "name", tool.Name(), "description", tool.Description(), "inputSchema", schema)
	}
	sb.WriteString("]")
	return sb.String()
}

// CreateFromGoal turns a free-text goal into a validated, persisted plan.
// Every outcome, including terminal validation failures, persists a DAG
// row so the caller always has a stable handle.
func (p *Planner) CreateFromGoal(ctx context.Context, opts CreateFromGoalOptions) (PlanningResult, error) {
	if err := validateCron(opts.CronSchedule); err != nil {
		return PlanningResult{}, err
	}

	agent, err := p.resolveAgent(ctx, opts.AgentName)
	if err != nil {
		return PlanningResult{}, err
	}

	providerName := agent.Provider
	if opts.Provider != "" {
		providerName = opts.Provider
	}
	model := agent.Model
	if opts.Model != "" {
		model = opts.Model
	}
	temperature := defaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := defaultMaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}

	provider, err := p.resolve(providerName)
	if err != nil {
		return PlanningResult{}, fmt.Errorf("planner: resolve provider: %w", err)
	}

	now := p.clock()
	systemPrompt, err := buildSystemPrompt(agent.PromptTemplate, now)
	if err != nil {
		return PlanningResult{}, err
	}

	dag := &store.DAG{
		ID:             newID(),
		Status:         store.DAGStatusValidationError,
		AgentName:      opts.AgentName,
		CronSchedule:   opts.CronSchedule,
		ScheduleActive: opts.ScheduleActive,
		Timezone:       orDefaultTZ(opts.Timezone),
		Params: map[string]any{
			"goalText":    opts.GoalText,
			"provider":    providerName,
			"model":       model,
			"temperature": temperature,
			"maxTokens":   maxTokens,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	userPrompt := opts.GoalText
	var attempts []store.PlanningAttempt
	var lastRawPlan *rawPlan

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if active, _ := p.stops.HasActiveStopRequestForDAG(ctx, dag.ID); active {
			_ = p.stops.MarkStopRequestHandledForDAG(ctx, dag.ID)
			return p.persistValidationError(ctx, dag, attempts)
		}

		req := llm.NewChatRequest(model, []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		}, llm.WithTemperature(temperature), llm.WithMaxTokens(maxTokens))
		if opts.Seed != nil {
			req.Seed = opts.Seed
		}

		resp, err := provider.Chat(ctx, req)
		if err != nil {
			return PlanningResult{}, fmt.Errorf("planner: llm transport: %w", err)
		}
		dag.PlanningTotalUsage.Add(resp.Usage)

		// An oversize response persists a validation_error row only when
		// there is no attempt left; earlier in the loop it surfaces as an
		// error with no DAG row at all.
		if len(resp.Content) > maxResponseChars {
			if attempt == maxAttempts {
				attempts = append(attempts, store.PlanningAttempt{
					Attempt: attempt, Reason: "retry_parse_error", Error: "response exceeds size ceiling", At: p.clock(),
				})
				return p.persistValidationError(ctx, dag, attempts)
			}
			return PlanningResult{}, fmt.Errorf("%w: %d chars", ErrResponseTooLarge, len(resp.Content))
		}

		parsed, err := parseAndValidatePlan(resp.Content)
		if err != nil {
			attempts = append(attempts, store.PlanningAttempt{
				Attempt: attempt, Reason: attemptFailureReason(err), RawContent: resp.Content, Error: err.Error(), At: p.clock(),
			})
			if attempt == maxAttempts {
				return p.persistValidationError(ctx, dag, attempts)
			}
			continue
		}
		lastRawPlan = parsed
		attempts = append(attempts, store.PlanningAttempt{
			Attempt: attempt, Reason: attemptReason(attempt), RawContent: resp.Content, Coverage: parsed.Validation.Coverage, At: p.clock(),
		})

		if parsed.ClarificationNeeded {
			dag.Status = store.DAGStatusPending
			dag.PlanningAttempts = attempts
			dag.Result = &store.Plan{
				OriginalRequest:     opts.GoalText,
				ClarificationNeeded: true,
				ClarificationQuery:  parsed.ClarificationQuery,
			}
			if err := p.store.CreateDAG(ctx, dag); err != nil {
				return PlanningResult{}, fmt.Errorf("planner: persist dag: %w", err)
			}
			p.runTitleMasterAsync(ctx, dag, opts.GoalText)
			return PlanningResult{Kind: ResultClarificationNeeded, DAGID: dag.ID, Query: parsed.ClarificationQuery}, nil
		}

		if parsed.Validation.Coverage == "high" {
			return p.persistSuccess(ctx, dag, parsed, opts, attempts)
		}

		if len(parsed.Validation.Gaps) > 0 {
			userPrompt = opts.GoalText + "\n\nAddress these gaps:\n" + strings.Join(parsed.Validation.Gaps, "\n")
			continue
		}

		// Medium/low coverage, no gaps: persist on the final attempt only,
		// otherwise keep retrying in case a later attempt yields high
		// coverage.
		if attempt == maxAttempts {
			return p.persistSuccess(ctx, dag, parsed, opts, attempts)
		}
	}

	if lastRawPlan == nil {
		return p.persistValidationError(ctx, dag, attempts)
	}
	return p.persistSuccess(ctx, dag, lastRawPlan, opts, attempts)
}

func attemptFailureReason(err error) string {
	if strings.Contains(err.Error(), "schema") {
		return "retry_validation"
	}
	return "retry_parse_error"
}

// attemptReason labels a successfully parsed attempt: the first attempt
// is "initial"; every later one is "retry_gaps", identified simply by
// attempt number, whatever caused the retry (a gaps retry, an earlier
// parse or schema failure, or a medium/low-coverage retry without gaps).
func attemptReason(attempt int) string {
	if attempt == 1 {
		return "initial"
	}
	return "retry_gaps"
}

func (p *Planner) persistValidationError(ctx context.Context, dag *store.DAG, attempts []store.PlanningAttempt) (PlanningResult, error) {
	dag.Status = store.DAGStatusValidationError
	dag.PlanningAttempts = attempts
	dag.Attempts = len(attempts)
	if err := p.store.CreateDAG(ctx, dag); err != nil {
		return PlanningResult{}, fmt.Errorf("planner: persist validation_error dag: %w", err)
	}
	return PlanningResult{Kind: ResultValidationError, DAGID: dag.ID}, nil
}

func (p *Planner) persistSuccess(ctx context.Context, dag *store.DAG, parsed *rawPlan, opts CreateFromGoalOptions, attempts []store.PlanningAttempt) (PlanningResult, error) {
	if active, _ := p.stops.HasActiveStopRequestForDAG(ctx, dag.ID); active {
		_ = p.stops.MarkStopRequestHandledForDAG(ctx, dag.ID)
		return p.persistValidationError(ctx, dag, attempts)
	}

	renumbered, err := renumberTasks(parsed.SubTasks)
	if err != nil {
		attempts = append(attempts, store.PlanningAttempt{Attempt: len(attempts) + 1, Error: err.Error(), At: p.clock()})
		return p.persistValidationError(ctx, dag, attempts)
	}

	dag.Status = store.DAGStatusSuccess
	dag.Attempts = len(attempts)
	dag.PlanningAttempts = attempts
	dag.Result = &store.Plan{
		OriginalRequest:   opts.GoalText,
		PrimaryIntent:     parsed.Intent.Primary,
		SubIntents:        parsed.Intent.SubIntents,
		Entities:          parsed.Entities,
		SynthesisPlan:     parsed.SynthesisPlan,
		Tasks:             renumbered,
		Coverage:          parsed.Validation.Coverage,
		CoverageGaps:      parsed.Validation.Gaps,
		IterationTriggers: parsed.Validation.IterationTriggers,
	}

	if err := p.store.CreateDAG(ctx, dag); err != nil {
		return PlanningResult{}, fmt.Errorf("planner: persist success dag: %w", err)
	}
	p.runTitleMasterAsync(ctx, dag, opts.GoalText)
	return PlanningResult{Kind: ResultSuccess, DAGID: dag.ID}, nil
}

// runTitleMasterAsync runs the optional TitleMaster side-call
// concurrently; failure is logged and non-fatal.
func (p *Planner) runTitleMasterAsync(ctx context.Context, dag *store.DAG, goalText string) {
	if p.titleAgent == "" {
		return
	}
	go func() {
		title, err := p.generateTitle(context.WithoutCancel(ctx), goalText)
		if err != nil {
			p.logger.Warn("title generation failed", "dagId", dag.ID, "error", err)
			return
		}
		dag.DAGTitle = title
		if err := p.store.UpdateDAG(context.WithoutCancel(ctx), dag); err != nil {
			p.logger.Warn("persist title failed", "dagId", dag.ID, "error", err)
		}
	}()
}

func (p *Planner) generateTitle(ctx context.Context, goalText string) (string, error) {
	agent, err := p.resolveAgent(ctx, p.titleAgent)
	if err != nil {
		return "", err
	}
	provider, err := p.resolve(agent.Provider)
	if err != nil {
		return "", err
	}
	req := llm.NewChatRequest(agent.Model, []llm.Message{
		{Role: llm.RoleSystem, Content: "Produce a short, descriptive title (max 12 words) for the following goal. Respond with the title only."},
		{Role: llm.RoleUser, Content: goalText},
	}, llm.WithMaxTokens(titleMasterMaxTokens))
	resp, err := provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// ResumeFromClarification re-plans a pending DAG with the user's answer
// appended to the original goal, then overwrites the original row in
// place and removes the scratch row.
func (p *Planner) ResumeFromClarification(ctx context.Context, dagID, userAnswer string) (PlanningResult, error) {
	dag, err := p.store.GetDAG(ctx, dagID)
	if err != nil {
		return PlanningResult{}, fmt.Errorf("%w: %v", ErrDAGNotFound, err)
	}
	if dag.Status != store.DAGStatusPending {
		return PlanningResult{}, ErrDAGNotPending
	}

	originalGoal := ""
	if dag.Result != nil {
		originalGoal = dag.Result.OriginalRequest
	}
	goalText := originalGoal + "\nUser clarification: " + userAnswer

	result, err := p.CreateFromGoal(ctx, CreateFromGoalOptions{
		GoalText:       goalText,
		AgentName:      dag.AgentName,
		CronSchedule:   dag.CronSchedule,
		ScheduleActive: dag.ScheduleActive,
		Timezone:       dag.Timezone,
	})
	if err != nil {
		return PlanningResult{}, err
	}

	scratch, err := p.store.GetDAG(ctx, result.DAGID)
	if err != nil {
		return PlanningResult{}, fmt.Errorf("planner: reload scratch dag: %w", err)
	}

	scratch.ID = dag.ID
	scratch.CreatedAt = dag.CreatedAt
	if err := p.store.UpdateDAG(ctx, scratch); err != nil {
		return PlanningResult{}, fmt.Errorf("planner: overwrite original dag: %w", err)
	}
	if result.DAGID != dag.ID {
		_ = p.store.DeleteDAG(ctx, result.DAGID)
	}

	result.DAGID = dag.ID
	return result, nil
}

// ScheduledDAG is one row of ListScheduled's result.
type ScheduledDAG struct {
	ID                string
	Title             string
	Cron              string
	HumanReadableCron string
	Active            bool
}

// ListScheduled returns every DAG carrying a cron schedule.
func (p *Planner) ListScheduled(ctx context.Context) ([]ScheduledDAG, error) {
	dags, err := p.store.ListScheduledDAGs(ctx)
	if err != nil {
		return nil, fmt.Errorf("planner: list scheduled: %w", err)
	}
	out := make([]ScheduledDAG, 0, len(dags))
	for _, d := range dags {
		out = append(out, ScheduledDAG{
			ID:                d.ID,
			Title:             d.DAGTitle,
			Cron:              d.CronSchedule,
			HumanReadableCron: humanReadableCron(d.CronSchedule),
			Active:            d.ScheduleActive,
		})
	}
	return out, nil
}

// UpdateFields narrows the mutable subset of a DAG row exposed by Update.
type UpdateFields struct {
	DAGTitle       *string
	CronSchedule   *string
	ScheduleActive *bool
	Timezone       *string
}

// Update applies the given field changes to an existing DAG row.
func (p *Planner) Update(ctx context.Context, dagID string, fields UpdateFields) error {
	dag, err := p.store.GetDAG(ctx, dagID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDAGNotFound, err)
	}
	if fields.CronSchedule != nil {
		if err := validateCron(*fields.CronSchedule); err != nil {
			return err
		}
		dag.CronSchedule = *fields.CronSchedule
	}
	if fields.DAGTitle != nil {
		dag.DAGTitle = *fields.DAGTitle
	}
	if fields.ScheduleActive != nil {
		dag.ScheduleActive = *fields.ScheduleActive
	}
	if fields.Timezone != nil {
		dag.Timezone = *fields.Timezone
	}
	return p.store.UpdateDAG(ctx, dag)
}

// SafeDelete deletes a DAG, blocked if any execution references dagID
// (enforced by the store's explicit referential check).
func (p *Planner) SafeDelete(ctx context.Context, dagID string) error {
	return p.store.DeleteDAG(ctx, dagID)
}

func orDefaultTZ(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}

// newID generates a dag_-prefixed google/uuid id (store/sqlite.go's own
// newID uses the bare uuid, without a prefix).
func newID() string {
	return "dag_" + uuid.NewString()
}
