package tools

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"lingoloop/internal/agent"
	"lingoloop/internal/autotune"
	"lingoloop/internal/guard"
	"lingoloop/internal/llm"
	"lingoloop/internal/logging"
	"lingoloop/internal/memory"
	"lingoloop/internal/policy"
	"lingoloop/internal/stream"
)

// Call is one incoming tool call from the model (or a system-forced one).
type Call struct {
	// Name is the dotted tool identifier.
	Name string

	// Arguments is the raw payload: a JSON object, JSON text, or a
	// decoded map. Malformed input degrades to an empty object.
	Arguments any

	// CallID correlates this call in the trace.
	CallID string

	// Source is "model" or "system".
	Source string

	// RequestID correlates the surrounding model turn.
	RequestID string
}

// Classifier is the page-analysis collaborator.
type Classifier interface {
	ClassifyBlocksForJob(ctx context.Context, j *agent.Job) error
	GetCategorySummaryForJob(ctx context.Context, j *agent.Job) (map[string]int, error)
}

// CategorySelector is the category-selection collaborator (user surface).
type CategorySelector interface {
	SetSelectedCategories(ctx context.Context, j *agent.Job, categories []string) error
	SetAgentCategoryRecommendations(ctx context.Context, j *agent.Job, categories []string, rationale string) error
}

// Deps are the constructor-injected collaborators. Any may be nil;
// handlers needing an absent one refuse with the matching UNAVAILABLE code.
type Deps struct {
	// Persist is the durable write-back, fire-and-forget.
	Persist func(j *agent.Job, reason string)

	// ApplyDelta writes partial or final translated text to the host
	// surface. The dispatcher updates job state regardless.
	ApplyDelta func(j *agent.Job, blockID, text string, isFinal bool)

	// JobContext returns the cancellation context for a job's in-flight
	// model calls. Nil (or a nil return) means context.Background.
	JobContext func(jobID string) context.Context

	LLM        llm.Client
	Memory     *memory.Bridge
	Classifier Classifier
	Selector   CategorySelector

	// Clock overrides time, for tests.
	Clock func() time.Time

	// DebounceOptions tune the per-job delta debouncers, for tests.
	DebounceOptions []stream.Option
}

// PolicyConfig is the resolver's deployment-level input, swappable at
// runtime by the config watcher.
type PolicyConfig struct {
	ProfileDefaults map[string]policy.Mode
	UserOverrides   map[string]policy.Mode
	Capabilities    map[string]bool
	AllowedModels   []string
}

// Dispatcher is the single entry point for tool calls. It owns policy
// resolution, the error boundary, tracing, and persistence; handlers only
// implement their own semantics.
type Dispatcher struct {
	deps Deps

	mu        sync.RWMutex
	polCfg    PolicyConfig
	handlers  map[string]handlerFunc
	debounced map[string]*stream.Debouncer // keyed by job ID
}

// handlerFunc is the registered handler signature. Returned fields merge
// into the {ok:true} result object.
type handlerFunc func(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error)

// Runtime is everything one handler invocation sees.
type Runtime struct {
	Job   *agent.Job
	Stage agent.Stage
	Deps  *Deps
	Call  Call

	dispatcher *Dispatcher
}

// NewDispatcher builds a dispatcher and registers every handler.
// It panics if the handler table and catalog disagree: that is a
// programming error, caught at startup rather than mid-job.
func NewDispatcher(deps Deps, polCfg PolicyConfig) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	d := &Dispatcher{
		deps:      deps,
		polCfg:    polCfg,
		handlers:  make(map[string]handlerFunc),
		debounced: make(map[string]*stream.Debouncer),
	}
	d.registerHandlers()

	for _, t := range catalog {
		if _, ok := d.handlers[t.Name]; !ok {
			panic("tool without handler: " + t.Name)
		}
	}
	for name := range d.handlers {
		if _, ok := lookupTool(name); !ok {
			panic("handler without catalog entry: " + name)
		}
	}
	return d
}

// SetPolicyConfig swaps the deployment policy input (config hot reload).
func (d *Dispatcher) SetPolicyConfig(polCfg PolicyConfig) {
	d.mu.Lock()
	d.polCfg = polCfg
	d.mu.Unlock()
}

// Execute runs one tool call against a job and returns the JSON result
// the model sees. It never panics and never returns an error: every
// outcome, including handler faults, becomes a structured result, is
// traced, and triggers a persistence write.
func (d *Dispatcher) Execute(ctx context.Context, call Call, j *agent.Job) string {
	start := d.deps.Clock()
	args := parseArgs(call.Arguments)
	stage := agent.ResolveStage(j)
	d.resolvePolicy(j, stage)

	result, status, errCode := d.dispatch(ctx, call, j, stage, args)

	j.Agent.AddTrace(agent.TraceEntry{
		Ts:         start,
		CallID:     call.CallID,
		Tool:       call.Name,
		Source:     call.Source,
		Status:     status,
		ErrorCode:  errCode,
		DurationMs: d.deps.Clock().Sub(start).Milliseconds(),
	})

	if j.Status.Terminal() {
		d.evictDebouncer(j.ID)
	}

	if d.deps.Persist != nil {
		d.deps.Persist(j, "tool:"+call.Name)
	}
	return result
}

// evictDebouncer drops a finished job's debouncer so a later rehydration of
// the same job ID builds a fresh one instead of writing through the old
// job object.
func (d *Dispatcher) evictDebouncer(jobID string) {
	d.mu.Lock()
	db, ok := d.debounced[jobID]
	if ok {
		delete(d.debounced, jobID)
	}
	d.mu.Unlock()
	if ok {
		db.CancelAll()
	}
}

// dispatch is the guarded middle of Execute: catalog lookup, policy gate,
// handler invocation, error conversion.
func (d *Dispatcher) dispatch(ctx context.Context, call Call, j *agent.Job, stage agent.Stage, args json.RawMessage) (result string, status agent.TraceStatus, errCode string) {
	log := logging.For(logging.CategoryDispatch)

	fail := func(e *ToolError, st agent.TraceStatus) (string, agent.TraceStatus, string) {
		log.Infow("tool refused", "tool", call.Name, "code", e.Code, "callId", call.CallID)
		return errJSON(e), st, e.Code
	}

	if replacement, ok := deprecatedAliases[call.Name]; ok {
		return fail(Errf(CodeToolDeprecated, "tool %q was renamed", call.Name).
			WithExtra("replacement", replacement), agent.TraceSkip)
	}

	tool, ok := lookupTool(call.Name)
	if !ok {
		return fail(Errf(CodeUnknownTool, "no such tool %q", call.Name), agent.TraceError)
	}
	if !tool.inStage(stage) {
		return fail(Errf(CodeToolDisabled, "tool %q is not offered in the %s stage", call.Name, stage), agent.TraceSkip)
	}
	if mode := j.Agent.ToolPolicyEffective[call.Name]; !mode.Enabled() {
		return fail(Errf(CodeToolDisabled, "tool %q is disabled: %s",
			call.Name, j.Agent.ToolPolicyReasons[call.Name]), agent.TraceSkip)
	}

	rt := &Runtime{Job: j, Stage: stage, Deps: &d.deps, Call: call, dispatcher: d}

	fields, err := d.invoke(ctx, call.Name, rt, args)
	if err != nil {
		te := asToolError(err)
		log.Warnw("tool failed", "tool", call.Name, "code", te.Code, "err", te.Message)
		return errJSON(te), agent.TraceError, te.Code
	}

	log.Debugw("tool ok", "tool", call.Name, "callId", call.CallID)
	return okJSON(fields), agent.TraceOK, ""
}

// invoke runs the handler under panic recovery. This is the single error
// boundary: handlers never translate their own faults.
func (d *Dispatcher) invoke(ctx context.Context, name string, rt *Runtime, args json.RawMessage) (fields map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.For(logging.CategoryDispatch).Errorw("handler panic",
				"tool", name, "panic", r)
			fields, err = nil, Errf(CodeInternal, "handler panic: %v", r)
		}
	}()
	return d.handlers[name](ctx, rt, args)
}

// resolvePolicy recomputes the effective tool policy for the stage and
// caches it onto agent state, making repeated reads within this dispatch
// cycle deterministic.
func (d *Dispatcher) resolvePolicy(j *agent.Job, stage agent.Stage) {
	d.mu.RLock()
	cfg := d.polCfg
	d.mu.RUnlock()

	dec := policy.Resolve(policy.Inputs{
		Stage:              string(stage),
		Tools:              ToolsForStage(stage),
		ProfileDefaults:    cfg.ProfileDefaults,
		UserOverrides:      cfg.UserOverrides,
		AgentOverrides:     j.Agent.AgentToolOverrides,
		Capabilities:       cfg.Capabilities,
		RequiredCapability: RequiredCapabilities(),
	})
	j.Agent.ToolPolicyEffective = dec.Modes
	j.Agent.ToolPolicyReasons = dec.Reasons
	j.Agent.ToolPolicyRuntimeHints = dec.RuntimeHints
}

// asToolError converts any handler error into a wire error.
func asToolError(err error) *ToolError {
	switch e := err.(type) {
	case *ToolError:
		return e
	case *autotune.NegotiationError:
		return &ToolError{Code: e.Code, Message: e.Message}
	}
	return Errf(CodeInternal, "%v", err)
}

// negotiator builds the settings negotiator for the current dispatch,
// wired to the cached policy so tool-compatibility checks use the same
// resolution path as the dispatcher itself.
func (rt *Runtime) negotiator() *autotune.Negotiator {
	rt.dispatcher.mu.RLock()
	models := rt.dispatcher.polCfg.AllowedModels
	rt.dispatcher.mu.RUnlock()

	n := autotune.NewNegotiator(rt.Job.RunSettings, models, func(tool string) bool {
		return rt.Job.Agent.ToolPolicyEffective[tool].Enabled()
	})
	n.SetClock(rt.Deps.Clock)
	return n
}

// debouncer returns (building on first use) the per-job delta debouncer.
// Its apply path writes through to the host surface and records the
// applied text on the block; the final flush is what sets TranslatedText.
func (rt *Runtime) debouncer() *stream.Debouncer {
	d := rt.dispatcher
	d.mu.Lock()
	defer d.mu.Unlock()

	if db, ok := d.debounced[rt.Job.ID]; ok {
		return db
	}
	j := rt.Job
	apply := func(blockID, text string, isFinal bool) {
		j.LastAppliedAt = d.deps.Clock()
		if isFinal {
			if b := j.Block(blockID); b != nil {
				b.TranslatedText = text
			}
		}
		if d.deps.ApplyDelta != nil {
			d.deps.ApplyDelta(j, blockID, text, isFinal)
		}
	}
	db := stream.NewDebouncer(apply, d.deps.DebounceOptions...)
	d.debounced[j.ID] = db
	return db
}

// mergeSnapshot builds the auditor's view of the job.
func progressSnapshot(j *agent.Job, stage agent.Stage) guard.Snapshot {
	return guard.Snapshot{
		Completed:       j.CompletedBlocks,
		Failed:          len(j.FailedBlockIDs),
		PendingBlockIDs: j.PendingBlockIDs,
		LastAppliedAt:   j.LastAppliedAt,
		Stage:           string(stage),
		ProofDone:       len(j.Proofreading.DoneBlockIDs),
		ProofFailed:     len(j.Proofreading.FailedBlockIDs),
		RepeatedBatches: j.Agent.RepeatedBatches,
	}
}

// jobContext picks the cancellation context for model calls.
func (rt *Runtime) jobContext(fallback context.Context) context.Context {
	if rt.Deps.JobContext != nil {
		if ctx := rt.Deps.JobContext(rt.Job.ID); ctx != nil {
			return ctx
		}
	}
	if fallback != nil {
		return fallback
	}
	return context.Background()
}
