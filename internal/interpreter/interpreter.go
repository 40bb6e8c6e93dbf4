// Package interpreter drives a workflow against one device session, one
// step at a time.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/stepdroid/internal/action"
	"github.com/v0xg/stepdroid/internal/condition"
	"github.com/v0xg/stepdroid/internal/device"
	"github.com/v0xg/stepdroid/internal/executor"
	"github.com/v0xg/stepdroid/internal/metrics"
	"github.com/v0xg/stepdroid/internal/workflow"
)

// DefaultMaxSteps bounds the steps visited in one run. Templates loop back
// on themselves, so a run without the bound could spin forever.
const DefaultMaxSteps = 200

// Planner turns a step instruction into one raw model reply.
type Planner interface {
	NextAction(ctx context.Context, instruction string) (string, error)
}

// Dispatcher executes one descriptor; *executor.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, desc *action.Descriptor, width, height int) *executor.ExecuteResult
}

// Options configures an Interpreter
type Options struct {
	MaxSteps   int
	Planner    Planner
	Dispatcher Dispatcher
	Apps       executor.AppResolver
	Logger     *zap.Logger
	Sleep      executor.Sleeper
}

// Interpreter runs workflows on a single device surface
type Interpreter struct {
	surface    device.Surface
	dispatcher Dispatcher
	evaluator  *condition.Evaluator
	opts       Options
}

// New wires an Interpreter. A nil Dispatcher gets the default executor with
// the same logger, sleeper and app table.
func New(surface device.Surface, opts Options) *Interpreter {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sleep == nil {
		opts.Sleep = executor.Sleep
	}
	if opts.Apps == nil {
		opts.Apps = executor.DefaultApps
	}
	if opts.Dispatcher == nil {
		eo := executor.DefaultOptions()
		eo.Apps = opts.Apps
		eo.Logger = opts.Logger
		eo.Sleep = opts.Sleep
		opts.Dispatcher = executor.New(surface, eo)
	}
	return &Interpreter{
		surface:    surface,
		dispatcher: opts.Dispatcher,
		evaluator:  condition.NewEvaluator(surface, opts.Apps, opts.Sleep, opts.Logger),
		opts:       opts,
	}
}

// StepRecord is what happened on one visited step
type StepRecord struct {
	StepID  string `json:"stepId"`
	Name    string `json:"name,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	// Action is the canonical descriptor that was dispatched.
	Action    string                  `json:"action,omitempty"`
	Result    *executor.ExecuteResult `json:"result,omitempty"`
	Condition *bool                   `json:"condition,omitempty"`
	Attempts  int                     `json:"attempts,omitempty"`
	Outcome   bool                    `json:"outcome"`
	Next      string                  `json:"next,omitempty"`
}

// Report summarises one run
type Report struct {
	SessionID  string       `json:"sessionId"`
	WorkflowID string       `json:"workflowId"`
	State      State        `json:"state"`
	Steps      []StepRecord `json:"steps"`
	Error      string       `json:"error,omitempty"`
	Started    time.Time    `json:"started"`
	Finished   time.Time    `json:"finished"`
}

// Visited returns the ids of the steps that ran, skipped ones excluded.
func (r *Report) Visited() []string {
	var ids []string
	for _, s := range r.Steps {
		if !s.Skipped {
			ids = append(ids, s.StepID)
		}
	}
	return ids
}

var errStepLimit = errors.New("step limit exceeded")

// Run validates wf and executes it on session. The returned error is
// non-nil only when the run could not start: a *workflow.ConfigError or
// ErrSessionBusy. Step failures, stops and the step limit are reported
// through Report.State.
func (in *Interpreter) Run(ctx context.Context, session *Session, wf *workflow.Workflow) (*Report, error) {
	graph, err := workflow.NewGraph(wf)
	if err != nil {
		in.opts.Logger.Error("workflow rejected", zap.Error(err))
		return nil, err
	}
	ctx, err = session.begin(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{SessionID: session.ID, WorkflowID: wf.ID, Started: time.Now()}
	log := in.opts.Logger.With(zap.String("session", session.ID), zap.String("workflow", wf.ID))
	log.Info("run started", zap.Int("steps", graph.Len()))

	err = in.walk(ctx, session, graph, report, log)
	switch {
	case err == nil:
		report.State = StateCompleted
	case ctx.Err() != nil:
		report.State = StateStopped
	default:
		report.State = StateFailed
		report.Error = err.Error()
	}
	report.Finished = session.end(report.State)
	metrics.RunsFinished.WithLabelValues(string(report.State)).Inc()
	log.Info("run finished", zap.String("state", string(report.State)), zap.Int("visited", len(report.Steps)))
	return report, nil
}

func (in *Interpreter) walk(ctx context.Context, session *Session, graph *workflow.Graph, report *Report, log *zap.Logger) error {
	step := graph.First()
	for visits := 0; step != nil; visits++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if visits >= in.opts.MaxSteps {
			return fmt.Errorf("%w: visited %d steps, now at %s", errStepLimit, visits, step.ID)
		}
		session.enter(step.ID)

		rec, err := in.runStep(ctx, session, step, log)
		if err != nil {
			report.Steps = append(report.Steps, rec)
			return err
		}
		next := successor(graph, step, rec.Outcome)
		if next != nil {
			rec.Next = next.ID
		}
		report.Steps = append(report.Steps, rec)
		step = next
	}
	return nil
}

// successor applies the branch rules: optional steps always fall through;
// otherwise onSuccess/onFailure win over list order.
func successor(graph *workflow.Graph, step *workflow.Step, outcome bool) *workflow.Step {
	if step.Optional || !step.IsEnabled() {
		return graph.Next(step.ID)
	}
	target := step.OnFailure
	if outcome {
		target = step.OnSuccess
	}
	if target == "" {
		return graph.Next(step.ID)
	}
	s, _ := graph.Step(target)
	return s
}

// runStep returns an error only when ctx was cancelled.
func (in *Interpreter) runStep(ctx context.Context, session *Session, step *workflow.Step, log *zap.Logger) (StepRecord, error) {
	rec := StepRecord{StepID: step.ID, Name: step.Name}
	log = log.With(zap.String("step", step.ID))

	if !step.IsEnabled() {
		rec.Skipped = true
		metrics.StepsExecuted.WithLabelValues("skipped").Inc()
		log.Debug("step disabled, skipping")
		return rec, nil
	}

	result := in.perform(ctx, step, &rec, log)
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	rec.Result = result
	session.record(result)

	if err := in.opts.Sleep(ctx, step.Parameters.Wait()); err != nil {
		return rec, err
	}

	rec.Outcome = result.Success
	if step.Condition != nil && result.Success {
		out, err := in.evaluator.Evaluate(ctx, step.Condition.Spec())
		if err != nil {
			return rec, err
		}
		rec.Condition = &out.Result
		rec.Attempts = out.Attempts
		rec.Outcome = out.Result
		log.Debug("condition evaluated",
			zap.String("type", step.Condition.Type),
			zap.Bool("result", out.Result),
			zap.Int("attempts", out.Attempts),
			zap.String("observed", action.Excerpt(out.Observed, action.ExcerptLimit)))
	}

	label := "failure"
	if rec.Outcome {
		label = "success"
	}
	metrics.StepsExecuted.WithLabelValues(label).Inc()
	log.Info("step done", zap.Bool("outcome", rec.Outcome), zap.String("message", action.Excerpt(result.Message, action.ExcerptLimit)))
	return rec, nil
}

// perform resolves the step's instruction to a descriptor and dispatches
// it. An instruction that already parses as an action is used as-is;
// otherwise the planner is asked for one.
func (in *Interpreter) perform(ctx context.Context, step *workflow.Step, rec *StepRecord, log *zap.Logger) *executor.ExecuteResult {
	desc, err := in.resolve(ctx, step.Instruction(), log)
	if err != nil {
		log.Warn("no action for step", zap.Error(err))
		return &executor.ExecuteResult{Success: false, Message: err.Error()}
	}
	rec.Action = desc.String()

	width, height, err := in.surface.Size(ctx)
	if err != nil {
		log.Warn("surface size unavailable", zap.Error(err))
		return &executor.ExecuteResult{Success: false, Message: fmt.Sprintf("surface size: %v", err)}
	}
	return in.dispatcher.Dispatch(ctx, desc, width, height)
}

func (in *Interpreter) resolve(ctx context.Context, instruction string, log *zap.Logger) (*action.Descriptor, error) {
	desc, stage, err := action.Recover(instruction)
	if err == nil {
		metrics.ParsesTotal.WithLabelValues(stage.String()).Inc()
		return desc, nil
	}
	if in.opts.Planner == nil {
		metrics.ParsesTotal.WithLabelValues(action.StageNone.String()).Inc()
		return nil, err
	}

	reply, err := in.opts.Planner.NextAction(ctx, instruction)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	desc, stage, err = action.Recover(reply)
	metrics.ParsesTotal.WithLabelValues(stage.String()).Inc()
	if err != nil {
		return nil, err
	}
	log.Debug("planner reply parsed", zap.Stringer("stage", stage), zap.String("action", desc.String()))
	return desc, nil
}
