package condition

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/stepdroid/internal/device"
	"github.com/v0xg/stepdroid/internal/metrics"
)

// DefaultRetryDelay applies when a condition retries without a delay
const DefaultRetryDelay = time.Second

// Spec is one condition to evaluate
type Spec struct {
	Type     Type
	Target   string
	Operator Operator
	Expected *string
	// Timeout bounds all attempts together; zero means unbounded.
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Outcome is the settled value of a condition
type Outcome struct {
	Result   bool
	Attempts int
	Observed string
	// Err is the last query error, if the final attempt failed to query.
	Err error
}

// AppResolver turns display names into platform identifiers
type AppResolver interface {
	Resolve(name string) (string, bool)
}

// Evaluator runs conditions against a device prober
type Evaluator struct {
	prober device.Prober
	apps   AppResolver
	sleep  func(context.Context, time.Duration) error
	logger *zap.Logger
}

// NewEvaluator wires an Evaluator. apps may be nil.
func NewEvaluator(prober device.Prober, apps AppResolver, sleep func(context.Context, time.Duration) error, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{prober: prober, apps: apps, sleep: sleep, logger: logger}
}

// Evaluate makes 1+Retries attempts, stopping at the first true result.
// A query error counts as false. The only error returned is cancellation
// of ctx itself; an expired Timeout just settles the condition as false.
func (e *Evaluator) Evaluate(ctx context.Context, spec Spec) (Outcome, error) {
	attemptCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}
	delay := spec.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var out Outcome
	attempts := 1 + max(0, spec.Retries)
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := e.sleep(attemptCtx, delay); err != nil {
				break
			}
		}
		if attemptCtx.Err() != nil {
			break
		}
		out.Attempts = i + 1
		ok, observed, err := e.check(attemptCtx, spec)
		out.Observed, out.Err = observed, err
		if err != nil {
			metrics.ConditionAttempts.WithLabelValues(string(spec.Type), "error").Inc()
			e.logger.Debug("condition query failed",
				zap.String("type", string(spec.Type)), zap.Int("attempt", out.Attempts), zap.Error(err))
			continue
		}
		metrics.ConditionAttempts.WithLabelValues(string(spec.Type), strconv.FormatBool(ok)).Inc()
		if ok {
			out.Result = true
			return out, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func (e *Evaluator) check(ctx context.Context, spec Spec) (bool, string, error) {
	switch spec.Type {
	case ElementExists:
		text, found, err := e.prober.ElementText(ctx, spec.Target)
		if err != nil {
			return false, "", err
		}
		if !found || spec.Expected == nil || spec.Operator == OpExists || spec.Operator == OpNotExists {
			return found != spec.Operator.Negated(), text, nil
		}
		ok, err := Compare(spec.Operator, text, *spec.Expected)
		return ok, text, err

	case TextContains:
		text, err := e.prober.VisibleText(ctx)
		if err != nil {
			return false, "", err
		}
		ok, err := Compare(spec.Operator, text, e.expected(spec))
		return ok, text, err

	case AppActive:
		app, err := e.prober.ForegroundApp(ctx)
		if err != nil {
			return false, "", err
		}
		want := e.expected(spec)
		if e.apps != nil {
			if id, ok := e.apps.Resolve(want); ok {
				want = id
			}
		}
		op := spec.Operator
		if op == OpExists {
			op = OpEquals
		} else if op == OpNotExists {
			op = OpNotEquals
		}
		ok, err := Compare(op, app, want)
		return ok, app, err

	case NetworkConnected:
		online, err := e.prober.NetworkConnected(ctx)
		if err != nil {
			return false, "", err
		}
		observed := strconv.FormatBool(online)
		want := true
		if spec.Expected != nil {
			if b, err := strconv.ParseBool(strings.TrimSpace(*spec.Expected)); err == nil {
				want = b
			}
		}
		switch spec.Operator {
		case OpEquals, OpExists, OpContains:
			return online == want, observed, nil
		case OpNotEquals, OpNotExists, OpNotContains:
			return online != want, observed, nil
		}
		ok, err := Compare(spec.Operator, observed, strconv.FormatBool(want))
		return ok, observed, err
	}
	return false, "", fmt.Errorf("unknown condition type: %s", spec.Type)
}

// expected is the explicit expected value, or the target.
func (e *Evaluator) expected(spec Spec) string {
	if spec.Expected != nil {
		return *spec.Expected
	}
	return spec.Target
}
