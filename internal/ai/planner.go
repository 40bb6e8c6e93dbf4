package ai

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/v0xg/stepdroid/internal/action"
	"github.com/v0xg/stepdroid/internal/device"
	"github.com/v0xg/stepdroid/internal/metrics"
)

// PlannerOptions tunes a Planner
type PlannerOptions struct {
	// RequestsPerSecond caps provider calls; zero or less means unlimited.
	RequestsPerSecond float64
	Burst             int
	Logger            *zap.Logger
}

// Planner asks a provider for the next action of a step, showing it the
// current screen.
type Planner struct {
	provider Provider
	screen   device.Inspector
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewPlanner wires a planner. screen may also implement device.Describer,
// in which case its element summary is included in the prompt.
func NewPlanner(provider Provider, screen device.Inspector, opts PlannerOptions) *Planner {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		provider: provider,
		screen:   screen,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
}

// NextAction returns the provider's raw reply for instruction.
func (p *Planner) NextAction(ctx context.Context, instruction string) (string, error) {
	turn, err := p.observe(ctx, instruction)
	if err != nil {
		return "", err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	reply, err := p.provider.Complete(ctx, turn)
	if err != nil {
		metrics.PlannerRequests.WithLabelValues(p.provider.Name(), "error").Inc()
		p.logger.Warn("planner request failed", zap.String("provider", p.provider.Name()), zap.Error(err))
		return "", err
	}
	metrics.PlannerRequests.WithLabelValues(p.provider.Name(), "ok").Inc()
	p.logger.Debug("planner reply",
		zap.String("provider", p.provider.Name()),
		zap.String("instruction", action.Excerpt(instruction, action.ExcerptLimit)),
		zap.String("reply", action.Excerpt(reply, action.ExcerptLimit)))
	return reply, nil
}

// observe captures the screen for a turn. A missing screenshot or element
// list is not an error; the model is told it has none.
func (p *Planner) observe(ctx context.Context, instruction string) (Turn, error) {
	turn := Turn{Instruction: instruction}

	img, err := p.screen.Screenshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return turn, ctx.Err()
		}
		p.logger.Debug("screenshot unavailable for planner", zap.Error(err))
	}
	if img != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return turn, fmt.Errorf("encode screenshot: %w", err)
		}
		turn.Screenshot = buf.Bytes()
	}

	if d, ok := p.screen.(device.Describer); ok {
		elements, err := d.Describe(ctx)
		if err != nil {
			p.logger.Debug("element summary unavailable", zap.Error(err))
		}
		turn.Elements = elements
	}
	return turn, nil
}
