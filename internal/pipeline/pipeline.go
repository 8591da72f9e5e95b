package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/allergenscan/internal/model"
	"github.com/nao1215/allergenscan/internal/robots"
)

// Run is the mutable state shared by the steps of one crawl.
type Run struct {
	*model.CrawlRun

	// Policy is the robots policy of the seed origin, set by the init
	// step. Nil means "allow all".
	Policy *robots.Policy
}

// NewRun creates a Run for seedURL.
func NewRun(seedURL string) *Run {
	return &Run{CrawlRun: model.NewCrawlRun(seedURL)}
}

// Step is one stage of a crawl.
type Step interface {
	// Do executes the step. Per-URL failures are handled inside the step;
	// a returned error stops the pipeline unless it continues on error.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging and run history.
	Name() string
}

// Pipeline executes steps in order against a Run.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps executing later steps after one fails.
// The failure is still recorded on the run.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps in sequence. Cancellation is checked between
// steps; a cancelled run is marked TimedOut.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("crawl cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			run.TimedOut = true
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"seed", run.SeedURL,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"seed", run.SeedURL,
				"error", err,
			)
			run.Fail(err)
			if !p.continueOnError {
				return err
			}
		}

		run.PerformedPhases = append(run.PerformedPhases, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
