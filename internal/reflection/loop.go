package reflection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/comigor/herald-go/internal/logger"
)

// Loop states
type State string

const (
	StateIdle     State = "Idle"
	StateGenerate State = "Generate"
	StateReflect  State = "Reflect"
	StateDone     State = "Done"   // Terminal: successful completion
	StateFailed   State = "Failed" // Terminal: a collaborator failed
)

// Loop triggers
type Trigger string

const (
	TriggerStart     Trigger = "Start"
	TriggerGenerated Trigger = "Generated"
	TriggerReflected Trigger = "Reflected"
	TriggerFailed    Trigger = "Failed"
)

// DefaultMaxRounds is the number of critique rounds after the first draft.
const DefaultMaxRounds = 3

// DefaultFirstInstruction is prepended to the user's request on the first
// generation.
const DefaultFirstInstruction = "You are a space exploration news reporter and X influencer writing an excellent post about the latest space exploration news. " +
	"Use the search tool to find the latest space exploration news and the time tool to get current date/time for context. " +
	"Generate a post that is engaging, informative, and suitable for a wide audience. " +
	"Always search for current information before generating your post."

// Generator produces the next draft from the conversation so far.
type Generator interface {
	Generate(ctx context.Context, transcript []Message) (Message, error)
}

// Critic produces feedback on a draft.
type Critic interface {
	Critique(ctx context.Context, draft string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, transcript []Message) (Message, error)

func (f GeneratorFunc) Generate(ctx context.Context, transcript []Message) (Message, error) {
	return f(ctx, transcript)
}

// CriticFunc adapts a function to Critic.
type CriticFunc func(ctx context.Context, draft string) (string, error)

func (f CriticFunc) Critique(ctx context.Context, draft string) (string, error) {
	return f(ctx, draft)
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxRounds sets how many critique rounds follow the first draft. Zero
// means a single generation with no critique; negative values are ignored.
func WithMaxRounds(n int) Option {
	return func(l *Loop) {
		if n >= 0 {
			l.maxRounds = n
		}
	}
}

// WithFirstInstruction replaces the instruction wrapped around the prompt on
// the first generation. An empty string keeps the default.
func WithFirstInstruction(s string) Option {
	return func(l *Loop) {
		if s != "" {
			l.firstInstruction = s
		}
	}
}

// Loop alternates a Generator and a Critic until the round limit is reached.
// A Loop holds no per-run state and may be shared between goroutines.
type Loop struct {
	generator        Generator
	critic           Critic
	maxRounds        int
	firstInstruction string
}

// New creates a Loop around the given collaborators.
func New(generator Generator, critic Critic, opts ...Option) (*Loop, error) {
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if critic == nil {
		return nil, errors.New("critic is required")
	}
	l := &Loop{
		generator:        generator,
		critic:           critic,
		maxRounds:        DefaultMaxRounds,
		firstInstruction: DefaultFirstInstruction,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// MaxRounds reports the configured number of critique rounds.
func (l *Loop) MaxRounds() int { return l.maxRounds }

// run is the mutable state of a single Run.
type run struct {
	loop       *Loop
	log        *slog.Logger
	transcript []Message
	rounds     int // completed critique rounds
	err        error
}

func (r *run) finished(_ context.Context, _ ...any) bool {
	return r.rounds >= r.loop.maxRounds
}

func (r *run) shouldReflect(ctx context.Context, args ...any) bool {
	return !r.finished(ctx, args...)
}

// newMachine wires the generate/reflect graph. The continuation test is a pair
// of mutually exclusive guards on TriggerGenerated.
func (l *Loop) newMachine(r *run) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(TriggerStart, StateGenerate)

	fsm.Configure(StateGenerate).
		OnEntry(func(_ context.Context, _ ...any) error {
			r.log.Debug("entering state", "state", StateGenerate, "round", r.rounds)
			return nil
		}).
		Permit(TriggerGenerated, StateReflect, r.shouldReflect).
		Permit(TriggerGenerated, StateDone, r.finished).
		Permit(TriggerFailed, StateFailed)

	fsm.Configure(StateReflect).
		OnEntry(func(_ context.Context, _ ...any) error {
			r.log.Debug("entering state", "state", StateReflect, "round", r.rounds)
			return nil
		}).
		Permit(TriggerReflected, StateGenerate).
		Permit(TriggerFailed, StateFailed)

	fsm.Configure(StateDone).
		OnEntry(func(_ context.Context, _ ...any) error {
			r.log.Info("reflection loop done", "rounds", r.rounds, "messages", len(r.transcript)-1)
			return nil
		})

	fsm.Configure(StateFailed).
		OnEntry(func(_ context.Context, _ ...any) error {
			if r.err == nil {
				r.err = errors.New("reflection loop failed without a specific error")
			}
			r.log.Warn("reflection loop failed", "error", r.err)
			return nil
		})

	return fsm
}

// Graph renders the loop's state machine in DOT format.
func (l *Loop) Graph() string {
	return l.newMachine(&run{loop: l, log: logger.L}).ToGraph()
}

// Run drives the loop for one prompt. It fails with ErrEmptyInput, a
// *GenerationError or a *CritiqueError; on failure no partial result is
// returned.
func (l *Loop) Run(ctx context.Context, prompt string) (Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return Result{}, ErrEmptyInput
	}

	runID := uuid.NewString()
	r := &run{
		loop:       l,
		log:        logger.L.With("run_id", runID),
		transcript: []Message{{Role: RoleUser, Text: prompt}},
	}
	r.log.Info("reflection loop started", "max_rounds", l.maxRounds)

	fsm := l.newMachine(r)
	if err := fsm.FireCtx(ctx, TriggerStart); err != nil {
		return Result{}, fmt.Errorf("reflection loop: %w", err)
	}

	for {
		current, err := fsm.State(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("reflection loop state: %w", err)
		}

		var trigger Trigger
		switch current {
		case StateGenerate:
			trigger = r.generate(ctx)
		case StateReflect:
			trigger = r.reflect(ctx)
		case StateDone:
			return Result{
				RunID:      runID,
				Rounds:     r.rounds,
				FinalText:  FinalText(r.transcript),
				Transcript: Entries(r.transcript),
			}, nil
		case StateFailed:
			return Result{}, r.err
		default:
			return Result{}, fmt.Errorf("reflection loop ended in an unexpected state: %v", current)
		}

		if err := fsm.FireCtx(ctx, trigger); err != nil {
			return Result{}, fmt.Errorf("reflection loop transition from %v: %w", current, err)
		}
	}
}

// generate performs one Generate step and returns the trigger to fire next.
func (r *run) generate(ctx context.Context) Trigger {
	if err := ctx.Err(); err != nil {
		r.err = &GenerationError{Round: r.rounds, Err: err}
		return TriggerFailed
	}

	input := cloneTranscript(r.transcript)
	if len(r.transcript) == 1 {
		input = []Message{{
			Role: RoleUser,
			Text: r.loop.firstInstruction + "\n\nUser request: " + r.transcript[0].Text,
		}}
	}

	msg, err := r.loop.generator.Generate(ctx, input)
	if err != nil {
		r.err = &GenerationError{Round: r.rounds, Err: err}
		return TriggerFailed
	}
	if strings.TrimSpace(msg.Text) == "" {
		r.err = &GenerationError{Round: r.rounds, Err: errEmptyOutput}
		return TriggerFailed
	}

	r.transcript = append(r.transcript, Message{Role: RoleGeneration, Text: msg.Text})
	r.log.Debug("draft generated", "round", r.rounds, "chars", len(msg.Text))
	return TriggerGenerated
}

// reflect performs one Reflect step on the latest draft.
func (r *run) reflect(ctx context.Context) Trigger {
	round := r.rounds + 1
	if err := ctx.Err(); err != nil {
		r.err = &CritiqueError{Round: round, Err: err}
		return TriggerFailed
	}

	latest := r.transcript[len(r.transcript)-1].Text
	critique, err := r.loop.critic.Critique(ctx, "Please critique this post: "+latest)
	if err != nil {
		r.err = &CritiqueError{Round: round, Err: err}
		return TriggerFailed
	}
	if strings.TrimSpace(critique) == "" {
		r.err = &CritiqueError{Round: round, Err: errEmptyOutput}
		return TriggerFailed
	}

	r.transcript = append(r.transcript, Message{Role: RoleFeedback, Text: feedbackPrefix + critique})
	r.rounds = round
	r.log.Debug("critique received", "round", round, "chars", len(critique))
	return TriggerReflected
}
