package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/herald-go/internal/config"
	"github.com/comigor/herald-go/internal/llm"
	"github.com/comigor/herald-go/internal/logger"
	"github.com/comigor/herald-go/internal/reflection"
	"github.com/comigor/herald-go/pkg/tools"
)

// FSM States
type FSMState string

const (
	StateReadyToCallLLM FSMState = "ReadyToCallLLM"
	StateExecutingTools FSMState = "ExecutingTools"
	StateDone           FSMState = "Done"  // Terminal: successful completion
	StateError          FSMState = "Error" // Terminal: error state
)

// FSM Triggers
type FSMTrigger string

const (
	TriggerLLMRespondedWithContent FSMTrigger = "LLMRespondedWithContent"
	TriggerLLMRequestedTools       FSMTrigger = "LLMRequestedTools"
	TriggerToolsExecutionCompleted FSMTrigger = "ToolsExecutionCompleted"
	TriggerErrorOccurred           FSMTrigger = "ErrorOccurred" // LLM call failure, tool failure, turn limit
)

const defaultMaxToolTurns = 5

var errEmptyContent = errors.New("model returned empty content")

// Generator writes drafts with a chat model that may call the search and
// clock tools before answering. It implements reflection.Generator.
type Generator struct {
	llmClient          llm.Client
	cfg                config.LLMConfig
	tools              *tools.ToolManager
	availableLLMTools  []openai.Tool
	reviseInstruction  string
	tolerateToolErrors bool
	maxToolTurns       int
}

// NewGenerator creates a Generator whose tools are backed by provider.
func NewGenerator(llmClient llm.Client, llmCfg config.LLMConfig, refCfg config.ReflectionConfig, provider tools.Provider) *Generator {
	tm := tools.NewToolManagerFor(provider)

	llmTools := make([]openai.Tool, 0)
	for _, t := range tm.List() {
		llmTools = append(llmTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
		logger.L.Debug("Registered tool for LLM", "tool", t.Name())
	}

	g := &Generator{
		llmClient:          llmClient,
		cfg:                llmCfg,
		tools:              tm,
		availableLLMTools:  llmTools,
		reviseInstruction:  DefaultReviseInstruction,
		tolerateToolErrors: refCfg.TolerateToolErrors,
		maxToolTurns:       defaultMaxToolTurns,
	}
	if refCfg.ReviseInstruction != "" {
		g.reviseInstruction = refCfg.ReviseInstruction
	}
	if refCfg.MaxToolTurns > 0 {
		g.maxToolTurns = refCfg.MaxToolTurns
	}
	return g
}

// fsmContext is the per-call state of the tool-calling loop.
type fsmContext struct {
	messages     []openai.ChatCompletionMessage
	llmResponse  *openai.ChatCompletionResponse
	finalContent string
	lastError    error
	currentTurn  int
}

// Generate implements reflection.Generator.
func (g *Generator) Generate(ctx context.Context, transcript []reflection.Message) (reflection.Message, error) {
	fsmCtx := &fsmContext{messages: g.buildMessages(transcript)}

	fsm := stateless.NewStateMachine(StateReadyToCallLLM)

	fsm.Configure(StateReadyToCallLLM).
		Permit(TriggerLLMRequestedTools, StateExecutingTools).
		Permit(TriggerLLMRespondedWithContent, StateDone).
		Permit(TriggerErrorOccurred, StateError)

	fsm.Configure(StateExecutingTools).
		Permit(TriggerToolsExecutionCompleted, StateReadyToCallLLM).
		Permit(TriggerErrorOccurred, StateError)

	fsm.Configure(StateDone).
		OnEntry(func(_ context.Context, _ ...any) error {
			logger.L.Debug("FSM: Entering StateDone", "turns", fsmCtx.currentTurn)
			return nil
		})

	fsm.Configure(StateError).
		OnEntry(func(_ context.Context, _ ...any) error {
			logger.L.Debug("FSM: Entering StateError", "error", fsmCtx.lastError)
			if fsmCtx.lastError == nil {
				fsmCtx.lastError = errors.New("FSM: reached error state without a specific error")
			}
			return nil
		})

	for {
		currentState, err := fsm.State(ctx)
		if err != nil {
			return reflection.Message{}, fmt.Errorf("FSM internal error: %w", err)
		}

		var trigger FSMTrigger
		switch currentState {
		case StateReadyToCallLLM:
			trigger = g.callLLM(ctx, fsmCtx)
		case StateExecutingTools:
			trigger = g.executeTools(ctx, fsmCtx)
		case StateDone:
			return reflection.Message{Role: reflection.RoleGeneration, Text: fsmCtx.finalContent}, nil
		case StateError:
			return reflection.Message{}, fsmCtx.lastError
		default:
			return reflection.Message{}, fmt.Errorf("FSM ended in an unexpected state: %v", currentState)
		}

		if err := fsm.FireCtx(ctx, trigger); err != nil {
			return reflection.Message{}, fmt.Errorf("FSM transition error: %w", err)
		}
	}
}

// buildMessages maps the transcript onto chat roles: drafts are the
// assistant's turns, the prompt and feedback are the user's.
func (g *Generator) buildMessages(transcript []reflection.Message) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(transcript)+1)
	if len(transcript) > 1 && g.reviseInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: g.reviseInstruction,
		})
	}
	for _, m := range transcript {
		role := openai.ChatMessageRoleUser
		if m.Role == reflection.RoleGeneration {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return messages
}

func (g *Generator) callLLM(ctx context.Context, fsmCtx *fsmContext) FSMTrigger {
	if fsmCtx.currentTurn >= g.maxToolTurns {
		logger.L.Warn("Max interaction turns reached.", "maxTurns", g.maxToolTurns)
		fsmCtx.lastError = fmt.Errorf("exceeded maximum interaction turns (%d)", g.maxToolTurns)
		return TriggerErrorOccurred
	}
	fsmCtx.currentTurn++
	logger.L.Debug("FSM: Entering StateReadyToCallLLM", "turn", fsmCtx.currentTurn)

	llmResp, err := g.llmClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    fsmCtx.messages,
		Tools:       g.availableLLMTools,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		logger.L.Error("LLM call failed", "error", err)
		fsmCtx.lastError = fmt.Errorf("llm call failed: %w", err)
		return TriggerErrorOccurred
	}
	if len(llmResp.Choices) == 0 {
		fsmCtx.lastError = errors.New("llm returned no choices")
		return TriggerErrorOccurred
	}
	fsmCtx.llmResponse = &llmResp

	msg := llmResp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		return TriggerLLMRequestedTools
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		fsmCtx.lastError = errEmptyContent
		return TriggerErrorOccurred
	}
	fsmCtx.finalContent = content
	return TriggerLLMRespondedWithContent
}

func (g *Generator) executeTools(ctx context.Context, fsmCtx *fsmContext) FSMTrigger {
	logger.L.Debug("FSM: Entering StateExecutingTools")

	llmMessage := fsmCtx.llmResponse.Choices[0].Message
	// the assistant's tool call request must precede the results
	fsmCtx.messages = append(fsmCtx.messages, llmMessage)

	for _, toolCall := range llmMessage.ToolCalls {
		output, err := g.runTool(ctx, toolCall)
		if err != nil {
			if !g.tolerateToolErrors {
				fsmCtx.lastError = err
				return TriggerErrorOccurred
			}
			logger.L.Warn("Tool failed; continuing without its output", "tool", toolCall.Function.Name, "error", err)
			output = "Error: " + err.Error()
		}
		fsmCtx.messages = append(fsmCtx.messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    output,
			ToolCallID: toolCall.ID,
			Name:       toolCall.Function.Name,
		})
	}
	return TriggerToolsExecutionCompleted
}

// runTool executes one requested call. Failures are reported as
// *reflection.ToolError.
func (g *Generator) runTool(ctx context.Context, call openai.ToolCall) (string, error) {
	name := call.Function.Name
	tool, err := g.tools.GetTool(name)
	if err != nil {
		return "", &reflection.ToolError{Tool: name, Err: err}
	}

	logger.L.Debug("Calling tool", "tool", name, "arguments", call.Function.Arguments)
	out, err := tool.Run(ctx, call.Function.Arguments)
	if err != nil {
		return "", &reflection.ToolError{Tool: name, Err: err}
	}
	return out, nil
}
