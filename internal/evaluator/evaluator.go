// Package evaluator implements the four continuation strategies described
// in §4.C6: ModelDriven, TaskEvaluation, MultiPerspective, and AgentBased.
// Every strategy that makes a provider call does so through an isolated
// evaluation context — a fresh message list sharing only the model and
// system prompt — so evaluation never pollutes the main conversation.
package evaluator

import (
	"context"
	"strings"

	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/pkg/message"
)

// Result is the outcome of one evaluation: whether to continue, and the
// text to inject into the conversation if so.
type Result struct {
	Continue  bool
	Response  string
	Reasoning string
}

// CycleSummary is what an evaluation strategy is given to judge: the
// response just produced plus enough of the conversation to ground a
// decision. Transcript is the caller's cleaned rendering of the main
// conversation — plain text turns only, no tool_use/tool_result/thinking
// noise — and may be empty.
type CycleSummary struct {
	Prompt       string
	LastResponse string
	CycleCount   int
	Transcript   string
}

// Evaluator decides whether the loop should continue after a cycle.
type Evaluator interface {
	Name() string
	RequiresEvaluation() bool
	Evaluate(ctx context.Context, summary CycleSummary) (Result, error)
}

// --- ModelDriven -----------------------------------------------------------

// ModelDriven makes no extra call and always stops: the model itself drives
// continuation by emitting tool_calls in a subsequent, caller-initiated
// Execute rather than within this one.
type ModelDriven struct{}

func (ModelDriven) Name() string                 { return "model_driven" }
func (ModelDriven) RequiresEvaluation() bool      { return false }
func (ModelDriven) Evaluate(context.Context, CycleSummary) (Result, error) {
	return Result{Continue: false}, nil
}

// --- isolatedCaller ----------------------------------------------------------

// isolatedCaller issues a single non-streaming completion against a fresh
// message list, never touching the main conversation's ConversationManager.
type isolatedCaller struct {
	provider provider.LLMProvider
	model    string
	system   string
}

func (c isolatedCaller) call(ctx context.Context, userText string) (string, error) {
	req := provider.CompletionRequest{
		Model:  c.model,
		System: c.system,
		Messages: []message.Message{
			message.NewTextMessage(message.RoleUser, userText),
		},
		MaxTokens: 1024,
	}
	resp, err := c.provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// --- TaskEvaluation ----------------------------------------------------------

const evaluationPromptTemplate = `Evaluate whether you should continue working on this task or if it's complete.
Respond with JSON in this exact format:
{"decision": "CONTINUE" or "STOP", "response": "Additional content to add if continuing (empty if stopping)"}

Task: %s

Most recent response:
%s
`

// TaskEvaluation sends an isolated evaluation request asking the model to
// judge its own prior response, parsing the tolerant JSON/keyword reply
// described in SPEC_FULL.md §4.C6.
type TaskEvaluation struct {
	Provider      provider.LLMProvider
	Model         string
	System        string
	Prompt        string
	MaxIterations int
}

// NewTaskEvaluation applies the original's default of 5 max iterations
// when unset.
func NewTaskEvaluation(p provider.LLMProvider, model, system, prompt string, maxIterations int) *TaskEvaluation {
	if maxIterations <= 0 {
		maxIterations = 5
	}
	return &TaskEvaluation{Provider: p, Model: model, System: system, Prompt: prompt, MaxIterations: maxIterations}
}

func (t *TaskEvaluation) Name() string            { return "task_evaluation" }
func (t *TaskEvaluation) RequiresEvaluation() bool { return true }

func (t *TaskEvaluation) Evaluate(ctx context.Context, summary CycleSummary) (Result, error) {
	if summary.CycleCount >= t.MaxIterations {
		return Result{Continue: false}, nil
	}
	caller := isolatedCaller{provider: t.Provider, model: t.Model, system: t.System}
	prompt := t.Prompt
	if prompt == "" {
		prompt = summary.Prompt
	}
	body := sprintfEval(prompt, summary.LastResponse)
	if summary.Transcript != "" {
		body = "Conversation so far:\n" + summary.Transcript + "\n" + body
	}
	reply, err := caller.call(ctx, body)
	if err != nil {
		return Result{Continue: false}, err
	}
	return parseEvaluationResponse(reply), nil
}

func sprintfEval(task, response string) string {
	return replaceAll(evaluationPromptTemplate, "%s", task, response)
}

// replaceAll substitutes the two %s placeholders in order without pulling
// in fmt.Sprintf's reflection overhead for a two-argument template.
func replaceAll(template, placeholder string, args ...string) string {
	s := template
	for _, a := range args {
		s = strings.Replace(s, placeholder, a, 1)
	}
	return s
}

// --- AgentBased ---------------------------------------------------------------

// Executor is the minimal surface AgentBased needs from another Agent: run
// it and get back its own textual result. The concrete façade type
// satisfies this.
type Executor interface {
	Execute(ctx context.Context, prompt string) (string, error)
}

// AgentBased delegates the continuation decision to another agent
// instance, reusing that agent's own Execute rather than a raw provider
// call.
type AgentBased struct {
	EvaluatorAgent Executor
	Prompt         string
}

func (a *AgentBased) Name() string            { return "agent_based" }
func (a *AgentBased) RequiresEvaluation() bool { return true }

func (a *AgentBased) Evaluate(ctx context.Context, summary CycleSummary) (Result, error) {
	prompt := replaceAll(evaluationPromptTemplate, "%s", a.Prompt, summary.LastResponse)
	reply, err := a.EvaluatorAgent.Execute(ctx, prompt)
	if err != nil {
		return Result{Continue: false}, err
	}
	return parseEvaluationResponse(reply), nil
}

// --- MultiPerspective -----------------------------------------------------

// PerspectiveConfig is one weighted viewpoint evaluated independently.
type PerspectiveConfig struct {
	Name   string
	Prompt string
	Weight float64
}

// MultiPerspective runs one isolated call per perspective, classifies each
// reply CONTINUE/STOP by case-insensitive substring, and continues if the
// weighted average of "continue" votes exceeds 0.5. No content is injected.
type MultiPerspective struct {
	Provider     provider.LLMProvider
	Model        string
	System       string
	Perspectives []PerspectiveConfig
}

func (m *MultiPerspective) Name() string            { return "multi_perspective" }
func (m *MultiPerspective) RequiresEvaluation() bool { return true }

func (m *MultiPerspective) Evaluate(ctx context.Context, summary CycleSummary) (Result, error) {
	caller := isolatedCaller{provider: m.Provider, model: m.Model, system: m.System}
	var totalWeight, continueWeight float64
	for _, p := range m.Perspectives {
		reply, err := caller.call(ctx, p.Prompt+"\n\nMost recent response:\n"+summary.LastResponse)
		if err != nil {
			continue
		}
		totalWeight += p.Weight
		if classifyContinueSubstring(reply) {
			continueWeight += p.Weight
		}
	}
	if totalWeight == 0 {
		return Result{Continue: false}, nil
	}
	return Result{Continue: (continueWeight / totalWeight) > 0.5}, nil
}

func classifyContinueSubstring(reply string) bool {
	return strings.Contains(strings.ToUpper(reply), "CONTINUE")
}
