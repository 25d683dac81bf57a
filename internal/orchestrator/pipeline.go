package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"
	"github.com/TNAHOM/project-x-ai-service/internal/stages"

	"github.com/google/uuid"
)

// PipelineRequest starts the problem-space chain from a conversation.
type PipelineRequest struct {
	History              stages.History `json:"history"`
	UserPrompt           string         `json:"user_prompt,omitempty"`
	Personality          string         `json:"personality,omitempty"`
	UserMemory           any            `json:"user_memory,omitempty"`
	KnowledgeBaseSummary any            `json:"knowledge_base_summary,omitempty"`

	// StrategyIndex picks the strategy whose objectives are planned.
	StrategyIndex int `json:"strategy_index,omitempty"`
}

// PipelineResult carries every stage output the chain produced. On failure
// Error and FailedAgent are set and later outputs are absent.
type PipelineResult struct {
	RunID          string                 `json:"run_id"`
	Classification *stages.ClassifyOutput `json:"classification,omitempty"`
	Strategies     []stages.Strategy      `json:"strategies,omitempty"`
	Strategy       *stages.Strategy       `json:"chosen_strategy,omitempty"`
	Plan           *stages.PlanOutput     `json:"plan,omitempty"`
	Automation     stages.AutomateResult  `json:"automation,omitempty"`
	Error          string                 `json:"error,omitempty"`
	FailedAgent    schema.AgentID         `json:"failed_agent,omitempty"`
}

// Pipeline runs Classify → Domain → Plan → Automate. A failed plan is a
// valid terminal output and stops the chain before Automate. Any stage
// error ends the chain; the result then carries the error message and the
// error is returned as well.
func (o *Orchestrator) Pipeline(ctx context.Context, req PipelineRequest) (*PipelineResult, error) {
	res := &PipelineResult{RunID: uuid.NewString()}
	log := logging.WithRequestID(logging.CategoryOrchestrator, res.RunID)

	history := req.History
	if len(history) == 0 && strings.TrimSpace(req.UserPrompt) != "" {
		history = stages.History{{"role": "user", "content": req.UserPrompt}}
	}
	if req.StrategyIndex < 0 {
		return res, o.fail(res, schema.AgentDomain, fmt.Errorf("%w: strategy_index must not be negative", ErrMalformedRequest))
	}

	cls, err := step(ctx, o, res.RunID, schema.AgentClassifying, func() (*stages.ClassifyOutput, error) {
		return o.stages.Classify(ctx, stages.ClassifyContext{History: history})
	})
	if err != nil {
		return res, o.fail(res, schema.AgentClassifying, err)
	}
	res.Classification = cls
	log.WithField("domain", cls.Domain).Info("classified problem %q", cls.ProblemSpace.Name)

	problem := cls.ProblemSpace
	profile := stages.DomainProfile{DomainType: stages.DomainType(cls.Domain), Personality: req.Personality}

	dom, err := step(ctx, o, res.RunID, schema.AgentDomain, func() (*stages.DomainOutput, error) {
		return o.stages.Domain(ctx, stages.DomainContext{
			ProblemSpace:         &problem,
			DomainProfile:        &profile,
			UserMemory:           req.UserMemory,
			KnowledgeBaseSummary: req.KnowledgeBaseSummary,
		})
	})
	if err != nil {
		return res, o.fail(res, schema.AgentDomain, err)
	}
	res.Strategies = dom.Strategies

	idx := req.StrategyIndex
	if idx >= len(dom.Strategies) {
		log.Warn("strategy_index %d out of range (%d strategies), using the first", idx, len(dom.Strategies))
		idx = 0
	}
	chosen := dom.Strategies[idx]
	res.Strategy = &chosen

	plan, err := step(ctx, o, res.RunID, schema.AgentTasks, func() (*stages.PlanOutput, error) {
		return o.stages.Plan(ctx, stages.PlanContext{
			ProblemSpace:         &problem,
			DomainProfile:        &profile,
			Strategies:           chosen.KeyObjectives,
			KnowledgeBaseSummary: req.KnowledgeBaseSummary,
		})
	})
	if err != nil {
		return res, o.fail(res, schema.AgentTasks, err)
	}
	res.Plan = plan
	if plan.Failed() {
		log.Warn("plan reported failure, skipping automation: %s", plan.ResearchSummary)
		return res, nil
	}

	auto, err := step(ctx, o, res.RunID, schema.AgentAutomate, func() (stages.AutomateResult, error) {
		return o.stages.Automate(ctx, stages.AutomateContext{
			Tasks:      plan.Tasks,
			History:    history,
			UserPrompt: req.UserPrompt,
		})
	})
	if err != nil {
		return res, o.fail(res, schema.AgentAutomate, err)
	}
	res.Automation = auto

	log.Info("pipeline completed with %d tasks", len(plan.Tasks))
	return res, nil
}

func (o *Orchestrator) fail(res *PipelineResult, agent schema.AgentID, err error) error {
	res.Error = err.Error()
	res.FailedAgent = agent
	logging.WithRequestID(logging.CategoryOrchestrator, res.RunID).
		WithField("agent", string(agent)).
		Error("pipeline stopped at %s: %v", agent, err)
	return err
}
