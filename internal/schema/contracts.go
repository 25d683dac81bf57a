package schema

// Output shapes for each agent, version 1. Shapes describe what the model
// must return; stage-level invariants (catch-all answers, order density,
// verdict overrides) are enforced by the stages on top of these.

// Limits shared between shapes and stage invariants.
const (
	MinStrategies       = 1
	MaxStrategies       = 10
	MinObjectives       = 7
	MaxObjectives       = 10
	MinSuggestedAnswers = 4
	MaxVentingQuestions = 3
)

// DefaultDomains is used when a classify request names no allowed domains.
var DefaultDomains = []string{"finance", "personal", "professional"}

// ProblemSpaceShape is the structured problem description.
func ProblemSpaceShape() *Shape {
	return Object(map[string]*Shape{
		"name":        NonEmptyString().Describe("3-5 word title of the problem"),
		"description": NonEmptyString().Describe("one paragraph: goal, action, expected vs actual"),
		"root_cause":  String().Describe("one sentence naming the core cause"),
		"status":      String(),
	}, "name", "description", "root_cause")
}

// ClarifyShape is the clarifying agent output.
func ClarifyShape() *Shape {
	return Object(map[string]*Shape{
		"is_problem_clear":    Boolean(),
		"clarifying_question": String().OrNull(),
		"suggested_answers":   Array(String()),
	}, "is_problem_clear", "clarifying_question", "suggested_answers")
}

// ClassifyShape constrains domain to the allowed set sent to the model.
func ClassifyShape(allowed []string) *Shape {
	if len(allowed) == 0 {
		allowed = DefaultDomains
	}
	return Object(map[string]*Shape{
		"domain":        Enum(allowed...),
		"justification": String(),
		"problem_space": ProblemSpaceShape(),
	}, "domain", "justification", "problem_space")
}

// StrategyShape is one strategy with its objectives.
func StrategyShape() *Shape {
	return Object(map[string]*Shape{
		"strategy_name":    NonEmptyString(),
		"approach_summary": String(),
		"key_objectives":   Array(NonEmptyString()).Between(MinObjectives, MaxObjectives),
	}, "strategy_name", "approach_summary", "key_objectives")
}

// DomainShape is the strategize agent output.
func DomainShape() *Shape {
	return Object(map[string]*Shape{
		"strategies": Array(StrategyShape()).Between(MinStrategies, MaxStrategies),
	}, "strategies")
}

// TaskShape is one plan item. order and is_automated are optional on the
// wire; the plan stage fills them.
func TaskShape() *Shape {
	return Object(map[string]*Shape{
		"order":        Integer(),
		"name":         NonEmptyString(),
		"description":  String(),
		"is_automated": Boolean(),
		"status":       String(),
	}, "name", "description")
}

// PlanShape is the tasks agent output.
func PlanShape() *Shape {
	return Object(map[string]*Shape{
		"overall_status":   Enum("completed", "failed"),
		"research_summary": String(),
		"task":             Array(TaskShape()),
	}, "overall_status", "research_summary", "task")
}

// AutomateShape is the automation agent output. The two arms are folded
// into one object on the wire and split by the stage.
func AutomateShape() *Shape {
	return Object(map[string]*Shape{
		"need_more_context":   Boolean(),
		"clarifying_question": String().OrNull(),
		"automation_result":   String().OrNull(),
		"task_result":         Any(),
	}, "need_more_context")
}

// ClarifyParamsShape is the clarify-automation agent output.
func ClarifyParamsShape() *Shape {
	return Object(map[string]*Shape{
		"need_more_context":     Boolean(),
		"clarification_summary": String(),
		"clarifying_questions":  Array(String()),
	}, "need_more_context", "clarification_summary", "clarifying_questions")
}

// ExpandShape is the expander agent output.
func ExpandShape() *Shape {
	return Object(map[string]*Shape{
		"research_summary":  String(),
		"sources":           Array(String()),
		"risk_flags":        Array(String()),
		"recommended_tools": Array(String()),
		"enriched_context":  Any(),
		"execution_suggestions": Array(Object(map[string]*Shape{
			"key":       NonEmptyString(),
			"value":     Any(),
			"rationale": String(),
		}, "key", "value")),
	}, "research_summary", "sources", "risk_flags", "recommended_tools", "execution_suggestions")
}

// VentingShape is the problem-space detector output.
func VentingShape() *Shape {
	return Object(map[string]*Shape{
		"is_problem_space":     Boolean(),
		"clarifying_questions": Array(String()).Between(0, MaxVentingQuestions),
		"problem_space":        ProblemSpaceShape().OrNull(),
	}, "is_problem_space", "clarifying_questions")
}

// DefaultContracts returns version 1 contracts for every agent.
func DefaultContracts(allowedDomains []string) []Contract {
	return []Contract{
		{
			Agent: AgentClarifying, TemplateID: "clarify", Version: 1,
			Required: []string{"history", "user_prompt"},
			Output:   ClarifyShape(),
		},
		{
			Agent: AgentClassifying, TemplateID: "classify", Version: 1,
			Required: []string{"history"},
			Optional: []string{"allowed_domains"},
			Output:   ClassifyShape(allowedDomains),
		},
		{
			Agent: AgentDomain, TemplateID: "domain", Version: 1,
			Required: []string{"problem_space", "domain_profile"},
			Optional: []string{"user_memory", "knowledge_base_summary", "prior_objectives"},
			Output:   DomainShape(),
		},
		{
			Agent: AgentTasks, TemplateID: "tasks", Version: 1,
			Required: []string{"problem_space", "domain_profile", "strategies"},
			Optional: []string{"prior_tasks", "knowledge_base_summary"},
			Output:   PlanShape(),
		},
		{
			Agent: AgentAutomate, TemplateID: "automate", Version: 1,
			Required: []string{"tasks"},
			Optional: []string{"capabilities", "data", "history", "user_prompt", "knowledge_base"},
			Output:   AutomateShape(),
		},
		{
			Agent: AgentClarifyAutomation, TemplateID: "clarify_automation", Version: 1,
			Required: []string{"task"},
			Optional: []string{"capabilities", "history", "user_prompt", "knowledge_base_summary"},
			Output:   ClarifyParamsShape(),
		},
		{
			Agent: AgentExpander, TemplateID: "expand", Version: 1,
			Required: []string{"chosen_task"},
			Optional: []string{"clarification_answers", "user_prompt", "user_memory", "search_snippets"},
			Output:   ExpandShape(),
		},
		{
			Agent: AgentExecute, TemplateID: "execute", Version: 1,
			Optional: []string{"intent", "request", "instruction", "enable_tools"},
		},
		{
			Agent: AgentVenting, TemplateID: "venting", Version: 1,
			Required: []string{"history"},
			Optional: []string{"user_prompt", "user_memory"},
			Output:   VentingShape(),
		},
	}
}

// Default builds a registry holding DefaultContracts.
func Default(allowedDomains []string) *Registry {
	r := NewRegistry()
	for _, c := range DefaultContracts(allowedDomains) {
		r.MustRegister(c)
	}
	return r
}
