package stages

import "strings"

// Message is one conversation turn, usually {"role": ..., "content": ...}.
type Message map[string]string

// History is an ordered conversation.
type History []Message

// Texts returns every message value, for parameter detection.
func (h History) Texts() []string {
	var out []string
	for _, m := range h {
		for _, v := range m {
			out = append(out, v)
		}
	}
	return out
}

// ProblemSpace is the structured description of the user's issue.
// It is created by Classify and passed by value afterwards.
type ProblemSpace struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RootCause   string `json:"root_cause"`
	Status      string `json:"status"`
}

// ProblemStatusActive is the status of a freshly classified problem.
const ProblemStatusActive = "active"

// DomainType selects the strategy template.
type DomainType string

const (
	DomainFinance      DomainType = "finance"
	DomainPersonal     DomainType = "personal"
	DomainProfessional DomainType = "professional"
)

// DomainTypes lists every supported domain.
var DomainTypes = []DomainType{DomainFinance, DomainPersonal, DomainProfessional}

// templateID returns the strategy template for the domain.
func (d DomainType) templateID(base string) (string, error) {
	switch DomainType(strings.ToLower(strings.TrimSpace(string(d)))) {
	case DomainFinance:
		return base + ".finance", nil
	case DomainPersonal:
		return base + ".personal", nil
	case DomainProfessional:
		return base + ".professional", nil
	default:
		return "", &UnsupportedDomainType{Value: string(d)}
	}
}

func domainNames() []string {
	out := make([]string, len(DomainTypes))
	for i, d := range DomainTypes {
		out[i] = string(d)
	}
	return out
}

// DomainProfile is the domain and the user's style within it.
type DomainProfile struct {
	DomainType  DomainType `json:"domain_type"`
	Personality string     `json:"personality"`
}

// Strategy is a high-level plan with 7-10 objectives.
type Strategy struct {
	Name            string   `json:"strategy_name"`
	ApproachSummary string   `json:"approach_summary"`
	KeyObjectives   []string `json:"key_objectives"`
}

// Task is one ordered plan item.
type Task struct {
	Order       int    `json:"order"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Automated   bool   `json:"is_automated"`
	Status      string `json:"status"`
}

// TaskStatusPending is the status of a newly planned task.
const TaskStatusPending = "pending"

// Text is the task wording used for classification.
func (t Task) Text() string {
	return strings.TrimSpace(t.Name + ". " + t.Description)
}
