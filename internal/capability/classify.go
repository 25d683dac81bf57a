package capability

import (
	"strings"
	"unicode"
)

// judgmentVerbs lead tasks that need a human: deciding, reflecting, being
// physically present. Such tasks are never automatable.
var judgmentVerbs = map[string]bool{
	"decide": true, "reflect": true, "consider": true, "think": true, "choose": true,
	"evaluate": true, "assess": true, "weigh": true, "discuss": true, "talk": true,
	"negotiate": true, "visit": true, "attend": true, "meet": true, "go": true,
	"exercise": true, "practice": true, "meditate": true, "learn": true, "study": true,
	"identify": true, "determine": true, "brainstorm": true, "prioritize": true,
	"journal": true, "rest": true, "sleep": true, "walk": true, "buy": true, "pay": true,
}

// fillers are skipped when looking for the leading verb.
var fillers = map[string]bool{
	"please": true, "i": true, "we": true, "you": true, "to": true, "should": true,
	"need": true, "must": true, "will": true, "can": true, "then": true, "and": true,
	"first": true, "next": true, "finally": true, "also": true, "step": true, "let's": true,
}

// Verdict is the automatability decision for one task.
type Verdict struct {
	Automated  bool   `json:"is_automated"`
	Capability string `json:"capability,omitempty"`
	Reason     string `json:"reason"`
}

// Classify decides whether text describes an action some capability in the
// registry can perform. The decision depends only on the wording and the
// registry, never on whether the data needed to run it is available yet.
func (r *Registry) Classify(text string) Verdict {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Verdict{Reason: "empty task"}
	}

	if lead := leadingVerb(tokens); judgmentVerbs[lead] {
		return Verdict{Reason: "requires human judgment or presence: " + lead}
	}

	set := make(map[string]bool, len(tokens)*2)
	for _, t := range tokens {
		set[t] = true
		set[singular(t)] = true
	}

	for _, c := range r.All() {
		if anyIn(c.Verbs, set) && anyIn(c.Objects, set) {
			return Verdict{Automated: true, Capability: c.Name, Reason: "digital action for " + c.Name}
		}
	}
	return Verdict{Reason: "no registered capability performs this action"}
}

// ClassifyTask classifies a named task, joining name and description.
func (r *Registry) ClassifyTask(name, description string) Verdict {
	return r.Classify(strings.TrimSpace(name + ". " + description))
}

// MissingParams returns the required parameters of c not detectable in
// any of the given texts (task wording, history turns, answers).
func MissingParams(c *Capability, texts ...string) []Param {
	corpus := strings.Join(texts, "\n")
	var missing []Param
	for _, p := range c.Params {
		if p.Optional {
			continue
		}
		found := false
		for _, re := range p.Hints {
			if re.MatchString(corpus) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, p)
		}
	}
	return missing
}

func leadingVerb(tokens []string) string {
	for _, t := range tokens {
		if !fillers[t] {
			return t
		}
	}
	return ""
}

func tokenize(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "e-mail", "email")
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func singular(t string) string {
	if len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss") {
		return t[:len(t)-1]
	}
	return t
}

func anyIn(words []string, set map[string]bool) bool {
	for _, w := range words {
		if set[w] {
			return true
		}
	}
	return false
}
