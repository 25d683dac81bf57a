package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeValidate(t *testing.T) {
	tests := []struct {
		name    string
		shape   *Shape
		input   string
		wantErr string
	}{
		{"clear clarify", ClarifyShape(), `{"is_problem_clear":true,"clarifying_question":null,"suggested_answers":[]}`, ""},
		{"missing property", ClarifyShape(), `{"is_problem_clear":true,"suggested_answers":[]}`, "$.clarifying_question: required property missing"},
		{"wrong type", ClarifyShape(), `{"is_problem_clear":"yes","clarifying_question":null,"suggested_answers":[]}`, "expected boolean, got string"},
		{"null not allowed", ClarifyShape(), `{"is_problem_clear":true,"clarifying_question":null,"suggested_answers":null}`, "expected array, got null"},
		{"enum miss", ClassifyShape(nil), `{"domain":"health","justification":"x","problem_space":{"name":"a","description":"b","root_cause":"c"}}`, `"health" is not one of`},
		{"enum hit", ClassifyShape([]string{"health"}), `{"domain":"health","justification":"x","problem_space":{"name":"a","description":"b","root_cause":"c"}}`, ""},
		{"too few objectives", DomainShape(), `{"strategies":[{"strategy_name":"s","approach_summary":"a","key_objectives":["1","2"]}]}`, "at least 7 items"},
		{"no strategies", DomainShape(), `{"strategies":[]}`, "at least 1 items"},
		{"integer order", PlanShape(), `{"overall_status":"completed","research_summary":"","task":[{"order":1.5,"name":"n","description":"d"}]}`, "not an integer"},
		{"failed plan", PlanShape(), `{"overall_status":"failed","research_summary":"no data","task":[]}`, ""},
		{"any accepts objects", ExpandShape(), `{"research_summary":"","sources":[],"risk_flags":[],"recommended_tools":[],"enriched_context":{"k":[1,2]},"execution_suggestions":[{"key":"k","value":3}]}`, ""},
		{"malformed json", ClarifyShape(), `{"is_problem_clear":`, "invalid JSON"},
		{"trailing data", ClarifyShape(), `{"is_problem_clear":true,"clarifying_question":null,"suggested_answers":[]} {}`, "trailing data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.shape.Validate([]byte(tt.input))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestJSONSchema(t *testing.T) {
	s := ClassifyShape([]string{"finance", "personal"}).JSONSchema()

	assert.Equal(t, "object", s["type"])
	props := s["properties"].(map[string]any)
	domain := props["domain"].(map[string]any)
	assert.Equal(t, []string{"finance", "personal"}, domain["enum"])
	assert.ElementsMatch(t, []string{"domain", "justification", "problem_space"}, s["required"])

	q := ClarifyShape().JSONSchema()["properties"].(map[string]any)["clarifying_question"].(map[string]any)
	assert.Equal(t, []string{"string", "null"}, q["type"])

	objs := StrategyShape().JSONSchema()["properties"].(map[string]any)["key_objectives"].(map[string]any)
	assert.Equal(t, 7, objs["minItems"])
	assert.Equal(t, 10, objs["maxItems"])

	assert.Empty(t, Any().JSONSchema())
	assert.Contains(t, ClarifyShape().JSONSchemaText(), `"is_problem_clear"`)
}

func TestObjectPanicsOnUndeclaredRequired(t *testing.T) {
	assert.Panics(t, func() {
		Object(map[string]*Shape{"a": String()}, "b")
	})
}
