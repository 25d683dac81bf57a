package stages

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/schema"
)

// ErrSessionUnavailable is returned by Execute when tool execution is
// requested and no tool session is ready.
var ErrSessionUnavailable = errors.New("tool session unavailable")

// ErrInvalidRequest marks a malformed execution request.
var ErrInvalidRequest = errors.New("invalid request")

// ContextIncomplete means required context fields were missing. It is
// raised before any external call.
type ContextIncomplete struct {
	Agent   schema.AgentID
	Missing []string
}

func (e *ContextIncomplete) Error() string {
	return fmt.Sprintf("%s: context incomplete, missing %s", e.Agent, strings.Join(e.Missing, ", "))
}

// StageOutputInvalid means the generated value failed shape validation or a
// stage invariant. It is never passed on.
type StageOutputInvalid struct {
	Agent  schema.AgentID
	Reason string
	Cause  error
}

func (e *StageOutputInvalid) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: invalid output: %s: %v", e.Agent, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: invalid output: %s", e.Agent, e.Reason)
}

func (e *StageOutputInvalid) Unwrap() error { return e.Cause }

// UnsupportedDomainType is returned when a domain profile names a domain
// with no strategy template.
type UnsupportedDomainType struct {
	Value string
}

func (e *UnsupportedDomainType) Error() string {
	return fmt.Sprintf("unsupported domain type %q (want one of %s)", e.Value, strings.Join(domainNames(), ", "))
}

// ExecutionTimeout means tool execution exceeded its bounded wait.
type ExecutionTimeout struct {
	After time.Duration
}

func (e *ExecutionTimeout) Error() string {
	return fmt.Sprintf("execution timed out after %v", e.After)
}

func invalid(agent schema.AgentID, format string, args ...any) error {
	return &StageOutputInvalid{Agent: agent, Reason: fmt.Sprintf(format, args...)}
}
