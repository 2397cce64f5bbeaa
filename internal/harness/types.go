package harness

import "fmt"

// TraceEvent records one step's observable outcome. Fields that vary between
// runs (durations, timestamps) are deliberately absent so traces compare
// byte-for-byte against golden files.
type TraceEvent struct {
	Op         string `json:"op"`
	Container  string `json:"container,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Seq        int64  `json:"seq,omitempty"`
	Band       string `json:"band,omitempty"`
	Cleanup    bool   `json:"cleanup,omitempty"`
	Error      string `json:"error,omitempty"`
	Executed   int    `json:"executed,omitempty"`
	Superseded int    `json:"superseded,omitempty"`
	Level      string `json:"level,omitempty"`
}

// ContainerState is a container's final shape after the last step.
type ContainerState struct {
	ElementCount int    `json:"element_count"`
	Band         string `json:"band"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists assertion failures. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final maps container id to its final state.
	Final map[string]ContainerState `json:"final"`
}

// AddError records an assertion failure and fails the result.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}
