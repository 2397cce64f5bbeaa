package harness

import (
	"strings"

	"github.com/panelguard/panelguard/probe/memhost"
)

// evaluateAssertions checks every assertion against the final host and
// engine state, appending failures to the result.
func evaluateAssertions(scenario *Scenario, h *runner, result *Result) {
	for i, a := range scenario.Assertions {
		switch a.Type {
		case AssertElementCount:
			count, err := h.host.ElementCount(a.Container)
			if err != nil {
				result.AddError("assertion %d: count of %q: %v", i, a.Container, err)
				continue
			}
			if count != a.Count {
				result.AddError("assertion %d: container %q has %d elements, want %d",
					i, a.Container, count, a.Count)
			}

		case AssertContentContains:
			if !contentContains(h, a.Container, a.Substring) {
				result.AddError("assertion %d: container %q does not contain %q",
					i, a.Container, a.Substring)
			}

		case AssertBand:
			if got := bandOf(h.engine, a.Container); got != a.Band {
				result.AddError("assertion %d: container %q is in band %q, want %q",
					i, a.Container, got, a.Band)
			}

		case AssertErrorLogged:
			entries := h.engine.ErrorLog(a.Code)
			want := a.Count
			if want == 0 {
				if len(entries) == 0 {
					result.AddError("assertion %d: no %s errors logged", i, a.Code)
				}
			} else if len(entries) != want {
				result.AddError("assertion %d: %d %s errors logged, want %d",
					i, len(entries), a.Code, want)
			}

		case AssertLastOutcome:
			if got := string(lastOutcome(h.engine, a.Container)); got != a.Outcome {
				result.AddError("assertion %d: last outcome for %q is %q, want %q",
					i, a.Container, got, a.Outcome)
			}
		}
	}
}

func contentContains(h *runner, id, substring string) bool {
	for _, el := range h.host.Elements(id) {
		if elementContains(el, substring) {
			return true
		}
	}
	return false
}

func elementContains(el memhost.Element, substring string) bool {
	if strings.Contains(el.Text, substring) {
		return true
	}
	for _, child := range el.Children {
		if elementContains(child, substring) {
			return true
		}
	}
	return false
}
