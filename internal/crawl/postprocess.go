package crawl

import (
	"fmt"
	"strings"

	"spotcrawl/internal/config"
)

// PostProcessor rewrites a task's rows before coercion.
type PostProcessor func(Dataset) (Dataset, error)

// Registry maps post-process names from task config to processors.
type Registry map[string]PostProcessor

// For returns the processor configured for task, or nil. A name that is
// not registered is an error.
func (r Registry) For(task config.Task) (PostProcessor, error) {
	name := task.PostProcess
	if name == "" && strings.Contains(task.Name, config.ClearingSummaryMarker) {
		name = config.PostProcessClearingSummary
	}
	if name == "" || name == config.PostProcessNone {
		return nil, nil
	}
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("post-processor %q is not registered", name)
	}
	return p, nil
}
