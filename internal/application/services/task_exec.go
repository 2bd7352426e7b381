package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/core/ports"
)

// executeTask runs h for t and encodes its output. Handler errors and panics
// come back as err; nothing escapes to the submitter.
func executeTask(ctx context.Context, h ports.TaskHandler, t task.Task) (raw json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	if h == nil {
		return nil, fmt.Errorf("no handler registered for task kind %q", t.Kind)
	}
	v, err := h(ctx, t)
	if err != nil {
		return nil, err
	}
	raw, err = json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task result: %w", err)
	}
	return raw, nil
}
