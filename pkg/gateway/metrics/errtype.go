package metrics

import (
	"errors"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

func errorType(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return string(ce.Type)
	}
	return "unknown"
}
