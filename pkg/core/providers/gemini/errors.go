package gemini

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

// classify maps a genai failure onto the core error taxonomy. Quota
// exhaustion is recognized by status code, status name or message text,
// since the Live and REST paths report it differently.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}

	if isQuota(err) {
		return core.NewQuotaError(op+": quota exhausted", 0, err)
	}

	if apiErr, ok := asAPIError(err); ok {
		e := core.NewAPIError(op, err)
		e.Code = apiErr.Status
		switch apiErr.Code {
		case http.StatusBadRequest:
			e.Type = core.ErrInvalidRequest
		case http.StatusNotFound:
			e.Type = core.ErrNotFound
		}
		return e
	}
	return core.NewAPIError(op, err)
}

func isQuota(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "exhausted")
}

func asAPIError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}
