package gemini

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/VarshithPawarHR/resume-match-engine/internal/ai"
)

// classify wraps err into an *ai.Error whose kind drives retries upstream.
func classify(op string, err error) error {
	var typed *ai.Error
	if errors.As(err, &typed) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ai.NewError(kindForAPIError(apiErr), op, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return ai.NewError(kindForAPIError(*apiErrPtr), op, err)
	}

	return ai.NewError(ai.KindOf(err), op, err)
}

func kindForAPIError(e genai.APIError) ai.Kind {
	msg := strings.ToLower(e.Message)
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return ai.KindAuth
	case e.Code == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED":
		return ai.KindProviderRateLimit
	case e.Code == http.StatusRequestTimeout || e.Code >= http.StatusInternalServerError:
		return ai.KindTransientNetwork
	case e.Code == http.StatusNotFound, strings.Contains(msg, "cachedcontent"), strings.Contains(msg, "cached content"):
		return ai.KindContextInvalid
	default:
		return ai.KindProvider
	}
}
