package tracking_api

import (
	"net/http"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// StatusOf maps a domain error to its HTTP status. Unknown errors are 503.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrAlreadyActive), errors.Is(err, models.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

func (a *TrackingAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusOf(err)
	if code == http.StatusServiceUnavailable {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, code, map[string]string{"error": "temporarily unavailable"})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
