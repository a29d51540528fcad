package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/sirupsen/logrus"
)

// retryAfterSeconds is advertised to callers that hit a busy account.
const retryAfterSeconds = "1"

type errorResponse struct {
	Error  string         `json:"error"`
	Kind   string         `json:"kind,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

var statusByKind = []struct {
	kind   error
	status int
}{
	{models.ErrUnknownAccount, http.StatusNotFound},
	{models.ErrUnknownSecurity, http.StatusNotFound},
	{models.ErrInvalidQuantity, http.StatusBadRequest},
	{models.ErrInvalidAmount, http.StatusBadRequest},
	{models.ErrSameAccount, http.StatusBadRequest},
	{models.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{models.ErrInsufficientPosition, http.StatusUnprocessableEntity},
	{models.ErrBusy, http.StatusConflict},
	{models.ErrReconciliationMismatch, http.StatusInternalServerError},
	{models.ErrAccountHalted, http.StatusInternalServerError},
}

// statusOf maps a service error to an HTTP status and its taxonomy kind.
func statusOf(err error) (int, error) {
	for _, s := range statusByKind {
		if errors.Is(err, s.kind) {
			return s.status, s.kind
		}
	}
	return http.StatusInternalServerError, nil
}

func (h *handler) fail(c *gin.Context, err error) {
	status, kind := statusOf(err)
	resp := errorResponse{Error: err.Error()}
	if kind != nil {
		resp.Kind = kind.Error()
		resp.Fields = models.FieldsOf(err)
	}

	log := h.log.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
		"status": status,
	})
	switch {
	case models.Fatal(err):
		log.Error("ledger invariant violated")
	case status == http.StatusInternalServerError:
		log.Error("request failed")
		resp = errorResponse{Error: "internal error"}
	case models.Retryable(err):
		c.Header("Retry-After", retryAfterSeconds)
		log.Debug("request rejected")
	default:
		log.Debug("request rejected")
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad request"})
}
