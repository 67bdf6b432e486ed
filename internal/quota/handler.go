package quota

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yodusanwo/ai-trip-planner/internal/sanitize"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/server/respond"
)

// Handler exposes a client's quota standing over HTTP.
type Handler struct {
	Ledger *Ledger
}

// NewHandler constructs a Handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{Ledger: ledger}
}

// RegisterRoutes attaches usage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/usage/:client_id", h.getUsage)
}

func (h *Handler) getUsage(c *gin.Context) {
	clientID := c.Param("client_id")
	if err := sanitize.ClientID(clientID); err != nil {
		var verr *sanitize.ValidationError
		if errors.As(err, &verr) {
			respond.Error(c, http.StatusBadRequest, "validation_error", verr.Message, []*sanitize.ValidationError{verr})
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid client id", nil)
		return
	}
	c.Set("clientId", clientID)

	usage, err := h.Ledger.Usage(c.Request.Context(), clientID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load usage", nil)
		return
	}
	respond.JSON(c, http.StatusOK, usage)
}
