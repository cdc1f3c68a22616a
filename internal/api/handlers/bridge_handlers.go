package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/relayport/relay_service/internal/domain/entities"
	domainerrors "github.com/relayport/relay_service/internal/domain/errors"
	"github.com/relayport/relay_service/internal/domain/services/orchestrator"
)

const defaultListLimit = 50

// BridgeHandlers exposes the transfer lifecycle over HTTP
type BridgeHandlers struct {
	orchestrator *orchestrator.Service
	logger       *zap.Logger
}

func NewBridgeHandlers(orch *orchestrator.Service, logger *zap.Logger) *BridgeHandlers {
	return &BridgeHandlers{orchestrator: orch, logger: logger}
}

type startBridgeRequest struct {
	FromChain      string          `json:"from_chain" binding:"required"`
	ToChain        string          `json:"to_chain" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	UserAddress    string          `json:"user_address" binding:"required"`
	SourceAddress  string          `json:"source_address"`
	TransferMethod string          `json:"transfer_method"`
}

// StartBridge handles POST /v1/bridge
func (h *BridgeHandlers) StartBridge(c *gin.Context) {
	var req startBridgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": c.GetString("request_id")})
		return
	}

	method := entities.TransferMethod(req.TransferMethod)
	if req.TransferMethod == "" {
		method = entities.TransferMethodStandard
	}

	tx, err := h.orchestrator.Start(c.Request.Context(), entities.BridgeRequest{
		FromChain:      req.FromChain,
		ToChain:        req.ToChain,
		Amount:         req.Amount,
		UserAddress:    req.UserAddress,
		SourceAddress:  req.SourceAddress,
		TransferMethod: method,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// RetryBridge handles POST /v1/bridge/:id/retry
func (h *BridgeHandlers) RetryBridge(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	tx, err := h.orchestrator.Retry(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// CancelBridge handles POST /v1/bridge/:id/cancel
func (h *BridgeHandlers) CancelBridge(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	tx, err := h.orchestrator.Cancel(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// GetBridge handles GET /v1/bridge/:id
func (h *BridgeHandlers) GetBridge(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	tx, err := h.orchestrator.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// ListBridges handles GET /v1/bridge
func (h *BridgeHandlers) ListBridges(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer", "request_id": c.GetString("request_id")})
			return
		}
		limit = parsed
	}

	txs, err := h.orchestrator.ListTransactions(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

func (h *BridgeHandlers) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction id", "request_id": c.GetString("request_id")})
		return uuid.Nil, false
	}
	return id, true
}

func (h *BridgeHandlers) respondError(c *gin.Context, err error) {
	requestID := c.GetString("request_id")
	switch {
	case errors.Is(err, domainerrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "request_id": requestID})
	case errors.Is(err, domainerrors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": requestID})
	case errors.Is(err, domainerrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "request_id": requestID})
	default:
		h.logger.Error("bridge request failed", zap.String("request_id", requestID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "request_id": requestID})
	}
}
