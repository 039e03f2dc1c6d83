package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// InventoryHandler serves the stock ledger endpoints.
type InventoryHandler struct {
	*BaseHandler
	service *inventory.Service
}

// NewInventoryHandler creates the inventory handler.
func NewInventoryHandler(base *BaseHandler, service *inventory.Service) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, service: service}
}

// Create handles POST /api/inventory.
func (h *InventoryHandler) Create(c *gin.Context) {
	var req dto.CreateRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.service.CreateRecord(c.Request.Context(), inventory.CreateRecordInput{
		ProductID:     req.ProductID,
		InitialOnHand: req.InitialOnHand,
		Location:      req.Location,
		ReorderLevel:  req.ReorderLevel,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// List handles GET /api/inventory.
func (h *InventoryHandler) List(c *gin.Context) {
	var q dto.ListRecordsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	list, err := h.service.ListRecords(c.Request.Context(), inventory.RecordFilter{
		Active:   q.Active,
		LowStock: q.LowStock,
		Search:   q.Search,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, list)
}

// Get handles GET /api/inventory/product/:productId.
func (h *InventoryHandler) Get(c *gin.Context) {
	rec, err := h.service.GetRecord(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Update handles PUT /api/inventory/product/:productId.
func (h *InventoryHandler) Update(c *gin.Context) {
	var req dto.UpdateRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rec, err := h.service.UpdateMetadata(c.Request.Context(), c.Param("productId"), inventory.UpdateMetadataInput{
		Location:     req.Location,
		ReorderLevel: req.ReorderLevel,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Deactivate handles DELETE /api/inventory/product/:productId.
func (h *InventoryHandler) Deactivate(c *gin.Context) {
	rec, err := h.service.Deactivate(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Adjust handles POST /api/inventory/adjust.
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.service.Adjust(c.Request.Context(), inventory.AdjustInput{
		ProductID: req.ProductID,
		Delta:     req.Delta,
		Reason:    req.Reason,
		Reference: req.Reference,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Reserve handles POST /api/inventory/reserve.
func (h *InventoryHandler) Reserve(c *gin.Context) {
	var req dto.ReserveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.service.Reserve(c.Request.Context(), inventory.ReserveInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Reference: req.ReservationRef,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Release handles POST /api/inventory/release.
func (h *InventoryHandler) Release(c *gin.Context) {
	var req dto.ReleaseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.service.Release(c.Request.Context(), inventory.ReleaseInput{
		ProductID: req.ProductID,
		Reference: req.ReservationRef,
		Mode:      inventory.ReleaseMode(req.Mode),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Movements handles GET /api/inventory/movements.
func (h *InventoryHandler) Movements(c *gin.Context) {
	var q dto.ListMovementsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter := inventory.MovementFilter{
		ProductID: q.ProductID,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.Type != "" {
		mvType := inventory.MovementType(q.Type)
		filter.Type = &mvType
	}
	var ok bool
	if filter.From, ok = parseTimeParam(c, h, "from", q.From); !ok {
		return
	}
	if filter.To, ok = parseTimeParam(c, h, "to", q.To); !ok {
		return
	}

	movements, err := h.service.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": movements})
}

// Reconcile handles GET /api/inventory/product/:productId/reconcile.
func (h *InventoryHandler) Reconcile(c *gin.Context) {
	report, err := h.service.Reconcile(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

func parseTimeParam(c *gin.Context, h *InventoryHandler, name, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		h.Error(c, apperror.NewValidation(name+" must be RFC 3339").WithDetail("value", value))
		return nil, false
	}
	return &t, true
}
