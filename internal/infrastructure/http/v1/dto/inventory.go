package dto

// CreateRecordRequest starts inventory tracking for a product.
type CreateRecordRequest struct {
	ProductID     string  `json:"productId" binding:"required"`
	InitialOnHand int64   `json:"initialOnHand"`
	Location      *string `json:"location"`
	ReorderLevel  int64   `json:"reorderLevel"`
}

// UpdateRecordRequest updates descriptive fields. Quantities are not
// updatable here; they change only through adjust/reserve/release.
type UpdateRecordRequest struct {
	Location     *string `json:"location"`
	ReorderLevel *int64  `json:"reorderLevel"`
}

// AdjustRequest applies a signed stock correction.
type AdjustRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Delta     int64  `json:"delta" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
	Reference string `json:"reference"`
}

// ReserveRequest places a hold against available stock.
type ReserveRequest struct {
	ProductID      string `json:"productId" binding:"required"`
	Quantity       int64  `json:"quantity" binding:"required"`
	ReservationRef string `json:"reservationRef" binding:"required"`
}

// ReleaseRequest resolves a reservation by reference.
type ReleaseRequest struct {
	ProductID      string `json:"productId" binding:"required"`
	ReservationRef string `json:"reservationRef" binding:"required"`
	Mode           string `json:"mode" binding:"required"`
}

// ListRecordsQuery filters record listings.
type ListRecordsQuery struct {
	Active   *bool  `form:"active"`
	LowStock bool   `form:"lowStock"`
	Search   string `form:"search"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// ListMovementsQuery filters ledger queries. From and To accept RFC 3339.
type ListMovementsQuery struct {
	ProductID string `form:"productId"`
	Type      string `form:"type"`
	From      string `form:"from"`
	To        string `form:"to"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}
