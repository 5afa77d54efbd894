package handlers

import (
	"net/http"

	"github.com/eldtechnologies/tarschat/internal/models"
)

// ReceiptListResponse wraps a conversation's read watermarks.
type ReceiptListResponse struct {
	Receipts []models.ReadReceipt `json:"receipts"`
}

// MarkRead advances the caller's read watermark to now.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	rr, err := h.svc.MarkRead(r.Context(), me, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, rr)
}

// ListReadReceipts returns every participant's watermark.
func (h *Handler) ListReadReceipts(w http.ResponseWriter, r *http.Request) {
	me, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	receipts, err := h.svc.ListReadReceipts(r.Context(), me, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if receipts == nil {
		receipts = []models.ReadReceipt{}
	}
	h.JSON(w, http.StatusOK, ReceiptListResponse{Receipts: receipts})
}
