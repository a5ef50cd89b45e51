package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ItemHandler は記事関連のHTTPリクエストを処理する。
type ItemHandler struct {
	collections CollectionService
}

// NewItemHandler はItemHandlerの新しいインスタンスを生成する。
func NewItemHandler(collections CollectionService) *ItemHandler {
	return &ItemHandler{collections: collections}
}

// itemReadRequest はPUT /api/collections/{id}/items/{itemId}/readのリクエストボディ。
type itemReadRequest struct {
	Read bool `json:"read"`
}

// SetRead はPUT /api/collections/{id}/items/{itemId}/readを処理する。
// read=trueで既読、read=falseで未読に戻す。既読日時はサーバー側で決まる。
func (h *ItemHandler) SetRead(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	collectionID := chi.URLParam(r, "id")
	itemID := chi.URLParam(r, "itemId")

	var req itemReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディを解釈できません。")
		return
	}

	var when *time.Time
	if req.Read {
		now := time.Now()
		when = &now
	}

	if err := h.collections.SetItemRead(r.Context(), owner, collectionID, itemID, when); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
