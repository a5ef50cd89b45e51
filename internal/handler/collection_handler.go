package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedtree/internal/middleware"
	"github.com/hitoshi/feedtree/internal/model"
	"github.com/hitoshi/feedtree/internal/refresh"
	"github.com/hitoshi/feedtree/internal/tree"
)

// TreeService はコレクションツリーの読み取りインターフェース。
type TreeService interface {
	ListTree(ctx context.Context, ownerID string) ([]tree.Node, error)
}

// CollectionService はコレクションの変更操作インターフェース。
type CollectionService interface {
	Create(ctx context.Context, ownerID string, spec model.CollectionSpec) (*model.Collection, error)
	Update(ctx context.Context, ownerID, id string, spec model.CollectionSpec) (*model.Collection, error)
	Move(ctx context.Context, ownerID, id string, newParentID *string, newOrder int) error
	Delete(ctx context.Context, ownerID, id string) ([]string, error)
	MarkAsRead(ctx context.Context, ownerID, id string, when time.Time) ([]string, error)
	SetItemRead(ctx context.Context, ownerID, collectionID, itemID string, when *time.Time) error
}

// RefreshService は手動更新のインターフェース。
type RefreshService interface {
	RefreshOne(ctx context.Context, ownerID, id string) (*refresh.Result, error)
	RefreshSubtree(ctx context.Context, ownerID, id string) (*refresh.Result, error)
	RefreshAll(ctx context.Context, ownerID string) (*refresh.Result, error)
}

// ProbeService はフィードURL検証のインターフェース。
type ProbeService interface {
	Probe(ctx context.Context, ownerID, rawURL string) (*model.ProbeResult, error)
}

// CollectionHandler はコレクション関連のHTTPリクエストを処理する。
type CollectionHandler struct {
	tree        TreeService
	collections CollectionService
	refresh     RefreshService
	probe       ProbeService
}

// NewCollectionHandler はCollectionHandlerの新しいインスタンスを生成する。
func NewCollectionHandler(treeSvc TreeService, collections CollectionService, refreshSvc RefreshService, probe ProbeService) *CollectionHandler {
	return &CollectionHandler{
		tree:        treeSvc,
		collections: collections,
		refresh:     refreshSvc,
		probe:       probe,
	}
}

// collectionRequest はコレクション作成・更新のリクエストボディ。
type collectionRequest struct {
	Title           string  `json:"title"`
	Icon            string  `json:"icon"`
	ParentID        *string `json:"parentId"`
	Description     string  `json:"description"`
	URL             string  `json:"url"`
	RefreshInterval int     `json:"refreshInterval"`
	Layout          string  `json:"layout"`
}

func (req *collectionRequest) toSpec() model.CollectionSpec {
	return model.CollectionSpec{
		Title:           req.Title,
		Icon:            model.Icon(req.Icon),
		ParentID:        req.ParentID,
		Description:     req.Description,
		URL:             req.URL,
		RefreshInterval: req.RefreshInterval,
		Layout:          model.Layout(req.Layout),
	}
}

// collectionResponse はコレクション1件のレスポンス。
type collectionResponse struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Slug            string     `json:"slug"`
	Icon            string     `json:"icon"`
	Order           int        `json:"order"`
	ParentID        *string    `json:"parentId"`
	Description     string     `json:"description,omitempty"`
	URL             string     `json:"url,omitempty"`
	DateUpdated     *time.Time `json:"dateUpdated,omitempty"`
	RefreshInterval int        `json:"refreshInterval"`
	Layout          string     `json:"layout"`
}

func toCollectionResponse(c *model.Collection) collectionResponse {
	return collectionResponse{
		ID:              c.ID,
		Title:           c.Title,
		Slug:            c.Slug,
		Icon:            string(c.Icon),
		Order:           c.Order,
		ParentID:        c.ParentID,
		Description:     c.Description,
		URL:             c.URL,
		DateUpdated:     c.DateUpdated,
		RefreshInterval: c.RefreshInterval,
		Layout:          string(c.Layout),
	}
}

// treeNodeResponse はツリー表示用に拡張されたコレクションのレスポンス。
type treeNodeResponse struct {
	collectionResponse
	Ancestors   []string `json:"ancestors"`
	Depth       int      `json:"depth"`
	UnreadCount int      `json:"unreadCount"`
}

// refreshFailureResponse は更新バッチ内の1件の失敗。
type refreshFailureResponse struct {
	CollectionID string `json:"collectionId"`
	URL          string `json:"url"`
	Message      string `json:"message"`
}

// refreshResultResponse は更新バッチの実行結果のレスポンス。
// 一部が失敗した場合successはfalseになるが、成功したコレクションの更新は確定している。
type refreshResultResponse struct {
	Success       bool                     `json:"success"`
	Refreshed     []string                 `json:"refreshed"`
	Skipped       []string                 `json:"skipped,omitempty"`
	Failures      []refreshFailureResponse `json:"failures,omitempty"`
	ItemsInserted int                      `json:"itemsInserted"`
	ItemsUpdated  int                      `json:"itemsUpdated"`
}

func toRefreshResultResponse(result *refresh.Result) refreshResultResponse {
	resp := refreshResultResponse{
		Success:       result.Success(),
		Refreshed:     result.Refreshed,
		Skipped:       result.Skipped,
		ItemsInserted: result.ItemsInserted,
		ItemsUpdated:  result.ItemsUpdated,
	}
	if resp.Refreshed == nil {
		resp.Refreshed = []string{}
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, refreshFailureResponse{
			CollectionID: f.CollectionID,
			URL:          f.URL,
			Message:      f.Err.Error(),
		})
	}
	return resp
}

// ownerID はコンテキストからオーナーIDを取得する。
// オーナーミドルウェアの後段で呼ばれる前提のため、欠落は401で打ち切る。
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := middleware.OwnerFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, apiErrorResponse{
			Code:    "MISSING_OWNER",
			Message: "オーナーIDが指定されていません。",
			Kind:    string(model.KindValidation),
		})
		return "", false
	}
	return id, true
}

// List はGET /api/collectionsを処理する。
// オーナーの全コレクションを幅優先順のツリーとして返す。
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	nodes, err := h.tree.ListTree(r.Context(), owner)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]treeNodeResponse, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		ancestors := n.Ancestors
		if ancestors == nil {
			ancestors = []string{}
		}
		resp = append(resp, treeNodeResponse{
			collectionResponse: toCollectionResponse(&n.Collection),
			Ancestors:          ancestors,
			Depth:              n.Depth,
			UnreadCount:        n.UnreadCount,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Create はPOST /api/collectionsを処理する。
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディを解釈できません。")
		return
	}

	created, err := h.collections.Create(r.Context(), owner, req.toSpec())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCollectionResponse(created))
}

// Update はPUT /api/collections/{id}を処理する。
// 親の変更は移動として扱われ、移動の不変条件に従う。
func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディを解釈できません。")
		return
	}

	updated, err := h.collections.Update(r.Context(), owner, id, req.toSpec())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCollectionResponse(updated))
}

// moveRequest はPOST /api/collections/moveのリクエストボディ。
type moveRequest struct {
	ID          string  `json:"id"`
	NewParentID *string `json:"newParentId"`
	NewOrder    int     `json:"newOrder"`
}

// Move はPOST /api/collections/moveを処理する。
func (h *CollectionHandler) Move(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディを解釈できません。")
		return
	}
	if req.ID == "" {
		writeBadRequest(w, "移動するコレクションのIDが指定されていません。")
		return
	}

	if err := h.collections.Move(r.Context(), owner, req.ID, req.NewParentID, req.NewOrder); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete はDELETE /api/collections/{id}を処理する。
// コレクションと全子孫を削除し、削除されたIDを返す。
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	deleted, err := h.collections.Delete(r.Context(), owner, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"deletedIds": deleted})
}

// MarkAsRead はPOST /api/collections/{id}/markAsReadを処理する。
// サブツリー全体の未読記事を既読にし、対象のコレクションIDを返す。
func (h *CollectionHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	ids, err := h.collections.MarkAsRead(r.Context(), owner, id, time.Now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"collectionIds": ids})
}

// Refresh はPOST /api/collections/{id}/refreshを処理する。
// 指定コレクション単体を更新間隔に関係なく更新する。
func (h *CollectionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	result, err := h.refresh.RefreshOne(r.Context(), owner, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRefreshResultResponse(result))
}

// RefreshSubtree はPOST /api/collections/{id}/refreshSubtreeを処理する。
// 指定コレクションのサブツリーに含まれるURL付きコレクションをすべて更新する。
func (h *CollectionHandler) RefreshSubtree(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	result, err := h.refresh.RefreshSubtree(r.Context(), owner, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRefreshResultResponse(result))
}

// RefreshAll はPOST /api/collections/refreshを処理する。
// オーナーのURL付きコレクションをすべて更新する。
func (h *CollectionHandler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	result, err := h.refresh.RefreshAll(r.Context(), owner)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRefreshResultResponse(result))
}

// verifyURLRequest はPOST /api/collections/verifyUrlのリクエストボディ。
type verifyURLRequest struct {
	URL string `json:"url"`
}

// VerifyURL はPOST /api/collections/verifyUrlを処理する。
// フィードURLを登録せずに検証し、フィードのタイトルと説明を返す。
func (h *CollectionHandler) VerifyURL(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req verifyURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "リクエストボディを解釈できません。")
		return
	}

	result, err := h.probe.Probe(r.Context(), owner, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"title":       result.Title,
		"description": result.Description,
	})
}
