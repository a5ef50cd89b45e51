package collection

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/hitoshi/feedtree/internal/model"
	"github.com/hitoshi/feedtree/internal/repository"
)

// --- モック ---

// mockStore はインメモリのコレクションストア。
// CollectionRepositoryとCollectionTxの両方を実装する。
type mockStore struct {
	cols        []*model.Collection
	unread      map[string]int
	orderWrites [][]string
	txCount     int
}

func (m *mockStore) FindByID(ctx context.Context, id string) (*model.Collection, error) {
	for _, c := range m.cols {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockStore) FindByOwnerAndURL(ctx context.Context, ownerID, url string) (*model.Collection, error) {
	for _, c := range m.cols {
		if c.OwnerID == ownerID && c.URL == url && url != "" {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockStore) SelectTree(ctx context.Context, ownerID string) ([]repository.CollectionRow, error) {
	var rows []repository.CollectionRow
	for _, c := range m.cols {
		if c.OwnerID == ownerID {
			rows = append(rows, repository.CollectionRow{Collection: *c, UnreadCount: m.unread[c.ID]})
		}
	}
	return rows, nil
}

func (m *mockStore) SelectDueWithURL(ctx context.Context) ([]*model.Collection, error) {
	return nil, nil
}

func (m *mockStore) SelectOwnedWithURL(ctx context.Context, ownerID string) ([]*model.Collection, error) {
	return nil, nil
}

func (m *mockStore) SetDateUpdated(ctx context.Context, id string, t time.Time) error {
	return nil
}

func (m *mockStore) InTx(ctx context.Context, ownerID string, fn func(tx repository.CollectionTx) error) error {
	m.txCount++
	return fn(m)
}

func (m *mockStore) SelectByOwner(ctx context.Context, ownerID string) ([]*model.Collection, error) {
	var cols []*model.Collection
	for _, c := range m.cols {
		if c.OwnerID == ownerID {
			cols = append(cols, c)
		}
	}
	return cols, nil
}

func (m *mockStore) Insert(ctx context.Context, c *model.Collection) error {
	m.cols = append(m.cols, c)
	return nil
}

func (m *mockStore) Update(ctx context.Context, c *model.Collection) error {
	for i, cur := range m.cols {
		if cur.ID == c.ID {
			m.cols[i] = c
		}
	}
	return nil
}

func (m *mockStore) DeleteMany(ctx context.Context, ids []string) ([]string, error) {
	target := make(map[string]bool, len(ids))
	for _, id := range ids {
		target[id] = true
	}
	var deleted []string
	var remaining []*model.Collection
	for _, c := range m.cols {
		if target[c.ID] {
			deleted = append(deleted, c.ID)
		} else {
			remaining = append(remaining, c)
		}
	}
	m.cols = remaining
	return deleted, nil
}

func (m *mockStore) UpdateSiblingOrders(ctx context.Context, orderedIDs []string) error {
	m.orderWrites = append(m.orderWrites, orderedIDs)
	for i, id := range orderedIDs {
		for _, c := range m.cols {
			if c.ID == id {
				c.Order = i
			}
		}
	}
	return nil
}

var _ repository.CollectionRepository = (*mockStore)(nil)
var _ repository.CollectionTx = (*mockStore)(nil)

type mockItemRepo struct {
	markedIDs  []string
	markedWhen time.Time

	readFound bool
	readItem  string
	readWhen  *time.Time
}

func (m *mockItemRepo) FindByCollectionAndURL(ctx context.Context, collectionID, url string) (*model.CollectionItem, error) {
	return nil, nil
}

func (m *mockItemRepo) Create(ctx context.Context, item *model.CollectionItem) error { return nil }

func (m *mockItemRepo) Update(ctx context.Context, item *model.CollectionItem) error { return nil }

func (m *mockItemRepo) SetDateRead(ctx context.Context, collectionID, itemID string, when *time.Time) (bool, error) {
	m.readItem = itemID
	m.readWhen = when
	return m.readFound, nil
}

func (m *mockItemRepo) MarkRead(ctx context.Context, collectionIDs []string, when time.Time) error {
	m.markedIDs = collectionIDs
	m.markedWhen = when
	return nil
}

var _ repository.ItemRepository = (*mockItemRepo)(nil)

// --- ヘルパー ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func col(id, ownerID string, parentID *string, order int) *model.Collection {
	return &model.Collection{
		ID:              id,
		OwnerID:         ownerID,
		Title:           id,
		Slug:            id,
		Icon:            model.DefaultIcon,
		Order:           order,
		ParentID:        parentID,
		RefreshInterval: model.DefaultRefreshInterval,
		Layout:          model.DefaultLayout,
	}
}

func strPtr(s string) *string { return &s }

// assertContiguousOrders は各兄弟グループのorderが0始まりの連番であることを検証する。
func assertContiguousOrders(t *testing.T, cols []*model.Collection) {
	t.Helper()
	groups := make(map[string][]int)
	for _, c := range cols {
		key := ""
		if c.ParentID != nil {
			key = *c.ParentID
		}
		groups[key] = append(groups[key], c.Order)
	}
	for key, orders := range groups {
		sort.Ints(orders)
		for i, o := range orders {
			if o != i {
				t.Errorf("group %q orders = %v, want contiguous from 0", key, orders)
				break
			}
		}
	}
}

// --- テスト ---

// TestCreate_AppendsAfterSiblings は新規作成が兄弟グループの末尾に追加されることをテストする。
func TestCreate_AppendsAfterSiblings(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{
		col("a", "owner-1", nil, 0),
		col("b", "owner-1", nil, 1),
	}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	created, err := svc.Create(context.Background(), "owner-1", model.CollectionSpec{Title: "Tech News"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.Order != 2 {
		t.Errorf("Order = %d, want 2", created.Order)
	}
	if created.Slug != "tech-news" {
		t.Errorf("Slug = %s, want tech-news", created.Slug)
	}
	if created.Icon != model.DefaultIcon || created.Layout != model.DefaultLayout {
		t.Errorf("defaults not applied: icon=%s layout=%s", created.Icon, created.Layout)
	}
	if created.RefreshInterval != model.DefaultRefreshInterval {
		t.Errorf("RefreshInterval = %d, want %d", created.RefreshInterval, model.DefaultRefreshInterval)
	}
	assertContiguousOrders(t, store.cols)
}

// TestCreate_EmptyTitle はタイトル未指定で検証エラーになり何も書き込まれないことをテストする。
func TestCreate_EmptyTitle(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	_, err := svc.Create(context.Background(), "owner-1", model.CollectionSpec{})
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.txCount != 0 {
		t.Error("validation failure should not open a transaction")
	}
	if len(store.cols) != 0 {
		t.Error("no collection should be inserted")
	}
}

// TestCreate_InvalidIcon は未定義アイコンで検証エラーになることをテストする。
func TestCreate_InvalidIcon(t *testing.T) {
	svc := NewService(&mockStore{}, &mockItemRepo{}, testLogger())

	_, err := svc.Create(context.Background(), "owner-1", model.CollectionSpec{Title: "t", Icon: "sparkles"})
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// TestCreate_DuplicateURL は同一オーナーでのフィードURL重複がコンフリクトになることをテストする。
func TestCreate_DuplicateURL(t *testing.T) {
	existing := col("a", "owner-1", nil, 0)
	existing.URL = "https://example.com/feed"
	store := &mockStore{cols: []*model.Collection{existing}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	_, err := svc.Create(context.Background(), "owner-1", model.CollectionSpec{
		Title: "dup",
		URL:   "HTTPS://EXAMPLE.COM/feed/",
	})
	if !model.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

// TestCreate_DifferentOwnerSameURL は別オーナーなら同一URLを登録できることをテストする。
func TestCreate_DifferentOwnerSameURL(t *testing.T) {
	existing := col("a", "owner-2", nil, 0)
	existing.URL = "https://example.com/feed"
	store := &mockStore{cols: []*model.Collection{existing}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	created, err := svc.Create(context.Background(), "owner-1", model.CollectionSpec{
		Title: "mine",
		URL:   "https://example.com/feed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.URL != "https://example.com/feed" {
		t.Errorf("URL = %s", created.URL)
	}
}

// TestCreate_ParentNotFound は存在しない親でNotFoundになることをテストする。
func TestCreate_ParentNotFound(t *testing.T) {
	svc := NewService(&mockStore{}, &mockItemRepo{}, testLogger())

	_, err := svc.Create(context.Background(), "owner-1", model.CollectionSpec{
		Title:    "t",
		ParentID: strPtr("missing"),
	})
	if !model.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

// TestUpdate_TitleRecomputesSlug はタイトル変更でスラグが再計算されることをテストする。
func TestUpdate_TitleRecomputesSlug(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{col("a", "owner-1", nil, 0)}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	updated, err := svc.Update(context.Background(), "owner-1", "a", model.CollectionSpec{Title: "New Title!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Slug != "new-title" {
		t.Errorf("Slug = %s, want new-title", updated.Slug)
	}
}

// TestUpdate_ParentChangeIsMove は親の変更が移動として扱われ末尾に追加されることをテストする。
func TestUpdate_ParentChangeIsMove(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{
		col("a", "owner-1", nil, 0),
		col("b", "owner-1", nil, 1),
		col("b1", "owner-1", strPtr("b"), 0),
	}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	updated, err := svc.Update(context.Background(), "owner-1", "a", model.CollectionSpec{
		Title:    "a",
		ParentID: strPtr("b"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ParentID == nil || *updated.ParentID != "b" {
		t.Errorf("ParentID = %v, want b", updated.ParentID)
	}
	if updated.Order != 1 {
		t.Errorf("Order = %d, want 1 (appended after b1)", updated.Order)
	}
	assertContiguousOrders(t, store.cols)
}

// TestUpdate_MoveIntoDescendant は自分の子孫の配下への変更が拒否されることをテストする。
func TestUpdate_MoveIntoDescendant(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{
		col("a", "owner-1", nil, 0),
		col("a1", "owner-1", strPtr("a"), 0),
	}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	_, err := svc.Update(context.Background(), "owner-1", "a", model.CollectionSpec{
		Title:    "a",
		ParentID: strPtr("a1"),
	})
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// TestMove_ToPosition は指定位置への移動と両グループの再採番をテストする。
func TestMove_ToPosition(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{
		col("a", "owner-1", nil, 0),
		col("b", "owner-1", nil, 1),
		col("a1", "owner-1", strPtr("a"), 0),
		col("a2", "owner-1", strPtr("a"), 1),
		col("b1", "owner-1", strPtr("b"), 0),
		col("b2", "owner-1", strPtr("b"), 1),
	}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	// a2をbの位置1に移動: bの子は [b1, a2, b2] になる
	err := svc.Move(context.Background(), "owner-1", "a2", strPtr("b"), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byID := make(map[string]*model.Collection)
	for _, c := range store.cols {
		byID[c.ID] = c
	}
	if byID["a2"].ParentID == nil || *byID["a2"].ParentID != "b" {
		t.Errorf("a2.ParentID = %v, want b", byID["a2"].ParentID)
	}
	if byID["b1"].Order != 0 || byID["a2"].Order != 1 || byID["b2"].Order != 2 {
		t.Errorf("b group orders: b1=%d a2=%d b2=%d, want 0 1 2",
			byID["b1"].Order, byID["a2"].Order, byID["b2"].Order)
	}
	// 移動元グループは詰め直される
	if byID["a1"].Order != 0 {
		t.Errorf("a1.Order = %d, want 0", byID["a1"].Order)
	}
	assertContiguousOrders(t, store.cols)
}

// TestMove_OrderClamped は範囲外の位置が[0, 兄弟数]に丸められることをテストする。
func TestMove_OrderClamped(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{
		col("a", "owner-1", nil, 0),
		col("b", "owner-1", nil, 1),
		col("b1", "owner-1", strPtr("b"), 0),
	}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	err := svc.Move(context.Background(), "owner-1", "a", strPtr("b"), 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byID := make(map[string]*model.Collection)
	for _, c := range store.cols {
		byID[c.ID] = c
	}
	if byID["a"].Order != 1 {
		t.Errorf("a.Order = %d, want 1 (clamped to sibling count)", byID["a"].Order)
	}
}

// TestMove_ToRoot はルートへの移動をテストする。
func TestMove_ToRoot(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{
		col("a", "owner-1", nil, 0),
		col("a1", "owner-1", strPtr("a"), 0),
		col("a2", "owner-1", strPtr("a"), 1),
	}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	err := svc.Move(context.Background(), "owner-1", "a1", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byID := make(map[string]*model.Collection)
	for _, c := range store.cols {
		byID[c.ID] = c
	}
	if byID["a1"].ParentID != nil {
		t.Errorf("a1.ParentID = %v, want nil", byID["a1"].ParentID)
	}
	if byID["a1"].Order != 0 || byID["a"].Order != 1 {
		t.Errorf("root orders: a1=%d a=%d, want 0 1", byID["a1"].Order, byID["a"].Order)
	}
	if byID["a2"].Order != 0 {
		t.Errorf("a2.Order = %d, want 0 (old group compacted)", byID["a2"].Order)
	}
}

// TestMove_IntoSelf は自分自身の配下への移動が拒否されることをテストする。
func TestMove_IntoSelf(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{col("a", "owner-1", nil, 0)}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	err := svc.Move(context.Background(), "owner-1", "a", strPtr("a"), 0)
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// TestMove_IntoDescendant は自分の子孫の配下への移動が拒否されることをテストする。
func TestMove_IntoDescendant(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{
		col("a", "owner-1", nil, 0),
		col("a1", "owner-1", strPtr("a"), 0),
		col("a1x", "owner-1", strPtr("a1"), 0),
	}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	err := svc.Move(context.Background(), "owner-1", "a", strPtr("a1x"), 0)
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// TestDelete_CascadesAndRenumbers は削除が子孫に波及し残った兄弟が詰め直されることをテストする。
func TestDelete_CascadesAndRenumbers(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{
		col("a", "owner-1", nil, 0),
		col("b", "owner-1", nil, 1),
		col("c", "owner-1", nil, 2),
		col("b1", "owner-1", strPtr("b"), 0),
		col("b1x", "owner-1", strPtr("b1"), 0),
	}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	deleted, err := svc.Delete(context.Background(), "owner-1", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]bool{"b": true, "b1": true, "b1x": true}
	if len(deleted) != len(want) {
		t.Fatalf("deleted = %v, want 3 entries", deleted)
	}
	for _, id := range deleted {
		if !want[id] {
			t.Errorf("unexpected deleted id %s", id)
		}
	}

	byID := make(map[string]*model.Collection)
	for _, c := range store.cols {
		byID[c.ID] = c
	}
	if byID["a"].Order != 0 || byID["c"].Order != 1 {
		t.Errorf("remaining orders: a=%d c=%d, want 0 1", byID["a"].Order, byID["c"].Order)
	}
}

// TestDelete_NotFound は存在しないコレクションの削除がNotFoundになることをテストする。
func TestDelete_NotFound(t *testing.T) {
	svc := NewService(&mockStore{}, &mockItemRepo{}, testLogger())

	_, err := svc.Delete(context.Background(), "owner-1", "missing")
	if !model.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

// TestRecalculateOrder_FixesGaps は欠番のあるグループが連番に修復されることをテストする。
func TestRecalculateOrder_FixesGaps(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{
		col("a", "owner-1", nil, 3),
		col("b", "owner-1", nil, 7),
		col("a1", "owner-1", strPtr("a"), 5),
	}}
	svc := NewService(store, &mockItemRepo{}, testLogger())

	if err := svc.RecalculateOrder(context.Background(), "owner-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertContiguousOrders(t, store.cols)

	byID := make(map[string]*model.Collection)
	for _, c := range store.cols {
		byID[c.ID] = c
	}
	// 相対順序は維持される
	if byID["a"].Order != 0 || byID["b"].Order != 1 {
		t.Errorf("orders: a=%d b=%d, want 0 1", byID["a"].Order, byID["b"].Order)
	}
}

// TestMarkAsRead_Subtree はサブツリー全体のコレクションが既読対象になることをテストする。
func TestMarkAsRead_Subtree(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{
		col("a", "owner-1", nil, 0),
		col("a1", "owner-1", strPtr("a"), 0),
		col("a1x", "owner-1", strPtr("a1"), 0),
		col("b", "owner-1", nil, 1),
	}}
	items := &mockItemRepo{}
	svc := NewService(store, items, testLogger())

	when := time.Now()
	ids, err := svc.MarkAsRead(context.Background(), "owner-1", "a", when)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]bool{"a": true, "a1": true, "a1x": true}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want 3 entries", ids)
	}
	if len(items.markedIDs) != 3 {
		t.Errorf("MarkRead called with %v, want 3 ids", items.markedIDs)
	}
	if !items.markedWhen.Equal(when) {
		t.Errorf("MarkRead when = %v, want %v", items.markedWhen, when)
	}
}

// TestMarkAsRead_NotFound は存在しないコレクションでNotFoundになることをテストする。
func TestMarkAsRead_NotFound(t *testing.T) {
	svc := NewService(&mockStore{}, &mockItemRepo{}, testLogger())

	_, err := svc.MarkAsRead(context.Background(), "owner-1", "missing", time.Now())
	if !model.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

// TestSetItemRead_MarksAndClears は既読設定とwhen=nilでの未読復帰をテストする。
func TestSetItemRead_MarksAndClears(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{col("a", "owner-1", nil, 0)}}
	items := &mockItemRepo{readFound: true}
	svc := NewService(store, items, testLogger())

	when := time.Now()
	if err := svc.SetItemRead(context.Background(), "owner-1", "a", "item-1", &when); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items.readItem != "item-1" || items.readWhen == nil || !items.readWhen.Equal(when) {
		t.Errorf("SetDateRead called with item=%s when=%v", items.readItem, items.readWhen)
	}

	if err := svc.SetItemRead(context.Background(), "owner-1", "a", "item-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items.readWhen != nil {
		t.Error("when=nil should clear date_read")
	}
}

// TestSetItemRead_CollectionNotOwned は他オーナーのコレクションでNotFoundになることをテストする。
func TestSetItemRead_CollectionNotOwned(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{col("a", "owner-2", nil, 0)}}
	items := &mockItemRepo{readFound: true}
	svc := NewService(store, items, testLogger())

	when := time.Now()
	err := svc.SetItemRead(context.Background(), "owner-1", "a", "item-1", &when)
	if !model.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if items.readItem != "" {
		t.Error("SetDateRead should not be called for another owner's collection")
	}
}

// TestSetItemRead_ItemNotFound は存在しない記事でNotFoundになることをテストする。
func TestSetItemRead_ItemNotFound(t *testing.T) {
	store := &mockStore{cols: []*model.Collection{col("a", "owner-1", nil, 0)}}
	svc := NewService(store, &mockItemRepo{readFound: false}, testLogger())

	when := time.Now()
	err := svc.SetItemRead(context.Background(), "owner-1", "a", "missing", &when)
	if !model.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
