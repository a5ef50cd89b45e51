// Package collection はコレクションツリーの変更操作を提供する。
// 作成・更新・移動・削除・採番はオーナー単位で直列化された
// 単一トランザクション内で実行され、兄弟グループの並び順は
// 常に0始まりの連番に保たれる。
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedtree/internal/model"
	"github.com/hitoshi/feedtree/internal/repository"
	"github.com/hitoshi/feedtree/internal/tree"
)

// Service はコレクションの変更操作サービス。
type Service struct {
	collections repository.CollectionRepository
	items       repository.ItemRepository
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(collections repository.CollectionRepository, items repository.ItemRepository, logger *slog.Logger) *Service {
	return &Service{
		collections: collections,
		items:       items,
		logger:      logger,
	}
}

// Create は新規コレクションを作成する。
// スラグはタイトルから導出され、親の兄弟グループの末尾に追加される。
// 検証エラーの場合は何も書き込まない。
func (s *Service) Create(ctx context.Context, ownerID string, spec model.CollectionSpec) (*model.Collection, error) {
	normalized, err := validateSpec(&spec)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	created := &model.Collection{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Title:           spec.Title,
		Slug:            Slugify(spec.Title),
		Icon:            normalized.icon,
		ParentID:        spec.ParentID,
		Description:     spec.Description,
		URL:             normalized.url,
		RefreshInterval: normalized.refreshInterval,
		Layout:          normalized.layout,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.collections.InTx(ctx, ownerID, func(tx repository.CollectionTx) error {
		cols, err := tx.SelectByOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		if spec.ParentID != nil && findCollection(cols, *spec.ParentID) == nil {
			return model.NewCollectionNotFoundError(*spec.ParentID)
		}
		if created.URL != "" {
			if dup := findCollectionByURL(cols, created.URL); dup != nil {
				return model.NewDuplicateFeedURLError(created.URL)
			}
		}

		created.Order = len(groupOf(cols, spec.ParentID))
		if err := tx.Insert(ctx, created); err != nil {
			return err
		}

		return renumberGroups(ctx, tx, append(cols, created))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("コレクションを作成しました", "owner_id", ownerID, "collection_id", created.ID, "title", created.Title)
	return created, nil
}

// Update はコレクションの属性を置き換える。
// タイトル変更時はスラグを再計算する。親の変更は移動として扱われ、
// 移動の不変条件（自身や子孫の配下への移動禁止）に従う。
func (s *Service) Update(ctx context.Context, ownerID, id string, spec model.CollectionSpec) (*model.Collection, error) {
	normalized, err := validateSpec(&spec)
	if err != nil {
		return nil, err
	}

	var updated *model.Collection
	err = s.collections.InTx(ctx, ownerID, func(tx repository.CollectionTx) error {
		cols, err := tx.SelectByOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		cur := findCollection(cols, id)
		if cur == nil {
			return model.NewCollectionNotFoundError(id)
		}

		if normalized.url != "" && normalized.url != cur.URL {
			if dup := findCollectionByURL(cols, normalized.url); dup != nil && dup.ID != id {
				return model.NewDuplicateFeedURLError(normalized.url)
			}
		}

		parentChanged := !sameParent(cur.ParentID, spec.ParentID)
		if parentChanged {
			if err := validateMoveTarget(cols, id, spec.ParentID); err != nil {
				return err
			}
			// 新しい親の兄弟グループの末尾に追加する
			cur.Order = len(groupOf(cols, spec.ParentID))
			cur.ParentID = spec.ParentID
		}

		if spec.Title != cur.Title {
			cur.Slug = Slugify(spec.Title)
		}
		cur.Title = spec.Title
		cur.Icon = normalized.icon
		cur.Description = spec.Description
		cur.URL = normalized.url
		cur.RefreshInterval = normalized.refreshInterval
		cur.Layout = normalized.layout
		cur.UpdatedAt = time.Now()

		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		if err := renumberGroups(ctx, tx, cols); err != nil {
			return err
		}

		updated = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("コレクションを更新しました", "owner_id", ownerID, "collection_id", id)
	return updated, nil
}

// Move はコレクションを指定の親の指定位置に移動する。
// 位置は[0, 兄弟数]に丸められる。移動先・移動元の両グループは
// 0始まりの連番に再採番される。自身または自身の子孫の配下への
// 移動は検証エラーとして拒否する。
func (s *Service) Move(ctx context.Context, ownerID, id string, newParentID *string, newOrder int) error {
	err := s.collections.InTx(ctx, ownerID, func(tx repository.CollectionTx) error {
		cols, err := tx.SelectByOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		cur := findCollection(cols, id)
		if cur == nil {
			return model.NewCollectionNotFoundError(id)
		}
		if err := validateMoveTarget(cols, id, newParentID); err != nil {
			return err
		}

		oldParentID := cur.ParentID

		// 移動先グループの並びを明示的に構築する（移動ノード自身は除外してから挿入）
		siblings := groupOf(cols, newParentID)
		ordered := make([]string, 0, len(siblings)+1)
		for _, c := range siblings {
			if c.ID != id {
				ordered = append(ordered, c.ID)
			}
		}
		if newOrder < 0 {
			newOrder = 0
		}
		if newOrder > len(ordered) {
			newOrder = len(ordered)
		}
		ordered = append(ordered[:newOrder], append([]string{id}, ordered[newOrder:]...)...)

		cur.ParentID = newParentID
		cur.Order = newOrder
		cur.UpdatedAt = time.Now()
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}

		if err := writeGroupOrder(ctx, tx, ordered); err != nil {
			return err
		}

		// 移動元グループを詰め直す
		if !sameParent(oldParentID, newParentID) {
			remaining := make([]string, 0)
			for _, c := range groupOf(cols, oldParentID) {
				if c.ID != id {
					remaining = append(remaining, c.ID)
				}
			}
			if err := writeGroupOrder(ctx, tx, remaining); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("コレクションを移動しました", "owner_id", ownerID, "collection_id", id, "new_order", newOrder)
	return nil
}

// Delete はコレクションとその全子孫を削除し、削除されたIDを返す。
// 所属する記事はストアのCASCADEで削除される。残った兄弟は詰め直される。
func (s *Service) Delete(ctx context.Context, ownerID, id string) ([]string, error) {
	var deleted []string
	err := s.collections.InTx(ctx, ownerID, func(tx repository.CollectionTx) error {
		cols, err := tx.SelectByOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		cur := findCollection(cols, id)
		if cur == nil {
			return model.NewCollectionNotFoundError(id)
		}

		targets := descendantIDs(cols, id)
		deleted, err = tx.DeleteMany(ctx, targets)
		if err != nil {
			return err
		}

		removed := make(map[string]bool, len(deleted))
		for _, d := range deleted {
			removed[d] = true
		}
		remaining := make([]*model.Collection, 0, len(cols)-len(deleted))
		for _, c := range cols {
			if !removed[c.ID] {
				remaining = append(remaining, c)
			}
		}

		return renumberGroups(ctx, tx, remaining)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("コレクションを削除しました", "owner_id", ownerID, "collection_id", id, "deleted_count", len(deleted))
	return deleted, nil
}

// RecalculateOrder はオーナーの全兄弟グループを0始まりの連番に再採番する。
// 並びは(現在のorder, ID)で安定に保たれる。
func (s *Service) RecalculateOrder(ctx context.Context, ownerID string) error {
	return s.collections.InTx(ctx, ownerID, func(tx repository.CollectionTx) error {
		cols, err := tx.SelectByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		return renumberGroups(ctx, tx, cols)
	})
}

// MarkAsRead は指定コレクションのサブツリー全体の未読記事を既読にし、
// 対象となったコレクションIDを返す。
func (s *Service) MarkAsRead(ctx context.Context, ownerID, id string, when time.Time) ([]string, error) {
	rows, err := s.collections.SelectTree(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ツリーの取得に失敗しました: %w", err)
	}

	ids := tree.DescendantIDs(rows, id)
	if ids == nil {
		return nil, model.NewCollectionNotFoundError(id)
	}

	if err := s.items.MarkRead(ctx, ids, when); err != nil {
		return nil, err
	}

	s.logger.Info("サブツリーを既読にしました", "owner_id", ownerID, "collection_id", id, "collection_count", len(ids))
	return ids, nil
}

// SetItemRead は記事の既読状態を設定する。whenがnilの場合は未読に戻す。
// 記事が外部から変更できるのはこのフィールドだけであり、
// それ以外のフィールドはフィードの再取得でのみ変わる。
func (s *Service) SetItemRead(ctx context.Context, ownerID, collectionID, itemID string, when *time.Time) error {
	c, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	if c == nil || c.OwnerID != ownerID {
		return model.NewCollectionNotFoundError(collectionID)
	}

	found, err := s.items.SetDateRead(ctx, collectionID, itemID, when)
	if err != nil {
		return err
	}
	if !found {
		return model.NewItemNotFoundError(itemID)
	}
	return nil
}

// normalizedSpec は検証・デフォルト適用後の導出値。
type normalizedSpec struct {
	icon            model.Icon
	layout          model.Layout
	url             string
	refreshInterval int
}

// validateSpec はCollectionSpecを検証し、デフォルトを適用した導出値を返す。
func validateSpec(spec *model.CollectionSpec) (*normalizedSpec, error) {
	if spec.Title == "" {
		return nil, model.NewEmptyTitleError()
	}

	n := &normalizedSpec{
		icon:            spec.Icon,
		layout:          spec.Layout,
		refreshInterval: spec.RefreshInterval,
	}

	if n.icon == "" {
		n.icon = model.DefaultIcon
	}
	if !model.ValidIcon(n.icon) {
		return nil, model.NewInvalidIconError(string(n.icon))
	}

	if n.layout == "" {
		n.layout = model.DefaultLayout
	}
	if !model.ValidLayout(n.layout) {
		return nil, model.NewInvalidLayoutError(string(n.layout))
	}

	if n.refreshInterval <= 0 {
		n.refreshInterval = model.DefaultRefreshInterval
	}

	if spec.URL != "" {
		normalized, err := NormalizeURL(spec.URL)
		if err != nil {
			return nil, err
		}
		n.url = normalized
	}

	return n, nil
}

// validateMoveTarget は移動先の親を検証する。
// 親が存在しない場合はNotFound、自身または自身の子孫の場合は検証エラーを返す。
func validateMoveTarget(cols []*model.Collection, id string, newParentID *string) error {
	if newParentID == nil {
		return nil
	}
	if findCollection(cols, *newParentID) == nil {
		return model.NewCollectionNotFoundError(*newParentID)
	}
	if *newParentID == id {
		return model.NewInvalidMoveError("自分自身の配下には移動できません")
	}
	for _, d := range descendantIDs(cols, id) {
		if d == *newParentID {
			return model.NewInvalidMoveError("自分の子孫の配下には移動できません")
		}
	}
	return nil
}

// renumberGroups は全兄弟グループを(order, ID)の安定順で0始まりの連番に再採番する。
// 変化のないグループには書き込まない。
func renumberGroups(ctx context.Context, tx repository.CollectionTx, cols []*model.Collection) error {
	groups := make(map[string][]*model.Collection)
	for _, c := range cols {
		key := parentKey(c.ParentID)
		groups[key] = append(groups[key], c)
	}

	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Order != group[j].Order {
				return group[i].Order < group[j].Order
			}
			return group[i].ID < group[j].ID
		})

		changed := false
		ids := make([]string, len(group))
		for i, c := range group {
			ids[i] = c.ID
			if c.Order != i {
				c.Order = i
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := writeGroupOrder(ctx, tx, ids); err != nil {
			return err
		}
	}

	return nil
}

// writeGroupOrder は兄弟グループの並びを1回のバッチ書き込みで反映する。
// 同一IDの重複は採番の整合性違反としてトランザクションを中断する。
func writeGroupOrder(ctx context.Context, tx repository.CollectionTx, orderedIDs []string) error {
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if seen[id] {
			return model.NewOrderIntegrityError("兄弟グループ内にIDの重複があります: " + id)
		}
		seen[id] = true
	}
	if len(orderedIDs) == 0 {
		return nil
	}
	return tx.UpdateSiblingOrders(ctx, orderedIDs)
}

// descendantIDs は指定ノード自身を含む子孫IDを返す。サイクルは訪問済みガードで打ち切る。
func descendantIDs(cols []*model.Collection, rootID string) []string {
	children := make(map[string][]string)
	for _, c := range cols {
		key := parentKey(c.ParentID)
		children[key] = append(children[key], c.ID)
	}

	visited := map[string]bool{rootID: true}
	ids := []string{rootID}
	for i := 0; i < len(ids); i++ {
		for _, childID := range children[ids[i]] {
			if visited[childID] {
				continue
			}
			visited[childID] = true
			ids = append(ids, childID)
		}
	}

	return ids
}

func findCollection(cols []*model.Collection, id string) *model.Collection {
	for _, c := range cols {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func findCollectionByURL(cols []*model.Collection, url string) *model.Collection {
	for _, c := range cols {
		if c.URL != "" && c.URL == url {
			return c
		}
	}
	return nil
}

func groupOf(cols []*model.Collection, parentID *string) []*model.Collection {
	var group []*model.Collection
	for _, c := range cols {
		if sameParent(c.ParentID, parentID) {
			group = append(group, c)
		}
	}
	return group
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func parentKey(parentID *string) string {
	if parentID == nil {
		return ""
	}
	return *parentID
}
