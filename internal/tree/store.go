package tree

import (
	"context"
	"fmt"

	"github.com/hitoshi/feedtree/internal/model"
	"github.com/hitoshi/feedtree/internal/repository"
)

// Store はコレクションツリーの読み取りサービス。
// ストアのフラットな行からフォレストを組み立てて返す。
type Store struct {
	collections repository.CollectionRepository
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(collections repository.CollectionRepository) *Store {
	return &Store{collections: collections}
}

// ListTree はオーナーの全コレクションを幅優先順のフォレストとして返す。
// 各ノードには祖先チェーン・深さ・サブツリーの未読合計が付与される。
func (s *Store) ListTree(ctx context.Context, ownerID string) ([]Node, error) {
	rows, err := s.collections.SelectTree(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ツリーの取得に失敗しました: %w", err)
	}

	return Build(rows), nil
}

// DescendantIDs は指定コレクション自身を含む子孫ID集合を返す。
// サブツリー全体への操作の認可やカスケードに使用する。
// コレクションが存在しないか呼び出し元の所有でない場合はNotFoundを返す。
func (s *Store) DescendantIDs(ctx context.Context, ownerID, rootID string) ([]string, error) {
	root, err := s.collections.FindByID(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	if root == nil || root.OwnerID != ownerID {
		return nil, model.NewCollectionNotFoundError(rootID)
	}

	rows, err := s.collections.SelectTree(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ツリーの取得に失敗しました: %w", err)
	}

	ids := DescendantIDs(rows, rootID)
	if ids == nil {
		return nil, model.NewCollectionNotFoundError(rootID)
	}

	return ids, nil
}
