// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/feedtree/internal/model"
)

// CollectionRow はコレクションと自身の未読数を結合した読み取り結果。
// 未読数はこのコレクション直下の記事のみを数える（子孫の集計はツリー層が行う）。
type CollectionRow struct {
	model.Collection
	UnreadCount int
}

// CollectionRepository はコレクションデータの永続化インターフェース。
type CollectionRepository interface {
	// FindByID は指定IDのコレクションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Collection, error)

	// FindByOwnerAndURL はオーナーと正規化済みURLでコレクションを検索する。
	// フィードURL重複チェックに使用する。見つからない場合はnilを返す。
	FindByOwnerAndURL(ctx context.Context, ownerID, url string) (*model.Collection, error)

	// SelectTree はオーナーの全コレクションをフラットな親ポインタ形式で取得する。
	// 各行には直下の未読数が付与される（記事を持たないコレクションは0）。
	// 並び順は "order" 昇順。ツリー構造の組み立てはツリー層が行う。
	SelectTree(ctx context.Context, ownerID string) ([]CollectionRow, error)

	// SelectDueWithURL は全オーナーの更新対象コレクションを取得する。
	// URLを持ち、かつ未更新または更新間隔を経過したものを返す。
	SelectDueWithURL(ctx context.Context) ([]*model.Collection, error)

	// SelectOwnedWithURL はオーナーのURL付きコレクションをすべて取得する。
	// 手動の全件更新で使用する（更新間隔は考慮しない）。
	SelectOwnedWithURL(ctx context.Context, ownerID string) ([]*model.Collection, error)

	// SetDateUpdated はコレクションのdate_updatedを更新する。
	// 更新成功時のみ呼ばれ、失敗したコレクションのdate_updatedは変化しない。
	SetDateUpdated(ctx context.Context, id string, t time.Time) error

	// InTx はオーナー単位で直列化されたトランザクション内でfnを実行する。
	// 採番処理は兄弟グループ全体に触れるため、行ロックではなく
	// アドバイザリロックで同一オーナーの構造変更を直列化する。
	// fnがエラーを返した場合は全体をロールバックする。
	InTx(ctx context.Context, ownerID string, fn func(tx CollectionTx) error) error
}

// CollectionTx はトランザクション内でのコレクション操作インターフェース。
type CollectionTx interface {
	// SelectByOwner はオーナーの全コレクションをトランザクション内で取得する。
	SelectByOwner(ctx context.Context, ownerID string) ([]*model.Collection, error)

	// Insert はコレクションを作成する。
	Insert(ctx context.Context, c *model.Collection) error

	// Update はコレクション情報を更新する。
	Update(ctx context.Context, c *model.Collection) error

	// DeleteMany は指定IDのコレクションをまとめて削除し、削除されたIDを返す。
	// 所属する記事はストアの外部キーCASCADEで削除される。
	DeleteMany(ctx context.Context, ids []string) ([]string, error)

	// UpdateSiblingOrders は兄弟グループの並び順を一括で書き込む。
	// orderedIDsのi番目のコレクションに order=i を割り当てる。
	// グループごとに1回のバッチ書き込みで行う。
	UpdateSiblingOrders(ctx context.Context, orderedIDs []string) error
}

// ItemRepository は記事データの永続化インターフェース。
type ItemRepository interface {
	// FindByCollectionAndURL は(collection_id, url)で記事を検索する。
	// 再取得時の同一性判定に使用する。見つからない場合はnilを返す。
	FindByCollectionAndURL(ctx context.Context, collectionID, url string) (*model.CollectionItem, error)

	// Create は新規記事を作成する。
	Create(ctx context.Context, item *model.CollectionItem) error

	// Update は既存記事を上書き更新する。date_readは変更しない。
	Update(ctx context.Context, item *model.CollectionItem) error

	// SetDateRead は記事のdate_readを設定する。whenがnilの場合は未読に戻す。
	// 対象の記事が存在しない場合はfalseを返す。
	SetDateRead(ctx context.Context, collectionID, itemID string, when *time.Time) (bool, error)

	// MarkRead は指定コレクション群の未読記事をまとめて既読にする。
	MarkRead(ctx context.Context, collectionIDs []string, when time.Time) error
}
