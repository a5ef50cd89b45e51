package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/feedtree/internal/model"
)

// PostgresItemRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// FindByCollectionAndURL は(collection_id, url)で記事を検索する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByCollectionAndURL(ctx context.Context, collectionID, url string) (*model.CollectionItem, error) {
	item := &model.CollectionItem{}
	var thumbnailURL, comments sql.NullString
	var dateRead sql.NullTime
	var categories pq.StringArray

	err := r.db.QueryRowContext(ctx,
		`SELECT id, collection_id, url, title, summary, full_text, thumbnail_url,
		        categories, comments, date_published, date_updated, date_read,
		        reading_time, content_hash, created_at, updated_at
		 FROM collection_items
		 WHERE collection_id = $1 AND url = $2`,
		collectionID, url,
	).Scan(
		&item.ID, &item.CollectionID, &item.URL, &item.Title, &item.Summary,
		&item.FullText, &thumbnailURL, &categories, &comments,
		&item.DatePublished, &item.DateUpdated, &dateRead,
		&item.ReadingTime, &item.ContentHash, &item.CreatedAt, &item.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の検索に失敗しました: %w", err)
	}

	item.ThumbnailURL = nullStringValue(thumbnailURL)
	item.Comments = nullStringValue(comments)
	item.DateRead = nullTimePtr(dateRead)
	item.Categories = categories

	return item, nil
}

// Create は新規記事を作成する。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.CollectionItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collection_items (id, collection_id, url, title, summary, full_text,
		                               thumbnail_url, categories, comments,
		                               date_published, date_updated, date_read,
		                               reading_time, content_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		item.ID, item.CollectionID, item.URL, item.Title, item.Summary, item.FullText,
		nullString(item.ThumbnailURL), pq.Array(item.Categories), nullString(item.Comments),
		item.DatePublished, item.DateUpdated, nullTimeFromPtr(item.DateRead),
		item.ReadingTime, item.ContentHash, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存記事を上書き更新する。date_readは変更しない。
func (r *PostgresItemRepo) Update(ctx context.Context, item *model.CollectionItem) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE collection_items SET
		    title = $2, summary = $3, full_text = $4, thumbnail_url = $5,
		    categories = $6, comments = $7, date_published = $8, date_updated = $9,
		    reading_time = $10, content_hash = $11, updated_at = $12
		 WHERE id = $1`,
		item.ID, item.Title, item.Summary, item.FullText, nullString(item.ThumbnailURL),
		pq.Array(item.Categories), nullString(item.Comments),
		item.DatePublished, item.DateUpdated,
		item.ReadingTime, item.ContentHash, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	return nil
}

// SetDateRead は記事のdate_readを設定する。whenがnilの場合は未読に戻す。
// 対象の記事が存在しない場合はfalseを返す。
func (r *PostgresItemRepo) SetDateRead(ctx context.Context, collectionID, itemID string, when *time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE collection_items SET date_read = $3, updated_at = now()
		 WHERE collection_id = $1 AND id = $2`,
		collectionID, itemID, nullTimeFromPtr(when),
	)
	if err != nil {
		return false, fmt.Errorf("date_readの更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("date_readの更新結果の確認に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// MarkRead は指定コレクション群の未読記事をまとめて既読にする。
func (r *PostgresItemRepo) MarkRead(ctx context.Context, collectionIDs []string, when time.Time) error {
	if len(collectionIDs) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE collection_items SET date_read = $2, updated_at = now()
		 WHERE collection_id = ANY($1) AND date_read IS NULL`,
		pq.Array(collectionIDs), when,
	)
	if err != nil {
		return fmt.Errorf("既読化に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
