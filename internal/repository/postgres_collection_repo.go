package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/feedtree/internal/model"
)

// collectionColumns はcollectionsテーブルのSELECT列リスト。
const collectionColumns = `id, owner_id, title, slug, icon, "order", parent_id,
	        description, url, date_updated, refresh_interval, layout,
	        created_at, updated_at`

// PostgresCollectionRepo はPostgreSQLを使用したコレクションリポジトリ。
type PostgresCollectionRepo struct {
	db *sql.DB
}

// NewPostgresCollectionRepo はPostgresCollectionRepoを生成する。
func NewPostgresCollectionRepo(db *sql.DB) *PostgresCollectionRepo {
	return &PostgresCollectionRepo{db: db}
}

// querier はsql.DBとsql.Txの共通インターフェース。
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// FindByID は指定IDのコレクションを取得する。見つからない場合はnilを返す。
func (r *PostgresCollectionRepo) FindByID(ctx context.Context, id string) (*model.Collection, error) {
	c, err := scanCollection(r.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}
	return c, nil
}

// FindByOwnerAndURL はオーナーと正規化済みURLでコレクションを検索する。見つからない場合はnilを返す。
func (r *PostgresCollectionRepo) FindByOwnerAndURL(ctx context.Context, ownerID, url string) (*model.Collection, error) {
	c, err := scanCollection(r.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE owner_id = $1 AND url = $2`,
		ownerID, url))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによるコレクションの検索に失敗しました: %w", err)
	}
	return c, nil
}

// SelectTree はオーナーの全コレクションを直下の未読数付きで取得する。
// 並び順は "order" 昇順。ツリー構造の組み立てはツリー層が行う。
func (r *PostgresCollectionRepo) SelectTree(ctx context.Context, ownerID string) ([]CollectionRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.owner_id, c.title, c.slug, c.icon, c."order", c.parent_id,
		        c.description, c.url, c.date_updated, c.refresh_interval, c.layout,
		        c.created_at, c.updated_at,
		        COALESCE(u.unread_count, 0)
		 FROM collections c
		 LEFT JOIN (SELECT collection_id, COUNT(*) AS unread_count
		            FROM collection_items
		            WHERE date_read IS NULL
		            GROUP BY collection_id) u
		   ON c.id = u.collection_id
		 WHERE c.owner_id = $1
		 ORDER BY c."order" ASC, c.id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("コレクションツリーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []CollectionRow
	for rows.Next() {
		var row CollectionRow
		var parentID, description, url sql.NullString
		var dateUpdated sql.NullTime

		if err := rows.Scan(
			&row.ID, &row.OwnerID, &row.Title, &row.Slug, &row.Icon, &row.Order, &parentID,
			&description, &url, &dateUpdated, &row.RefreshInterval, &row.Layout,
			&row.CreatedAt, &row.UpdatedAt,
			&row.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("コレクションツリーの読み取りに失敗しました: %w", err)
		}

		row.ParentID = nullStringPtr(parentID)
		row.Description = nullStringValue(description)
		row.URL = nullStringValue(url)
		row.DateUpdated = nullTimePtr(dateUpdated)

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コレクションツリーの走査に失敗しました: %w", err)
	}

	return result, nil
}

// SelectDueWithURL は全オーナーの更新対象コレクションを取得する。
// URLを持ち、かつ未更新または更新間隔を経過したものを返す。
func (r *PostgresCollectionRepo) SelectDueWithURL(ctx context.Context) ([]*model.Collection, error) {
	return r.selectCollections(ctx, r.db,
		`SELECT `+collectionColumns+`
		 FROM collections
		 WHERE url IS NOT NULL
		   AND (date_updated IS NULL
		        OR date_updated + refresh_interval * interval '1 minute' <= now())
		 ORDER BY date_updated ASC NULLS FIRST`)
}

// SelectOwnedWithURL はオーナーのURL付きコレクションをすべて取得する。
func (r *PostgresCollectionRepo) SelectOwnedWithURL(ctx context.Context, ownerID string) ([]*model.Collection, error) {
	return r.selectCollections(ctx, r.db,
		`SELECT `+collectionColumns+`
		 FROM collections
		 WHERE owner_id = $1 AND url IS NOT NULL
		 ORDER BY "order" ASC, id ASC`, ownerID)
}

// SetDateUpdated はコレクションのdate_updatedを更新する。
func (r *PostgresCollectionRepo) SetDateUpdated(ctx context.Context, id string, t time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE collections SET date_updated = $2, updated_at = now() WHERE id = $1`,
		id, t,
	)
	if err != nil {
		return fmt.Errorf("date_updatedの更新に失敗しました: %w", err)
	}
	return nil
}

// InTx はオーナー単位で直列化されたトランザクション内でfnを実行する。
// pg_advisory_xact_lockはトランザクション終了時に自動解放される。
func (r *PostgresCollectionRepo) InTx(ctx context.Context, ownerID string, fn func(tx CollectionTx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}

	// 同一オーナーの構造変更を直列化する。採番が兄弟グループ全体に触れるため、
	// 行ロックではなくオーナー単位のアドバイザリロックを使用する。
	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID); err != nil {
		sqlTx.Rollback()
		return fmt.Errorf("オーナーロックの取得に失敗しました: %w", err)
	}

	if err := fn(&collectionTx{tx: sqlTx, repo: r}); err != nil {
		sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// collectionTx はCollectionTxのPostgreSQL実装。
type collectionTx struct {
	tx   *sql.Tx
	repo *PostgresCollectionRepo
}

// SelectByOwner はオーナーの全コレクションをトランザクション内で取得する。
func (t *collectionTx) SelectByOwner(ctx context.Context, ownerID string) ([]*model.Collection, error) {
	return t.repo.selectCollections(ctx, t.tx,
		`SELECT `+collectionColumns+`
		 FROM collections
		 WHERE owner_id = $1
		 ORDER BY "order" ASC, id ASC`, ownerID)
}

// Insert はコレクションを作成する。
func (t *collectionTx) Insert(ctx context.Context, c *model.Collection) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO collections (id, owner_id, title, slug, icon, "order", parent_id,
		                          description, url, date_updated, refresh_interval, layout,
		                          created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.OwnerID, c.Title, c.Slug, c.Icon, c.Order, nullStringFromPtr(c.ParentID),
		nullString(c.Description), nullString(c.URL), nullTimeFromPtr(c.DateUpdated),
		c.RefreshInterval, c.Layout, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コレクションの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はコレクション情報を更新する。
func (t *collectionTx) Update(ctx context.Context, c *model.Collection) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE collections SET
		    title = $2, slug = $3, icon = $4, "order" = $5, parent_id = $6,
		    description = $7, url = $8, refresh_interval = $9, layout = $10,
		    updated_at = $11
		 WHERE id = $1`,
		c.ID, c.Title, c.Slug, c.Icon, c.Order, nullStringFromPtr(c.ParentID),
		nullString(c.Description), nullString(c.URL), c.RefreshInterval, c.Layout,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コレクションの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteMany は指定IDのコレクションをまとめて削除し、削除されたIDを返す。
// 所属する記事は外部キーのON DELETE CASCADEで削除される。
func (t *collectionTx) DeleteMany(ctx context.Context, ids []string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`DELETE FROM collections WHERE id = ANY($1) RETURNING id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("コレクションの削除に失敗しました: %w", err)
	}
	defer rows.Close()

	var deleted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("削除結果の読み取りに失敗しました: %w", err)
		}
		deleted = append(deleted, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("削除結果の走査に失敗しました: %w", err)
	}

	return deleted, nil
}

// UpdateSiblingOrders は兄弟グループの並び順を一括で書き込む。
// unnestにより1グループ1回のバッチ書き込みで済ませる。
func (t *collectionTx) UpdateSiblingOrders(ctx context.Context, orderedIDs []string) error {
	if len(orderedIDs) == 0 {
		return nil
	}

	orders := make([]int64, len(orderedIDs))
	for i := range orderedIDs {
		orders[i] = int64(i)
	}

	_, err := t.tx.ExecContext(ctx,
		`UPDATE collections c
		 SET "order" = o.new_order
		 FROM (SELECT unnest($1::uuid[]) AS id, unnest($2::bigint[]) AS new_order) o
		 WHERE c.id = o.id`,
		pq.Array(orderedIDs), pq.Array(orders),
	)
	if err != nil {
		return fmt.Errorf("並び順の一括更新に失敗しました: %w", err)
	}
	return nil
}

// selectCollections はコレクション一覧を取得する共通処理。
func (r *PostgresCollectionRepo) selectCollections(ctx context.Context, q querier, query string, args ...any) ([]*model.Collection, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("コレクション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []*model.Collection
	for rows.Next() {
		c, err := scanCollectionRows(rows)
		if err != nil {
			return nil, fmt.Errorf("コレクション一覧の読み取りに失敗しました: %w", err)
		}
		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コレクション一覧の走査に失敗しました: %w", err)
	}

	return result, nil
}

// rowScanner はsql.Rowとsql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCollectionInto は共通の列順でコレクション1件をスキャンする。
func scanCollectionInto(s rowScanner) (*model.Collection, error) {
	c := &model.Collection{}
	var parentID, description, url sql.NullString
	var dateUpdated sql.NullTime

	if err := s.Scan(
		&c.ID, &c.OwnerID, &c.Title, &c.Slug, &c.Icon, &c.Order, &parentID,
		&description, &url, &dateUpdated, &c.RefreshInterval, &c.Layout,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.ParentID = nullStringPtr(parentID)
	c.Description = nullStringValue(description)
	c.URL = nullStringValue(url)
	c.DateUpdated = nullTimePtr(dateUpdated)

	return c, nil
}

func scanCollection(row *sql.Row) (*model.Collection, error) {
	return scanCollectionInto(row)
}

func scanCollectionRows(rows *sql.Rows) (*model.Collection, error) {
	return scanCollectionInto(rows)
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullStringPtr はsql.NullStringから文字列ポインタを取得する。
func nullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		s := ns.String
		return &s
	}
	return nil
}

// nullStringFromPtr は文字列ポインタをsql.NullStringに変換する。
func nullStringFromPtr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// nullTimePtr はsql.NullTimeから時刻ポインタを取得する。
func nullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

// nullTimeFromPtr は時刻ポインタをsql.NullTimeに変換する。
func nullTimeFromPtr(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

// compile-time interface check
var _ CollectionRepository = (*PostgresCollectionRepo)(nil)
var _ CollectionTx = (*collectionTx)(nil)
