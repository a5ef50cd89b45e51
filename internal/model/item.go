// Package model はドメインモデルを定義する。
package model

import "time"

// CollectionItem はフィードから取得した記事を表す。
// (collection_id, url) の組で一意となり、再取得時は重複挿入せず上書き更新される。
type CollectionItem struct {
	ID           string
	CollectionID string
	URL          string
	Title        string
	Summary      string // サニタイズ済み
	FullText     string // サニタイズ済みHTML
	ThumbnailURL string
	Categories   []string
	Comments     string
	// DatePublished は記事の公開日時。
	DatePublished time.Time
	// DateUpdated は配信元で記事が最後に変更された日時。
	DateUpdated time.Time
	// DateRead は既読にした日時。nilは未読を表す。
	DateRead *time.Time
	// ReadingTime は本文の長さから推定した読了時間（分）。常に1以上。
	ReadingTime int
	// ContentHash は title|summary|fullText のハッシュ。更新検出に使用する。
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ParsedItem はフィードパーサーから取得した未保存の記事データを表す。
// フェッチャーがフィードをパースした後、リコンサイラに渡される。
type ParsedItem struct {
	URL           string
	Title         string
	Summary       string // サニタイズ済み
	FullText      string // サニタイズ済みHTML
	ThumbnailURL  string
	Categories    []string
	Comments      string
	DatePublished *time.Time
	DateUpdated   *time.Time
	// ReadingTime は本文から推定した読了時間（分）。
	ReadingTime int
}

// ProbeResult はフィードURL検証の結果を表す。
// 永続化は行わず、登録前の確認にのみ使用される。
type ProbeResult struct {
	Title       string
	Description string
}
