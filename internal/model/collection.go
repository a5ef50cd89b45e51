// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultRefreshInterval は新規コレクションのデフォルト更新間隔（分）。
const DefaultRefreshInterval = 60

// Collection はフィード購読元を束ねるツリーのノードを表す。
// URLを持つノードはRSS/Atomフィードとして定期更新の対象になる。
type Collection struct {
	ID      string
	OwnerID string
	Title   string
	Slug    string
	Icon    Icon
	Order   int
	// ParentID は親コレクションのID。nilはルートを表す。
	ParentID    *string
	Description string
	// URL は正規化済みフィードURL。空文字列はフィードを持たないことを表す。
	URL string
	// DateUpdated は最後に更新が成功した日時。nilは一度も更新されていないことを表す。
	DateUpdated *time.Time
	// RefreshInterval は更新間隔（分）。
	RefreshInterval int
	Layout          Layout
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasURL はコレクションがフィードURLを持つかを返す。
func (c *Collection) HasURL() bool {
	return c.URL != ""
}

// IsDue はコレクションが更新対象かを判定する。
// URLを持ち、かつ未更新または前回更新からrefresh_interval分以上経過している場合に真。
func (c *Collection) IsDue(now time.Time) bool {
	if !c.HasURL() {
		return false
	}
	if c.DateUpdated == nil {
		return true
	}
	interval := time.Duration(c.RefreshInterval) * time.Minute
	return now.Sub(*c.DateUpdated) >= interval
}

// Icon はコレクションのアイコン種別を表す。
type Icon string

const (
	// IconRSS はデフォルトのアイコン。
	IconRSS Icon = "rss"
	// IconCode はコード関連のアイコン。
	IconCode Icon = "code"
	// IconNews はニュース関連のアイコン。
	IconNews Icon = "news"
	// IconScience は科学関連のアイコン。
	IconScience Icon = "science"
	// IconStar はスターアイコン。
	IconStar Icon = "star"
	// IconTech はテクノロジー関連のアイコン。
	IconTech Icon = "tech"
	// IconWorld は国際ニュース関連のアイコン。
	IconWorld Icon = "world"
)

// DefaultIcon は未指定時に使用されるアイコン。
const DefaultIcon = IconRSS

// ValidIcon はアイコンが定義済みの集合に含まれるかを検証する。
func ValidIcon(icon Icon) bool {
	switch icon {
	case IconRSS, IconCode, IconNews, IconScience, IconStar, IconTech, IconWorld:
		return true
	}
	return false
}

// Layout はコレクションの表示レイアウトを表す。
type Layout string

const (
	// LayoutCard はカード形式のレイアウト。
	LayoutCard Layout = "card"
	// LayoutMagazine はマガジン形式のレイアウト。
	LayoutMagazine Layout = "magazine"
)

// DefaultLayout は未指定時に使用されるレイアウト。
const DefaultLayout = LayoutCard

// ValidLayout はレイアウトが定義済みの集合に含まれるかを検証する。
func ValidLayout(layout Layout) bool {
	switch layout {
	case LayoutCard, LayoutMagazine:
		return true
	}
	return false
}

// CollectionSpec はコレクションの作成・更新時に呼び出し側が指定するフィールド。
// id/slug/order/unreadCountは導出されるため含まない。
type CollectionSpec struct {
	Title           string
	Icon            Icon    // 空 = DefaultIcon
	ParentID        *string // nil = ルート
	Description     string
	URL             string // 空 = フィードなし。正規化前の生URL
	RefreshInterval int    // 0 = DefaultRefreshInterval
	Layout          Layout // 空 = DefaultLayout
}
