// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind はエラーの分類を表す。
// リクエスト層はこの分類をトランスポートのステータスに変換する。
type ErrorKind string

const (
	// KindValidation は入力不正を表す。書き込み前に拒否され、状態は変化しない。
	KindValidation ErrorKind = "validation"
	// KindNotFound は参照先が存在しないか呼び出し元の所有でないことを表す。
	KindNotFound ErrorKind = "not_found"
	// KindConflict は同一オーナーでのフィードURL重複を表す。
	KindConflict ErrorKind = "conflict"
	// KindFetch はフィードの取得・解析失敗を表す。対象のdate_updatedは変化しない。
	KindFetch ErrorKind = "fetch"
	// KindIntegrity はストレージ層の不変条件違反を表す。操作全体をロールバックする。
	KindIntegrity ErrorKind = "integrity"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind    ErrorKind // エラー分類
	Code    string    // エラーコード
	Message string    // エラーメッセージ
	Action  string    // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeInvalidIcon        = "INVALID_ICON"
	ErrCodeInvalidLayout      = "INVALID_LAYOUT"
	ErrCodeInvalidMove        = "INVALID_MOVE"
	ErrCodeEmptyTitle         = "EMPTY_TITLE"
	ErrCodeCollectionNotFound = "COLLECTION_NOT_FOUND"
	ErrCodeItemNotFound       = "ITEM_NOT_FOUND"
	ErrCodeDuplicateFeedURL   = "DUPLICATE_FEED_URL"
	ErrCodeFetchFailed        = "FETCH_FAILED"
	ErrCodeParseFailed        = "PARSE_FAILED"
	ErrCodeOrderIntegrity     = "ORDER_INTEGRITY"
)

// KindOf はエラーの分類を返す。APIErrorでない場合はKindIntegrityを返す。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindIntegrity
}

// IsValidation はエラーが入力不正かを判定する。
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound はエラーが参照先不在かを判定する。
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict はエラーがフィードURL重複かを判定する。
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsFetch はエラーがフィード取得・解析失敗かを判定する。
func IsFetch(err error) bool { return KindOf(err) == KindFetch }

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidURL,
		Message: fmt.Sprintf("無効なURLです: %s", reason),
		Action:  "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewInvalidIconError は未定義アイコンのエラーを生成する。
func NewInvalidIconError(icon string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidIcon,
		Message: fmt.Sprintf("未定義のアイコンです: %s", icon),
		Action:  "定義済みのアイコン名を指定してください。",
	}
}

// NewInvalidLayoutError は未定義レイアウトのエラーを生成する。
func NewInvalidLayoutError(layout string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidLayout,
		Message: fmt.Sprintf("未定義のレイアウトです: %s", layout),
		Action:  "定義済みのレイアウト名を指定してください。",
	}
}

// NewEmptyTitleError はタイトル未指定のエラーを生成する。
func NewEmptyTitleError() *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeEmptyTitle,
		Message: "タイトルが入力されていません。",
		Action:  "コレクションのタイトルを入力してください。",
	}
}

// NewInvalidMoveError は不正な移動操作のエラーを生成する。
// 自分自身または自分の子孫の配下への移動で発生する。
func NewInvalidMoveError(reason string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidMove,
		Message: fmt.Sprintf("不正な移動操作です: %s", reason),
		Action:  "移動先のコレクションを確認してください。",
	}
}

// NewCollectionNotFoundError はコレクション未検出エラーを生成する。
func NewCollectionNotFoundError(collectionID string) *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Code:    ErrCodeCollectionNotFound,
		Message: fmt.Sprintf("指定されたコレクションが見つかりません: %s", collectionID),
		Action:  "コレクションIDを確認してください。",
	}
}

// NewItemNotFoundError は記事未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Code:    ErrCodeItemNotFound,
		Message: fmt.Sprintf("指定された記事が見つかりません: %s", itemID),
		Action:  "記事IDを確認してください。",
	}
}

// NewDuplicateFeedURLError はフィードURL重複エラーを生成する。
// 重複判定は同一オーナー内の正規化済みURLで行われる。
func NewDuplicateFeedURLError(url string) *APIError {
	return &APIError{
		Kind:    KindConflict,
		Code:    ErrCodeDuplicateFeedURL,
		Message: fmt.Sprintf("このフィードURLは既に登録されています: %s", url),
		Action:  "コレクション一覧から該当フィードを確認してください。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(url, reason string) *APIError {
	return &APIError{
		Kind:    KindFetch,
		Code:    ErrCodeFetchFailed,
		Message: fmt.Sprintf("フィードの取得に失敗しました（%s）: %s", url, reason),
		Action:  "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError(url string) *APIError {
	return &APIError{
		Kind:    KindFetch,
		Code:    ErrCodeParseFailed,
		Message: fmt.Sprintf("フィードの解析に失敗しました: %s", url),
		Action:  "有効なRSS/Atomフィードかどうか確認してください。",
	}
}

// NewOrderIntegrityError は並び順の不変条件違反エラーを生成する。
// 採番処理の結果に欠番や重複が検出された場合に発生し、トランザクション全体を中断する。
func NewOrderIntegrityError(reason string) *APIError {
	return &APIError{
		Kind:    KindIntegrity,
		Code:    ErrCodeOrderIntegrity,
		Message: fmt.Sprintf("並び順の整合性が失われました: %s", reason),
		Action:  "時間をおいて再度お試しください。解消しない場合は管理者に連絡してください。",
	}
}
