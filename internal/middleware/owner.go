// Package middleware はHTTPリクエスト処理の共通ミドルウェアを提供する。
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// OwnerHeader はオーナーIDを運ぶリクエストヘッダー。
// 認証は前段の外部レイヤーが行い、このサービスは検証済みのIDを受け取る。
const OwnerHeader = "X-Feedtree-User"

type contextKey string

const ownerContextKey contextKey = "owner_id"

// ErrNoOwner はコンテキストにオーナーIDが設定されていないことを表す。
var ErrNoOwner = errors.New("オーナーIDがコンテキストに設定されていません")

// NewOwnerMiddleware はリクエストヘッダーからオーナーIDを取り出して
// コンテキストに設定するミドルウェアを返す。ヘッダーが無い場合は401を返す。
func NewOwnerMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := r.Header.Get(OwnerHeader)
			if ownerID == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"code":    "MISSING_OWNER",
					"message": "オーナーIDが指定されていません。",
				})
				return
			}

			ctx := context.WithValue(r.Context(), ownerContextKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext はコンテキストからオーナーIDを取得する。
func OwnerFromContext(ctx context.Context) (string, error) {
	ownerID, ok := ctx.Value(ownerContextKey).(string)
	if !ok || ownerID == "" {
		return "", ErrNoOwner
	}
	return ownerID, nil
}
