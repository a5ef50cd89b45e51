package collection

import (
	"net/url"
	"strings"

	"github.com/hitoshi/feedtree/internal/model"
)

// NormalizeURL はフィードURLを比較可能な正規形に変換する。
// スキーム未指定はhttpsとみなす。スキームとホストを小文字化し、
// デフォルトポートとフラグメント、末尾スラッシュを除去する。
// 重複チェックはこの正規形に対して行われる。
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", model.NewInvalidURLError("URLが空です")
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", model.NewInvalidURLError("サポートされていないスキームです: " + u.Scheme)
	}
	if u.Host == "" {
		return "", model.NewInvalidURLError("ホストがありません")
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	if scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	} else {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}
