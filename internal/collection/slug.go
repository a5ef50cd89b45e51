package collection

import (
	"strings"
	"unicode"
)

// Slugify はタイトルからURLセーフなスラグを導出する。
// 小文字化し、英数字以外の連続を単一のハイフンに置き換え、両端のハイフンを除去する。
func Slugify(title string) string {
	var b strings.Builder
	pendingDash := false

	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	return b.String()
}
