package fetch

import "strings"

// wordsPerMinute は読了時間の推定に使用する読速。
const wordsPerMinute = 225

// EstimateReadingTime はタグ除去済みの本文から読了時間（分）を推定する。
// 語数を読速で割って切り上げる。結果は常に1以上。
func EstimateReadingTime(plainText string) int {
	words := len(strings.Fields(plainText))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
