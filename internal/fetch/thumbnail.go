package fetch

import (
	"strings"

	"golang.org/x/net/html"
)

// firstImageSrc はHTML本文から最初のimgタグのsrc属性を抽出する。
// 見つからない場合やパースできない場合は空文字列を返す。
func firstImageSrc(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return ""
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		token := tokenizer.Token()
		if token.Data != "img" {
			continue
		}
		for _, attr := range token.Attr {
			if attr.Key == "src" && attr.Val != "" {
				return attr.Val
			}
		}
	}
}
