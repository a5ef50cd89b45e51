// Package fetch はフィードのHTTP取得とパースを提供する。
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/feedtree/internal/model"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Sanitizer はHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
	PlainText(rawHTML string) string
}

// Fetcher はフィードURLのHTTPフェッチとgofeedによるパースを行う。
// SSRF検証済みのクライアントを使用し、取得したコンテンツは
// サニタイズ済みのParsedItemに変換して返す。
type Fetcher struct {
	ssrfGuard   SSRFValidator
	sanitizer   Sanitizer
	logger      *slog.Logger
	client      *http.Client
	maxBodySize int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(ssrfGuard SSRFValidator, sanitizer Sanitizer, logger *slog.Logger, timeout time.Duration, maxBodySize int64) *Fetcher {
	return &Fetcher{
		ssrfGuard:   ssrfGuard,
		sanitizer:   sanitizer,
		logger:      logger,
		client:      ssrfGuard.NewSafeClient(timeout),
		maxBodySize: maxBodySize,
	}
}

// Fetch はフィードを取得し、記事をParsedItemの列に変換して返す。
// 到達不能・非2xx応答はフェッチ失敗、パース不能はパース失敗を返す。
// 記事が0件のフィードは空のスライスを返し、エラーにはしない。
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]model.ParsedItem, error) {
	feed, err := f.fetchParse(ctx, url)
	if err != nil {
		return nil, err
	}

	items := f.convertItems(feed)

	f.logger.Info("フィードを取得しました",
		slog.String("url", url),
		slog.Int("items_total", len(items)),
	)

	return items, nil
}

// fetchParse はフィードを取得してgofeedでパースする。
func (f *Fetcher) fetchParse(ctx context.Context, url string) (*gofeed.Feed, error) {
	if err := f.ssrfGuard.ValidateURL(url); err != nil {
		f.logger.Warn("SSRF検証に失敗しました",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError(url, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, model.NewFetchFailedError(url, err.Error())
	}

	req.Header.Set("User-Agent", "Feedtree/1.0 Feed Reader")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("HTTPリクエストに失敗しました",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError(url, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn("フィードが異常なステータスを返しました",
			slog.String("url", url),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewFetchFailedError(url, fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, model.NewFetchFailedError(url, err.Error())
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		f.logger.Warn("フィードのパースに失敗しました",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return nil, model.NewParseFailedError(url)
	}

	return feed, nil
}

// convertItems はgofeedの記事をサニタイズ済みのParsedItemに変換する。
// リンクを持たない記事（GUIDがURL形式の場合を除く）はスキップされる。
func (f *Fetcher) convertItems(feed *gofeed.Feed) []model.ParsedItem {
	items := make([]model.ParsedItem, 0, len(feed.Items))

	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		url := item.Link
		if url == "" && item.GUID != "" &&
			(strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			url = item.GUID
		}
		if url == "" {
			continue
		}

		summary := f.sanitizer.Sanitize(item.Description)

		fullText := f.sanitizer.Sanitize(item.Content)
		if fullText == "" {
			fullText = summary
		}

		parsed := model.ParsedItem{
			URL:          url,
			Title:        item.Title,
			Summary:      summary,
			FullText:     fullText,
			ThumbnailURL: f.thumbnailURL(item),
			Categories:   item.Categories,
			Comments:     item.Custom["comments"],
			ReadingTime:  EstimateReadingTime(f.sanitizer.PlainText(fullText)),
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			parsed.DatePublished = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			parsed.DatePublished = &t
		}

		if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			parsed.DateUpdated = &t
		} else if parsed.DatePublished != nil {
			t := *parsed.DatePublished
			parsed.DateUpdated = &t
		}

		items = append(items, parsed)
	}

	return items
}

// thumbnailURL は記事のサムネイルURLを決定する。
// 記事画像、画像エンクロージャ、本文の最初のimgタグの順で探す。
func (f *Fetcher) thumbnailURL(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return firstImageSrc(item.Content)
}
