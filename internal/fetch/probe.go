package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/feedtree/internal/collection"
	"github.com/hitoshi/feedtree/internal/model"
	"github.com/hitoshi/feedtree/internal/repository"
)

// Prober はフィードURLの登録前検証を行う。
// URLを正規化して重複チェックとフェッチ・パースを実行するが、永続化は行わない。
type Prober struct {
	fetcher     *Fetcher
	collections repository.CollectionRepository
	logger      *slog.Logger
}

// NewProber はProberの新しいインスタンスを生成する。
func NewProber(fetcher *Fetcher, collections repository.CollectionRepository, logger *slog.Logger) *Prober {
	return &Prober{
		fetcher:     fetcher,
		collections: collections,
		logger:      logger,
	}
}

// Probe はフィードURLを検証し、フィードのタイトルと説明を返す。
// 同一オーナーで正規化済みURLが登録済みの場合はコンフリクトを返す。
// 取得・パースに失敗した場合はフェッチエラーを返す。
func (p *Prober) Probe(ctx context.Context, ownerID, rawURL string) (*model.ProbeResult, error) {
	normalized, err := collection.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	existing, err := p.collections.FindByOwnerAndURL(ctx, ownerID, normalized)
	if err != nil {
		return nil, fmt.Errorf("フィードURLの重複チェックに失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateFeedURLError(normalized)
	}

	feed, err := p.fetcher.fetchParse(ctx, normalized)
	if err != nil {
		return nil, err
	}

	p.logger.Info("フィードURLを検証しました",
		slog.String("owner_id", ownerID),
		slog.String("url", normalized),
		slog.String("title", feed.Title),
	)

	return &model.ProbeResult{
		Title:       feed.Title,
		Description: feed.Description,
	}, nil
}
