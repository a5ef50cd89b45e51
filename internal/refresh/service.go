// Package refresh はフィードの更新スケジューリングと実行を提供する。
// 更新対象の解決、並列制御、コレクション単位の単一実行制御を含む。
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/feedtree/internal/model"
	"github.com/hitoshi/feedtree/internal/repository"
	"github.com/hitoshi/feedtree/internal/tree"
)

// FeedFetcher はフィード取得のインターフェース。
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]model.ParsedItem, error)
}

// ItemReconciler は記事照合のインターフェース。
type ItemReconciler interface {
	Reconcile(ctx context.Context, collectionID string, candidates []model.ParsedItem) (inserted int, updated int, err error)
}

// Recorder は更新処理のメトリクス記録インターフェース。
type Recorder interface {
	RefreshSucceeded()
	RefreshFailed()
	ItemsReconciled(inserted, updated int)
	FetchDuration(seconds float64)
}

// Failure は1コレクションの更新失敗を表す。
type Failure struct {
	CollectionID string
	URL          string
	Err          error
}

// Result は更新バッチの実行結果を表す。
// 一部が失敗しても成功したコレクションの更新は確定したまま残る。
// バッチ全体が成功とみなされるのは全フェッチが成功した場合のみ。
type Result struct {
	Refreshed     []string
	Skipped       []string
	Failures      []Failure
	ItemsInserted int
	ItemsUpdated  int
}

// Success はバッチ全体が成功したかを返す。
func (r *Result) Success() bool {
	return len(r.Failures) == 0
}

// Service は更新対象の解決と実行を行う。
// コレクション単位の単一実行制御として実行中IDの集合を保持し、
// 既に実行中のコレクションはスキップされる（合流はしない）。
type Service struct {
	collections    repository.CollectionRepository
	treeStore      *tree.Store
	fetcher        FeedFetcher
	reconciler     ItemReconciler
	recorder       Recorder
	logger         *slog.Logger
	maxConcurrency int

	mu         sync.Mutex
	inProgress map[string]bool
}

// NewService はServiceの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewService(
	collections repository.CollectionRepository,
	treeStore *tree.Store,
	fetcher FeedFetcher,
	reconciler ItemReconciler,
	recorder Recorder,
	logger *slog.Logger,
	maxConcurrency int,
) *Service {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Service{
		collections:    collections,
		treeStore:      treeStore,
		fetcher:        fetcher,
		reconciler:     reconciler,
		recorder:       recorder,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		inProgress:     make(map[string]bool),
	}
}

// ListDue は全オーナーの更新対象コレクションを返す。
// URLを持ち、かつ未更新または更新間隔を経過したもののみが対象になる。
func (s *Service) ListDue(ctx context.Context) ([]*model.Collection, error) {
	return s.collections.SelectDueWithURL(ctx)
}

// RefreshOne は単一コレクションを更新する。更新間隔は考慮しない。
func (s *Service) RefreshOne(ctx context.Context, ownerID, id string) (*Result, error) {
	c, err := s.collections.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil || c.OwnerID != ownerID {
		return nil, model.NewCollectionNotFoundError(id)
	}
	if !c.HasURL() {
		return nil, model.NewInvalidURLError("コレクションはフィードURLを持ちません")
	}

	return s.run(ctx, []*model.Collection{c}), nil
}

// RefreshSubtree は指定コレクションのサブツリーに含まれるURL付き
// コレクションをすべて更新する。更新間隔は考慮しない。
func (s *Service) RefreshSubtree(ctx context.Context, ownerID, id string) (*Result, error) {
	ids, err := s.treeStore.DescendantIDs(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	inSubtree := make(map[string]bool, len(ids))
	for _, v := range ids {
		inSubtree[v] = true
	}

	owned, err := s.collections.SelectOwnedWithURL(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var targets []*model.Collection
	for _, c := range owned {
		if inSubtree[c.ID] {
			targets = append(targets, c)
		}
	}

	return s.run(ctx, targets), nil
}

// RefreshAll はオーナーのURL付きコレクションをすべて更新する。
// 更新間隔は考慮しない。
func (s *Service) RefreshAll(ctx context.Context, ownerID string) (*Result, error) {
	targets, err := s.collections.SelectOwnedWithURL(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, targets), nil
}

// Start は指定間隔のティッカーでバックグラウンド更新ループを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("更新スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.runDue(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("更新スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue は更新対象を1回取得して更新バッチを実行する。
func (s *Service) runDue(ctx context.Context) {
	targets, err := s.ListDue(ctx)
	if err != nil {
		s.logger.Error("更新対象の取得に失敗しました", slog.String("error", err.Error()))
		return
	}
	if len(targets) == 0 {
		s.logger.Info("更新対象のコレクションはありません")
		return
	}

	result := s.run(ctx, targets)
	s.logger.Info("更新サイクルが完了しました",
		slog.Int("refreshed", len(result.Refreshed)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("failed", len(result.Failures)),
		slog.Int("items_inserted", result.ItemsInserted),
		slog.Int("items_updated", result.ItemsUpdated),
	)
}

// run は更新バッチを実行する。semaphoreパターンで最大並列数を制御する。
// 実行中のコレクションはスキップされ、成功にも失敗にも数えない。
func (s *Service) run(ctx context.Context, targets []*model.Collection) *Result {
	result := &Result{}

	accepted := make([]*model.Collection, 0, len(targets))
	s.mu.Lock()
	for _, c := range targets {
		if s.inProgress[c.ID] {
			result.Skipped = append(result.Skipped, c.ID)
			continue
		}
		s.inProgress[c.ID] = true
		accepted = append(accepted, c)
	}
	s.mu.Unlock()

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	var resultMu sync.Mutex

	for _, c := range accepted {
		wg.Add(1)
		sem <- struct{}{}

		go func(c *model.Collection) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				s.mu.Lock()
				delete(s.inProgress, c.ID)
				s.mu.Unlock()
			}()

			inserted, updated, err := s.refreshTarget(ctx, c)

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, Failure{CollectionID: c.ID, URL: c.URL, Err: err})
				return
			}
			result.Refreshed = append(result.Refreshed, c.ID)
			result.ItemsInserted += inserted
			result.ItemsUpdated += updated
		}(c)
	}

	wg.Wait()

	return result
}

// refreshTarget は1コレクションを更新する。
// フェッチ成功時のみdate_updatedを現在時刻に更新し、
// 失敗時はdate_updatedを変更しない（次回のサイクルで再試行される）。
func (s *Service) refreshTarget(ctx context.Context, c *model.Collection) (inserted, updated int, err error) {
	start := time.Now()

	items, err := s.fetcher.Fetch(ctx, c.URL)
	s.recorder.FetchDuration(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("コレクションの更新に失敗しました",
			slog.String("collection_id", c.ID),
			slog.String("url", c.URL),
			slog.String("error", err.Error()),
		)
		s.recorder.RefreshFailed()
		return 0, 0, err
	}

	inserted, updated, err = s.reconciler.Reconcile(ctx, c.ID, items)
	if err != nil {
		s.recorder.RefreshFailed()
		return 0, 0, err
	}

	if err := s.collections.SetDateUpdated(ctx, c.ID, time.Now()); err != nil {
		s.recorder.RefreshFailed()
		return 0, 0, err
	}

	s.recorder.RefreshSucceeded()
	s.recorder.ItemsReconciled(inserted, updated)

	return inserted, updated, nil
}
