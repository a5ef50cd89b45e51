// Package item は記事の照合と既読状態の管理を提供する。
package item

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedtree/internal/model"
	"github.com/hitoshi/feedtree/internal/repository"
)

// Reconciler はフェッチ結果を保存済み記事と照合するUPSERT処理を提供する。
// 同一性は(collection_id, url)の組で判定し、既存記事の既読状態は保持される。
type Reconciler struct {
	items  repository.ItemRepository
	logger *slog.Logger
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(items repository.ItemRepository, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		items:  items,
		logger: logger,
	}
}

// Reconcile はフェッチ結果をコレクションの保存済み記事と照合する。
// 未保存の記事は未読として挿入し、既存の記事はdate_read以外を上書きする。
// 記事のdate_updatedは配信元の更新日時またはコンテンツハッシュが
// 変化した場合のみ変わる。同一の入力で再実行しても結果は変わらない。
// 戻り値は挿入数、更新数、エラー。
func (r *Reconciler) Reconcile(ctx context.Context, collectionID string, candidates []model.ParsedItem) (inserted int, updated int, err error) {
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	now := time.Now()

	for _, candidate := range candidates {
		existing, err := r.items.FindByCollectionAndURL(ctx, collectionID, candidate.URL)
		if err != nil {
			return inserted, updated, fmt.Errorf("記事の照合に失敗しました: %w", err)
		}

		hash := ContentHash(candidate.Title, candidate.Summary, candidate.FullText)

		if existing == nil {
			created := &model.CollectionItem{
				ID:            uuid.NewString(),
				CollectionID:  collectionID,
				URL:           candidate.URL,
				Title:         candidate.Title,
				Summary:       candidate.Summary,
				FullText:      candidate.FullText,
				ThumbnailURL:  candidate.ThumbnailURL,
				Categories:    candidate.Categories,
				Comments:      candidate.Comments,
				DatePublished: timeOr(candidate.DatePublished, now),
				DateUpdated:   timeOr(candidate.DateUpdated, timeOr(candidate.DatePublished, now)),
				ReadingTime:   candidate.ReadingTime,
				ContentHash:   hash,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := r.items.Create(ctx, created); err != nil {
				return inserted, updated, err
			}
			inserted++
			continue
		}

		contentChanged := hash != existing.ContentHash
		stampChanged := candidate.DateUpdated != nil && !candidate.DateUpdated.Equal(existing.DateUpdated)
		if !contentChanged && !stampChanged {
			continue
		}

		existing.Title = candidate.Title
		existing.Summary = candidate.Summary
		existing.FullText = candidate.FullText
		existing.ThumbnailURL = candidate.ThumbnailURL
		existing.Categories = candidate.Categories
		existing.Comments = candidate.Comments
		if candidate.DatePublished != nil {
			existing.DatePublished = *candidate.DatePublished
		}
		existing.DateUpdated = timeOr(candidate.DateUpdated, now)
		existing.ReadingTime = candidate.ReadingTime
		existing.ContentHash = hash
		existing.UpdatedAt = now

		if err := r.items.Update(ctx, existing); err != nil {
			return inserted, updated, err
		}
		updated++
	}

	r.logger.Info("記事を照合しました",
		slog.String("collection_id", collectionID),
		slog.Int("items_total", len(candidates)),
		slog.Int("items_inserted", inserted),
		slog.Int("items_updated", updated),
	)

	return inserted, updated, nil
}

// ContentHash は title|summary|fullText のSHA-256ハッシュを計算する。
// 更新検出に使用され、同一の入力に対して常に同一の値を返す。
func ContentHash(title, summary, fullText string) string {
	sum := sha256.Sum256([]byte(title + "|" + summary + "|" + fullText))
	return hex.EncodeToString(sum[:])
}

func timeOr(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}
