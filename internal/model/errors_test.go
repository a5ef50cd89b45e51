package model

import (
	"fmt"
	"testing"
)

// TestKindOf はエラー分類の判定をテストする。ラップされたエラーも判別できる。
func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("操作に失敗しました: %w", NewEmptyTitleError())
	if KindOf(wrapped) != KindValidation {
		t.Errorf("KindOf(wrapped) = %s, want %s", KindOf(wrapped), KindValidation)
	}

	if KindOf(fmt.Errorf("plain error")) != KindIntegrity {
		t.Error("non-APIError should be classified as integrity")
	}
}

// TestPredicates はエラー分類の述語をテストする。
func TestPredicates(t *testing.T) {
	if !IsValidation(NewInvalidMoveError("x")) {
		t.Error("invalid move should be a validation error")
	}
	if !IsNotFound(NewCollectionNotFoundError("x")) {
		t.Error("collection not found should be a not found error")
	}
	if !IsConflict(NewDuplicateFeedURLError("x")) {
		t.Error("duplicate feed url should be a conflict error")
	}
	if !IsFetch(NewParseFailedError("x")) {
		t.Error("parse failure should be a fetch error")
	}
	if IsValidation(NewOrderIntegrityError("x")) {
		t.Error("order integrity should not be a validation error")
	}
}
