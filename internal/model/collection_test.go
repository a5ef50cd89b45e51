package model

import (
	"testing"
	"time"
)

// TestIsDue_Boundary は更新間隔ちょうどの経過で更新対象になることをテストする。
func TestIsDue_Boundary(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		url         string
		dateUpdated *time.Time
		interval    int
		want        bool
	}{
		{"URLなしは対象外", "", nil, 30, false},
		{"未更新は対象", "https://example.com/feed", nil, 30, true},
		{"31分前は対象", "https://example.com/feed", timePtr(now.Add(-31 * time.Minute)), 30, true},
		{"ちょうど30分前は対象", "https://example.com/feed", timePtr(now.Add(-30 * time.Minute)), 30, true},
		{"29分前は対象外", "https://example.com/feed", timePtr(now.Add(-29 * time.Minute)), 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Collection{
				URL:             tt.url,
				DateUpdated:     tt.dateUpdated,
				RefreshInterval: tt.interval,
			}
			if got := c.IsDue(now); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestHasURL はフィードURLの有無判定をテストする。
func TestHasURL(t *testing.T) {
	if (&Collection{}).HasURL() {
		t.Error("empty url should not count as a feed")
	}
	if !(&Collection{URL: "https://example.com/feed"}).HasURL() {
		t.Error("collection with url should count as a feed")
	}
}

// TestValidIcon は定義済みアイコン集合の検証をテストする。
func TestValidIcon(t *testing.T) {
	for _, icon := range []Icon{IconRSS, IconCode, IconNews, IconScience, IconStar, IconTech, IconWorld} {
		if !ValidIcon(icon) {
			t.Errorf("ValidIcon(%q) = false, want true", icon)
		}
	}
	if ValidIcon("sparkles") {
		t.Error("undefined icon should be invalid")
	}
	if ValidIcon("") {
		t.Error("empty icon should be invalid")
	}
}

// TestValidLayout は定義済みレイアウト集合の検証をテストする。
func TestValidLayout(t *testing.T) {
	if !ValidLayout(LayoutCard) || !ValidLayout(LayoutMagazine) {
		t.Error("defined layouts should be valid")
	}
	if ValidLayout("list") {
		t.Error("undefined layout should be invalid")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
