package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
)

func setupTestDB(t *testing.T) *Storage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return s
}

func testWindow(start int64) *domain.MarketWindow {
	return &domain.MarketWindow{
		WindowStart: start,
		Slug:        "btc-updown-5m-1771051500",
		ConditionID: "0xabc",
		UpTokenID:   "111",
		DownTokenID: "222",
		TakerFeeBps: 1000,
	}
}

func TestSaveAndGetMarketWindow(t *testing.T) {
	s := setupTestDB(t)

	if err := s.SaveMarketWindow(testWindow(1771051500)); err != nil {
		t.Fatalf("SaveMarketWindow failed: %v", err)
	}

	fetched, err := s.GetMarketWindow(1771051500)
	if err != nil {
		t.Fatalf("GetMarketWindow failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("fetched window is nil")
	}
	if fetched.UpTokenID != "111" || fetched.DownTokenID != "222" {
		t.Errorf("tokens = %s/%s", fetched.UpTokenID, fetched.DownTokenID)
	}
}

func TestSaveMarketWindowUpsertKeepsOutcome(t *testing.T) {
	s := setupTestDB(t)
	s.SaveMarketWindow(testWindow(1771051500))

	if err := s.MarkWindowResolved(1771051500, domain.DirectionUp, "resolved"); err != nil {
		t.Fatalf("MarkWindowResolved failed: %v", err)
	}

	// Re-saving the same window (reconnect path) must not wipe the
	// resolution.
	w := testWindow(1771051500)
	w.ConditionID = "0xdef"
	if err := s.SaveMarketWindow(w); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	fetched, _ := s.GetMarketWindow(1771051500)
	if fetched.Outcome != "up" {
		t.Errorf("outcome = %q, want up", fetched.Outcome)
	}
	if fetched.ConditionID != "0xdef" {
		t.Errorf("condition = %q, want updated value", fetched.ConditionID)
	}
}

func TestMarkWindowResolvedUnknownWindow(t *testing.T) {
	s := setupTestDB(t)
	if err := s.MarkWindowResolved(999, domain.DirectionDown, "resolved"); err == nil {
		t.Fatal("expected error for unknown window")
	}
}

func TestGetMarketWindowMissing(t *testing.T) {
	s := setupTestDB(t)
	fetched, err := s.GetMarketWindow(123)
	if err != nil {
		t.Fatalf("GetMarketWindow failed: %v", err)
	}
	if fetched != nil {
		t.Error("expected nil for missing window")
	}
}

func TestRecentOutcomesNewestFirst(t *testing.T) {
	s := setupTestDB(t)

	for i, dir := range []domain.Direction{domain.DirectionUp, domain.DirectionDown, domain.DirectionUp} {
		start := int64(1771051500 + i*300)
		s.SaveMarketWindow(testWindow(start))
		s.MarkWindowResolved(start, dir, "resolved")
	}
	// One unresolved window must not appear.
	s.SaveMarketWindow(testWindow(1771053000))

	outcomes, err := s.RecentOutcomes(10)
	if err != nil {
		t.Fatalf("RecentOutcomes failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	if outcomes[0].WindowStart != 1771052100 {
		t.Errorf("first = %d, want newest", outcomes[0].WindowStart)
	}
	if outcomes[0].Outcome != "up" || outcomes[1].Outcome != "down" {
		t.Errorf("order = %s, %s", outcomes[0].Outcome, outcomes[1].Outcome)
	}
}

func TestSaveAndRecentTicks(t *testing.T) {
	s := setupTestDB(t)

	base := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		tick := &domain.TradeTick{
			AssetID:   "111",
			Price:     decimal.RequireFromString("0.51"),
			Size:      decimal.NewFromInt(int64(i + 1)),
			Side:      domain.SideBuy,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveTradeTick(tick); err != nil {
			t.Fatalf("SaveTradeTick failed: %v", err)
		}
	}
	s.SaveTradeTick(&domain.TradeTick{AssetID: "other", Price: decimal.NewFromInt(1), Timestamp: base})

	ticks, err := s.RecentTicks("111", 2)
	if err != nil {
		t.Fatalf("RecentTicks failed: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("ticks = %d, want 2", len(ticks))
	}
	if ticks[0].Size != "3" {
		t.Errorf("newest size = %s, want 3", ticks[0].Size)
	}
	if ticks[0].Price != "0.51" || ticks[0].Side != "BUY" {
		t.Errorf("tick = %+v", ticks[0])
	}
}

func TestPruneTicks(t *testing.T) {
	s := setupTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	s.SaveTradeTick(&domain.TradeTick{AssetID: "111", Price: decimal.NewFromInt(1), Timestamp: old})
	s.SaveTradeTick(&domain.TradeTick{AssetID: "111", Price: decimal.NewFromInt(1), Timestamp: time.Now()})

	n, err := s.PruneTicks(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneTicks failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}

	ticks, _ := s.RecentTicks("111", 10)
	if len(ticks) != 1 {
		t.Errorf("remaining = %d, want 1", len(ticks))
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := setupTestDB(t)

	if err := s.SaveConfig("schema_version", "1"); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	if err := s.SaveConfig("schema_version", "2"); err != nil {
		t.Fatalf("SaveConfig update failed: %v", err)
	}

	m, err := s.LoadConfigMap()
	if err != nil {
		t.Fatalf("LoadConfigMap failed: %v", err)
	}
	if m["schema_version"] != "2" {
		t.Errorf("value = %q, want 2", m["schema_version"])
	}
}
