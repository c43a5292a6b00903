package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
)

// workingTradeLimit bounds the working snapshot so restarts stay fast;
// the full history file is never truncated.
const workingTradeLimit = 100

// workingState is the compact restart snapshot: counters plus the most
// recent trades.
type workingState struct {
	Bankroll      decimal.Decimal `json:"bankroll"`
	DailyBets     int             `json:"daily_bets"`
	DailyPnl      decimal.Decimal `json:"daily_pnl"`
	LastResetDate string          `json:"last_reset_date"`
	Trades        []*domain.Trade `json:"trades"`
}

// Store persists ledger state to two JSON files: a bounded working
// snapshot for fast restart and an unbounded append-only history.
// Appends are idempotent — each trade's composite ID lands in the
// history exactly once, tracked by a saved-ID set rebuilt from the file
// on startup so a crash-and-retry never double-appends.
//
// Single-writer by design; the mutex only serializes Save callers
// within this process.
type Store struct {
	mu          sync.Mutex
	workingPath string
	historyPath string
	savedIDs    map[string]struct{}
}

// NewStore creates a store writing trades.json and trade_history.json
// under dir, rebuilding the saved-ID set from any existing history.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		workingPath: filepath.Join(dir, "trades.json"),
		historyPath: filepath.Join(dir, "trade_history.json"),
		savedIDs:    make(map[string]struct{}),
	}
	history, err := s.readHistory()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	for _, t := range history {
		if t.ID != "" {
			s.savedIDs[t.ID] = struct{}{}
		}
	}
	return s, nil
}

// SaveWorking writes the working snapshot atomically (temp + rename).
func (s *Store) SaveWorking(ws *workingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.workingPath, ws)
}

// LoadWorking reads the working snapshot. A missing file returns
// (nil, nil).
func (s *Store) LoadWorking() (*workingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.workingPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ws workingState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.workingPath, err)
	}
	return &ws, nil
}

// AppendHistory appends trades whose IDs have not been saved yet and
// returns how many were appended. Already-saved IDs are skipped, which
// makes the call safe to repeat after a crash.
func (s *Store) AppendHistory(trades []*domain.Trade) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []*domain.Trade
	for _, t := range trades {
		if t.ID == "" {
			continue
		}
		if _, saved := s.savedIDs[t.ID]; !saved {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	history, err := s.readHistory()
	if err != nil {
		return 0, err
	}
	history = append(history, fresh...)
	if err := writeJSONAtomic(s.historyPath, history); err != nil {
		return 0, err
	}
	for _, t := range fresh {
		s.savedIDs[t.ID] = struct{}{}
	}
	return len(fresh), nil
}

// PatchHistory rewrites history records whose in-memory trade has
// reached a terminal state while the file still says pending. Returns
// how many records were patched.
func (s *Store) PatchHistory(trades []*domain.Trade) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	terminal := make(map[string]*domain.Trade)
	for _, t := range trades {
		if t.ID != "" && t.IsTerminal() {
			terminal[t.ID] = t
		}
	}
	if len(terminal) == 0 {
		return 0, nil
	}

	history, err := s.readHistory()
	if err != nil {
		return 0, err
	}

	patched := 0
	for i, rec := range history {
		t, ok := terminal[rec.ID]
		if !ok || rec.IsTerminal() {
			continue
		}
		history[i].Settlement = t.Settlement
		history[i].Position = t.Position
		patched++
	}
	if patched == 0 {
		return 0, nil
	}
	if err := writeJSONAtomic(s.historyPath, history); err != nil {
		return 0, err
	}
	return patched, nil
}

// HistoryLen returns how many trades the history file holds.
func (s *Store) HistoryLen() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.readHistory()
	if err != nil {
		return 0, err
	}
	return len(history), nil
}

// readHistory loads the append-only file. Missing file means empty
// history. Caller holds mu.
func (s *Store) readHistory() ([]*domain.Trade, error) {
	data, err := os.ReadFile(s.historyPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var history []*domain.Trade
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.historyPath, err)
	}
	return history, nil
}

// writeJSONAtomic writes via a temp file in the same directory and
// renames it into place, so a crash mid-write never corrupts the
// previous state.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
