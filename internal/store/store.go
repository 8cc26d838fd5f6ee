// Package store persists finished market runs in Pebble so they can be
// analysed after the process exits.
//
// Key layout:
//
//	m/<run id>               run record
//	s/<run id>/<seq:8 BE>    snapshot seq of the run
//	t/<run id>/<seq:8 BE>    trade seq of the run
package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	. "cdasim/internal/common"
	"cdasim/internal/engine"
	"cdasim/internal/market"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrRunNotFound = errors.New("run not found")

// Record is the persisted summary of a run. Snapshots and trades are stored
// under their own keys and loaded on demand.
type Record struct {
	ID        uuid.UUID     `json:"id"`
	Scenario  string        `json:"scenario,omitempty"`
	Config    market.Config `json:"config"`
	Horizon   float64       `json:"horizon"`
	Events    uint64        `json:"events"`
	Orders    int           `json:"orders"`
	FillRatio *float64      `json:"fill_ratio"` // nil when the run saw no orders
	Depth     engine.Depth  `json:"depth"`
	Bids      []Quote       `json:"bids"`
	Asks      []Quote       `json:"asks"`
}

// TradeRecord is a trade with its orders reduced to ids.
type TradeRecord struct {
	Price     decimal.Decimal `json:"price"`
	Time      float64         `json:"time"`
	RestingID uint64          `json:"resting_id"`
	TakerID   uint64          `json:"taker_id"`
}

type Store struct {
	db     *pebble.DB
	logger zerolog.Logger
}

func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func metaKey(id uuid.UUID) []byte { return append([]byte("m/"), id[:]...) }

func seriesPrefix(kind byte, id uuid.UUID) []byte {
	key := []byte{kind, '/'}
	key = append(key, id[:]...)
	return append(key, '/')
}

func seriesKey(kind byte, id uuid.UUID, seq int) []byte {
	return binary.BigEndian.AppendUint64(seriesPrefix(kind, id), uint64(seq))
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// SaveRun writes a finished run atomically. It is safe to call from several
// goroutines.
func (s *Store) SaveRun(scenario string, result *market.Result) error {
	rec := Record{
		ID:       result.ID,
		Scenario: scenario,
		Config:   result.Config,
		Horizon:  result.Horizon,
		Events:   result.Events,
		Orders:   len(result.History.Orders),
		Depth:    result.Depth,
		Bids:     result.History.Bids,
		Asks:     result.History.Asks,
	}
	if ratio, err := result.FillRatio(); err == nil {
		rec.FillRatio = &ratio
	} else if !errors.Is(err, engine.ErrNoOrders) {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := batch.Set(metaKey(rec.ID), data, nil); err != nil {
		return err
	}

	for i, snap := range result.History.Snapshots {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot %d: %w", i, err)
		}
		if err := batch.Set(seriesKey('s', rec.ID, i), data, nil); err != nil {
			return err
		}
	}

	for i, trade := range result.History.Trades {
		data, err := json.Marshal(TradeRecord{
			Price:     trade.Price,
			Time:      trade.Time,
			RestingID: trade.Resting.ID,
			TakerID:   trade.Taker.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal trade %d: %w", i, err)
		}
		if err := batch.Set(seriesKey('t', rec.ID, i), data, nil); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug().
		Str("run", rec.ID.String()).
		Str("scenario", scenario).
		Int("snapshots", len(result.History.Snapshots)).
		Int("trades", len(result.History.Trades)).
		Msg("run saved")
	return nil
}

// LoadRun loads a run record.
func (s *Store) LoadRun(id uuid.UUID) (*Record, error) {
	data, closer, err := s.db.Get(metaKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &rec, nil
}

// RunIDs lists every stored run in key order.
func (s *Store) RunIDs() ([]uuid.UUID, error) {
	prefix := []byte("m/")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []uuid.UUID
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := uuid.FromBytes(iter.Key()[len(prefix):])
		if err != nil {
			return nil, fmt.Errorf("corrupt run key %x: %w", iter.Key(), err)
		}
		ids = append(ids, id)
	}
	return ids, iter.Error()
}

// Snapshots loads the snapshot sequence of a run in order.
func (s *Store) Snapshots(id uuid.UUID) ([]engine.Snapshot, error) {
	var snaps []engine.Snapshot
	err := s.scan('s', id, func(data []byte) error {
		var snap engine.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, snap)
		return nil
	})
	return snaps, err
}

// Trades loads the trades of a run in order.
func (s *Store) Trades(id uuid.UUID) ([]TradeRecord, error) {
	var trades []TradeRecord
	err := s.scan('t', id, func(data []byte) error {
		var trade TradeRecord
		if err := json.Unmarshal(data, &trade); err != nil {
			return fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		trades = append(trades, trade)
		return nil
	})
	return trades, err
}

func (s *Store) scan(kind byte, id uuid.UUID, fn func(data []byte) error) error {
	if _, err := s.LoadRun(id); err != nil {
		return err
	}

	prefix := seriesPrefix(kind, id)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
