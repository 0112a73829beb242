package poolstate

import (
	"math/big"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Snapshot is the last observed reserve state of one pool.
type Snapshot struct {
	Token0    common.Address
	Token1    common.Address
	Reserve0  *big.Int
	Reserve1  *big.Int
	UpdatedAt time.Time

	// Seeded marks state loaded from the on-disk snapshot rather than
	// observed live. Treated as equivalent to freshly observed events.
	Seeded bool
}

// Price returns reserve1/reserve0, false when reserves are unusable.
func (s *Snapshot) Price() (float64, bool) {
	if s.Reserve0 == nil || s.Reserve1 == nil || s.Reserve0.Sign() <= 0 || s.Reserve1.Sign() <= 0 {
		return 0, false
	}
	price, _ := new(big.Float).Quo(
		new(big.Float).SetInt(s.Reserve1),
		new(big.Float).SetInt(s.Reserve0),
	).Float64()
	return price, true
}

// Store keeps per-pool reserve snapshots in a TTL cache. Pools with no
// recent activity age out, bounding total memory.
type Store struct {
	cache  *ristretto.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// Config holds pool state store configuration.
type Config struct {
	MaxEntries int64
	TTL        time.Duration
	Logger     *zap.Logger
}

// New creates a ristretto-backed pool state store.
func New(cfg *Config) (*Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	return &Store{
		cache:  cache,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}, nil
}

// Get returns the last known snapshot for a pool.
func (s *Store) Get(pool common.Address) (*Snapshot, bool) {
	value, found := s.cache.Get(pool.Hex())
	if !found {
		MissesTotal.Inc()
		return nil, false
	}

	snapshot, ok := value.(*Snapshot)
	if !ok {
		MissesTotal.Inc()
		return nil, false
	}

	HitsTotal.Inc()
	return snapshot, true
}

// Put stores the latest snapshot for a pool.
func (s *Store) Put(pool common.Address, snapshot *Snapshot) {
	s.cache.SetWithTTL(pool.Hex(), snapshot, 1, s.ttl)
	UpdatesTotal.Inc()
}

// Wait blocks until pending writes are applied. Used by seeding and tests.
func (s *Store) Wait() {
	s.cache.Wait()
}

// Close releases the cache.
func (s *Store) Close() {
	s.cache.Close()
	s.logger.Info("poolstate-store-closed")
}
