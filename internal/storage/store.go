// Package storage holds the only state this service owns: local fallback
// payment records, plus the Redis-backed ride activity feed.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/chainride/internal/models"
)

// ErrDuplicate is returned when a record already exists for (ride, client).
var ErrDuplicate = errors.New("storage: fallback payment already recorded")

// PaymentStore persists fallback payment records keyed by ride, one entry
// per paying client.
type PaymentStore interface {
	Save(ctx context.Context, rec models.FallbackPayment) error
	Get(ctx context.Context, rideID, clientID uint64) (models.FallbackPayment, bool, error)
	List(ctx context.Context) ([]models.FallbackPayment, error)
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[uint64]map[uint64]models.FallbackPayment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uint64]map[uint64]models.FallbackPayment)}
}

func (m *MemoryStore) Save(_ context.Context, rec models.FallbackPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byClient, ok := m.records[rec.RideID]
	if !ok {
		byClient = make(map[uint64]models.FallbackPayment)
		m.records[rec.RideID] = byClient
	}
	if _, exists := byClient[rec.ClientID]; exists {
		return ErrDuplicate
	}
	byClient[rec.ClientID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, rideID, clientID uint64) (models.FallbackPayment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[rideID][clientID]
	return rec, ok, nil
}

func (m *MemoryStore) List(context.Context) ([]models.FallbackPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.FallbackPayment
	for _, byClient := range m.records {
		for _, rec := range byClient {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

func sortRecords(recs []models.FallbackPayment) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].RideID != recs[j].RideID {
			return recs[i].RideID < recs[j].RideID
		}
		return recs[i].ClientID < recs[j].ClientID
	})
}
