package transaction

import (
	"fmt"
	"sync"
	"time"

	"github.com/arzzra/voipcore/pkg/sip/core/types"
)

// Store is a thread-safe registry of in-flight transactions, indexed both
// by TransactionKey and by (Call-ID, CSeq) for stray-message correlation.
type Store struct {
	mu           sync.RWMutex
	transactions map[string]Transaction // key string -> transaction
	byMessage    map[string][]string    // message key -> transaction keys

	stats StoreStats

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

// StoreStats is a snapshot of store-level counters.
type StoreStats struct {
	TotalTransactions    uint64
	ActiveTransactions   uint64
	CleanedTransactions  uint64
	MessageKeyCollisions uint64
}

// NewStore creates an empty store and starts its background cleanup loop.
func NewStore() *Store {
	s := &Store{
		transactions: make(map[string]Transaction),
		byMessage:    make(map[string][]string),
		stopCleanup:  make(chan struct{}),
	}

	s.cleanupTicker = time.NewTicker(30 * time.Second)
	go s.cleanupRoutine()

	return s
}

// Add registers a new transaction, rejecting a duplicate key.
func (s *Store) Add(tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tx.Key().String()

	if _, exists := s.transactions[key]; exists {
		return NewTransactionError(tx.ID(), "add to store", tx.State(),
			fmt.Errorf("transaction with key %s already exists", key))
	}

	s.transactions[key] = tx
	s.stats.TotalTransactions++
	s.stats.ActiveTransactions++

	if req := tx.Request(); req != nil {
		msgKey := generateMessageKey(req)
		s.byMessage[msgKey] = append(s.byMessage[msgKey], key)

		if len(s.byMessage[msgKey]) > 1 {
			s.stats.MessageKeyCollisions++
		}
	}

	return nil
}

// Get looks up a transaction by its matching key.
func (s *Store) Get(key TransactionKey) (Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[key.String()]
	return tx, ok
}

// GetByID looks up a transaction by its opaque ID.
func (s *Store) GetByID(id string) (Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactions {
		if tx.ID() == id {
			return tx, true
		}
	}
	return nil, false
}

// FindByMessage returns every transaction sharing msg's (Call-ID, CSeq).
func (s *Store) FindByMessage(msg types.Message) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgKey := generateMessageKey(msg)
	txKeys, ok := s.byMessage[msgKey]
	if !ok {
		return nil
	}

	var result []Transaction
	for _, key := range txKeys {
		if tx, ok := s.transactions[key]; ok {
			result = append(result, tx)
		}
	}

	return result
}

// Remove drops a transaction from the store.
func (s *Store) Remove(key TransactionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyStr := key.String()
	tx, exists := s.transactions[keyStr]
	if !exists {
		return false
	}

	delete(s.transactions, keyStr)
	s.stats.ActiveTransactions--

	if req := tx.Request(); req != nil {
		msgKey := generateMessageKey(req)
		s.removeFromMessageIndex(msgKey, keyStr)
	}

	return true
}

// GetAll returns every transaction currently tracked.
func (s *Store) GetAll() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		result = append(result, tx)
	}

	return result
}

// Count returns the number of tracked transactions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.transactions)
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stats
}

// Close stops the cleanup loop and drops all tracked transactions.
func (s *Store) Close() error {
	close(s.stopCleanup)
	s.cleanupTicker.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = make(map[string]Transaction)
	s.byMessage = make(map[string][]string)

	return nil
}

func (s *Store) cleanupRoutine() {
	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toRemove []string

	for key, tx := range s.transactions {
		if tx.IsTerminated() {
			toRemove = append(toRemove, key)
		}
	}

	for _, key := range toRemove {
		if tx, ok := s.transactions[key]; ok {
			delete(s.transactions, key)
			s.stats.ActiveTransactions--
			s.stats.CleanedTransactions++

			if req := tx.Request(); req != nil {
				msgKey := generateMessageKey(req)
				s.removeFromMessageIndex(msgKey, key)
			}
		}
	}
}

func (s *Store) removeFromMessageIndex(msgKey, txKey string) {
	keys := s.byMessage[msgKey]
	if len(keys) == 0 {
		return
	}

	newKeys := make([]string, 0, len(keys)-1)
	for _, k := range keys {
		if k != txKey {
			newKeys = append(newKeys, k)
		}
	}

	if len(newKeys) == 0 {
		delete(s.byMessage, msgKey)
	} else {
		s.byMessage[msgKey] = newKeys
	}
}

// generateMessageKey derives the (Call-ID, CSeq) correlation key used to
// find every transaction belonging to one SIP message exchange, falling
// back to the Via branch when either header is absent.
func generateMessageKey(msg types.Message) string {
	callID := msg.GetHeader("Call-ID")
	cseq := msg.GetHeader("CSeq")

	if callID == "" || cseq == "" {
		via := msg.GetHeader("Via")
		branch := extractBranch(via)
		return branch
	}

	return callID + "|" + cseq
}

// CleanupTerminated forces an immediate sweep of terminated transactions,
// returning the number removed.
func (s *Store) CleanupTerminated() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	var toRemove []string

	for key, tx := range s.transactions {
		if tx.IsTerminated() {
			toRemove = append(toRemove, key)
			count++
		}
	}

	for _, key := range toRemove {
		if tx, ok := s.transactions[key]; ok {
			delete(s.transactions, key)
			s.stats.ActiveTransactions--
			s.stats.CleanedTransactions++

			if req := tx.Request(); req != nil {
				msgKey := generateMessageKey(req)
				s.removeFromMessageIndex(msgKey, key)
			}
		}
	}

	return count
}
