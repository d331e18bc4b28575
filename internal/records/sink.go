// Package records provides the write-once call record sink.
package records

import (
	"fmt"
	"sync"

	"github.com/loadline/loadline/internal/models"
	"gorm.io/gorm"
)

// Sink receives the terminal summary of a call exactly once. The core
// never reads records back through this interface.
type Sink interface {
	Append(rec *models.CallRecord) error
}

// GormSink persists call records to the database.
type GormSink struct {
	db *gorm.DB
}

// NewGormSink creates a GormSink.
func NewGormSink(db *gorm.DB) (*GormSink, error) {
	if db == nil {
		return nil, fmt.Errorf("records: db is required")
	}
	return &GormSink{db: db}, nil
}

// Append inserts a call record. Records are immutable: a second append
// for the same call ID is an error, never an update.
func (s *GormSink) Append(rec *models.CallRecord) error {
	if rec == nil || rec.CallID == "" {
		return fmt.Errorf("records: call record with call ID is required")
	}
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("records: append %s: %w", rec.CallID, err)
	}
	return nil
}

// MemorySink collects records in memory for tests.
type MemorySink struct {
	mu   sync.Mutex
	recs []*models.CallRecord
	Err  error // returned by Append when set
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append implements Sink.
func (s *MemorySink) Append(rec *models.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if rec == nil || rec.CallID == "" {
		return fmt.Errorf("records: call record with call ID is required")
	}
	for _, existing := range s.recs {
		if existing.CallID == rec.CallID {
			return fmt.Errorf("records: duplicate append for %s", rec.CallID)
		}
	}
	s.recs = append(s.recs, rec)
	return nil
}

// Records returns the appended records.
func (s *MemorySink) Records() []*models.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.CallRecord(nil), s.recs...)
}
