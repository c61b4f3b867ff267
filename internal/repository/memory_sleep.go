package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"mhealth-data/internal/domain"
)

// MemorySleepRepository supports local development and unit tests when DB is disabled.
type MemorySleepRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.SleepRecord // sleepID -> record
}

func NewMemorySleepRepository() *MemorySleepRepository {
	return &MemorySleepRepository{
		records: map[string]*domain.SleepRecord{},
	}
}

var _ SleepRepository = (*MemorySleepRepository)(nil)

func (r *MemorySleepRepository) CheckExist(_ context.Context, rec *domain.SleepRecord) (bool, error) {
	start, err := domain.ParseTimestamp(rec.StartTime)
	if err != nil {
		return false, &domain.RepositoryError{Message: "invalid start_time for existence check", Err: err}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, existing := range r.records {
		if existing.PatientID != rec.PatientID {
			continue
		}
		t, err := domain.ParseTimestamp(existing.StartTime)
		if err != nil {
			continue
		}
		if t.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemorySleepRepository) Create(_ context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// (patient_id, start_time) uniqueness backstop, same mapping as the DB constraint
	start, err := domain.ParseTimestamp(rec.StartTime)
	if err != nil {
		return nil, &domain.RepositoryError{Message: "invalid start_time", Err: err}
	}
	for _, existing := range r.records {
		if existing.PatientID != rec.PatientID {
			continue
		}
		if t, err := domain.ParseTimestamp(existing.StartTime); err == nil && t.Equal(start) {
			return nil, &domain.ConflictError{
				Message: "A registration with the same unique data already exists!",
			}
		}
	}

	r.records[rec.ID] = rec.Clone()
	return rec.Clone(), nil
}

func (r *MemorySleepRepository) Update(_ context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[rec.ID]
	if !ok || existing.PatientID != rec.PatientID {
		return nil, nil
	}
	r.records[rec.ID] = rec.Clone()
	return rec.Clone(), nil
}

func (r *MemorySleepRepository) GetByID(_ context.Context, patientID, sleepID string) (*domain.SleepRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[sleepID]
	if !ok || rec.PatientID != patientID {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (r *MemorySleepRepository) Find(_ context.Context, q SleepQuery) ([]*domain.SleepRecord, error) {
	q.Normalize()

	all, err := r.filter(q)
	if err != nil {
		return nil, err
	}

	start := (q.Page - 1) * q.Size
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Size
	if end > len(all) {
		end = len(all)
	}

	out := make([]*domain.SleepRecord, 0, end-start)
	for _, rec := range all[start:end] {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (r *MemorySleepRepository) Count(_ context.Context, q SleepQuery) (int, error) {
	all, err := r.filter(q)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (r *MemorySleepRepository) Delete(_ context.Context, patientID, sleepID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[sleepID]
	if !ok || rec.PatientID != patientID {
		return false, nil
	}
	delete(r.records, sleepID)
	return true, nil
}

func (r *MemorySleepRepository) filter(q SleepQuery) ([]*domain.SleepRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type sortable struct {
		rec   *domain.SleepRecord
		start time.Time
	}
	var matched []sortable
	for _, rec := range r.records {
		if rec.PatientID != q.PatientID {
			continue
		}
		t, err := domain.ParseTimestamp(rec.StartTime)
		if err != nil {
			continue
		}
		if q.StartDate != nil && t.Before(*q.StartDate) {
			continue
		}
		if q.EndDate != nil && t.After(*q.EndDate) {
			continue
		}
		matched = append(matched, sortable{rec: rec, start: t})
	}

	sort.Slice(matched, func(i, j int) bool {
		if q.SortDesc {
			return matched[i].start.After(matched[j].start)
		}
		return matched[i].start.Before(matched[j].start)
	})

	out := make([]*domain.SleepRecord, len(matched))
	for i, m := range matched {
		out[i] = m.rec
	}
	return out, nil
}
