package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"edu_portal_backend/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AttemptStore keeps the active_key uniqueness of the SQL table: a second
// started row for the same pair fails with gorm.ErrDuplicatedKey.
type AttemptStore struct {
	db *DB
}

func NewAttemptStore(db *DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) Create(_ context.Context, attempt *model.Attempt) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()
	if s.db.fail != nil {
		return s.db.fail
	}
	var key string
	if attempt.Status == model.AttemptStarted && attempt.StudentID != nil {
		key = model.ActiveAttemptKey(*attempt.StudentID, attempt.AssessmentID)
		if _, taken := s.db.active[key]; taken {
			return gorm.ErrDuplicatedKey
		}
	}
	stamp(&attempt.BaseModel, s.db.nextID())
	if key != "" {
		attempt.ActiveKey = &key
		s.db.active[key] = attempt.ID
	}
	row := *attempt
	row.Assessment = nil
	s.db.attempts[attempt.ID] = &row
	return nil
}

func (s *AttemptStore) FindByID(_ context.Context, id uint) (*model.Attempt, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	a, ok := s.db.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *a
	return &out, nil
}

func (s *AttemptStore) FindActive(_ context.Context, studentID, assessmentID uint) (*model.Attempt, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	id, ok := s.db.active[model.ActiveAttemptKey(studentID, assessmentID)]
	if !ok {
		return nil, nil
	}
	out := *s.db.attempts[id]
	return &out, nil
}

func (s *AttemptStore) finish(id uint, status model.AttemptStatus, at time.Time, apply func(a *model.Attempt)) (bool, error) {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()
	if s.db.fail != nil {
		return false, s.db.fail
	}
	a, ok := s.db.attempts[id]
	if !ok || a.Status != model.AttemptStarted {
		return false, nil
	}
	if a.ActiveKey != nil {
		delete(s.db.active, *a.ActiveKey)
	}
	a.Status = status
	a.CompletedAt = &at
	a.ActiveKey = nil
	a.UpdatedAt = time.Now()
	if apply != nil {
		apply(a)
	}
	return true, nil
}

func (s *AttemptStore) Complete(_ context.Context, id uint, score int, answers datatypes.JSON, at time.Time) (bool, error) {
	return s.finish(id, model.AttemptCompleted, at, func(a *model.Attempt) {
		a.Score = &score
		a.Answers = answers
	})
}

func (s *AttemptStore) Abandon(_ context.Context, id uint, at time.Time) (bool, error) {
	return s.finish(id, model.AttemptAbandoned, at, nil)
}

func (s *AttemptStore) ListByStudent(_ context.Context, identity model.StudentIdentity) ([]model.Attempt, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	out := make([]model.Attempt, 0)
	for _, a := range s.db.attempts {
		if !matchesManual(a, identity) {
			continue
		}
		row := *a
		if as, ok := s.db.assessmentIncludingDeleted(a.AssessmentID); ok {
			ac := *as
			row.Assessment = &ac
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func matchesManual(a *model.Attempt, identity model.StudentIdentity) bool {
	if identity.StudentID == nil && identity.Email == "" {
		return identity.UserID == ""
	}
	if identity.StudentID != nil && a.StudentID != nil && *a.StudentID == *identity.StudentID {
		return true
	}
	return identity.Email != "" && strings.EqualFold(a.StudentEmail, identity.Email)
}
