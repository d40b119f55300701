package memory

import (
	"context"
	"strings"

	"edu_portal_backend/internal/model"

	"gorm.io/gorm"
)

type StudentStore struct {
	db *DB
}

func NewStudentStore(db *DB) *StudentStore {
	return &StudentStore{db: db}
}

func (s *StudentStore) FindByID(_ context.Context, id uint) (*model.Student, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	st, ok := s.db.students[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *st
	return &out, nil
}

func (s *StudentStore) FindByEmail(_ context.Context, email string) (*model.Student, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	for _, st := range s.db.students {
		if strings.EqualFold(st.Email, email) {
			out := *st
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *StudentStore) FindProfilesByIDs(_ context.Context, ids []string) ([]model.Profile, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	out := make([]model.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.db.profiles[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *StudentStore) FindProfileByEmail(_ context.Context, email string) (*model.Profile, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	for _, p := range s.db.profiles {
		if strings.EqualFold(p.Email, email) {
			out := *p
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
