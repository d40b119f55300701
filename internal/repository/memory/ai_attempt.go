package memory

import (
	"context"
	"sort"
	"strings"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/repository"
)

type AIAttemptStore struct {
	db *DB
}

func NewAIAttemptStore(db *DB) *AIAttemptStore {
	return &AIAttemptStore{db: db}
}

func (s *AIAttemptStore) ListByStudent(_ context.Context, identity model.StudentIdentity) ([]model.AIAttempt, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	out := make([]model.AIAttempt, 0)
	if identity.UserID == "" && identity.Email == "" && identity.StudentID != nil {
		return out, nil
	}
	for _, a := range s.db.aiAttempts {
		if identity.UserID == "" && identity.Email == "" {
			out = append(out, a)
			continue
		}
		if identity.UserID != "" && a.UserID != nil && *a.UserID == identity.UserID {
			out = append(out, a)
			continue
		}
		if identity.Email != "" && strings.EqualFold(a.StudentEmail, identity.Email) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > repository.AIAttemptListLimit {
		out = out[:repository.AIAttemptListLimit]
	}
	return out, nil
}
