package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/util"
	"edu_portal_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultIdentityTTL = 5 * time.Minute

// IdentityService resolves students and profiles. Student rows are cached in
// redis when a client is configured; cache faults fall through to the store.
type IdentityService struct {
	Students StudentDirectory
	Cache    *redis.Client
	TTL      time.Duration
}

func NewIdentityService(students StudentDirectory, cache *redis.Client, ttl time.Duration) *IdentityService {
	if ttl <= 0 {
		ttl = defaultIdentityTTL
	}
	return &IdentityService{Students: students, Cache: cache, TTL: ttl}
}

func studentIDKey(id uint) string {
	return fmt.Sprintf("edu:student:id:%d", id)
}

func studentEmailKey(email string) string {
	return "edu:student:email:" + strings.ToLower(strings.TrimSpace(email))
}

func (s *IdentityService) cached(ctx context.Context, key string) *model.Student {
	if s.Cache == nil {
		return nil
	}
	data, err := s.Cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("student cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	var st model.Student
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Log.Warn("student cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &st
}

func (s *IdentityService) remember(ctx context.Context, st *model.Student) {
	if s.Cache == nil || st == nil {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	pipe := s.Cache.Pipeline()
	pipe.Set(ctx, studentIDKey(st.ID), data, s.TTL)
	pipe.Set(ctx, studentEmailKey(st.Email), data, s.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("student cache write failed", zap.Uint("student_id", st.ID), zap.Error(err))
	}
}

// FindStudentByID returns nil, nil when no student has the id.
func (s *IdentityService) FindStudentByID(ctx context.Context, id uint) (*model.Student, error) {
	if st := s.cached(ctx, studentIDKey(id)); st != nil {
		return st, nil
	}
	st, err := s.Students.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, util.NewStorageError("find student", err)
	}
	s.remember(ctx, st)
	return st, nil
}

// FindStudentByEmail returns nil, nil when no student has the email.
func (s *IdentityService) FindStudentByEmail(ctx context.Context, email string) (*model.Student, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	if st := s.cached(ctx, studentEmailKey(email)); st != nil {
		return st, nil
	}
	st, err := s.Students.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, util.NewStorageError("find student by email", err)
	}
	s.remember(ctx, st)
	return st, nil
}

// ResolveStudent maps an id and/or email to exactly one student. When both
// are given they must name the same row.
func (s *IdentityService) ResolveStudent(ctx context.Context, id *uint, email string) (*model.Student, error) {
	email = strings.TrimSpace(email)
	if (id == nil || *id == 0) && email == "" {
		return nil, fmt.Errorf("%w: student id or email is required", util.ErrInvalidStudent)
	}

	var byID, byEmail *model.Student
	var err error
	if id != nil && *id != 0 {
		if byID, err = s.FindStudentByID(ctx, *id); err != nil {
			return nil, err
		}
		if byID == nil {
			return nil, fmt.Errorf("%w: no student with id %d", util.ErrInvalidStudent, *id)
		}
	}
	if email != "" {
		if byEmail, err = s.FindStudentByEmail(ctx, email); err != nil {
			return nil, err
		}
		if byEmail == nil {
			return nil, fmt.Errorf("%w: no student with email %s", util.ErrInvalidStudent, email)
		}
	}

	switch {
	case byID != nil && byEmail != nil:
		if byID.ID != byEmail.ID {
			return nil, fmt.Errorf("%w: student id and email refer to different students", util.ErrInvalidStudent)
		}
		return byID, nil
	case byID != nil:
		return byID, nil
	}
	return byEmail, nil
}

// ProfilesByIDs is best-effort: a failing lookup is logged and yields an
// empty map.
func (s *IdentityService) ProfilesByIDs(ctx context.Context, ids []string) map[string]model.Profile {
	out := make(map[string]model.Profile, len(ids))
	if len(ids) == 0 {
		return out
	}
	profiles, err := s.Students.FindProfilesByIDs(ctx, ids)
	if err != nil {
		logger.Log.Warn("profile lookup failed", zap.Int("ids", len(ids)), zap.Error(err))
		return out
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out
}

// ProfileByEmail is best-effort and returns nil when nothing matches.
func (s *IdentityService) ProfileByEmail(ctx context.Context, email string) *model.Profile {
	if strings.TrimSpace(email) == "" {
		return nil
	}
	p, err := s.Students.FindProfileByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Log.Warn("profile lookup failed", zap.String("email", email), zap.Error(err))
		}
		return nil
	}
	return p
}
