package memory

import (
	"context"
	"sort"
	"strings"

	"edu_portal_backend/internal/model"

	"gorm.io/gorm"
)

type AssessmentStore struct {
	db *DB
}

func NewAssessmentStore(db *DB) *AssessmentStore {
	return &AssessmentStore{db: db}
}

func (s *AssessmentStore) CreateAssessment(_ context.Context, a *model.Assessment) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()
	if s.db.fail != nil {
		return s.db.fail
	}
	stamp(&a.BaseModel, s.db.nextID())
	row := *a
	row.Questions = nil
	s.db.assessments[a.ID] = &row
	for i := range a.Questions {
		q := &a.Questions[i]
		q.AssessmentID = a.ID
		stamp(&q.BaseModel, s.db.nextID())
		qc := *q
		s.db.questions[q.ID] = &qc
	}
	return nil
}

func (s *AssessmentStore) UpdateAssessment(_ context.Context, a *model.Assessment) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()
	if s.db.fail != nil {
		return s.db.fail
	}
	existing, ok := s.db.assessments[a.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.CreatedAt = existing.CreatedAt
	stamp(&a.BaseModel, a.ID)
	row := *a
	row.Questions = nil
	s.db.assessments[a.ID] = &row
	return nil
}

func (s *AssessmentStore) DeleteAssessment(_ context.Context, id uint) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()
	if s.db.fail != nil {
		return s.db.fail
	}
	a, ok := s.db.assessments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	// 软删除：作答记录仍可关联到原测试
	s.db.deleted[id] = a
	delete(s.db.assessments, id)
	for qid, q := range s.db.questions {
		if q.AssessmentID == id {
			delete(s.db.questions, qid)
		}
	}
	return nil
}

func (s *AssessmentStore) FindAssessmentByID(_ context.Context, id uint) (*model.Assessment, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	a, ok := s.db.assessments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *a
	return &out, nil
}

func (s *AssessmentStore) FindAssessmentWithQuestions(ctx context.Context, id uint) (*model.Assessment, error) {
	a, err := s.FindAssessmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	qs, err := s.ListQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Questions = qs
	return a, nil
}

func (s *AssessmentStore) all() []model.Assessment {
	out := make([]model.Assessment, 0, len(s.db.assessments))
	for _, a := range s.db.assessments {
		out = append(out, *a)
	}
	return out
}

func (s *AssessmentStore) ListAssessments(_ context.Context, page, limit int) ([]model.Assessment, int64, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, 0, s.db.fail
	}
	as := s.all()
	sort.Slice(as, func(i, j int) bool {
		if as[i].Date != as[j].Date {
			return as[i].Date > as[j].Date
		}
		return as[i].ID > as[j].ID
	})
	total := int64(len(as))
	offset := (page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	if offset >= len(as) {
		return []model.Assessment{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(as) {
		end = len(as)
	}
	return as[offset:end], total, nil
}

func (s *AssessmentStore) ListForCourseLevel(_ context.Context, course, level string) ([]model.Assessment, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	var out []model.Assessment
	for _, a := range s.all() {
		if strings.EqualFold(a.Course, course) && strings.EqualFold(a.Level, level) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *AssessmentStore) CreateQuestion(_ context.Context, q *model.Question) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()
	if s.db.fail != nil {
		return s.db.fail
	}
	stamp(&q.BaseModel, s.db.nextID())
	row := *q
	s.db.questions[q.ID] = &row
	return nil
}

func (s *AssessmentStore) FindQuestionByID(_ context.Context, id uint) (*model.Question, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	q, ok := s.db.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *q
	return &out, nil
}

func (s *AssessmentStore) ListQuestions(_ context.Context, assessmentID uint) ([]model.Question, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	qs := make([]model.Question, 0)
	for _, q := range s.db.questions {
		if q.AssessmentID == assessmentID {
			qs = append(qs, *q)
		}
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
	return qs, nil
}

func (s *AssessmentStore) DeleteQuestion(_ context.Context, id uint) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()
	if s.db.fail != nil {
		return s.db.fail
	}
	if _, ok := s.db.questions[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.db.questions, id)
	return nil
}
