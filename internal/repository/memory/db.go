// Package memory holds in-process implementations of the repository stores.
// They follow the gorm stores' error contract (gorm.ErrRecordNotFound,
// gorm.ErrDuplicatedKey) and are used as test doubles.
package memory

import (
	"sync"
	"time"

	"edu_portal_backend/internal/model"
)

type DB struct {
	mutex sync.RWMutex
	seq   uint
	fail  error

	assessments map[uint]*model.Assessment
	deleted     map[uint]*model.Assessment
	questions   map[uint]*model.Question
	attempts    map[uint]*model.Attempt
	active      map[string]uint
	aiAttempts  []model.AIAttempt
	students    map[uint]*model.Student
	profiles    map[string]*model.Profile
}

func NewDB() *DB {
	return &DB{
		assessments: make(map[uint]*model.Assessment),
		deleted:     make(map[uint]*model.Assessment),
		questions:   make(map[uint]*model.Question),
		attempts:    make(map[uint]*model.Attempt),
		active:      make(map[string]uint),
		students:    make(map[uint]*model.Student),
		profiles:    make(map[string]*model.Profile),
	}
}

// FailWith makes every following store call return err. Pass nil to recover.
func (db *DB) FailWith(err error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.fail = err
}

func (db *DB) nextID() uint {
	db.seq++
	return db.seq
}

func stamp(b *model.BaseModel, id uint) {
	now := time.Now()
	b.ID = id
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// assessmentIncludingDeleted mirrors an Unscoped lookup: soft-deleted
// assessments are still found. Callers hold the mutex.
func (db *DB) assessmentIncludingDeleted(id uint) (*model.Assessment, bool) {
	if a, ok := db.assessments[id]; ok {
		return a, true
	}
	a, ok := db.deleted[id]
	return a, ok
}

// AddStudent seeds the student directory and returns the stored row.
func (db *DB) AddStudent(s model.Student) model.Student {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	id := s.ID
	if id == 0 {
		id = db.nextID()
	} else if id > db.seq {
		db.seq = id
	}
	stamp(&s.BaseModel, id)
	db.students[id] = &s
	return s
}

func (db *DB) AddProfile(p model.Profile) model.Profile {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if p.ID == "" {
		p.ID = model.GenerateUUID()
	}
	db.profiles[p.ID] = &p
	return p
}

// AddAIAttempt seeds an AI attempt; the AI flow owns their creation.
func (db *DB) AddAIAttempt(a model.AIAttempt) model.AIAttempt {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if a.ID == "" {
		a.ID = model.GenerateUUID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	db.aiAttempts = append(db.aiAttempts, a)
	return a
}

// AddAttempt seeds a manual attempt in any status, bypassing the start flow.
func (db *DB) AddAttempt(a model.Attempt) model.Attempt {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	stamp(&a.BaseModel, db.nextID())
	a.Assessment = nil
	a.ActiveKey = nil
	if a.Status == model.AttemptStarted && a.StudentID != nil {
		key := model.ActiveAttemptKey(*a.StudentID, a.AssessmentID)
		a.ActiveKey = &key
		db.active[key] = a.ID
	}
	db.attempts[a.ID] = &a
	return a
}

// AttemptCount reports how many manual attempt rows exist.
func (db *DB) AttemptCount() int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return len(db.attempts)
}
