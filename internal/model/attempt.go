package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptStarted   AttemptStatus = "started"
	AttemptCompleted AttemptStatus = "completed"
	AttemptAbandoned AttemptStatus = "abandoned"
)

// Terminal reports whether no further transition is allowed.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptAbandoned
}

// Attempt is one student's engagement with one assessment. ActiveKey is set
// only while the attempt is started; its unique index keeps a single started
// attempt per (student, assessment).
// swagger:model Attempt
type Attempt struct {
	BaseModel
	AssessmentID uint           `gorm:"index;not null" json:"assessmentId"`
	Assessment   *Assessment    `gorm:"foreignKey:AssessmentID" json:"assessment,omitempty"`
	StudentID    *uint          `gorm:"index" json:"studentId"`
	StudentEmail string         `gorm:"size:150;index" json:"studentEmail"`
	Status       AttemptStatus  `gorm:"size:20;not null;default:'started'" json:"status"`
	StartedAt    time.Time      `json:"startedAt"`
	CompletedAt  *time.Time     `json:"completedAt"`
	Score        *int           `json:"score"`
	Answers      datatypes.JSON `json:"answers,omitempty"`
	ActiveKey    *string        `gorm:"size:64;uniqueIndex" json:"-"`
}

func (Attempt) TableName() string {
	return "assessment_attempts"
}

// ActiveAttemptKey builds the value of Attempt.ActiveKey.
func ActiveAttemptKey(studentID, assessmentID uint) string {
	return fmt.Sprintf("%d:%d", studentID, assessmentID)
}
