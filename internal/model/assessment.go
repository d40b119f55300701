package model

import (
	"strings"

	"gorm.io/datatypes"
)

// Assessment is a scheduled test. Date and times are stored as the wall-clock
// strings the administrator entered; the schedule resolver interprets them.
// swagger:model Assessment
type Assessment struct {
	BaseModel
	Course     string     `gorm:"size:100;index" json:"course"`
	Level      string     `gorm:"size:50;index" json:"level"`
	Date       string     `gorm:"size:10;not null" json:"date"`      // YYYY-MM-DD
	StartTime  string     `gorm:"size:16;not null" json:"startTime"` // "10:00 AM" or "13:30"
	EndTime    string     `gorm:"size:16;not null" json:"endTime"`
	Duration   int        `gorm:"default:0" json:"duration"` // Minutes
	TotalMarks int        `gorm:"default:0" json:"totalMarks"`
	Questions  []Question `gorm:"foreignKey:AssessmentID" json:"questions,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

type QuestionType string

const (
	QuestionMCQ   QuestionType = "mcq"
	QuestionShort QuestionType = "short"
	QuestionEssay QuestionType = "essay"
)

func (t QuestionType) Valid() bool {
	return t == QuestionMCQ || t == QuestionShort || t == QuestionEssay
}

// ParseQuestionType accepts the stored codes plus the long spellings.
func ParseQuestionType(s string) (QuestionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mcq", "multiple_choice", "multiple-choice":
		return QuestionMCQ, true
	case "short", "short_answer", "short-answer":
		return QuestionShort, true
	case "essay":
		return QuestionEssay, true
	}
	return "", false
}

// swagger:model Question
type Question struct {
	BaseModel
	AssessmentID uint                        `gorm:"index;not null" json:"assessmentId"`
	Type         QuestionType                `gorm:"size:20;not null" json:"type"`
	Prompt       string                      `gorm:"column:question;type:text;not null" json:"question"`
	Options      datatypes.JSONSlice[string] `json:"options,omitempty"`
	Correct      CorrectAnswer               `json:"correct"`
	Explanation  string                      `gorm:"type:text" json:"explanation,omitempty"`
	Marks        int                         `gorm:"default:1" json:"marks"`
	AIGenerated  bool                        `gorm:"column:ai_generated;default:false" json:"aiGenerated"`
}

func (Question) TableName() string {
	return "questions"
}
