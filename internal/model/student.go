package model

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// Student is the canonical student identity that manual attempts refer to.
// swagger:model Student
type Student struct {
	BaseModel
	FullName string `gorm:"column:full_name;size:150" json:"fullName"`
	Email    string `gorm:"size:150;uniqueIndex;not null" json:"email"`
	Course   string `gorm:"size:100" json:"course"`
	Level    string `gorm:"size:50" json:"level"`
}

func (Student) TableName() string {
	return "student_list"
}

// Profile is the auth-side user record. AI attempts reference it by its
// string id, never by Student.ID.
// swagger:model Profile
type Profile struct {
	UUIDBase
	FullName string `gorm:"column:full_name;size:150" json:"fullName"`
	Email    string `gorm:"size:150;index" json:"email"`
}

func (Profile) TableName() string {
	return "profiles"
}

// DisplayName prefers the full name and falls back to the email.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}
