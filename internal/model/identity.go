package model

import (
	"strconv"
	"strings"
)

// StudentIdentity is the best-effort join key between the manual and AI
// attempt sources. Any subset of the fields may be set.
type StudentIdentity struct {
	StudentID *uint  `json:"studentId,omitempty"`
	Email     string `json:"email,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

func (i StudentIdentity) IsZero() bool {
	return i.StudentID == nil && strings.TrimSpace(i.Email) == "" && strings.TrimSpace(i.UserID) == ""
}

// Label renders the identity for logs and filters.
func (i StudentIdentity) Label() string {
	switch {
	case i.StudentID != nil:
		return strconv.FormatUint(uint64(*i.StudentID), 10)
	case i.Email != "":
		return i.Email
	}
	return i.UserID
}
