package student

import (
	"strings"

	"github.com/uptrace/bun"
)

// Student is a pupil record. StudentID is the school-issued code every attendance and excuse
// row refers to; ID is the row key used by the admin CRUD endpoints.
type Student struct {
	bun.BaseModel `bun:"table:students,alias:s"`

	ID                           int64  `bun:"id,pk,autoincrement" json:"id"`
	StudentID                    string `bun:"student_id,notnull,unique" json:"student_id" validate:"required,max=64"`
	FirstName                    string `bun:"first_name,notnull" json:"first_name" validate:"required,max=100"`
	MiddleName                   string `bun:"middle_name" json:"middle_name" validate:"max=100"`
	LastName                     string `bun:"last_name,notnull" json:"last_name" validate:"required,max=100"`
	PhoneNumber                  string `bun:"phone_number" json:"phone_number" validate:"max=32"`
	Address                      string `bun:"address" json:"address"`
	EmergencyContactName         string `bun:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactPhone        string `bun:"emergency_contact_phone" json:"emergency_contact_phone" validate:"max=32"`
	EmergencyContactRelationship string `bun:"emergency_contact_relationship" json:"emergency_contact_relationship"`
	ProfileImagePath             string `bun:"profile_image_path" json:"profile_image_path"`
	ClassroomSection             string `bun:"classroom_section,nullzero" json:"classroom_section" validate:"max=64"`
}

func (s *Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// SearchFilter narrows the client-side student search. Empty fields do not filter.
type SearchFilter struct {
	Term      string
	Classroom string
	Limit     int
}

const DefaultSearchLimit = 50
