package student

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Mizumo-prjkt/openattendance/internal/apperr"
	"github.com/Mizumo-prjkt/openattendance/internal/auth"

	"github.com/uptrace/bun"
)

var ErrInvalidInput = apperr.Invalid("id", "Invalid student ID.")

type Service interface {
	CreateStudent(ctx context.Context, student *Student) (*Student, error)
	GetAllStudents(ctx context.Context) ([]Student, error)
	GetStudentByID(ctx context.Context, id int64) (*Student, error)
	GetStudentByCode(ctx context.Context, code string) (*Student, error)
	UpdateStudent(ctx context.Context, student *Student) (*Student, error)
	DeleteStudent(ctx context.Context, id int64) error
	Search(ctx context.Context, filter SearchFilter) ([]Student, error)
	Classrooms(ctx context.Context) ([]string, error)
	AdvisoryClass(ctx context.Context, teacher auth.Identity) ([]Student, error)
	CountStudents(ctx context.Context) (int, error)
}

// TxRunner is satisfied by *bun.DB.
type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
}

type service struct {
	db   TxRunner
	repo Repository
}

func NewService(db TxRunner, repo Repository) Service {
	return &service{
		db:   db,
		repo: repo,
	}
}

func normalize(s *Student) {
	s.StudentID = strings.TrimSpace(s.StudentID)
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.ClassroomSection = strings.TrimSpace(s.ClassroomSection)
}

func (s *service) CreateStudent(ctx context.Context, student *Student) (*Student, error) {
	normalize(student)
	student.ID = 0
	return s.repo.Create(ctx, student)
}

func (s *service) GetAllStudents(ctx context.Context) ([]Student, error) {
	return s.repo.GetAll(ctx)
}

func (s *service) GetStudentByID(ctx context.Context, id int64) (*Student, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetStudentByCode(ctx context.Context, code string) (*Student, error) {
	return s.repo.GetByCode(ctx, strings.TrimSpace(code))
}

// UpdateStudent rewrites the profile. The student code is immutable: attendance and excuse rows
// reference it.
func (s *service) UpdateStudent(ctx context.Context, student *Student) (*Student, error) {
	if student.ID <= 0 {
		return nil, ErrInvalidInput
	}
	normalize(student)

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetByID(ctx, student.ID)
		if err != nil {
			return err
		}
		if student.StudentID != "" && student.StudentID != existing.StudentID {
			return apperr.Invalid("student_id", "Student ID cannot be changed.")
		}
		student.StudentID = existing.StudentID
		return repo.Update(ctx, student)
	})
	if err != nil {
		return nil, err
	}
	return student, nil
}

// DeleteStudent removes a student that no attendance or excuse row refers to.
func (s *service) DeleteStudent(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidInput
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		refs, err := repo.CountReferences(ctx, existing.StudentID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return apperr.Conflict("Cannot delete student %s: %d attendance or excuse records reference it.", existing.StudentID, refs)
		}
		return repo.Delete(ctx, id)
	})
}

func (s *service) Search(ctx context.Context, filter SearchFilter) ([]Student, error) {
	filter.Term = strings.TrimSpace(filter.Term)
	filter.Classroom = strings.TrimSpace(filter.Classroom)
	return s.repo.Search(ctx, filter)
}

func (s *service) Classrooms(ctx context.Context) ([]string, error) {
	return s.repo.Classrooms(ctx)
}

func (s *service) AdvisoryClass(ctx context.Context, teacher auth.Identity) ([]Student, error) {
	teacher, err := auth.RequireTeacher(teacher)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByClassroom(ctx, teacher.AdviserUnit)
}

func (s *service) CountStudents(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
