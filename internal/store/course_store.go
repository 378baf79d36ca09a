package store

import "context"

type CourseStore struct {
	db DB
}

type Course struct {
	ID           string `db:"id"`
	InstructorID string `db:"instructor_id"`
	Title        string `db:"title"`
	Description  string `db:"description"`
	Price        int64  `db:"price"`
	UploadFee    int64  `db:"upload_fee"`
	Status       string `db:"status"`
	CreatedAt    any    `db:"created_at"`
}

type CourseInput struct {
	ID           string
	InstructorID string
	Title        string
	Description  string
	Price        int64
	UploadFee    int64
}

func NewCourseStore(db DB) *CourseStore {
	return &CourseStore{db: db}
}

func (s *CourseStore) Create(ctx context.Context, tx Execer, input CourseInput) error {
	query := `
		INSERT INTO courses (id, instructor_id, title, description, price, upload_fee, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'active')
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.InstructorID, input.Title, input.Description, input.Price, input.UploadFee,
	)
	return err
}

// CountActive reads through the supplied tx so the capacity check and the
// insert it guards see the same snapshot.
func (s *CourseStore) CountActive(ctx context.Context, tx Getter) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM courses WHERE status = 'active'`)
	return count, err
}

func (s *CourseStore) GetByID(ctx context.Context, courseID string) (Course, error) {
	var row Course
	err := s.db.GetContext(ctx, &row, `
		SELECT id, instructor_id, title, description, price, upload_fee, status, created_at
		FROM courses
		WHERE id = $1
	`, courseID)
	if err != nil {
		return Course{}, err
	}
	return row, nil
}

func (s *CourseStore) ListActive(ctx context.Context) ([]Course, error) {
	var rows []Course
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, instructor_id, title, description, price, upload_fee, status, created_at
		FROM courses
		WHERE status = 'active'
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CourseStore) ListByInstructor(ctx context.Context, instructorID string) ([]Course, error) {
	var rows []Course
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, instructor_id, title, description, price, upload_fee, status, created_at
		FROM courses
		WHERE instructor_id = $1
		ORDER BY created_at DESC
	`, instructorID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CourseStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM courses`)
	return count, err
}

type Material struct {
	ID         string  `db:"id"`
	CourseID   string  `db:"course_id"`
	Title      string  `db:"title"`
	Type       string  `db:"type"`
	Content    *string `db:"content"`
	FileURL    *string `db:"file_url"`
	OrderIndex int     `db:"order_index"`
	CreatedAt  any     `db:"created_at"`
}

type MaterialInput struct {
	ID         string
	CourseID   string
	Title      string
	Type       string
	Content    *string
	FileURL    *string
	OrderIndex int
}

func (s *CourseStore) CreateMaterial(ctx context.Context, tx Execer, input MaterialInput) error {
	query := `
		INSERT INTO course_materials (id, course_id, title, type, content, file_url, order_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.CourseID, input.Title, input.Type, input.Content, input.FileURL, input.OrderIndex,
	)
	return err
}

func (s *CourseStore) ListMaterials(ctx context.Context, courseID string) ([]Material, error) {
	var rows []Material
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, course_id, title, type, content, file_url, order_index, created_at
		FROM course_materials
		WHERE course_id = $1
		ORDER BY order_index
	`, courseID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
