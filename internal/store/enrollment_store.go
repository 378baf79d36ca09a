package store

import "context"

type EnrollmentStore struct {
	db DB
}

type Enrollment struct {
	ID             string `db:"id"`
	LearnerID      string `db:"learner_id"`
	CourseID       string `db:"course_id"`
	Status         string `db:"status"`
	CompletionDate any    `db:"completion_date"`
	CreatedAt      any    `db:"created_at"`
}

func NewEnrollmentStore(db DB) *EnrollmentStore {
	return &EnrollmentStore{db: db}
}

func (s *EnrollmentStore) Create(ctx context.Context, tx Execer, id, learnerID, courseID, status string) error {
	query := `
		INSERT INTO enrollments (id, learner_id, course_id, status)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.ExecContext(ctx, query, id, learnerID, courseID, status)
	return err
}

func (s *EnrollmentStore) GetByID(ctx context.Context, id string) (Enrollment, error) {
	var row Enrollment
	err := s.db.GetContext(ctx, &row, `
		SELECT id, learner_id, course_id, status, completion_date, created_at
		FROM enrollments
		WHERE id = $1
	`, id)
	if err != nil {
		return Enrollment{}, err
	}
	return row, nil
}

func (s *EnrollmentStore) GetByLearnerAndCourse(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	var row Enrollment
	err := s.db.GetContext(ctx, &row, `
		SELECT id, learner_id, course_id, status, completion_date, created_at
		FROM enrollments
		WHERE learner_id = $1 AND course_id = $2
	`, learnerID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	return row, nil
}

// MarkEnrolled releases a pending enrollment once the instructor has claimed
// the payment behind it.
func (s *EnrollmentStore) MarkEnrolled(ctx context.Context, tx Execer, id string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE enrollments
		SET status = 'enrolled'
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EnrollmentStore) MarkCompleted(ctx context.Context, tx Execer, id string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE enrollments
		SET status = 'completed', completion_date = NOW()
		WHERE id = $1 AND status = 'enrolled'
	`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EnrollmentStore) ListByLearner(ctx context.Context, learnerID string) ([]Enrollment, error) {
	var rows []Enrollment
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, learner_id, course_id, status, completion_date, created_at
		FROM enrollments
		WHERE learner_id = $1
		ORDER BY created_at DESC
	`, learnerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *EnrollmentStore) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE status = $1`, status)
	return count, err
}
