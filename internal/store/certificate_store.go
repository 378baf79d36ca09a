package store

import "context"

type CertificateStore struct {
	db DB
}

type Certificate struct {
	ID              string `db:"id"`
	EnrollmentID    string `db:"enrollment_id"`
	CertificateCode string `db:"certificate_code"`
	CourseID        string `db:"course_id"`
	CourseTitle     string `db:"course_title"`
	IssuedAt        any    `db:"issued_at"`
}

func NewCertificateStore(db DB) *CertificateStore {
	return &CertificateStore{db: db}
}

func (s *CertificateStore) Create(ctx context.Context, tx Execer, id, enrollmentID, code string) error {
	query := `
		INSERT INTO certificates (id, enrollment_id, certificate_code)
		VALUES ($1, $2, $3)
	`
	_, err := tx.ExecContext(ctx, query, id, enrollmentID, code)
	return err
}

func (s *CertificateStore) ListByLearner(ctx context.Context, learnerID string) ([]Certificate, error) {
	var rows []Certificate
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.id, c.enrollment_id, c.certificate_code, c.issued_at,
		       e.course_id, co.title AS course_title
		FROM certificates c
		JOIN enrollments e ON e.id = c.enrollment_id
		JOIN courses co ON co.id = e.course_id
		WHERE e.learner_id = $1
		ORDER BY c.issued_at DESC
	`, learnerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
