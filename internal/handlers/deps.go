package handlers

import (
	"context"

	"lms/internal/services"
	"lms/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, fullName, role, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (store.User, error)
	GetByID(ctx context.Context, userID string) (store.User, error)
	Count(ctx context.Context) (int, error)
}

type AccountStore interface {
	GetByNumber(ctx context.Context, accountNumber string) (store.Account, error)
	ListBalanceSummaries(ctx context.Context) ([]store.AccountBalanceSummary, error)
	TotalBalance(ctx context.Context) (int64, error)
}

type CourseStore interface {
	GetByID(ctx context.Context, courseID string) (store.Course, error)
	ListActive(ctx context.Context) ([]store.Course, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]store.Course, error)
	Count(ctx context.Context) (int, error)
	CreateMaterial(ctx context.Context, tx store.Execer, input store.MaterialInput) error
	ListMaterials(ctx context.Context, courseID string) ([]store.Material, error)
}

type EnrollmentStore interface {
	GetByLearnerAndCourse(ctx context.Context, learnerID, courseID string) (store.Enrollment, error)
	ListByLearner(ctx context.Context, learnerID string) ([]store.Enrollment, error)
	MarkCompleted(ctx context.Context, tx store.Execer, id string) (int64, error)
	CountByStatus(ctx context.Context, status string) (int, error)
}

type CertificateStore interface {
	Create(ctx context.Context, tx store.Execer, id, enrollmentID, code string) error
	ListByLearner(ctx context.Context, learnerID string) ([]store.Certificate, error)
}

type TransactionStore interface {
	ListForAccount(ctx context.Context, accountNumber, txType string, limit, offset int) ([]store.Transaction, error)
	ListAll(ctx context.Context, limit, offset int) ([]store.Transaction, error)
	CompletedVolume(ctx context.Context) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type LedgerService interface {
	SetupAccount(ctx context.Context, req services.SetupAccountRequest) (services.SetupAccountResult, error)
	AccountForUser(ctx context.Context, userID string) (store.Account, error)
	AccountByNumber(ctx context.Context, accountNumber string) (store.Account, error)
	Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
	Enroll(ctx context.Context, req services.EnrollRequest) (services.EnrollResult, error)
	Claim(ctx context.Context, req services.ClaimRequest) (services.ClaimResult, error)
	PendingPaymentsFor(ctx context.Context, userID string) ([]store.Transaction, error)
	UploadCourse(ctx context.Context, req services.UploadCourseRequest) (services.UploadCourseResult, error)
}
