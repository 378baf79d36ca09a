package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lms/internal/auth"
	"lms/internal/config"
	"lms/internal/middleware"
	"lms/internal/services"
	"lms/internal/store"
	"lms/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn     func(ctx context.Context, tx store.Execer, id, username, email, fullName, role, passwordHash string) error
	getByEmailFn func(ctx context.Context, email string) (store.User, error)
	getByIDFn    func(ctx context.Context, userID string) (store.User, error)
	countFn      func(ctx context.Context) (int, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, fullName, role, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, fullName, role, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (store.User, error) {
	if s.getByEmailFn == nil {
		return store.User{}, sql.ErrNoRows
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (store.User, error) {
	if s.getByIDFn == nil {
		return store.User{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) Count(ctx context.Context) (int, error) {
	if s.countFn == nil {
		return 0, nil
	}
	return s.countFn(ctx)
}

type stubAccountStore struct {
	getByNumberFn          func(ctx context.Context, accountNumber string) (store.Account, error)
	listBalanceSummariesFn func(ctx context.Context) ([]store.AccountBalanceSummary, error)
	totalBalanceFn         func(ctx context.Context) (int64, error)
}

func (s stubAccountStore) GetByNumber(ctx context.Context, accountNumber string) (store.Account, error) {
	if s.getByNumberFn == nil {
		return store.Account{}, sql.ErrNoRows
	}
	return s.getByNumberFn(ctx, accountNumber)
}

func (s stubAccountStore) ListBalanceSummaries(ctx context.Context) ([]store.AccountBalanceSummary, error) {
	if s.listBalanceSummariesFn == nil {
		return nil, nil
	}
	return s.listBalanceSummariesFn(ctx)
}

func (s stubAccountStore) TotalBalance(ctx context.Context) (int64, error) {
	if s.totalBalanceFn == nil {
		return 0, nil
	}
	return s.totalBalanceFn(ctx)
}

type stubCourseStore struct {
	getByIDFn          func(ctx context.Context, courseID string) (store.Course, error)
	listActiveFn       func(ctx context.Context) ([]store.Course, error)
	listByInstructorFn func(ctx context.Context, instructorID string) ([]store.Course, error)
	countFn            func(ctx context.Context) (int, error)
	createMaterialFn   func(ctx context.Context, tx store.Execer, input store.MaterialInput) error
	listMaterialsFn    func(ctx context.Context, courseID string) ([]store.Material, error)
}

func (s stubCourseStore) GetByID(ctx context.Context, courseID string) (store.Course, error) {
	if s.getByIDFn == nil {
		return store.Course{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, courseID)
}

func (s stubCourseStore) ListActive(ctx context.Context) ([]store.Course, error) {
	if s.listActiveFn == nil {
		return nil, nil
	}
	return s.listActiveFn(ctx)
}

func (s stubCourseStore) ListByInstructor(ctx context.Context, instructorID string) ([]store.Course, error) {
	if s.listByInstructorFn == nil {
		return nil, nil
	}
	return s.listByInstructorFn(ctx, instructorID)
}

func (s stubCourseStore) Count(ctx context.Context) (int, error) {
	if s.countFn == nil {
		return 0, nil
	}
	return s.countFn(ctx)
}

func (s stubCourseStore) CreateMaterial(ctx context.Context, tx store.Execer, input store.MaterialInput) error {
	if s.createMaterialFn == nil {
		return nil
	}
	return s.createMaterialFn(ctx, tx, input)
}

func (s stubCourseStore) ListMaterials(ctx context.Context, courseID string) ([]store.Material, error) {
	if s.listMaterialsFn == nil {
		return nil, nil
	}
	return s.listMaterialsFn(ctx, courseID)
}

type stubEnrollmentStore struct {
	getByLearnerAndCourseFn func(ctx context.Context, learnerID, courseID string) (store.Enrollment, error)
	listByLearnerFn         func(ctx context.Context, learnerID string) ([]store.Enrollment, error)
	markCompletedFn         func(ctx context.Context, tx store.Execer, id string) (int64, error)
	countByStatusFn         func(ctx context.Context, status string) (int, error)
}

func (s stubEnrollmentStore) GetByLearnerAndCourse(ctx context.Context, learnerID, courseID string) (store.Enrollment, error) {
	if s.getByLearnerAndCourseFn == nil {
		return store.Enrollment{}, sql.ErrNoRows
	}
	return s.getByLearnerAndCourseFn(ctx, learnerID, courseID)
}

func (s stubEnrollmentStore) ListByLearner(ctx context.Context, learnerID string) ([]store.Enrollment, error) {
	if s.listByLearnerFn == nil {
		return nil, nil
	}
	return s.listByLearnerFn(ctx, learnerID)
}

func (s stubEnrollmentStore) MarkCompleted(ctx context.Context, tx store.Execer, id string) (int64, error) {
	if s.markCompletedFn == nil {
		return 1, nil
	}
	return s.markCompletedFn(ctx, tx, id)
}

func (s stubEnrollmentStore) CountByStatus(ctx context.Context, status string) (int, error) {
	if s.countByStatusFn == nil {
		return 0, nil
	}
	return s.countByStatusFn(ctx, status)
}

type stubCertificateStore struct {
	createFn        func(ctx context.Context, tx store.Execer, id, enrollmentID, code string) error
	listByLearnerFn func(ctx context.Context, learnerID string) ([]store.Certificate, error)
}

func (s stubCertificateStore) Create(ctx context.Context, tx store.Execer, id, enrollmentID, code string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, enrollmentID, code)
}

func (s stubCertificateStore) ListByLearner(ctx context.Context, learnerID string) ([]store.Certificate, error) {
	if s.listByLearnerFn == nil {
		return nil, nil
	}
	return s.listByLearnerFn(ctx, learnerID)
}

type stubTransactionStore struct {
	listForAccountFn  func(ctx context.Context, accountNumber, txType string, limit, offset int) ([]store.Transaction, error)
	listAllFn         func(ctx context.Context, limit, offset int) ([]store.Transaction, error)
	completedVolumeFn func(ctx context.Context) (int64, error)
}

func (s stubTransactionStore) ListForAccount(ctx context.Context, accountNumber, txType string, limit, offset int) ([]store.Transaction, error) {
	if s.listForAccountFn == nil {
		return nil, nil
	}
	return s.listForAccountFn(ctx, accountNumber, txType, limit, offset)
}

func (s stubTransactionStore) ListAll(ctx context.Context, limit, offset int) ([]store.Transaction, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

func (s stubTransactionStore) CompletedVolume(ctx context.Context) (int64, error) {
	if s.completedVolumeFn == nil {
		return 0, nil
	}
	return s.completedVolumeFn(ctx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubService struct {
	setupAccountFn       func(ctx context.Context, req services.SetupAccountRequest) (services.SetupAccountResult, error)
	accountForUserFn     func(ctx context.Context, userID string) (store.Account, error)
	accountByNumberFn    func(ctx context.Context, accountNumber string) (store.Account, error)
	transferFn           func(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
	enrollFn             func(ctx context.Context, req services.EnrollRequest) (services.EnrollResult, error)
	claimFn              func(ctx context.Context, req services.ClaimRequest) (services.ClaimResult, error)
	pendingPaymentsForFn func(ctx context.Context, userID string) ([]store.Transaction, error)
	uploadCourseFn       func(ctx context.Context, req services.UploadCourseRequest) (services.UploadCourseResult, error)
}

func (s stubService) SetupAccount(ctx context.Context, req services.SetupAccountRequest) (services.SetupAccountResult, error) {
	if s.setupAccountFn == nil {
		return services.SetupAccountResult{}, nil
	}
	return s.setupAccountFn(ctx, req)
}

func (s stubService) AccountForUser(ctx context.Context, userID string) (store.Account, error) {
	if s.accountForUserFn == nil {
		return store.Account{}, services.ErrAccountNotFound
	}
	return s.accountForUserFn(ctx, userID)
}

func (s stubService) AccountByNumber(ctx context.Context, accountNumber string) (store.Account, error) {
	if s.accountByNumberFn == nil {
		return store.Account{}, services.ErrAccountNotFound
	}
	return s.accountByNumberFn(ctx, accountNumber)
}

func (s stubService) Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error) {
	if s.transferFn == nil {
		return services.TransferResult{}, nil
	}
	return s.transferFn(ctx, req)
}

func (s stubService) Enroll(ctx context.Context, req services.EnrollRequest) (services.EnrollResult, error) {
	if s.enrollFn == nil {
		return services.EnrollResult{}, nil
	}
	return s.enrollFn(ctx, req)
}

func (s stubService) Claim(ctx context.Context, req services.ClaimRequest) (services.ClaimResult, error) {
	if s.claimFn == nil {
		return services.ClaimResult{}, nil
	}
	return s.claimFn(ctx, req)
}

func (s stubService) PendingPaymentsFor(ctx context.Context, userID string) ([]store.Transaction, error) {
	if s.pendingPaymentsForFn == nil {
		return nil, nil
	}
	return s.pendingPaymentsForFn(ctx, userID)
}

func (s stubService) UploadCourse(ctx context.Context, req services.UploadCourseRequest) (services.UploadCourseResult, error) {
	if s.uploadCourseFn == nil {
		return services.UploadCourseResult{}, nil
	}
	return s.uploadCourseFn(ctx, req)
}

func newTestHandler(users UserStore, accounts AccountStore, courses CourseStore, enrollments EnrollmentStore, certificates CertificateStore, transactions TransactionStore, audit AuditStore, service LedgerService) *Handler {
	cfg := config.Config{
		AppEnv:                "test",
		Port:                  "0",
		JWTSecret:             "secret",
		TokenTTL:              time.Minute,
		AllowedOrigins:        "*",
		ClearingAccountNumber: "LMS1000000001",
		CourseCapacity:        5,
	}
	return New(cfg, fakeTxRunner{}, users, accounts, courses, enrollments, certificates, transactions, audit, service, websocket.NewHub())
}

func authedRequest(t *testing.T, method, target, userID, role string, body []byte) *http.Request {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, role, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func serveAuthed(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	middleware.Auth("secret")(handler).ServeHTTP(rr, req)
	return rr
}
