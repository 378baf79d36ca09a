package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"lms/internal/auth"
	"lms/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryLedger backs every store interface with maps so the purchase,
// claim and upload workflows can run end to end without a database.
type memoryLedger struct {
	accounts     map[string]*store.Account
	byUser       map[string]string
	transactions map[string]*store.Transaction
	entries      []store.LedgerEntryInput
	courses      map[string]store.Course
	enrollments  map[string]*store.Enrollment
	auditActions []string
	auditErr     error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		accounts:     make(map[string]*store.Account),
		byUser:       make(map[string]string),
		transactions: make(map[string]*store.Transaction),
		courses:      make(map[string]store.Course),
		enrollments:  make(map[string]*store.Enrollment),
	}
}

func (m *memoryLedger) addAccount(t *testing.T, userID, number, secret string, balance int64) {
	t.Helper()
	hash := ""
	if secret != "" {
		var err error
		hash, err = auth.HashSecret(secret)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
	}
	account := &store.Account{AccountNumber: number, SecretHash: hash, Balance: balance}
	if userID != "" {
		account.UserID = stringPtr(userID)
		m.byUser[userID] = number
	}
	m.accounts[number] = account
}

func (m *memoryLedger) Create(ctx context.Context, tx store.Execer, id string, userID *string, accountNumber, secretHash string, balance int64, isClearing bool) error {
	m.accounts[accountNumber] = &store.Account{
		ID: id, UserID: userID, AccountNumber: accountNumber,
		SecretHash: secretHash, Balance: balance, IsClearing: isClearing,
	}
	if userID != nil {
		m.byUser[*userID] = accountNumber
	}
	return nil
}

func (m *memoryLedger) GetByNumber(ctx context.Context, accountNumber string) (store.Account, error) {
	account, ok := m.accounts[accountNumber]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return *account, nil
}

func (m *memoryLedger) GetByUser(ctx context.Context, userID string) (store.Account, error) {
	number, ok := m.byUser[userID]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return *m.accounts[number], nil
}

func (m *memoryLedger) GetForUpdate(ctx context.Context, tx store.Getter, accountNumber string) (store.Account, error) {
	return m.GetByNumber(ctx, accountNumber)
}

func (m *memoryLedger) UpdateBalance(ctx context.Context, tx store.Execer, accountNumber string, balance int64) error {
	account, ok := m.accounts[accountNumber]
	if !ok {
		return sql.ErrNoRows
	}
	account.Balance = balance
	return nil
}

func (m *memoryLedger) CreateTransaction(ctx context.Context, tx store.Execer, input store.TransactionInput) error {
	m.transactions[input.ID] = &store.Transaction{
		ID: input.ID, FromAccount: input.FromAccount, ToAccount: input.ToAccount,
		Amount: input.Amount, Type: input.Type, ReferenceID: input.ReferenceID,
		Status: input.Status,
	}
	return nil
}

func (m *memoryLedger) GetTransactionForUpdate(ctx context.Context, tx store.Getter, transactionID string) (store.Transaction, error) {
	txn, ok := m.transactions[transactionID]
	if !ok {
		return store.Transaction{}, sql.ErrNoRows
	}
	return *txn, nil
}

func (m *memoryLedger) MarkCompleted(ctx context.Context, tx store.Execer, transactionID string) (int64, error) {
	txn, ok := m.transactions[transactionID]
	if !ok || txn.Status != "pending" {
		return 0, nil
	}
	txn.Status = "completed"
	return 1, nil
}

func (m *memoryLedger) MarkFailed(ctx context.Context, tx store.Execer, transactionID, reason string) (int64, error) {
	txn, ok := m.transactions[transactionID]
	if !ok || txn.Status != "pending" {
		return 0, nil
	}
	txn.Status = "failed"
	txn.FailureReason = stringPtr(reason)
	return 1, nil
}

func (m *memoryLedger) ListPendingFor(ctx context.Context, accountNumber string) ([]store.Transaction, error) {
	var out []store.Transaction
	for _, txn := range m.transactions {
		if txn.ToAccount == accountNumber && txn.Status == "pending" {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (m *memoryLedger) InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error {
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memoryLedger) CreateCourse(ctx context.Context, tx store.Execer, input store.CourseInput) error {
	m.courses[input.ID] = store.Course{
		ID: input.ID, InstructorID: input.InstructorID, Title: input.Title,
		Description: input.Description, Price: input.Price, UploadFee: input.UploadFee,
		Status: "active",
	}
	return nil
}

func (m *memoryLedger) CountActive(ctx context.Context, tx store.Getter) (int, error) {
	count := 0
	for _, course := range m.courses {
		if course.Status == "active" {
			count++
		}
	}
	return count, nil
}

func (m *memoryLedger) GetCourseByID(ctx context.Context, courseID string) (store.Course, error) {
	course, ok := m.courses[courseID]
	if !ok {
		return store.Course{}, sql.ErrNoRows
	}
	return course, nil
}

func (m *memoryLedger) CreateEnrollment(ctx context.Context, tx store.Execer, id, learnerID, courseID, status string) error {
	m.enrollments[id] = &store.Enrollment{ID: id, LearnerID: learnerID, CourseID: courseID, Status: status}
	return nil
}

func (m *memoryLedger) GetByLearnerAndCourse(ctx context.Context, learnerID, courseID string) (store.Enrollment, error) {
	for _, enrollment := range m.enrollments {
		if enrollment.LearnerID == learnerID && enrollment.CourseID == courseID {
			return *enrollment, nil
		}
	}
	return store.Enrollment{}, sql.ErrNoRows
}

func (m *memoryLedger) MarkEnrolled(ctx context.Context, tx store.Execer, id string) (int64, error) {
	enrollment, ok := m.enrollments[id]
	if !ok || enrollment.Status != "pending" {
		return 0, nil
	}
	enrollment.Status = "enrolled"
	return 1, nil
}

func (m *memoryLedger) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if m.auditErr != nil {
		return m.auditErr
	}
	m.auditActions = append(m.auditActions, action)
	return nil
}

// Adapter types so one memoryLedger can satisfy interfaces whose method
// names collide (Create, GetByID, GetForUpdate).
type memoryTransactions struct{ *memoryLedger }

func (m memoryTransactions) Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error {
	return m.CreateTransaction(ctx, tx, input)
}

func (m memoryTransactions) GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (store.Transaction, error) {
	return m.GetTransactionForUpdate(ctx, tx, transactionID)
}

type memoryCourses struct{ *memoryLedger }

func (m memoryCourses) Create(ctx context.Context, tx store.Execer, input store.CourseInput) error {
	return m.CreateCourse(ctx, tx, input)
}

func (m memoryCourses) GetByID(ctx context.Context, courseID string) (store.Course, error) {
	return m.GetCourseByID(ctx, courseID)
}

type memoryEnrollments struct{ *memoryLedger }

func (m memoryEnrollments) Create(ctx context.Context, tx store.Execer, id, learnerID, courseID, status string) error {
	return m.CreateEnrollment(ctx, tx, id, learnerID, courseID, status)
}

func newWorkflowService(mem *memoryLedger, hub *stubHub) *LedgerService {
	return NewLedgerService(fakeTxRunner{}, mem, memoryTransactions{mem}, mem, memoryCourses{mem}, memoryEnrollments{mem}, mem, hub, testClearing, 5)
}

func seedMarketplace(t *testing.T, mem *memoryLedger) store.Course {
	t.Helper()
	mem.addAccount(t, "", testClearing, "", 100000000)
	mem.addAccount(t, "learner-1", "LMS2000000001", "learner-pass", 500000)
	mem.addAccount(t, "instructor-1", "LMS3000000001", "instructor-pass", 0)
	course := store.Course{
		ID: "course-1", InstructorID: "instructor-1", Title: "Practical Go",
		Price: 50000, UploadFee: 10000, Status: "active",
	}
	mem.courses[course.ID] = course
	return course
}

func TestEnrollMovesFundsToClearing(t *testing.T) {
	mem := newMemoryLedger()
	course := seedMarketplace(t, mem)
	hub := &stubHub{}
	service := newWorkflowService(mem, hub)

	result, err := service.Enroll(context.Background(), EnrollRequest{
		LearnerID: "learner-1", CourseID: course.ID, Secret: "learner-pass",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(450000), result.NewBalance)
	assert.Equal(t, int64(450000), mem.accounts["LMS2000000001"].Balance)
	assert.Equal(t, int64(100050000), mem.accounts[testClearing].Balance)
	assert.Equal(t, int64(0), mem.accounts["LMS3000000001"].Balance, "instructor is paid on claim, not purchase")

	purchase := mem.transactions[result.PurchaseID]
	require.NotNil(t, purchase)
	assert.Equal(t, "course_purchase", purchase.Type)
	assert.Equal(t, "completed", purchase.Status)
	assert.Equal(t, course.ID, purchase.ReferenceID)

	pending := mem.transactions[result.PendingPaymentID]
	require.NotNil(t, pending)
	assert.Equal(t, "instructor_payment", pending.Type)
	assert.Equal(t, "pending", pending.Status)
	assert.Equal(t, course.Price, pending.Amount)
	assert.Equal(t, result.EnrollmentID, pending.ReferenceID)

	enrollment := mem.enrollments[result.EnrollmentID]
	require.NotNil(t, enrollment)
	assert.Equal(t, "pending", enrollment.Status)

	require.Len(t, hub.calls, 1)
	assert.Equal(t, "course_purchase", hub.calls[0].Reason)
}

func TestEnrollWrongSecretChangesNothing(t *testing.T) {
	mem := newMemoryLedger()
	course := seedMarketplace(t, mem)
	service := newWorkflowService(mem, &stubHub{})

	_, err := service.Enroll(context.Background(), EnrollRequest{
		LearnerID: "learner-1", CourseID: course.ID, Secret: "wrong",
	})
	require.ErrorIs(t, err, ErrInvalidSecret)

	assert.Equal(t, int64(500000), mem.accounts["LMS2000000001"].Balance)
	assert.Equal(t, int64(100000000), mem.accounts[testClearing].Balance)
	assert.Empty(t, mem.transactions)
	assert.Empty(t, mem.enrollments)
	assert.Empty(t, mem.entries)
}

func TestEnrollInsufficientFundsChangesNothing(t *testing.T) {
	mem := newMemoryLedger()
	course := seedMarketplace(t, mem)
	mem.accounts["LMS2000000001"].Balance = course.Price - 1
	service := newWorkflowService(mem, &stubHub{})

	_, err := service.Enroll(context.Background(), EnrollRequest{
		LearnerID: "learner-1", CourseID: course.ID, Secret: "learner-pass",
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, course.Price-1, mem.accounts["LMS2000000001"].Balance)
	assert.Empty(t, mem.enrollments)
}

func TestEnrollBookkeepingFailureIsReconciliation(t *testing.T) {
	mem := newMemoryLedger()
	course := seedMarketplace(t, mem)
	mem.auditErr = errors.New("audit table gone")
	service := newWorkflowService(mem, &stubHub{})

	_, err := service.Enroll(context.Background(), EnrollRequest{
		LearnerID: "learner-1", CourseID: course.ID, Secret: "learner-pass",
	})
	var reconciliation *ReconciliationError
	require.ErrorAs(t, err, &reconciliation)
	assert.NotEmpty(t, reconciliation.TransferID)

	// The funds already moved; reconciliation is the caller's problem now.
	assert.Equal(t, int64(450000), mem.accounts["LMS2000000001"].Balance)
	assert.Equal(t, int64(100050000), mem.accounts[testClearing].Balance)
}

func TestClaimPaysInstructorAndActivatesEnrollment(t *testing.T) {
	mem := newMemoryLedger()
	course := seedMarketplace(t, mem)
	hub := &stubHub{}
	service := newWorkflowService(mem, hub)

	enrolled, err := service.Enroll(context.Background(), EnrollRequest{
		LearnerID: "learner-1", CourseID: course.ID, Secret: "learner-pass",
	})
	require.NoError(t, err)

	claimed, err := service.Claim(context.Background(), ClaimRequest{
		UserID: "instructor-1", TransactionID: enrolled.PendingPaymentID, Secret: "instructor-pass",
	})
	require.NoError(t, err)

	assert.Equal(t, course.Price, claimed.AmountReceived)
	assert.Equal(t, course.Price, mem.accounts["LMS3000000001"].Balance)
	assert.Equal(t, int64(100000000), mem.accounts[testClearing].Balance, "clearing holds the funds only between purchase and claim")
	assert.Equal(t, "completed", mem.transactions[enrolled.PendingPaymentID].Status)
	assert.Equal(t, "enrolled", mem.enrollments[enrolled.EnrollmentID].Status)
}

func TestClaimReplayIsRejected(t *testing.T) {
	mem := newMemoryLedger()
	course := seedMarketplace(t, mem)
	service := newWorkflowService(mem, &stubHub{})

	enrolled, err := service.Enroll(context.Background(), EnrollRequest{
		LearnerID: "learner-1", CourseID: course.ID, Secret: "learner-pass",
	})
	require.NoError(t, err)
	_, err = service.Claim(context.Background(), ClaimRequest{
		UserID: "instructor-1", TransactionID: enrolled.PendingPaymentID, Secret: "instructor-pass",
	})
	require.NoError(t, err)

	balanceAfterFirst := mem.accounts["LMS3000000001"].Balance
	_, err = service.Claim(context.Background(), ClaimRequest{
		UserID: "instructor-1", TransactionID: enrolled.PendingPaymentID, Secret: "instructor-pass",
	})
	require.ErrorIs(t, err, ErrStalePayment)
	assert.Equal(t, balanceAfterFirst, mem.accounts["LMS3000000001"].Balance)
}

func TestClaimByStrangerIsForbidden(t *testing.T) {
	mem := newMemoryLedger()
	course := seedMarketplace(t, mem)
	mem.addAccount(t, "instructor-2", "LMS3000000002", "other-pass", 0)
	service := newWorkflowService(mem, &stubHub{})

	enrolled, err := service.Enroll(context.Background(), EnrollRequest{
		LearnerID: "learner-1", CourseID: course.ID, Secret: "learner-pass",
	})
	require.NoError(t, err)

	_, err = service.Claim(context.Background(), ClaimRequest{
		UserID: "instructor-2", TransactionID: enrolled.PendingPaymentID, Secret: "other-pass",
	})
	require.ErrorIs(t, err, ErrNotYourPayment)
	assert.Equal(t, int64(0), mem.accounts["LMS3000000002"].Balance)
	assert.Equal(t, "pending", mem.transactions[enrolled.PendingPaymentID].Status)
}

func TestClaimAmountIsFrozenAtEnrollmentTime(t *testing.T) {
	mem := newMemoryLedger()
	course := seedMarketplace(t, mem)
	service := newWorkflowService(mem, &stubHub{})

	enrolled, err := service.Enroll(context.Background(), EnrollRequest{
		LearnerID: "learner-1", CourseID: course.ID, Secret: "learner-pass",
	})
	require.NoError(t, err)

	// A price change between purchase and claim must not affect the payout.
	repriced := mem.courses[course.ID]
	repriced.Price = 999999
	mem.courses[course.ID] = repriced

	claimed, err := service.Claim(context.Background(), ClaimRequest{
		UserID: "instructor-1", TransactionID: enrolled.PendingPaymentID, Secret: "instructor-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), claimed.AmountReceived)
}

func TestUploadCoursePaysFeeFromClearing(t *testing.T) {
	mem := newMemoryLedger()
	seedMarketplace(t, mem)
	hub := &stubHub{}
	service := newWorkflowService(mem, hub)

	result, err := service.UploadCourse(context.Background(), UploadCourseRequest{
		InstructorID: "instructor-1", Title: "Advanced Go", PriceMinor: 80000, UploadFee: 10000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(10000), result.PaymentReceived)
	assert.Equal(t, int64(10000), mem.accounts["LMS3000000001"].Balance)
	assert.Equal(t, int64(99990000), mem.accounts[testClearing].Balance)

	course, ok := mem.courses[result.CourseID]
	require.True(t, ok)
	assert.Equal(t, "active", course.Status)
	assert.Equal(t, int64(80000), course.Price)

	var uploadPayment *store.Transaction
	for _, txn := range mem.transactions {
		if txn.Type == "upload_payment" {
			uploadPayment = txn
		}
	}
	require.NotNil(t, uploadPayment)
	assert.Equal(t, "completed", uploadPayment.Status)
	assert.Equal(t, result.CourseID, uploadPayment.ReferenceID)
}

func TestSetupAccountSingleSidedTopup(t *testing.T) {
	mem := newMemoryLedger()
	service := newWorkflowService(mem, &stubHub{})

	result, err := service.SetupAccount(context.Background(), SetupAccountRequest{
		UserID: "learner-1", AccountNumber: "LMS2000000001", Secret: "learner-pass", InitialMinor: 500000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500000), result.Balance)

	account := mem.accounts["LMS2000000001"]
	require.NotNil(t, account)
	assert.Equal(t, int64(500000), account.Balance)
	assert.NotEqual(t, "learner-pass", account.SecretHash, "secret must not be stored in clear")
	assert.True(t, auth.CheckSecret(account.SecretHash, "learner-pass"))

	require.Len(t, mem.entries, 1)
	assert.Equal(t, int64(500000), mem.entries[0].Amount)

	_, err = service.SetupAccount(context.Background(), SetupAccountRequest{
		UserID: "learner-1", AccountNumber: "LMS2000000002", Secret: "learner-pass", InitialMinor: 0,
	})
	require.ErrorIs(t, err, ErrAccountExists)
}

func TestConservationAcrossFullWorkflow(t *testing.T) {
	mem := newMemoryLedger()
	course := seedMarketplace(t, mem)
	service := newWorkflowService(mem, &stubHub{})

	totalBefore := mem.accounts[testClearing].Balance +
		mem.accounts["LMS2000000001"].Balance +
		mem.accounts["LMS3000000001"].Balance

	enrolled, err := service.Enroll(context.Background(), EnrollRequest{
		LearnerID: "learner-1", CourseID: course.ID, Secret: "learner-pass",
	})
	require.NoError(t, err)
	_, err = service.Claim(context.Background(), ClaimRequest{
		UserID: "instructor-1", TransactionID: enrolled.PendingPaymentID, Secret: "instructor-pass",
	})
	require.NoError(t, err)
	_, err = service.UploadCourse(context.Background(), UploadCourseRequest{
		InstructorID: "instructor-1", Title: "Another", PriceMinor: 10000, UploadFee: 2500,
	})
	require.NoError(t, err)

	totalAfter := mem.accounts[testClearing].Balance +
		mem.accounts["LMS2000000001"].Balance +
		mem.accounts["LMS3000000001"].Balance
	assert.Equal(t, totalBefore, totalAfter, "transfers must conserve total funds")

	var ledgerSum int64
	for _, entry := range mem.entries {
		ledgerSum += entry.Amount
	}
	assert.Equal(t, int64(0), ledgerSum)
}
