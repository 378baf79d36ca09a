package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"lms/internal/money"
	"lms/internal/store"
	"lms/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type EnrollRequest struct {
	LearnerID string
	CourseID  string
	Secret    string
}

type EnrollResult struct {
	EnrollmentID     string
	CourseID         string
	CourseTitle      string
	AmountPaid       int64
	NewBalance       int64
	PurchaseID       string
	PendingPaymentID string
}

// Enroll purchases a course: learner funds move to the clearing account,
// the purchase is logged, and a pending receivable toward the instructor is
// recorded. The enrollment stays pending until the instructor claims that
// receivable.
//
// The fund transfer commits on its own; if the bookkeeping behind it then
// fails, the transfer stands and the failure surfaces as a
// *ReconciliationError rather than being rolled into a clean abort.
func (s *LedgerService) Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error) {
	course, err := s.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EnrollResult{}, ErrCourseNotFound
		}
		return EnrollResult{}, err
	}
	if _, err := s.enrollments.GetByLearnerAndCourse(ctx, req.LearnerID, req.CourseID); err == nil {
		return EnrollResult{}, ErrAlreadyEnrolled
	} else if !errors.Is(err, sql.ErrNoRows) {
		return EnrollResult{}, err
	}
	learnerAccount, err := s.accounts.GetByUser(ctx, req.LearnerID)
	if err != nil {
		return EnrollResult{}, notFoundAsAccountErr(err)
	}
	instructorAccount, err := s.accounts.GetByUser(ctx, course.InstructorID)
	if err != nil {
		return EnrollResult{}, notFoundAsAccountErr(err)
	}

	transfer, err := s.Transfer(ctx, TransferRequest{
		FromAccount: learnerAccount.AccountNumber,
		ToAccount:   s.clearingNumber,
		AmountMinor: course.Price,
		Secret:      stringPtr(req.Secret),
		Description: "Course purchase",
	})
	if err != nil {
		return EnrollResult{}, err
	}

	// Funds are committed past this point.
	purchaseID := uuid.NewString()
	pendingID := uuid.NewString()
	enrollmentID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:          purchaseID,
			FromAccount: stringPtr(learnerAccount.AccountNumber),
			ToAccount:   s.clearingNumber,
			Amount:      course.Price,
			Type:        "course_purchase",
			ReferenceID: course.ID,
			Status:      "completed",
		}); err != nil {
			return err
		}
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:          pendingID,
			FromAccount: stringPtr(s.clearingNumber),
			ToAccount:   instructorAccount.AccountNumber,
			Amount:      course.Price,
			Type:        "instructor_payment",
			ReferenceID: enrollmentID,
			Status:      "pending",
		}); err != nil {
			return err
		}
		if err := s.enrollments.Create(ctx, tx, enrollmentID, req.LearnerID, req.CourseID, "pending"); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"course_id":   course.ID,
			"transfer_id": transfer.TransferID,
			"amount":      money.FormatMinor(course.Price),
		})
		return s.audit.Log(ctx, tx, req.LearnerID, "enroll", "enrollment", enrollmentID, string(data))
	})
	if err != nil {
		return EnrollResult{}, &ReconciliationError{
			TransferID: transfer.TransferID,
			Step:       "enrollment bookkeeping",
			Err:        err,
		}
	}

	s.hub.BroadcastBalance(req.LearnerID, websocket.BalanceUpdate{
		AccountNumber: learnerAccount.AccountNumber,
		Balance:       money.FormatMinor(transfer.FromBalance),
		Reason:        "course_purchase",
	})
	return EnrollResult{
		EnrollmentID:     enrollmentID,
		CourseID:         course.ID,
		CourseTitle:      course.Title,
		AmountPaid:       course.Price,
		NewBalance:       transfer.FromBalance,
		PurchaseID:       purchaseID,
		PendingPaymentID: pendingID,
	}, nil
}
