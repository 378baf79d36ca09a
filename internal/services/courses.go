package services

import (
	"context"
	"encoding/json"

	"lms/internal/money"
	"lms/internal/store"
	"lms/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type UploadCourseRequest struct {
	InstructorID string
	Title        string
	Description  string
	PriceMinor   int64
	UploadFee    int64
}

type UploadCourseResult struct {
	CourseID        string
	PaymentReceived int64
	NewBalance      int64
}

// UploadCourse creates a course and pays the instructor the upload fee from
// the clearing account, all in one transaction: either the course exists
// with its fee paid, or nothing happened. The platform-wide ceiling on
// active courses is checked inside the same transaction.
func (s *LedgerService) UploadCourse(ctx context.Context, req UploadCourseRequest) (UploadCourseResult, error) {
	if req.PriceMinor <= 0 || req.UploadFee <= 0 {
		return UploadCourseResult{}, ErrInvalidAmount
	}
	instructorAccount, err := s.accounts.GetByUser(ctx, req.InstructorID)
	if err != nil {
		return UploadCourseResult{}, notFoundAsAccountErr(err)
	}

	courseID := uuid.NewString()
	var result UploadCourseResult
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		active, err := s.courses.CountActive(ctx, tx)
		if err != nil {
			return err
		}
		if active >= s.courseCapacity {
			return ErrCourseCapacity
		}
		if err := s.courses.Create(ctx, tx, store.CourseInput{
			ID:           courseID,
			InstructorID: req.InstructorID,
			Title:        req.Title,
			Description:  req.Description,
			Price:        req.PriceMinor,
			UploadFee:    req.UploadFee,
		}); err != nil {
			return err
		}
		transfer, err := s.transferLocked(ctx, tx, TransferRequest{
			FromAccount: s.clearingNumber,
			ToAccount:   instructorAccount.AccountNumber,
			AmountMinor: req.UploadFee,
			Description: "Upload payment",
		})
		if err != nil {
			return err
		}
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:          uuid.NewString(),
			FromAccount: stringPtr(s.clearingNumber),
			ToAccount:   instructorAccount.AccountNumber,
			Amount:      req.UploadFee,
			Type:        "upload_payment",
			ReferenceID: courseID,
			Status:      "completed",
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"course_id": courseID,
			"fee":       money.FormatMinor(req.UploadFee),
		})
		if err := s.audit.Log(ctx, tx, req.InstructorID, "upload_course", "course", courseID, string(data)); err != nil {
			return err
		}
		result = UploadCourseResult{
			CourseID:        courseID,
			PaymentReceived: req.UploadFee,
			NewBalance:      transfer.ToBalance,
		}
		return nil
	})
	if err != nil {
		return UploadCourseResult{}, mapConflict(err)
	}

	s.hub.BroadcastBalance(req.InstructorID, websocket.BalanceUpdate{
		AccountNumber: instructorAccount.AccountNumber,
		Balance:       money.FormatMinor(result.NewBalance),
		Reason:        "upload_payment",
	})
	return result, nil
}
