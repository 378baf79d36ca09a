package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"

	"lms/internal/middleware"
	"lms/internal/money"
	"lms/internal/services"
	"lms/internal/store"
	"lms/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ListActive(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load courses")
		return
	}
	respondJSON(w, http.StatusOK, coursesToJSON(courses))
}

// GetCourseMaterials serves course content to enrolled learners and to the
// course's own instructor. A pending enrollment is not enough: materials
// unlock only once the instructor has claimed the payment.
func (h *Handler) GetCourseMaterials(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID := chi.URLParam(r, "id")
	course, err := h.courses.GetByID(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "course_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load course")
		return
	}
	if course.InstructorID != userID {
		enrollment, err := h.enrollments.GetByLearnerAndCourse(r.Context(), userID, courseID)
		if err != nil || (enrollment.Status != "enrolled" && enrollment.Status != "completed") {
			respondError(w, http.StatusForbidden, "enrollment_required")
			return
		}
	}
	materials, err := h.courses.ListMaterials(r.Context(), courseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load materials")
		return
	}
	out := make([]map[string]any, 0, len(materials))
	for _, m := range materials {
		entry := map[string]any{
			"id":          m.ID,
			"title":       m.Title,
			"type":        m.Type,
			"order_index": m.OrderIndex,
		}
		if m.Content != nil {
			entry["content"] = *m.Content
		}
		if m.FileURL != nil {
			entry["file_url"] = *m.FileURL
		}
		out = append(out, entry)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"course_id": course.ID,
		"title":     course.Title,
		"materials": out,
	})
}

type uploadCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	UploadFee   string `json:"upload_fee"`
}

func (h *Handler) UploadCourse(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req uploadCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateCourseTitle(req.Title); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	priceMinor, err := money.ParseMinor(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	feeMinor := int64(5000)
	if req.UploadFee != "" {
		feeMinor, err = money.ParseMinor(req.UploadFee)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
	}
	result, err := h.service.UploadCourse(r.Context(), services.UploadCourseRequest{
		InstructorID: userID,
		Title:        req.Title,
		Description:  req.Description,
		PriceMinor:   priceMinor,
		UploadFee:    feeMinor,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"course_id":        result.CourseID,
		"payment_received": valueToMoney(result.PaymentReceived),
		"new_balance":      valueToMoney(result.NewBalance),
	})
}

func (h *Handler) MyCourses(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	courses, err := h.courses.ListByInstructor(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load courses")
		return
	}
	respondJSON(w, http.StatusOK, coursesToJSON(courses))
}

type uploadMaterialRequest struct {
	CourseID   string  `json:"course_id"`
	Title      string  `json:"title"`
	Type       string  `json:"type"`
	Content    *string `json:"content"`
	FileURL    *string `json:"file_url"`
	OrderIndex int     `json:"order_index"`
}

func (h *Handler) UploadMaterial(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req uploadMaterialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.CourseID == "" || req.Title == "" {
		respondError(w, http.StatusBadRequest, "course_id and title are required")
		return
	}
	if req.Type != "video" && req.Type != "document" && req.Type != "quiz" {
		respondError(w, http.StatusBadRequest, "type must be video, document or quiz")
		return
	}
	course, err := h.courses.GetByID(r.Context(), req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "course_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load course")
		return
	}
	if course.InstructorID != userID {
		respondError(w, http.StatusForbidden, "not your course")
		return
	}
	materialID := uuid.NewString()
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.courses.CreateMaterial(r.Context(), tx, store.MaterialInput{
			ID:         materialID,
			CourseID:   req.CourseID,
			Title:      req.Title,
			Type:       req.Type,
			Content:    req.Content,
			FileURL:    req.FileURL,
			OrderIndex: req.OrderIndex,
		}); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, userID, "material_uploaded", "course_material", materialID, req.CourseID)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to save material")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"material_id": materialID})
}

type enrollRequest struct {
	CourseID string `json:"course_id"`
	Secret   string `json:"secret"`
}

func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.CourseID == "" || req.Secret == "" {
		respondError(w, http.StatusBadRequest, "course_id and secret are required")
		return
	}
	result, err := h.service.Enroll(r.Context(), services.EnrollRequest{
		LearnerID: userID,
		CourseID:  req.CourseID,
		Secret:    req.Secret,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"enrollment_id": result.EnrollmentID,
		"course_id":     result.CourseID,
		"course_title":  result.CourseTitle,
		"amount_paid":   valueToMoney(result.AmountPaid),
		"new_balance":   valueToMoney(result.NewBalance),
		"status":        "pending",
	})
}

func (h *Handler) MyEnrollments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	enrollments, err := h.enrollments.ListByLearner(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load enrollments")
		return
	}
	out := make([]map[string]any, 0, len(enrollments))
	for _, e := range enrollments {
		out = append(out, map[string]any{
			"id":        e.ID,
			"course_id": e.CourseID,
			"status":    e.Status,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

type completeCourseRequest struct {
	CourseID string `json:"course_id"`
}

// CompleteCourse marks an enrolled course as finished and issues a
// certificate in the same transaction.
func (h *Handler) CompleteCourse(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req completeCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CourseID == "" {
		respondError(w, http.StatusBadRequest, "course_id is required")
		return
	}
	enrollment, err := h.enrollments.GetByLearnerAndCourse(r.Context(), userID, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "enrollment_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load enrollment")
		return
	}
	certificateID := uuid.NewString()
	certificateCode := fmt.Sprintf("CERT-%08d", rand.Intn(100000000))
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		affected, err := h.enrollments.MarkCompleted(r.Context(), tx, enrollment.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return errNotEnrolled
		}
		if err := h.certificates.Create(r.Context(), tx, certificateID, enrollment.ID, certificateCode); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, userID, "course_completed", "enrollment", enrollment.ID, req.CourseID)
	})
	if err != nil {
		if errors.Is(err, errNotEnrolled) {
			respondError(w, http.StatusConflict, "enrollment_not_active")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to complete course")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"enrollment_id":    enrollment.ID,
		"certificate_id":   certificateID,
		"certificate_code": certificateCode,
	})
}

var errNotEnrolled = errors.New("enrollment is not active")

func (h *Handler) MyCertificates(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	certificates, err := h.certificates.ListByLearner(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load certificates")
		return
	}
	out := make([]map[string]any, 0, len(certificates))
	for _, c := range certificates {
		out = append(out, map[string]any{
			"id":               c.ID,
			"certificate_code": c.CertificateCode,
			"course_id":        c.CourseID,
			"course_title":     c.CourseTitle,
			"issued_at":        c.IssuedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func coursesToJSON(courses []store.Course) []map[string]any {
	out := make([]map[string]any, 0, len(courses))
	for _, c := range courses {
		out = append(out, map[string]any{
			"id":            c.ID,
			"instructor_id": c.InstructorID,
			"title":         c.Title,
			"description":   c.Description,
			"price":         valueToMoney(c.Price),
			"status":        c.Status,
		})
	}
	return out
}
