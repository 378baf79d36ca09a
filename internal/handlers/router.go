package handlers

import (
	"net/http"

	"lms/internal/config"
	"lms/internal/db"
	"lms/internal/middleware"
	"lms/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	cfg          config.Config
	txRunner     db.TxRunner
	users        UserStore
	accounts     AccountStore
	courses      CourseStore
	enrollments  EnrollmentStore
	certificates CertificateStore
	transactions TransactionStore
	audit        AuditStore
	service      LedgerService
	hub          *websocket.Hub
}

func New(cfg config.Config, txRunner db.TxRunner, users UserStore, accounts AccountStore, courses CourseStore, enrollments EnrollmentStore, certificates CertificateStore, transactions TransactionStore, audit AuditStore, service LedgerService, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:          cfg,
		txRunner:     txRunner,
		users:        users,
		accounts:     accounts,
		courses:      courses,
		enrollments:  enrollments,
		certificates: certificates,
		transactions: transactions,
		audit:        audit,
		service:      service,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.Route("/bank", func(r chi.Router) {
		r.With(middleware.Auth(h.cfg.JWTSecret)).Post("/setup", h.SetupBankAccount)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/balance", h.GetBalance)
		r.Get("/accounts/{number}", h.GetAccountByNumber)
		r.Post("/transactions", h.ProcessTransaction)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/transactions", h.ListTransactions)
	})

	router.Get("/courses", h.ListCourses)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/courses/{id}/materials", h.GetCourseMaterials)

	router.Route("/learner", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireRole("learner"))
		r.Post("/enroll", h.Enroll)
		r.Get("/enrollments", h.MyEnrollments)
		r.Post("/complete", h.CompleteCourse)
		r.Get("/certificates", h.MyCertificates)
	})

	router.Route("/instructor", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireRole("instructor"))
		r.Post("/courses", h.UploadCourse)
		r.Get("/courses", h.MyCourses)
		r.Post("/materials", h.UploadMaterial)
		r.Get("/pending-transactions", h.PendingTransactions)
		r.Post("/claim", h.ClaimPayment)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireRole("admin"))
		r.Get("/stats", h.AdminStats)
		r.Get("/transactions", h.AdminListTransactions)
		r.Get("/audit", h.ListAuditLogs)
		r.Get("/reconcile", h.Reconcile)
	})

	router.Get("/ws/balances", h.WSBalances)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
