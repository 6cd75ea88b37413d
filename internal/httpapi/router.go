// Package httpapi exposes the circulation ledger as a JSON REST API.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/unilib/circulation-go/circulation"
)

// CirculationService is the surface of the ledger the API needs. It is
// satisfied by *postgresengine.Ledger.
type CirculationService interface {
	AddBook(ctx context.Context, title string, category string, tag circulation.Tag, totalCopies int) (circulation.Book, error)
	GetBook(ctx context.Context, bookID uuid.UUID) (circulation.Book, error)
	CreateLoan(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (circulation.Loan, error)
	ReturnLoan(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error)
	ListLoansByUser(ctx context.Context, userID uuid.UUID) ([]circulation.Loan, error)
	RequestRenewal(ctx context.Context, loanID uuid.UUID) (circulation.RenewalRequest, error)
	ResolveRenewal(ctx context.Context, requestID uuid.UUID, approve bool) (circulation.RenewalRequest, error)
	Reserve(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (circulation.Reservation, error)
	ClaimReservation(ctx context.Context, reservationID uuid.UUID) (circulation.Loan, error)
	ListReservationsByBook(ctx context.Context, bookID uuid.UUID) ([]circulation.Reservation, error)
	OverdueSummary(ctx context.Context) (circulation.OverdueSummary, error)
}

// API bundles the handlers with their dependencies.
type API struct {
	service CirculationService
	logger  circulation.Logger
	metrics circulation.MetricsCollector
}

// NewAPI creates the API. Logger and metrics may be nil.
func NewAPI(service CirculationService, logger circulation.Logger, metrics circulation.MetricsCollector) *API {
	return &API{service: service, logger: logger, metrics: metrics}
}

// Router builds the chi router with all circulation routes mounted under
// /api. The metrics scrape endpoint is mounted by the daemon, not here.
func (a *API) Router() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(a.observeRequests)

	router.Get("/healthz", a.handleHealth)

	router.Route("/api", func(r chi.Router) {
		r.Post("/books", a.handleAddBook)
		r.Get("/books/{id}", a.handleGetBook)
		r.Get("/books/{id}/reservations", a.handleListReservations)

		r.Post("/loans", a.handleCreateLoan)
		r.Get("/loans", a.handleListLoans)
		r.Get("/loans/{id}", a.handleGetLoan)
		r.Post("/loans/{id}/return", a.handleReturnLoan)
		r.Post("/loans/{id}/renewals", a.handleRequestRenewal)

		r.Post("/renewals/{id}/resolve", a.handleResolveRenewal)

		r.Post("/reservations", a.handleReserve)
		r.Post("/reservations/{id}/claim", a.handleClaimReservation)

		r.Get("/reports/overdue", a.handleOverdueReport)
	})

	return router
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}
