package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/unilib/circulation-go/circulation"
)

const (
	paramID     = "id"
	queryUserID = "user_id"

	msgInvalidBody   = "invalid request body"
	msgInvalidID     = "invalid id"
	msgInvalidUserID = "invalid or missing user_id"
)

type addBookRequest struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Tag         string `json:"tag"`
	TotalCopies int    `json:"total_copies"`
}

type createLoanRequest struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
}

type resolveRenewalRequest struct {
	Approve bool `json:"approve"`
}

type reserveRequest struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
}

type bookResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Category        string    `json:"category"`
	Tag             string    `json:"tag"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
}

type loanResponse struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	BookID       string     `json:"book_id"`
	LoanDate     time.Time  `json:"loan_date"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	Status       string     `json:"status"`
	RenewalCount int        `json:"renewal_count"`
	Fine         *string    `json:"fine,omitempty"`
}

type renewalResponse struct {
	ID          string    `json:"id"`
	LoanID      string    `json:"loan_id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	RequestDate time.Time `json:"request_date"`
}

type reservationResponse struct {
	ID            string     `json:"id"`
	BookID        string     `json:"book_id"`
	UserID        string     `json:"user_id"`
	CreatedAt     time.Time  `json:"created_at"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	ClaimBy       *time.Time `json:"claim_by,omitempty"`
	Status        string     `json:"status"`
	QueuePosition int        `json:"queue_position,omitempty"`
}

func toBookResponse(book circulation.Book) bookResponse {
	return bookResponse{
		ID:              book.ID.String(),
		Title:           book.Title,
		Category:        book.Category,
		Tag:             string(book.Tag),
		TotalCopies:     book.TotalCopies,
		AvailableCopies: book.AvailableCopies,
		CreatedAt:       book.CreatedAt,
	}
}

func toLoanResponse(loan circulation.Loan) loanResponse {
	response := loanResponse{
		ID:           loan.ID.String(),
		UserID:       loan.UserID.String(),
		BookID:       loan.BookID.String(),
		LoanDate:     loan.LoanDate,
		DueDate:      loan.DueDate,
		ReturnDate:   loan.ReturnDate,
		Status:       string(loan.Status),
		RenewalCount: loan.RenewalCount,
	}

	if loan.Fine != nil {
		fine := loan.Fine.StringFixed(2)
		response.Fine = &fine
	}

	return response
}

func toRenewalResponse(request circulation.RenewalRequest) renewalResponse {
	return renewalResponse{
		ID:          request.ID.String(),
		LoanID:      request.LoanID.String(),
		UserID:      request.UserID.String(),
		Status:      string(request.Status),
		RequestDate: request.RequestDate,
	}
}

func toReservationResponse(reservation circulation.Reservation) reservationResponse {
	return reservationResponse{
		ID:            reservation.ID.String(),
		BookID:        reservation.BookID.String(),
		UserID:        reservation.UserID.String(),
		CreatedAt:     reservation.CreatedAt,
		NotifiedAt:    reservation.NotifiedAt,
		ClaimBy:       reservation.ClaimBy,
		Status:        string(reservation.Status),
		QueuePosition: reservation.QueuePosition,
	}
}

func (a *API) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var request addBookRequest
	if !a.decodeBody(w, r, &request) {
		return
	}

	book, err := a.service.AddBook(r.Context(), request.Title, request.Category, circulation.Tag(request.Tag), request.TotalCopies)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.writeData(w, http.StatusCreated, toBookResponse(book))
}

func (a *API) handleGetBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := a.pathID(w, r)
	if !ok {
		return
	}

	book, err := a.service.GetBook(r.Context(), bookID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.writeData(w, http.StatusOK, toBookResponse(book))
}

func (a *API) handleListReservations(w http.ResponseWriter, r *http.Request) {
	bookID, ok := a.pathID(w, r)
	if !ok {
		return
	}

	reservations, err := a.service.ListReservationsByBook(r.Context(), bookID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	responses := make([]reservationResponse, 0, len(reservations))
	for _, reservation := range reservations {
		responses = append(responses, toReservationResponse(reservation))
	}

	a.writeData(w, http.StatusOK, responses)
}

func (a *API) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var request createLoanRequest
	if !a.decodeBody(w, r, &request) {
		return
	}

	userID, userErr := uuid.Parse(request.UserID)
	bookID, bookErr := uuid.Parse(request.BookID)
	if userErr != nil || bookErr != nil {
		a.writeBadRequest(w, msgInvalidBody)
		return
	}

	loan, err := a.service.CreateLoan(r.Context(), userID, bookID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.writeData(w, http.StatusCreated, toLoanResponse(loan))
}

func (a *API) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := a.pathID(w, r)
	if !ok {
		return
	}

	loan, err := a.service.GetLoan(r.Context(), loanID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.writeData(w, http.StatusOK, toLoanResponse(loan))
}

func (a *API) handleListLoans(w http.ResponseWriter, r *http.Request) {
	userID, parseErr := uuid.Parse(r.URL.Query().Get(queryUserID))
	if parseErr != nil {
		a.writeBadRequest(w, msgInvalidUserID)
		return
	}

	loans, err := a.service.ListLoansByUser(r.Context(), userID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	responses := make([]loanResponse, 0, len(loans))
	for _, loan := range loans {
		responses = append(responses, toLoanResponse(loan))
	}

	a.writeData(w, http.StatusOK, responses)
}

func (a *API) handleReturnLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := a.pathID(w, r)
	if !ok {
		return
	}

	loan, err := a.service.ReturnLoan(r.Context(), loanID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.writeData(w, http.StatusOK, toLoanResponse(loan))
}

func (a *API) handleRequestRenewal(w http.ResponseWriter, r *http.Request) {
	loanID, ok := a.pathID(w, r)
	if !ok {
		return
	}

	request, err := a.service.RequestRenewal(r.Context(), loanID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.writeData(w, http.StatusCreated, toRenewalResponse(request))
}

func (a *API) handleResolveRenewal(w http.ResponseWriter, r *http.Request) {
	requestID, ok := a.pathID(w, r)
	if !ok {
		return
	}

	var request resolveRenewalRequest
	if !a.decodeBody(w, r, &request) {
		return
	}

	resolved, err := a.service.ResolveRenewal(r.Context(), requestID, request.Approve)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.writeData(w, http.StatusOK, toRenewalResponse(resolved))
}

func (a *API) handleReserve(w http.ResponseWriter, r *http.Request) {
	var request reserveRequest
	if !a.decodeBody(w, r, &request) {
		return
	}

	userID, userErr := uuid.Parse(request.UserID)
	bookID, bookErr := uuid.Parse(request.BookID)
	if userErr != nil || bookErr != nil {
		a.writeBadRequest(w, msgInvalidBody)
		return
	}

	reservation, err := a.service.Reserve(r.Context(), userID, bookID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.writeData(w, http.StatusCreated, toReservationResponse(reservation))
}

func (a *API) handleClaimReservation(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := a.pathID(w, r)
	if !ok {
		return
	}

	loan, err := a.service.ClaimReservation(r.Context(), reservationID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.writeData(w, http.StatusCreated, toLoanResponse(loan))
}

func (a *API) handleOverdueReport(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.OverdueSummary(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.writeData(w, http.StatusOK, summary)
}

func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := jsoniter.ConfigFastest.NewDecoder(r.Body).Decode(target); err != nil {
		a.writeBadRequest(w, msgInvalidBody)
		return false
	}

	return true
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, parseErr := uuid.Parse(chi.URLParam(r, paramID))
	if parseErr != nil {
		a.writeBadRequest(w, msgInvalidID)
		return uuid.Nil, false
	}

	return id, true
}
