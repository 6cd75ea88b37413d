package circulation

import "github.com/shopspring/decimal"

// OverdueSummary feeds the reporting dashboard with the current overdue
// picture per tag, plus fines already assessed on returned loans.
type OverdueSummary struct {
	OverdueLoans       int             `json:"overdue_loans"`
	OverdueByTag       map[Tag]int     `json:"overdue_by_tag"`
	AssessedFines      decimal.Decimal `json:"assessed_fines"`
	QueuedReservations int             `json:"queued_reservations"`
}
