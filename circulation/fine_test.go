package circulation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/unilib/circulation-go/circulation"
)

func Test_FineFor_ThreeDaysLateUnderRedTag(t *testing.T) {
	// arrange
	due := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	returnedAt := due.AddDate(0, 0, 3)

	// act
	fine := circulation.FineFor(circulation.TagRed, &due, returnedAt)

	// assert
	expected := circulation.TagRed.PerDayRate().Mul(decimal.NewFromInt(3))
	assert.True(t, fine.Equal(expected), "expected %s, got %s", expected, fine)
}

func Test_FineFor_OnTimeReturnYieldsZero(t *testing.T) {
	// arrange
	due := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	returnedAt := due.Add(-2 * time.Hour)

	// act
	fine := circulation.FineFor(circulation.TagYellow, &due, returnedAt)

	// assert
	assert.True(t, fine.IsZero())
}

func Test_FineFor_ReturnExactlyAtDueDateYieldsZero(t *testing.T) {
	// arrange
	due := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// act
	fine := circulation.FineFor(circulation.TagRed, &due, due)

	// assert
	assert.True(t, fine.IsZero())
}

func Test_FineFor_StartedDayCountsAsFullDay(t *testing.T) {
	// arrange
	due := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	returnedAt := due.Add(26 * time.Hour) // one full day plus two hours

	// act
	fine := circulation.FineFor(circulation.TagYellow, &due, returnedAt)

	// assert
	expected := circulation.TagYellow.PerDayRate().Mul(decimal.NewFromInt(2))
	assert.True(t, fine.Equal(expected), "expected %s, got %s", expected, fine)
}

func Test_FineFor_WhiteTagNeverFines(t *testing.T) {
	// arrange - white material carries no due date
	returnedAt := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	// act
	fine := circulation.FineFor(circulation.TagWhite, nil, returnedAt)

	// assert
	assert.True(t, fine.IsZero())
}

func Test_OverdueDays_NeverNegative(t *testing.T) {
	// arrange
	due := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// act
	days := circulation.OverdueDays(&due, due.AddDate(0, 0, -5))

	// assert
	assert.Equal(t, 0, days)
}

func Test_Tag_PerDayRate_RedIsStrictest(t *testing.T) {
	assert.True(t, circulation.TagRed.PerDayRate().GreaterThan(circulation.TagYellow.PerDayRate()))
	assert.True(t, circulation.TagYellow.PerDayRate().GreaterThan(circulation.TagWhite.PerDayRate()))
}
