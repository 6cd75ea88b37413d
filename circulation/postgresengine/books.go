package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/unilib/circulation-go/circulation"
)

const (
	actionInsertBook   = "insert book"
	actionAdjustCopies = "adjust available copies"

	opAddBook = "add_book"
)

// AddBook catalogs a new title. All copies start out available.
func (l *Ledger) AddBook(ctx context.Context, title string, category string, tag circulation.Tag, totalCopies int) (circulation.Book, error) {
	start := time.Now()

	book, err := l.addBook(ctx, title, category, tag, totalCopies)
	l.observeOperation(opAddBook, start, err)

	return book, err
}

func (l *Ledger) addBook(ctx context.Context, title string, category string, tag circulation.Tag, totalCopies int) (circulation.Book, error) {
	if validateErr := circulation.ValidateNewBook(title, tag, totalCopies); validateErr != nil {
		return circulation.Book{}, validateErr
	}

	book := circulation.Book{
		ID:              uuid.New(),
		Title:           title,
		Category:        category,
		Tag:             tag,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
		CreatedAt:       l.clock(),
	}

	insertStmt := l.builder().
		Insert(l.booksTable()).
		Rows(goqu.Record{
			colID:              book.ID.String(),
			colTitle:           book.Title,
			colCategory:        book.Category,
			colTag:             string(book.Tag),
			colTotalCopies:     book.TotalCopies,
			colAvailableCopies: book.AvailableCopies,
			colCreatedAt:       book.CreatedAt,
		})

	sqlQuery, buildErr := l.toSQL(insertStmt)
	if buildErr != nil {
		return circulation.Book{}, buildErr
	}

	if _, execErr := l.execute(ctx, l.db, actionInsertBook, sqlQuery); execErr != nil {
		return circulation.Book{}, execErr
	}

	l.logOperation(actionInsertBook, logAttrBookID, book.ID.String())

	return book, nil
}

// adjustAvailableCopies applies a guarded delta to a book's available copy
// count inside the caller's transaction. The WHERE clause re-checks the
// bounds, so a lost update can never push the count outside
// [0, total_copies].
func (l *Ledger) adjustAvailableCopies(ctx context.Context, runner dbRunner, bookID uuid.UUID, delta int) error {
	updateStmt := l.builder().
		Update(l.booksTable()).
		Set(goqu.Record{
			colAvailableCopies: goqu.L("? + ?", goqu.C(colAvailableCopies), delta),
		}).
		Where(
			goqu.Ex{colID: bookID.String()},
			goqu.L("? + ? >= 0", goqu.C(colAvailableCopies), delta),
			goqu.L("? + ? <= ?", goqu.C(colAvailableCopies), delta, goqu.C(colTotalCopies)),
		)

	sqlQuery, buildErr := l.toSQL(updateStmt)
	if buildErr != nil {
		return buildErr
	}

	rowsAffected, execErr := l.execute(ctx, runner, actionAdjustCopies, sqlQuery)
	if execErr != nil {
		return execErr
	}

	if rowsAffected != 1 {
		return errors.Join(circulation.ErrConflict, errors.New("copy count adjustment out of bounds"))
	}

	return nil
}
