package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL'in tekrar denenebilir hata kodları
var transientPgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available (lock_timeout)
	"57014": true, // query_canceled (statement_timeout)
	"57P01": true, // admin_shutdown
}

// FromStore, ham bir veritabanı hatasını çekirdek hata tiplerinden birine çevirir.
// Zaten çekirdek hatası olanlar olduğu gibi döner.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce coreError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Entity: op}
	}
	if isTransient(err) {
		return &TransientStoreError{Op: op, Cause: err}
	}
	return &StoreError{Op: op, Cause: err}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if transientPgCodes[pgErr.Code] {
			return true
		}
		// 08xxx: connection_exception sınıfı
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	// SQLite: SQLITE_BUSY / SQLITE_LOCKED
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
