package database

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation   = pq.ErrorCode("23505")
	mysqlDuplicateEntry  = 1062
)

// IsUniqueViolation reports whether err is a unique constraint violation
// from PostgreSQL (SQLSTATE 23505) or MySQL (error 1062).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}

	return false
}
