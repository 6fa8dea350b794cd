// Package repository implements the MySQL-backed stores: principals
// (credential store), sessions (refresh-token registry), OTP challenges
// and coupons.  Lookups return (nil, nil) when no row matches; callers decide
// whether absence is an error.
package repository

import (
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a MySQL unique-key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// utcNow is the clock used by stores unless a test replaces it.
func utcNow() time.Time { return time.Now().UTC() }
