package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/akinalp/tradechat/pkg"
)

// expectOneRow maps "no row updated" to ErrNotFound.
func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s not found", pkg.ErrNotFound, what)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
