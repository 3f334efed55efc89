package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/noah-isme/institute-admin-api/pkg/database"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, size int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return page, size, (page - 1) * size
}

func orderBy(sortBy, sortOrder string, allowed map[string]string, fallback string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = allowed[fallback]
	}
	order := strings.ToUpper(sortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return fmt.Sprintf("%s %s", column, order)
}

type conditions struct {
	clauses []string
	args    []interface{}
}

func (c *conditions) add(format string, arg interface{}) {
	c.args = append(c.args, arg)
	n := len(c.args)
	c.clauses = append(c.clauses, strings.ReplaceAll(format, "?", fmt.Sprintf("$%d", n)))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return "WHERE 1=1"
	}
	return "WHERE " + strings.Join(c.clauses, " AND ")
}

func likePattern(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}

// exists runs SELECT 1 against table with the given predicate on $1, excluding excludeID when set.
func exists(ctx context.Context, q database.Queryer, table, predicate string, value interface{}, excludeID string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s", table, predicate)
	args := []interface{}{value}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var found int
	if err := q.GetContext(ctx, &found, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return true, nil
}
