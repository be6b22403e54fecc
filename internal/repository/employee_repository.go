package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/hse-dms-api/internal/models"
)

// EmployeeRepository reads the identity/role directory used by dynamic
// assignee resolution. The directory is owned by the HR system; this service
// never writes to it.
type EmployeeRepository struct {
	db *sqlx.DB
}

// NewEmployeeRepository constructs the repository.
func NewEmployeeRepository(db *sqlx.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// FindByPosition matches active employees whose position matches the pattern
// (case-insensitive substring), optionally scoped to a department. Zero
// matches is a valid result, not an error.
func (r *EmployeeRepository) FindByPosition(ctx context.Context, department, positionPattern string) ([]models.Employee, error) {
	pattern := "%" + strings.TrimSpace(positionPattern) + "%"
	args := []interface{}{pattern}
	query := `SELECT id, full_name, email, position, department, phone, active, created_at
	FROM employees WHERE active = TRUE AND position ILIKE $1`
	if department != "" {
		args = append(args, department)
		query += fmt.Sprintf(" AND department = $%d", len(args))
	}
	query += " ORDER BY full_name ASC"

	var employees []models.Employee
	if err := r.db.SelectContext(ctx, &employees, query, args...); err != nil {
		return nil, fmt.Errorf("find employees by position: %w", err)
	}
	return employees, nil
}

// FindByIDs resolves employee names for explicit assignee lists.
func (r *EmployeeRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, full_name, email, position, department, phone, active, created_at
	FROM employees WHERE id IN (%s)`, strings.Join(placeholders, ","))

	var employees []models.Employee
	if err := r.db.SelectContext(ctx, &employees, query, args...); err != nil {
		return nil, fmt.Errorf("find employees by ids: %w", err)
	}
	return employees, nil
}
