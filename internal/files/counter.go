// internal/files/counter.go
package files

import (
	"context"
	"database/sql"
	"fmt"

	"project-desk/internal/common/logger"
	"project-desk/internal/models"
)

// Counter reports how many output artifacts a project has.
type Counter interface {
	CountOutputs(ctx context.Context, projectID string) (int, error)
}

const countOutputsQuery = `SELECT COUNT(*) FROM project_files WHERE project_id = $1 AND tag = $2`

// PostgresCounter reads file tags straight from the project_files table.
type PostgresCounter struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresCounter(db *sql.DB, log logger.Logger) *PostgresCounter {
	return &PostgresCounter{
		db:     db,
		logger: logger.ForComponent(log, "files.postgres"),
	}
}

func (c *PostgresCounter) CountOutputs(ctx context.Context, projectID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, countOutputsQuery, projectID, models.FileTagOutput).Scan(&count)
	if err != nil {
		c.logger.Warn("Output count query failed", map[string]interface{}{
			"projectId": projectID,
			"error":     err,
		})
		return 0, fmt.Errorf("failed to count output files: %w", err)
	}
	c.logger.Debug("Counted output files", map[string]interface{}{
		"projectId": projectID,
		"count":     count,
	})
	return count, nil
}
