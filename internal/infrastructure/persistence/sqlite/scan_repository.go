package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/scanner"
	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

const selectResults = `
	SELECT r.id, r.url, r.final_url, r.status_code, r.score, r.title, r.raw_headers,
		r.owner_id, COALESCE(u.username, ''), r.created_at
	FROM scan_results r
	LEFT JOIN users u ON u.id = r.owner_id`

const orderNewestFirst = ` ORDER BY r.created_at DESC, r.id DESC`

// ScanRepository implements scan.Repository on SQLite.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a scan repository backed by db.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Save inserts the result and its issues in one transaction.
func (r *ScanRepository) Save(ctx context.Context, result *scan.Result) error {
	if result.IsPersisted() {
		return fmt.Errorf("%w: scan result %d is already stored", sharedErrors.ErrRepositoryOperation, result.ID())
	}

	headers, err := json.Marshal(result.Headers())
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}

	var owner sql.NullInt64
	if result.HasOwner() {
		owner = sql.NullInt64{Int64: result.OwnerID(), Valid: true}
	}

	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scan_results (url, final_url, status_code, score, title, raw_headers, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.URL(), result.FinalURL(), result.StatusCode(), result.Score(), result.Title(),
		string(headers), owner, formatTime(result.CreatedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan result: %w", err)
	}
	resultID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read scan result id: %w", err)
	}

	issues := result.Issues()
	issueIDs := make([]int64, 0, len(issues))
	for _, issue := range issues {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO issues (scan_result_id, severity, category, message, recommendation, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			resultID, string(issue.Severity()), issue.Category(), issue.Message(), issue.Recommendation(),
			formatTime(issue.CreatedAt()),
		)
		if err != nil {
			return fmt.Errorf("failed to insert issue: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read issue id: %w", err)
		}
		issueIDs = append(issueIDs, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan result: %w", err)
	}

	result.SetID(resultID)
	for i, issue := range issues {
		issue.SetID(issueIDs[i])
	}
	return nil
}

// FindByID retrieves a result with its issues
func (r *ScanRepository) FindByID(ctx context.Context, id int64) (*scan.Result, error) {
	results, err := r.query(ctx, selectResults+` WHERE r.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, sharedErrors.ErrScanNotFound
	}
	return results[0], nil
}

// FindRecent retrieves the latest results; limit <= 0 returns all
func (r *ScanRepository) FindRecent(ctx context.Context, limit int) ([]*scan.Result, error) {
	return r.Search(ctx, scan.Filter{Limit: limit})
}

// FindByOwner retrieves every result owned by a user
func (r *ScanRepository) FindByOwner(ctx context.Context, ownerID int64) ([]*scan.Result, error) {
	return r.query(ctx, selectResults+` WHERE r.owner_id = ?`+orderNewestFirst, ownerID)
}

// FindByURL retrieves every result for an exact URL
func (r *ScanRepository) FindByURL(ctx context.Context, url string) ([]*scan.Result, error) {
	return r.query(ctx, selectResults+` WHERE r.url = ?`+orderNewestFirst, url)
}

// Search retrieves results matching filter
func (r *ScanRepository) Search(ctx context.Context, filter scan.Filter) ([]*scan.Result, error) {
	var conditions []string
	var args []interface{}

	if filter.URLContains != "" {
		// LIKE folds ASCII case only, the same rule as scan.Filter.Matches.
		conditions = append(conditions, `r.url LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(filter.URLContains)+"%")
	}
	if filter.OwnerID != 0 {
		conditions = append(conditions, `r.owner_id = ?`)
		args = append(args, filter.OwnerID)
	}
	if filter.Severity != "" {
		conditions = append(conditions, `EXISTS (SELECT 1 FROM issues i WHERE i.scan_result_id = r.id AND i.severity = ?)`)
		args = append(args, string(filter.Severity))
	}

	query := selectResults
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += orderNewestFirst
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return r.query(ctx, query, args...)
}

// Delete removes a result; issues go with it through ON DELETE CASCADE
func (r *ScanRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM scan_results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scan result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete scan result: %w", err)
	}
	if n == 0 {
		return sharedErrors.ErrScanNotFound
	}
	return nil
}

// Helper methods

type resultRow struct {
	id         int64
	url        string
	finalURL   string
	statusCode int
	score      int
	title      string
	headers    string
	ownerID    sql.NullInt64
	ownerName  string
	createdAt  string
}

func (r *ScanRepository) query(ctx context.Context, query string, args ...interface{}) ([]*scan.Result, error) {
	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan results: %w", err)
	}

	var scanned []resultRow
	for rows.Next() {
		var row resultRow
		if err := rows.Scan(&row.id, &row.url, &row.finalURL, &row.statusCode, &row.score, &row.title,
			&row.headers, &row.ownerID, &row.ownerName, &row.createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		scanned = append(scanned, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate scan results: %w", err)
	}
	rows.Close()

	ids := make([]int64, 0, len(scanned))
	for _, row := range scanned {
		ids = append(ids, row.id)
	}
	issues, err := r.loadIssues(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]*scan.Result, 0, len(scanned))
	for _, row := range scanned {
		result, err := row.toResult(issues[row.id])
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// issueBatchSize keeps each issue query well under SQLite's limit on bound
// parameters.
const issueBatchSize = 500

func (r *ScanRepository) loadIssues(ctx context.Context, resultIDs []int64) (map[int64][]*scan.Issue, error) {
	out := make(map[int64][]*scan.Issue, len(resultIDs))
	for start := 0; start < len(resultIDs); start += issueBatchSize {
		end := min(start+issueBatchSize, len(resultIDs))
		if err := r.loadIssueBatch(ctx, resultIDs[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *ScanRepository) loadIssueBatch(ctx context.Context, resultIDs []int64, out map[int64][]*scan.Issue) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(resultIDs)), ",")
	args := make([]interface{}, len(resultIDs))
	for i, id := range resultIDs {
		args[i] = id
	}

	rows, err := r.db.db.QueryContext(ctx,
		`SELECT id, scan_result_id, severity, category, message, recommendation, created_at
		FROM issues WHERE scan_result_id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, resultID int64
		var severity, category, message, rec, created string
		if err := rows.Scan(&id, &resultID, &severity, &category, &message, &rec, &created); err != nil {
			return fmt.Errorf("failed to scan issue row: %w", err)
		}
		createdAt, err := parseTime(created)
		if err != nil {
			return err
		}
		out[resultID] = append(out[resultID],
			scan.ReconstructIssue(id, scanner.Severity(severity), category, message, rec, createdAt))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate issues: %w", err)
	}
	return nil
}

func (row resultRow) toResult(issues []*scan.Issue) (*scan.Result, error) {
	headers := map[string]string{}
	if row.headers != "" {
		if err := json.Unmarshal([]byte(row.headers), &headers); err != nil {
			return nil, fmt.Errorf("%w: headers of scan %d: %v", sharedErrors.ErrDeserializationFailed, row.id, err)
		}
	}
	createdAt, err := parseTime(row.createdAt)
	if err != nil {
		return nil, err
	}

	var ownerID int64
	if row.ownerID.Valid {
		ownerID = row.ownerID.Int64
	}

	return scan.Reconstruct(row.id, row.url, row.finalURL, row.statusCode, row.score, row.title,
		headers, ownerID, row.ownerName, createdAt, issues), nil
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

var _ scan.Repository = (*ScanRepository)(nil)
