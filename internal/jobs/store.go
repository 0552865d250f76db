package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"papercast/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the jobs database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the filesystem path of the backing database.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// NewDocument inserts a submitted source document.
func (s *Store) NewDocument(ctx context.Context, title, sourcePath, stagedPath, contentHash string, pages, wordCount int) (*Document, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO documents (
            title, source_path, staged_path, content_hash, pages, word_count,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		title,
		sourcePath,
		nullableString(stagedPath),
		nullableString(contentHash),
		pages,
		wordCount,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetDocument(ctx, id)
}

// GetDocument fetches a document by identifier.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// FindDocumentByHash returns the first document matching a content hash, so
// resubmitting the same file reuses its persisted chunks.
func (s *Store) FindDocumentByHash(ctx context.Context, contentHash string) (*Document, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = ? ORDER BY id LIMIT 1`,
		contentHash,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document by hash: %w", err)
	}
	return doc, nil
}

// UpdateDocument persists changes to an existing document.
func (s *Store) UpdateDocument(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	doc.UpdatedAt = time.Now().UTC()
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE documents
         SET title = ?, source_path = ?, staged_path = ?, content_hash = ?,
             pages = ?, word_count = ?, chunks_json = ?, updated_at = ?
         WHERE id = ?`,
		doc.Title,
		doc.SourcePath,
		nullableString(doc.StagedPath),
		nullableString(doc.ContentHash),
		doc.Pages,
		doc.WordCount,
		nullableString(doc.ChunksJSON),
		doc.UpdatedAt.Format(time.RFC3339Nano),
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// NewJob inserts a pending episode job for a document.
func (s *Store) NewJob(ctx context.Context, documentID int64, title, style string, speakers []string) (*Job, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	job := &Job{}
	if err := job.SetSpeakers(speakers); err != nil {
		return nil, err
	}
	token := uuid.NewString()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO episode_jobs (
            token, document_id, title, style, speakers_json, status,
            progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token,
		documentID,
		nullableString(title),
		style,
		nullableString(job.SpeakersJSON),
		StatusPending,
		0.0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM episode_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetByToken fetches a job by its public token.
func (s *Store) GetByToken(ctx context.Context, token string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM episode_jobs WHERE token = ?`, token)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by token: %w", err)
	}
	return job, nil
}

// ActiveJobForDocument returns the oldest job for a document that has not
// yet completed or failed, or nil when every job for that document is in a
// terminal state.
func (s *Store) ActiveJobForDocument(ctx context.Context, documentID int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM episode_jobs
         WHERE document_id = ? AND status NOT IN (?, ?)
         ORDER BY created_at LIMIT 1`,
		documentID, StatusCompleted, StatusFailed)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job for document: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job. Status changes are validated
// against the lifecycle graph and applied conditionally on the stored
// status, so two workers cannot race a job through the same transition.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	current, err := s.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("update job %d: not found", job.ID)
	}
	if err := ValidateTransition(current.Status, job.Status); err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}

	job.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episode_jobs
         SET title = ?, style = ?, speakers_json = ?, status = ?,
             outline_json = ?, segments_json = ?, report_json = ?,
             episode_path = ?, transcript_path = ?, error_message = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             rewrites_used = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		nullableString(job.Title),
		job.Style,
		nullableString(job.SpeakersJSON),
		job.Status,
		nullableString(job.OutlineJSON),
		nullableString(job.SegmentsJSON),
		nullableString(job.ReportJSON),
		nullableString(job.EpisodePath),
		nullableString(job.TranscriptPath),
		nullableString(job.ErrorMessage),
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		job.RewritesUsed,
		nullableTime(job.StartedAt),
		nullableTime(job.LastHeartbeat),
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
		current.Status,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update job %d: concurrent status change", job.ID)
	}
	return nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	baseQuery := `SELECT ` + jobColumns + ` FROM episode_jobs`
	orderClause := ` ORDER BY created_at`
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobsList []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobsList = append(jobsList, job)
	}
	return jobsList, rows.Err()
}

// NextForStatuses returns the oldest job matching any of the provided
// statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	query := `SELECT ` + jobColumns + ` FROM episode_jobs WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM episode_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		default:
			if _, ok := processingStatuses[status]; ok {
				health.Processing += count
			}
		}
	}
	return health, nil
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM episode_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const documentColumns = "id, title, source_path, staged_path, content_hash, pages, word_count, chunks_json, created_at, updated_at"

const jobColumns = "id, token, document_id, title, style, speakers_json, status, outline_json, segments_json, report_json, episode_path, transcript_path, error_message, progress_stage, progress_percent, progress_message, rewrites_used, started_at, last_heartbeat, created_at, updated_at"

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		id          int64
		title       string
		sourcePath  string
		stagedPath  sql.NullString
		contentHash sql.NullString
		pages       int
		wordCount   int
		chunksJSON  sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&id, &title, &sourcePath, &stagedPath, &contentHash,
		&pages, &wordCount, &chunksJSON, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	doc := &Document{
		ID:          id,
		Title:       title,
		SourcePath:  sourcePath,
		StagedPath:  stagedPath.String,
		ContentHash: contentHash.String,
		Pages:       pages,
		WordCount:   wordCount,
		ChunksJSON:  chunksJSON.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		doc.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		doc.UpdatedAt = updated
	}
	return doc, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               int64
		token            string
		documentID       int64
		title            sql.NullString
		style            string
		speakersJSON     sql.NullString
		statusStr        string
		outlineJSON      sql.NullString
		segmentsJSON     sql.NullString
		reportJSON       sql.NullString
		episodePath      sql.NullString
		transcriptPath   sql.NullString
		errorMessage     sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		rewritesUsed     sql.NullInt64
		startedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&token,
		&documentID,
		&title,
		&style,
		&speakersJSON,
		&statusStr,
		&outlineJSON,
		&segmentsJSON,
		&reportJSON,
		&episodePath,
		&transcriptPath,
		&errorMessage,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&rewritesUsed,
		&startedRaw,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		Token:           token,
		DocumentID:      documentID,
		Title:           title.String,
		Style:           style,
		SpeakersJSON:    speakersJSON.String,
		Status:          Status(statusStr),
		OutlineJSON:     outlineJSON.String,
		SegmentsJSON:    segmentsJSON.String,
		ReportJSON:      reportJSON.String,
		EpisodePath:     episodePath.String,
		TranscriptPath:  transcriptPath.String,
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		RewritesUsed:    int(rewritesUsed.Int64),
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
