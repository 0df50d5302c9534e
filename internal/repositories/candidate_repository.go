package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alimgiray/gscout/internal/models"
)

const candidateColumns = `
	id, name, bio, location, account_type, follower_count, following_count,
	public_repo_count, public_gist_count, companies, main_languages, total_stars,
	total_forks, repos_checked, last_activity_days, sample_readme, contact_email,
	profile_url, heuristic_score, model_probability, annotation, last_checked_at,
	created_at, updated_at`

type CandidateRepository struct {
	db *sql.DB
}

func NewCandidateRepository(db *sql.DB) *CandidateRepository {
	return &CandidateRepository{db: db}
}

// Upsert inserts or merges a candidate keyed on its login. The annotation column is never
// written here, and a nil probability keeps whatever prediction is already stored.
func (r *CandidateRepository) Upsert(ctx context.Context, c *models.Candidate) error {
	companies, err := json.Marshal(nonNil(c.Companies))
	if err != nil {
		return err
	}
	languages, err := json.Marshal(nonNil(c.MainLanguages))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.LastCheckedAt.IsZero() {
		c.LastCheckedAt = now
	}

	query := `
		INSERT INTO candidates (
			id, name, bio, location, account_type, follower_count, following_count,
			public_repo_count, public_gist_count, companies, main_languages, total_stars,
			total_forks, repos_checked, last_activity_days, sample_readme, contact_email,
			profile_url, heuristic_score, model_probability, last_checked_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			bio = excluded.bio,
			location = excluded.location,
			account_type = excluded.account_type,
			follower_count = excluded.follower_count,
			following_count = excluded.following_count,
			public_repo_count = excluded.public_repo_count,
			public_gist_count = excluded.public_gist_count,
			companies = excluded.companies,
			main_languages = excluded.main_languages,
			total_stars = excluded.total_stars,
			total_forks = excluded.total_forks,
			repos_checked = excluded.repos_checked,
			last_activity_days = excluded.last_activity_days,
			sample_readme = excluded.sample_readme,
			contact_email = excluded.contact_email,
			profile_url = excluded.profile_url,
			heuristic_score = excluded.heuristic_score,
			model_probability = COALESCE(excluded.model_probability, candidates.model_probability),
			last_checked_at = excluded.last_checked_at,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Bio, c.Location, c.AccountType, c.FollowerCount, c.FollowingCount,
		c.PublicRepoCount, c.PublicGistCount, string(companies), string(languages), c.TotalStars,
		c.TotalForks, c.ReposChecked, c.LastActivityDays, c.SampleReadme, c.ContactEmail,
		c.ProfileURL, c.HeuristicScore, c.ModelProbability, c.LastCheckedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert candidate %s: %w", c.ID, err)
	}
	return nil
}

// GetByID returns sql.ErrNoRows for an unknown login
func (r *CandidateRepository) GetByID(ctx context.Context, id string) (*models.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE id = ?`
	return scanCandidate(r.db.QueryRowContext(ctx, query, id))
}

// IsKnown reports whether the stored candidate already carries an annotation or a prediction
func (r *CandidateRepository) IsKnown(ctx context.Context, id string) (bool, error) {
	query := `SELECT 1 FROM candidates WHERE id = ? AND (annotation IS NOT NULL OR model_probability IS NOT NULL)`
	var one int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// KnownIDs returns the logins of every candidate with an annotation or a prediction
func (r *CandidateRepository) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM candidates WHERE annotation IS NOT NULL OR model_probability IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// ListUnannotated returns unannotated candidates, highest model probability first.
// Unscored candidates sort last.
func (r *CandidateRepository) ListUnannotated(ctx context.Context, offset, limit int) ([]*models.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates
		WHERE annotation IS NULL
		ORDER BY model_probability IS NULL, model_probability DESC, id ASC
		LIMIT ? OFFSET ?`
	return r.list(ctx, query, limit, offset)
}

func (r *CandidateRepository) ListUnannotatedWithoutPrediction(ctx context.Context, offset, limit int) ([]*models.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates
		WHERE annotation IS NULL AND model_probability IS NULL
		ORDER BY id ASC
		LIMIT ? OFFSET ?`
	return r.list(ctx, query, limit, offset)
}

func (r *CandidateRepository) ListAnnotated(ctx context.Context) ([]*models.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE annotation IS NOT NULL ORDER BY id ASC`
	return r.list(ctx, query)
}

func (r *CandidateRepository) ListAll(ctx context.Context, offset, limit int) ([]*models.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates
		ORDER BY heuristic_score DESC, id ASC
		LIMIT ? OFFSET ?`
	return r.list(ctx, query, limit, offset)
}

// Search matches the query against login and location, case-insensitively
func (r *CandidateRepository) Search(ctx context.Context, q string, limit int) ([]*models.Candidate, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
	query := `SELECT ` + candidateColumns + ` FROM candidates
		WHERE LOWER(id) LIKE ? OR LOWER(COALESCE(location, '')) LIKE ?
		ORDER BY heuristic_score DESC, id ASC
		LIMIT ?`
	return r.list(ctx, query, pattern, pattern, limit)
}

// SetAnnotation records the reviewer's label. It returns sql.ErrNoRows for an unknown login.
func (r *CandidateRepository) SetAnnotation(ctx context.Context, id string, annotation models.Annotation) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE candidates SET annotation = ?, updated_at = ? WHERE id = ?`,
		int(annotation), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *CandidateRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates`).Scan(&count)
	return count, err
}

// Reset deletes every candidate and returns how many rows were removed
func (r *CandidateRepository) Reset(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM candidates`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *CandidateRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := []*models.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var (
		c          models.Candidate
		companies  string
		languages  string
		annotation sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Bio, &c.Location, &c.AccountType, &c.FollowerCount, &c.FollowingCount,
		&c.PublicRepoCount, &c.PublicGistCount, &companies, &languages, &c.TotalStars,
		&c.TotalForks, &c.ReposChecked, &c.LastActivityDays, &c.SampleReadme, &c.ContactEmail,
		&c.ProfileURL, &c.HeuristicScore, &c.ModelProbability, &annotation, &c.LastCheckedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(companies), &c.Companies); err != nil {
		return nil, fmt.Errorf("candidate %s: bad companies column: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(languages), &c.MainLanguages); err != nil {
		return nil, fmt.Errorf("candidate %s: bad main_languages column: %w", c.ID, err)
	}
	if annotation.Valid {
		a := models.Annotation(annotation.Int64)
		c.Annotation = &a
	}
	return &c, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
