package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deploytrack/deploytrack/internal/domain"
	"github.com/deploytrack/deploytrack/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool       *pgxpool.Pool
	windowDays int
	now        func() time.Time
}

// New constructs a Repository. Grouped views cover the last windowDays of
// events; zero or negative disables the window.
func New(pool *pgxpool.Pool, windowDays int) *Repository {
	return &Repository{pool: pool, windowDays: windowDays, now: time.Now}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.EventRepository = (*Repository)(nil)
	_ repository.UsageRepository = (*Repository)(nil)
)

// InsertEvent appends one telemetry event.
func (r *Repository) InsertEvent(ctx context.Context, event *domain.TelemetryEvent) error {
	const query = `INSERT INTO events (
			id, received_at, date_sent, code_version, repository_url, repository_url_hash,
			application_id, application_name, application_version, instance_index, space_id,
			runtime, application_uris, bound_services, bound_vcap_services, bound_service_labels,
			config, provider, chatbot_name, service_id, cluster_id, customer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	vcap, err := marshalVCAP(event.BoundVCAPServices)
	if err != nil {
		return fmt.Errorf("encode bound_vcap_services: %w", err)
	}
	uris, err := marshalURIs(event.ApplicationURIs)
	if err != nil {
		return fmt.Errorf("encode application_uris: %w", err)
	}
	_, err = r.pool.Exec(ctx, query,
		event.ID, event.ReceivedAt, nullable(event.DateSent), nullable(event.CodeVersion),
		nullable(event.RepositoryURL), nullable(event.RepositoryURLHash),
		nullable(event.ApplicationID), nullable(event.ApplicationName), nullable(event.ApplicationVersion),
		event.InstanceIndex, nullable(event.SpaceID), nullable(event.Runtime),
		uris, rawOrNil(event.BoundServices), vcap, event.BoundServiceLabels,
		rawOrNil(event.Config), nullable(event.Provider), nullable(event.ChatbotName),
		nullable(event.ServiceID), nullable(event.ClusterID), nullable(event.CustomerID))
	return err
}

// GroupedDeploysByRepo returns deployment counts grouped by repository, year
// and month, deduplicated by application.
func (r *Repository) GroupedDeploysByRepo(ctx context.Context) ([]domain.GroupedCount, error) {
	const query = `SELECT COALESCE(repository_url, ''),
			to_char(received_at, 'YYYY'), to_char(received_at, 'MM'),
			COUNT(DISTINCT COALESCE(application_id, id::text))::bigint
		FROM events
		WHERE received_at >= $1
		GROUP BY 1, 2, 3
		ORDER BY 1, 2, 3`
	return r.groupedRows(ctx, query, 3, r.windowStart())
}

// GroupedDeploysByRepoHash returns the per-repository grouped view addressed
// by URL hash.
func (r *Repository) GroupedDeploysByRepoHash(ctx context.Context, hash string) ([]domain.GroupedCount, error) {
	const query = `SELECT repository_url_hash, COALESCE(repository_url, ''),
			to_char(received_at, 'YYYY'), to_char(received_at, 'MM'),
			COUNT(DISTINCT COALESCE(application_id, id::text))::bigint
		FROM events
		WHERE repository_url_hash = $1 AND received_at >= $2
		GROUP BY 1, 2, 3, 4
		ORDER BY 1, 2, 3, 4`
	return r.groupedRows(ctx, query, 4, hash, r.windowStart())
}

// GroupedCategoryCounts returns distinct-application tallies over the
// runtime, service and language facets.
func (r *Repository) GroupedCategoryCounts(ctx context.Context) ([]domain.GroupedCount, error) {
	const query = `SELECT item, kind, COUNT(DISTINCT app)::bigint
		FROM (
			SELECT runtime AS item, 'runtimes' AS kind, COALESCE(application_id, id::text) AS app
			FROM events WHERE runtime IS NOT NULL AND received_at >= $1
			UNION ALL
			SELECT unnest(bound_service_labels), 'services', COALESCE(application_id, id::text)
			FROM events WHERE received_at >= $1
			UNION ALL
			SELECT config->>'language', 'language', COALESCE(application_id, id::text)
			FROM events WHERE config ? 'language' AND received_at >= $1
		) facets
		WHERE item IS NOT NULL AND item <> ''
		GROUP BY item, kind
		ORDER BY item, kind`
	return r.groupedRows(ctx, query, 2, r.windowStart())
}

// CountUniqueDeploys counts unique (repo, year, month, application) rows for
// a repository hash. This is the badge number.
func (r *Repository) CountUniqueDeploys(ctx context.Context, hash string) (int64, error) {
	const query = `SELECT COUNT(*)::bigint FROM (
			SELECT DISTINCT COALESCE(repository_url, ''),
				to_char(received_at, 'YYYY'), to_char(received_at, 'MM'),
				COALESCE(application_id, id::text)
			FROM events
			WHERE repository_url_hash = $1 AND received_at >= $2
		) uniq`
	row := r.pool.QueryRow(ctx, query, hash, r.windowStart())
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListRepositoryURLs returns the distinct repository URLs seen in the window.
func (r *Repository) ListRepositoryURLs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT repository_url FROM events
		WHERE repository_url IS NOT NULL AND received_at >= $1
		ORDER BY repository_url`
	rows, err := r.pool.Query(ctx, query, r.windowStart())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := make([]string, 0)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

// GetUsageSnapshot loads the usage summary document.
func (r *Repository) GetUsageSnapshot(ctx context.Context) (*domain.UsageSnapshot, error) {
	const query = `SELECT payload FROM usage_snapshots WHERE id = 'services'`
	row := r.pool.QueryRow(ctx, query)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	var snapshot domain.UsageSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("decode usage snapshot: %w", err)
	}
	return &snapshot, nil
}

// UpsertUsageSnapshot replaces the usage summary document.
func (r *Repository) UpsertUsageSnapshot(ctx context.Context, snapshot *domain.UsageSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode usage snapshot: %w", err)
	}
	const query = `INSERT INTO usage_snapshots (id, payload, updated_at)
		VALUES ('services', $1, now())
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
	_, err = r.pool.Exec(ctx, query, payload)
	return err
}

func (r *Repository) groupedRows(ctx context.Context, query string, keyLen int, args ...any) ([]domain.GroupedCount, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grouped := make([]domain.GroupedCount, 0)
	for rows.Next() {
		key := make([]string, keyLen)
		dest := make([]any, 0, keyLen+1)
		for i := range key {
			dest = append(dest, &key[i])
		}
		var count int64
		dest = append(dest, &count)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		grouped = append(grouped, domain.GroupedCount{Key: key, Count: count})
	}
	return grouped, rows.Err()
}

func (r *Repository) windowStart() time.Time {
	if r.windowDays <= 0 {
		return time.Unix(0, 0).UTC()
	}
	return r.now().UTC().AddDate(0, 0, -r.windowDays)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawOrNil(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func marshalURIs(uris []string) ([]byte, error) {
	if len(uris) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(uris)
}

func marshalVCAP(services map[string]json.RawMessage) ([]byte, error) {
	if len(services) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(services)
}
