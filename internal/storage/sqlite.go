// Package storage handles database connections, schema migrations, and data operations using SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/woozymasta/mcquery/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

const serverColumns = `id, name, kind, host, port, query_port, country_code, online, created_at, last_seen`

// UpsertServer registers a server or, when kind, host and port are already tracked,
// updates its name and query port. It returns the row id.
func (r *Repository) UpsertServer(s models.Server) (int64, error) {
	if s.Kind == "" {
		s.Kind = models.KindMinecraft
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	var id int64
	err := r.db.QueryRow(`
	INSERT INTO servers (name, kind, host, port, query_port, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(kind, host, port) DO UPDATE SET
		name       = CASE WHEN excluded.name != '' THEN excluded.name ELSE servers.name END,
		query_port = excluded.query_port
	RETURNING id
	`, s.Name, s.Kind, s.Host, s.Port, s.QueryPort, s.CreatedAt.UTC()).Scan(&id)

	return id, err
}

// GetServers retrieves all tracked servers ordered by id.
func (r *Repository) GetServers() ([]models.Server, error) {
	rows, err := r.db.Query(`SELECT ` + serverColumns + ` FROM servers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	servers := []models.Server{}
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return servers, nil
}

// GetServer retrieves a server by id. It returns nil without error when not found.
func (r *Repository) GetServer(id int64) (*models.Server, error) {
	row := r.db.QueryRow(`SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)

	s, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// DeleteServer removes a server and its snapshots. It reports whether the server existed.
func (r *Repository) DeleteServer(id int64) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(`DELETE FROM snapshots WHERE server_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return false, err
	}

	res, err := tx.Exec(`DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

// SetCountry stores the ISO country code resolved for a server.
func (r *Repository) SetCountry(id int64, code string) error {
	_, err := r.db.Exec(`UPDATE servers SET country_code = ? WHERE id = ?`, code, id)
	return err
}

// SaveSnapshots stores a batch of snapshots in a single transaction and updates
// the online flag and last_seen time of their servers.
// Snapshots of servers deleted in the meantime are dropped.
func (r *Repository) SaveSnapshots(batch []models.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	insert, err := tx.Prepare(`
	INSERT INTO snapshots (
		server_id, taken_at, online, version, protocol, motd, map,
		players, max_players, player_names, latency_ms, favicon_hash, error
	)
	SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
	WHERE EXISTS (SELECT 1 FROM servers WHERE id = ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = insert.Close() }()

	update, err := tx.Prepare(`
	UPDATE servers SET
		online    = ?,
		last_seen = CASE WHEN ? THEN ? ELSE last_seen END
	WHERE id = ?
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = update.Close() }()

	for _, s := range batch {
		names, err := json.Marshal(s.PlayerNames)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		taken := s.TakenAt.UTC()

		if _, err := insert.Exec(
			s.ServerID, taken, s.Online, s.Version, s.Protocol, s.MOTD, s.Map,
			s.Players, s.MaxPlayers, string(names), s.LatencyMS, s.FaviconHash, s.Error,
			s.ServerID,
		); err != nil {
			_ = tx.Rollback()
			return err
		}

		if _, err := update.Exec(s.Online, s.Online, taken, s.ServerID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetSnapshots returns up to limit snapshots of a server, newest first.
func (r *Repository) GetSnapshots(serverID int64, limit int) ([]models.Snapshot, error) {
	rows, err := r.db.Query(`
		SELECT server_id, taken_at, online, version, protocol, motd, map,
		       players, max_players, player_names, latency_ms, favicon_hash, error
		FROM snapshots
		WHERE server_id = ?
		ORDER BY taken_at DESC, id DESC
		LIMIT ?
	`, serverID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	snaps := []models.Snapshot{}
	for rows.Next() {
		var (
			s     models.Snapshot
			names string
		)
		if err := rows.Scan(
			&s.ServerID, &s.TakenAt, &s.Online, &s.Version, &s.Protocol, &s.MOTD, &s.Map,
			&s.Players, &s.MaxPlayers, &names, &s.LatencyMS, &s.FaviconHash, &s.Error,
		); err != nil {
			return nil, err
		}
		if names != "" && names != "null" {
			if err := json.Unmarshal([]byte(names), &s.PlayerNames); err != nil {
				return nil, err
			}
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snaps, nil
}

// PruneSnapshots deletes snapshots taken before the given time and returns how many were removed.
func (r *Repository) PruneSnapshots(before time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM snapshots WHERE taken_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (models.Server, error) {
	var (
		s        models.Server
		lastSeen sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.Kind, &s.Host, &s.Port, &s.QueryPort,
		&s.CountryCode, &s.Online, &s.CreatedAt, &lastSeen,
	)
	if lastSeen.Valid {
		s.LastSeen = lastSeen.Time
	}

	return s, err
}
