package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/dataset"
	_ "github.com/mattn/go-sqlite3"
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		entity_id INTEGER PRIMARY KEY,
		value TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS relations (
		relation_id INTEGER PRIMARY KEY,
		value TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS triples (
		position INTEGER PRIMARY KEY,
		subject_id INTEGER NOT NULL,
		object_id INTEGER NOT NULL,
		predicate_id INTEGER NOT NULL,
		partition TEXT NOT NULL CHECK (partition IN ('train', 'valid', 'test')),
		FOREIGN KEY (subject_id) REFERENCES entities(entity_id),
		FOREIGN KEY (object_id) REFERENCES entities(entity_id),
		FOREIGN KEY (predicate_id) REFERENCES relations(relation_id)
	);

	CREATE TABLE IF NOT EXISTS explored (
		value TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS frontier (
		position INTEGER PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		job_id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		entities_explored INTEGER NOT NULL,
		entities_failed INTEGER NOT NULL,
		triples_recorded INTEGER NOT NULL,
		termination_reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_triples_partition ON triples(partition);
	CREATE INDEX IF NOT EXISTS idx_triples_subject ON triples(subject_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save replaces the stored dataset with snap in a single transaction
func (s *Storage) Save(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"triples", "entities", "relations", "explored", "frontier"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := insertValues(tx, "INSERT INTO entities (entity_id, value) VALUES (?, ?)", snap.Entities); err != nil {
		return fmt.Errorf("failed to save entities: %w", err)
	}
	if err := insertValues(tx, "INSERT INTO relations (relation_id, value) VALUES (?, ?)", snap.Relations); err != nil {
		return fmt.Errorf("failed to save relations: %w", err)
	}
	if err := insertValues(tx, "INSERT INTO frontier (position, value) VALUES (?, ?)", snap.Frontier); err != nil {
		return fmt.Errorf("failed to save frontier: %w", err)
	}

	explored, err := tx.Prepare("INSERT INTO explored (value) VALUES (?)")
	if err != nil {
		return fmt.Errorf("failed to prepare explored insert: %w", err)
	}
	defer explored.Close()
	for _, v := range snap.Explored {
		if _, err := explored.Exec(v); err != nil {
			return fmt.Errorf("failed to save explored entity: %w", err)
		}
	}

	triples, err := tx.Prepare(`
		INSERT INTO triples (position, subject_id, object_id, predicate_id, partition)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare triple insert: %w", err)
	}
	defer triples.Close()

	position := 0
	for _, part := range []struct {
		name    string
		triples []dataset.Triple
	}{
		{PartitionTrain, snap.Train},
		{PartitionValid, snap.Valid},
		{PartitionTest, snap.Test},
	} {
		for _, t := range part.triples {
			if _, err := triples.Exec(position, t.Subject, t.Object, t.Predicate, part.name); err != nil {
				return fmt.Errorf("failed to save triple %d: %w", position, err)
			}
			position++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// insertValues writes values with their slice index as key
func insertValues(tx *sql.Tx, query string, values []string) error {
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, v := range values {
		if _, err := stmt.Exec(i, v); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the stored snapshot. An empty database yields an empty snapshot.
func (s *Storage) Load() (*Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Entities, err = s.loadValues("SELECT value FROM entities ORDER BY entity_id"); err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	if snap.Relations, err = s.loadValues("SELECT value FROM relations ORDER BY relation_id"); err != nil {
		return nil, fmt.Errorf("failed to load relations: %w", err)
	}
	if snap.Explored, err = s.loadValues("SELECT value FROM explored ORDER BY value"); err != nil {
		return nil, fmt.Errorf("failed to load explored entities: %w", err)
	}
	if snap.Frontier, err = s.loadValues("SELECT value FROM frontier ORDER BY position"); err != nil {
		return nil, fmt.Errorf("failed to load frontier: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT subject_id, object_id, predicate_id, partition
		FROM triples
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load triples: %w", err)
	}
	defer rows.Close()

	snap.Train = make([]dataset.Triple, 0)
	snap.Valid = make([]dataset.Triple, 0)
	snap.Test = make([]dataset.Triple, 0)

	for rows.Next() {
		var t dataset.Triple
		var partition string
		if err := rows.Scan(&t.Subject, &t.Object, &t.Predicate, &partition); err != nil {
			return nil, fmt.Errorf("failed to scan triple: %w", err)
		}
		switch partition {
		case PartitionTrain:
			snap.Train = append(snap.Train, t)
		case PartitionValid:
			snap.Valid = append(snap.Valid, t)
		case PartitionTest:
			snap.Test = append(snap.Test, t)
		default:
			return nil, fmt.Errorf("unknown partition %q", partition)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triples: %w", err)
	}

	return &snap, nil
}

func (s *Storage) loadValues(query string) ([]string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// SaveRun records the final metrics of one crawl job
func (s *Storage) SaveRun(m Metrics) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (job_id, started_at, finished_at, entities_explored, entities_failed, triples_recorded, termination_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			entities_explored = EXCLUDED.entities_explored,
			entities_failed = EXCLUDED.entities_failed,
			triples_recorded = EXCLUDED.triples_recorded,
			termination_reason = EXCLUDED.termination_reason
	`, m.JobID, m.StartTime, m.EndTime, m.EntitiesExplored, m.EntitiesFailed, m.TriplesRecorded, m.TerminationReason)

	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Run is a row of the runs table
type Run struct {
	JobID             string
	StartedAt         time.Time
	FinishedAt        time.Time
	EntitiesExplored  int
	EntitiesFailed    int
	TriplesRecorded   int
	TerminationReason string
}

// Runs lists recorded crawl jobs, oldest first
func (s *Storage) Runs() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT job_id, started_at, finished_at, entities_explored, entities_failed, triples_recorded, termination_reason
		FROM runs
		ORDER BY started_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var reason sql.NullString
		if err := rows.Scan(&r.JobID, &r.StartedAt, &r.FinishedAt, &r.EntitiesExplored, &r.EntitiesFailed, &r.TriplesRecorded, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.TerminationReason = reason.String
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
