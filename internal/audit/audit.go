// Package audit persists routing outcomes to a local SQLite table. Entries
// carry hashes and routing metadata only; request and response payloads never
// reach disk.
package audit

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/itori-ai/aiengine/internal/port"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/001_audit_log.sql
var auditSchema string

// defaultMaxRows bounds the table; the oldest rows are pruned past it.
const defaultMaxRows = 10000

// Entry is one routing outcome.
type Entry struct {
	RequestID    string
	Port         port.ID
	Provider     port.ProviderID
	FallbackUsed bool
	Success      bool
	ErrorCode    string
	LatencyMs    int64
	InputHash    string
	OutputHash   string
	Redaction    string
}

// Log is a bounded, best-effort audit sink. Record never blocks the caller:
// entries go through a buffered channel to a single writer goroutine, and
// overflow is dropped with a counter rather than backpressure.
type Log struct {
	db      *sql.DB
	entries chan Entry
	done    chan struct{}
	maxRows int
	log     zerolog.Logger
}

// Open creates (or reuses) the audit database under dataDir and starts the
// writer.
func Open(dataDir string, logger zerolog.Logger) (*Log, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "audit.db"))
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure audit database: %w", err)
		}
	}

	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit database: %w", err)
	}

	l := &Log{
		db:      db,
		entries: make(chan Entry, 256),
		done:    make(chan struct{}),
		maxRows: defaultMaxRows,
		log:     logger,
	}
	go l.writer()
	return l, nil
}

// Record queues an entry. Dropped silently when the buffer is full; auditing
// must never slow routing down.
func (l *Log) Record(e Entry) {
	select {
	case l.entries <- e:
	default:
		l.log.Warn().Str("port", e.Port.String()).Msg("audit buffer full, entry dropped")
	}
}

// Close flushes queued entries and closes the database.
func (l *Log) Close() error {
	close(l.entries)
	<-l.done
	return l.db.Close()
}

func (l *Log) writer() {
	defer close(l.done)
	written := 0
	for e := range l.entries {
		if err := l.insert(e); err != nil {
			l.log.Warn().Err(err).Msg("audit write failed")
			continue
		}
		written++
		// Prune occasionally, not per write.
		if written%100 == 1 {
			if err := l.prune(); err != nil {
				l.log.Warn().Err(err).Msg("audit prune failed")
			}
		}
	}
}

func (l *Log) insert(e Entry) error {
	_, err := l.db.Exec(`
		INSERT INTO routing_audit
			(request_id, port, provider, fallback_used, success, error_code,
			 latency_ms, input_hash, output_hash, redaction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, string(e.Port), string(e.Provider),
		boolToInt(e.FallbackUsed), boolToInt(e.Success), nullable(e.ErrorCode),
		e.LatencyMs, e.InputHash, nullable(e.OutputHash), nullable(e.Redaction),
	)
	return err
}

func (l *Log) prune() error {
	_, err := l.db.Exec(`
		DELETE FROM routing_audit
		WHERE id NOT IN (SELECT id FROM routing_audit ORDER BY id DESC LIMIT ?)`,
		l.maxRows)
	return err
}

// Recent returns the newest entries, newest first. The CLI uses it for
// status output.
func (l *Log) Recent(limit int) ([]Entry, error) {
	rows, err := l.db.Query(`
		SELECT request_id, port, provider, fallback_used, success,
		       COALESCE(error_code, ''), latency_ms, input_hash,
		       COALESCE(output_hash, ''), COALESCE(redaction, '')
		FROM routing_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var portStr, providerStr string
		var fallbackUsed, success int
		if err := rows.Scan(&e.RequestID, &portStr, &providerStr, &fallbackUsed,
			&success, &e.ErrorCode, &e.LatencyMs, &e.InputHash, &e.OutputHash,
			&e.Redaction); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Port = port.ID(portStr)
		e.Provider = port.ProviderID(providerStr)
		e.FallbackUsed = fallbackUsed == 1
		e.Success = success == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
