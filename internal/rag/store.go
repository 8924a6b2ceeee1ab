// Package rag is the retrieval store: an embedding-indexed log of chat
// turns, a curated knowledge base, and learned multi-step patterns.
// All corpora live in one SQLite database; vectors are little-endian
// float32 blobs. The database records which embedding engine produced
// its vectors and refuses to open under a different one, so hash
// fallback vectors are never mixed with live-model vectors.
package rag

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/relocato/assistant/internal/embedding"
	"github.com/relocato/assistant/internal/logging"
)

// Config tunes similarity search per corpus.
type Config struct {
	HistoryThreshold   float64
	HistoryLimit       int
	KnowledgeThreshold float64
	KnowledgeLimit     int
	PatternThreshold   float64
	PatternLimit       int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		HistoryThreshold:   0.70,
		HistoryLimit:       3,
		KnowledgeThreshold: 0.75,
		KnowledgeLimit:     3,
		PatternThreshold:   0.80,
		PatternLimit:       2,
	}
}

// Store is the SQLite retrieval store.
type Store struct {
	db     *sql.DB
	engine embedding.Engine
	cfg    Config
	mu     sync.RWMutex
	hasVec bool
}

// Open creates or opens the retrieval database. Use ":memory:" for
// tests.
func Open(path string, engine embedding.Engine, cfg Config) (*Store, error) {
	log := logging.Get(logging.CategoryRAG)

	if engine == nil {
		return nil, fmt.Errorf("embedding engine required")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("Failed to apply %q: %v", pragma, err)
		}
	}

	store := &Store{db: db, engine: engine, cfg: cfg}
	if err := store.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := store.checkEngine(); err != nil {
		db.Close()
		return nil, err
	}
	store.detectVec()

	log.Info("Retrieval store opened at %s (engine=%s, ann=%v)", path, engine.Name(), store.hasVec)
	return store, nil
}

func (s *Store) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ai_chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS ai_chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB,
		tools_used TEXT,
		customer_id TEXT,
		quote_id TEXT,
		success INTEGER,
		response_time_ms INTEGER,
		image_url TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_session ON ai_chat_history(session_id);

	CREATE TABLE IF NOT EXISTS ai_knowledge (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB,
		usage_count INTEGER DEFAULT 0,
		last_used_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(category, title)
	);

	CREATE TABLE IF NOT EXISTS ai_learned_patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_question TEXT NOT NULL,
		ai_response TEXT NOT NULL,
		embedding BLOB,
		tools_used TEXT,
		success_rating REAL,
		user_feedback TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ai_user_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		message_content TEXT,
		helpful INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// checkEngine rejects opening a corpus written by a different embedding
// engine. Vectors from different engines live in different spaces and
// must never be compared.
func (s *Store) checkEngine() error {
	var stored string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'embedding_engine'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(`INSERT INTO meta (key, value) VALUES ('embedding_engine', ?)`, s.engine.Name())
		if err != nil {
			return fmt.Errorf("failed to record embedding engine: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to read embedding engine marker: %w", err)
	case stored != s.engine.Name():
		return fmt.Errorf("corpus was embedded with %q, refusing to open with %q", stored, s.engine.Name())
	default:
		return nil
	}
}

// detectVec probes for the sqlite-vec extension and creates the ANN
// side table for chat history when available. Everything stays
// functional on the brute-force path without it.
func (s *Store) detectVec() {
	var version string
	if err := s.db.QueryRow(`SELECT vec_version()`).Scan(&version); err != nil {
		logging.Get(logging.CategoryRAG).Debug("sqlite-vec not available, using cosine scan: %v", err)
		return
	}

	create := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_history USING vec0(
			embedding float[%d],
			history_id INTEGER
		)`, s.engine.Dimensions())
	if _, err := s.db.Exec(create); err != nil {
		logging.Get(logging.CategoryRAG).Warn("Failed to create vec_history table: %v", err)
		return
	}
	s.hasVec = true
	logging.Get(logging.CategoryRAG).Info("sqlite-vec %s active for chat history", version)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================================================
// SESSIONS
// ============================================================================

// StartSession creates a session row and returns its id. If the insert
// fails, a locally generated id is returned so chat can proceed; the
// failure is logged and swallowed.
func (s *Store) StartSession(ctx context.Context, userID string) string {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_chat_sessions (id, user_id) VALUES (?, ?)`, id, userID)
	if err != nil {
		logging.Get(logging.CategoryRAG).Warn("Failed to persist session, continuing with local id: %v", err)
	}
	return id
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ai_chat_sessions SET ended_at = CURRENT_TIMESTAMP WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// ============================================================================
// TURNS
// ============================================================================

// TurnMetadata carries optional linkage and telemetry for a stored turn.
type TurnMetadata struct {
	ToolsUsed      []string
	CustomerID     string
	QuoteID        string
	Success        bool
	ResponseTimeMs int
	ImageURL       string
}

// StoreTurn embeds the content and persists a history row keyed by
// session.
func (s *Store) StoreTurn(ctx context.Context, sessionID, role, content string, meta TurnMetadata) error {
	vec, err := s.engine.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed turn: %w", err)
	}

	tools, err := json.Marshal(meta.ToolsUsed)
	if err != nil {
		return fmt.Errorf("failed to marshal tools: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_chat_history
			(session_id, role, content, embedding, tools_used, customer_id, quote_id, success, response_time_ms, image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, role, content, encodeVector(vec), string(tools),
		nullable(meta.CustomerID), nullable(meta.QuoteID), meta.Success, meta.ResponseTimeMs, nullable(meta.ImageURL))
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	if s.hasVec {
		if id, err := result.LastInsertId(); err == nil {
			if _, err := s.db.ExecContext(ctx,
				`INSERT INTO vec_history (embedding, history_id) VALUES (?, ?)`,
				encodeVector(vec), id); err != nil {
				logging.Get(logging.CategoryRAG).Warn("Failed to mirror turn into vec_history: %v", err)
			}
		}
	}
	return nil
}

// LearnFromInteraction persists a fully successful multi-step trace.
// Invoked only by the orchestrator's auto-curation policy.
func (s *Store) LearnFromInteraction(ctx context.Context, question, response string, tools []string, rating float64) error {
	vec, err := s.engine.Embed(ctx, question)
	if err != nil {
		return fmt.Errorf("failed to embed pattern: %w", err)
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("failed to marshal tools: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ai_learned_patterns (user_question, ai_response, embedding, tools_used, success_rating)
		VALUES (?, ?, ?, ?, ?)`,
		question, response, encodeVector(vec), string(toolsJSON), rating)
	if err != nil {
		return fmt.Errorf("failed to insert learned pattern: %w", err)
	}

	logging.Get(logging.CategoryRAG).Info("Learned pattern stored: tools=%v rating=%.2f", tools, rating)
	return nil
}

// SaveUserFeedback records a thumbs up/down for an assistant message.
func (s *Store) SaveUserFeedback(ctx context.Context, sessionID, messageContent string, helpful bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_user_feedback (session_id, message_content, helpful)
		VALUES (?, ?, ?)`, sessionID, messageContent, helpful)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// AddKnowledge embeds and upserts one knowledge document.
func (s *Store) AddKnowledge(ctx context.Context, category, title, content string) error {
	vec, err := s.engine.Embed(ctx, title+"\n"+content)
	if err != nil {
		return fmt.Errorf("failed to embed knowledge: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ai_knowledge (category, title, content, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(category, title) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding`,
		category, title, content, encodeVector(vec))
	if err != nil {
		return fmt.Errorf("failed to upsert knowledge: %w", err)
	}
	return nil
}

// ============================================================================
// VECTOR ENCODING
// ============================================================================

// encodeVector encodes a float32 slice as a little-endian blob, the
// layout sqlite-vec expects.
func encodeVector(vec []float32) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil
	}
	return buf.Bytes()
}

func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec); err != nil {
		return nil
	}
	return vec
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
