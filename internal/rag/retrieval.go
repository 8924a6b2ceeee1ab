package rag

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/relocato/assistant/internal/embedding"
	"github.com/relocato/assistant/internal/logging"
)

// RetrievedItem is one ranked similarity hit.
type RetrievedItem struct {
	Source     string // history | knowledge | pattern
	Role       string
	Content    string
	Similarity float64

	// Knowledge metadata
	Category string
	Title    string

	// Pattern metadata
	Response  string
	ToolsUsed string
	Rating    float64
}

// FindRelevantHistory returns turns from other sessions similar to the
// query, above the history threshold, ranked descending.
func (s *Store) FindRelevantHistory(ctx context.Context, query, excludeSessionID string) ([]RetrievedItem, error) {
	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.hasVec {
		items, err := s.historyANN(ctx, queryVec, excludeSessionID)
		if err == nil {
			return items, nil
		}
		logging.Get(logging.CategoryRAG).Debug("ANN search failed, falling back to scan: %v", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, embedding FROM ai_chat_history
		WHERE session_id != ? AND embedding IS NOT NULL`, excludeSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var items []RetrievedItem
	for rows.Next() {
		var role, content string
		var blob []byte
		if err := rows.Scan(&role, &content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		similarity, err := embedding.CosineSimilarity(queryVec, decodeVector(blob))
		if err != nil || similarity < s.cfg.HistoryThreshold {
			continue
		}
		items = append(items, RetrievedItem{
			Source:     "history",
			Role:       role,
			Content:    content,
			Similarity: similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankAndLimit(items, s.cfg.HistoryLimit), nil
}

// historyANN searches chat history through the sqlite-vec side table.
func (s *Store) historyANN(ctx context.Context, queryVec []float32, excludeSessionID string) ([]RetrievedItem, error) {
	// Overfetch so rows from the excluded session can be dropped after
	// the distance scan.
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.role, h.content, h.session_id, vec_distance_cosine(v.embedding, ?) AS distance
		FROM vec_history v
		JOIN ai_chat_history h ON h.id = v.history_id
		ORDER BY distance ASC
		LIMIT ?`, encodeVector(queryVec), s.cfg.HistoryLimit*4)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RetrievedItem
	for rows.Next() {
		var role, content, sessionID string
		var distance float64
		if err := rows.Scan(&role, &content, &sessionID, &distance); err != nil {
			return nil, err
		}
		similarity := 1 - distance
		if sessionID == excludeSessionID || similarity < s.cfg.HistoryThreshold {
			continue
		}
		items = append(items, RetrievedItem{
			Source:     "history",
			Role:       role,
			Content:    content,
			Similarity: similarity,
		})
	}
	return rankAndLimit(items, s.cfg.HistoryLimit), rows.Err()
}

// SearchKnowledge returns knowledge documents similar to the query.
// Every hit bumps the document's usage counter and last-used stamp.
func (s *Store) SearchKnowledge(ctx context.Context, query, category string) ([]RetrievedItem, error) {
	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	sqlQuery := `SELECT id, category, title, content, embedding FROM ai_knowledge WHERE embedding IS NOT NULL`
	args := []interface{}{}
	if category != "" {
		sqlQuery += ` AND category = ?`
		args = append(args, category)
	}
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		s.mu.RUnlock()
		return nil, fmt.Errorf("failed to query knowledge: %w", err)
	}

	type hit struct {
		id   int64
		item RetrievedItem
	}
	var hits []hit
	for rows.Next() {
		var id int64
		var cat, title, content string
		var blob []byte
		if err := rows.Scan(&id, &cat, &title, &content, &blob); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		similarity, err := embedding.CosineSimilarity(queryVec, decodeVector(blob))
		if err != nil || similarity < s.cfg.KnowledgeThreshold {
			continue
		}
		hits = append(hits, hit{id: id, item: RetrievedItem{
			Source:     "knowledge",
			Category:   cat,
			Title:      title,
			Content:    content,
			Similarity: similarity,
		}})
	}
	rows.Close()
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].item.Similarity > hits[j].item.Similarity })
	if len(hits) > s.cfg.KnowledgeLimit {
		hits = hits[:s.cfg.KnowledgeLimit]
	}

	items := make([]RetrievedItem, 0, len(hits))
	s.mu.Lock()
	for _, h := range hits {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE ai_knowledge
			SET usage_count = usage_count + 1, last_used_at = CURRENT_TIMESTAMP
			WHERE id = ?`, h.id); err != nil {
			logging.Get(logging.CategoryRAG).Warn("Failed to bump knowledge usage: %v", err)
		}
		items = append(items, h.item)
	}
	s.mu.Unlock()

	return items, nil
}

// FindLearnedPatterns returns previously successful traces similar to
// the query. The strictest threshold applies since patterns directly
// bias tool selection.
func (s *Store) FindLearnedPatterns(ctx context.Context, query string) ([]RetrievedItem, error) {
	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_question, ai_response, tools_used, success_rating, embedding
		FROM ai_learned_patterns WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var items []RetrievedItem
	for rows.Next() {
		var question, response string
		var tools sql.NullString
		var rating sql.NullFloat64
		var blob []byte
		if err := rows.Scan(&question, &response, &tools, &rating, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan pattern row: %w", err)
		}
		similarity, err := embedding.CosineSimilarity(queryVec, decodeVector(blob))
		if err != nil || similarity < s.cfg.PatternThreshold {
			continue
		}
		items = append(items, RetrievedItem{
			Source:     "pattern",
			Content:    question,
			Response:   response,
			ToolsUsed:  tools.String,
			Rating:     rating.Float64,
			Similarity: similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankAndLimit(items, s.cfg.PatternLimit), nil
}

// KnowledgeUsage reports a document's usage counter, for diagnostics.
func (s *Store) KnowledgeUsage(ctx context.Context, category, title string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT usage_count FROM ai_knowledge WHERE category = ? AND title = ?`,
		category, title).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to read usage count: %w", err)
	}
	return count, nil
}

func rankAndLimit(items []RetrievedItem, limit int) []RetrievedItem {
	sort.Slice(items, func(i, j int) bool { return items[i].Similarity > items[j].Similarity })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// FormatContextBlock renders retrieved items as a bounded prompt block.
func FormatContextBlock(header string, items []RetrievedItem) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n")
	for _, item := range items {
		switch item.Source {
		case "knowledge":
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", item.Category, item.Title, item.Content)
		case "pattern":
			fmt.Fprintf(&sb, "- Frage: %s | Werkzeuge: %s | Antwort: %s\n", item.Content, item.ToolsUsed, item.Response)
		default:
			fmt.Fprintf(&sb, "- (%s) %s\n", item.Role, item.Content)
		}
	}
	return sb.String()
}
