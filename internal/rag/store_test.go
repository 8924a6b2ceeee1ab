package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relocato/assistant/internal/embedding"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", embedding.NewHashEngine(), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEngineMismatchRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag.db")

	store, err := Open(path, embedding.NewHashEngine(), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	other := fixedEngine{name: "genai:text-embedding-004"}
	_, err = Open(path, other, DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to open")
}

// fixedEngine pretends to be a different provider.
type fixedEngine struct{ name string }

func (f fixedEngine) Embed(context.Context, string) ([]float32, error) { return []float32{1}, nil }
func (f fixedEngine) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}
func (f fixedEngine) Dimensions() int { return 1 }
func (f fixedEngine) Name() string    { return f.name }

func TestCrossSessionHistoryRetrieval(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	past := store.StartSession(ctx, "user-1")
	require.NoError(t, store.StoreTurn(ctx, past, "user",
		"Erstelle einen Kunden namens Test GmbH mit Umzugstermin im September", TurnMetadata{Success: true}))

	current := store.StartSession(ctx, "user-1")
	require.NoError(t, store.StoreTurn(ctx, current, "user",
		"Erstelle einen Kunden namens Test GmbH mit Umzugstermin im September", TurnMetadata{Success: true}))

	items, err := store.FindRelevantHistory(ctx,
		"Erstelle einen Kunden namens Test GmbH mit Umzugstermin im September", current)
	require.NoError(t, err)

	// The identical turn from the other session is found; the current
	// session's own turn is excluded.
	require.Len(t, items, 1)
	assert.InDelta(t, 1.0, items[0].Similarity, 1e-6)
}

func TestHistoryThresholdFiltersNoise(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	past := store.StartSession(ctx, "user-1")
	require.NoError(t, store.StoreTurn(ctx, past, "user",
		"Wie ist das Wetter heute in Hamburg", TurnMetadata{}))

	items, err := store.FindRelevantHistory(ctx,
		"Erstelle eine Rechnung fuer den Kunden Meyer", "other-session")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestKnowledgeSearchBumpsUsage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddKnowledge(ctx, "pricing",
		"Umzugspreise", "Preise richten sich nach Volumen und Entfernung"))

	items, err := store.SearchKnowledge(ctx, "Umzugspreise\nPreise richten sich nach Volumen und Entfernung", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "pricing", items[0].Category)

	count, err := store.KnowledgeUsage(ctx, "pricing", "Umzugspreise")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestKnowledgeCategoryFilter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	text := "Stornierung ist bis 48 Stunden vor dem Termin kostenlos"
	require.NoError(t, store.AddKnowledge(ctx, "policy", "Storno", text))

	items, err := store.SearchKnowledge(ctx, "Storno\n"+text, "pricing")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = store.SearchKnowledge(ctx, "Storno\n"+text, "policy")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestKnowledgeUpsertReplacesContent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddKnowledge(ctx, "policy", "Storno", "alt"))
	require.NoError(t, store.AddKnowledge(ctx, "policy", "Storno", "neu"))

	var n int
	require.NoError(t, store.db.QueryRow(
		`SELECT COUNT(*) FROM ai_knowledge WHERE category = 'policy' AND title = 'Storno'`).Scan(&n))
	assert.Equal(t, 1, n)

	var content string
	require.NoError(t, store.db.QueryRow(
		`SELECT content FROM ai_knowledge WHERE category = 'policy' AND title = 'Storno'`).Scan(&content))
	assert.Equal(t, "neu", content)
}

func TestLearnedPatternRoundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	question := "Lege den Kunden Schmidt an und erstelle direkt ein Angebot"
	require.NoError(t, store.LearnFromInteraction(ctx, question,
		"Kunde angelegt, Angebot erstellt", []string{"create_customer", "create_quote"}, 0.9))

	items, err := store.FindLearnedPatterns(ctx, question)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0.9, items[0].Rating)
	assert.Contains(t, items[0].ToolsUsed, "create_customer")
}

func TestSessionLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id := store.StartSession(ctx, "user-7")
	require.NotEmpty(t, id)
	require.NoError(t, store.EndSession(ctx, id))

	var ended any
	require.NoError(t, store.db.QueryRow(
		`SELECT ended_at FROM ai_chat_sessions WHERE id = ?`, id).Scan(&ended))
	assert.NotNil(t, ended)
}

func TestStartSessionFallsBackToLocalID(t *testing.T) {
	store, err := Open(":memory:", embedding.NewHashEngine(), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// The insert fails on the closed database; chat must still get an id.
	id := store.StartSession(context.Background(), "user-7")
	assert.NotEmpty(t, id)
}

func TestSaveUserFeedback(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id := store.StartSession(ctx, "user-7")
	require.NoError(t, store.SaveUserFeedback(ctx, id, "Rechnung erstellt", true))

	var helpful bool
	require.NoError(t, store.db.QueryRow(
		`SELECT helpful FROM ai_user_feedback WHERE session_id = ?`, id).Scan(&helpful))
	assert.True(t, helpful)
}

func TestSeedKnowledgeDir(t *testing.T) {
	store := openTestStore(t)
	dir := t.TempDir()

	seed := `documents:
  - category: pricing
    title: Grundpreise
    content: Der Grundpreis beginnt bei 450 Euro
  - category: policy
    title: Haftung
    content: Transportschaeden sind bis 620 Euro pro Kubikmeter versichert
  - category: ""
    title: kaputt
    content: wird uebersprungen
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.yaml"), []byte(seed), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	n, err := store.SeedKnowledgeDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSeedKnowledgeDirMissing(t *testing.T) {
	store := openTestStore(t)
	n, err := store.SeedKnowledgeDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVectorEncodingRoundtrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.0}
	decoded := decodeVector(encodeVector(vec))
	assert.Equal(t, vec, decoded)

	assert.Nil(t, decodeVector(nil))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}))
}
