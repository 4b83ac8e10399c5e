package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/lattice/pkg/block"
	"github.com/entrhq/lattice/pkg/coordinate"
	"github.com/entrhq/lattice/pkg/index"
	"github.com/entrhq/lattice/pkg/restore"
	"github.com/entrhq/lattice/pkg/store"
	"github.com/entrhq/lattice/pkg/types"
)

func newArchiver(t *testing.T, dataDir string) *Archiver {
	t.Helper()
	a, err := New(Options{
		CursorPath: filepath.Join(dataDir, "cursor"),
		BlocksDir:  filepath.Join(dataDir, "blocks"),
		IndexPath:  filepath.Join(dataDir, "conversation_index.txt"),
		Order:      index.OrderInsertion,
	})
	require.NoError(t, err)
	return a
}

func writeConversation(t *testing.T, root, key, title string, pairs [][2]string) {
	t.Helper()
	dir := filepath.Join(root, key)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	conv := &types.Conversation{Title: title, ID: key + "-id", MessageCount: len(pairs) * 2}
	for _, p := range pairs {
		conv.Messages = append(conv.Messages,
			types.Message{Role: types.RoleUser, Content: p[0]},
			types.Message{Role: types.RoleAssistant, Content: p[1]},
		)
	}
	require.NoError(t, conv.Save(filepath.Join(dir, key+".json")))
}

func mustParse(t *testing.T, s string) coordinate.Coordinate {
	t.Helper()
	c, err := coordinate.Parse(s)
	require.NoError(t, err)
	return c
}

func TestFreshStoreWritesRunsAndIndex(t *testing.T) {
	dataDir := t.TempDir()
	sorted := t.TempDir()
	writeConversation(t, sorted, "alpha", "Alpha Notes", [][2]string{
		{"first question", "first answer"},
		{"second question", "second answer"},
	})
	writeConversation(t, sorted, "beta", "Beta Notes", [][2]string{
		{"only question", "only answer"},
	})

	a := newArchiver(t, dataDir)
	stats, err := a.StoreAll(context.Background(), sorted, ModeFresh)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Conversations)
	assert.Equal(t, 2, stats.Stored)
	assert.Equal(t, 3, stats.Blocks)
	assert.Empty(t, stats.Failed)

	// Folders store in name order: alpha from the origin, beta right after
	// alpha's two blocks and terminal marker.
	alpha, ok := a.Index().Resolve("alpha")
	require.True(t, ok)
	assert.Equal(t, coordinate.Origin(), alpha.Start)
	assert.Equal(t, "alpha-id", alpha.ID)

	beta, ok := a.Index().Resolve("beta")
	require.True(t, ok)
	assert.Equal(t, mustParse(t, "00 00 00 00 00 03"), beta.Start)

	blocks, err := restore.Dump(a.Writer(), alpha.Start)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "first question", blocks[0].User)
	assert.Equal(t, "second answer", blocks[1].Assistant)
}

func TestFreshStoreThreeBlockScenario(t *testing.T) {
	dataDir := t.TempDir()
	sorted := t.TempDir()
	writeConversation(t, sorted, "wavefunction-notes", "Wavefunction Notes", [][2]string{
		{"what is a wavefunction", "a complex amplitude"},
		{"and its square", "a probability density"},
		{"collapse?", "interaction with a measuring device"},
	})

	a := newArchiver(t, dataDir)
	_, err := a.StoreAll(context.Background(), sorted, ModeFresh)
	require.NoError(t, err)

	// Three blocks at consecutive coordinates from the origin, then the
	// terminal marker.
	for i, coord := range []string{"00 00 00 00 00 00", "00 00 00 00 00 01", "00 00 00 00 00 02"} {
		b, err := a.Writer().Read(mustParse(t, coord))
		require.NoError(t, err)
		assert.Equal(t, i, b.Turn)
		assert.False(t, b.Terminal)
	}
	term, err := a.Writer().Read(mustParse(t, "00 00 00 00 00 03"))
	require.NoError(t, err)
	assert.True(t, term.Terminal)

	entry, ok := a.Index().Resolve("wavefunction-notes")
	require.True(t, ok)
	assert.Equal(t, coordinate.Origin(), entry.Start)

	matches := a.Index().Lookup("wavefunction")
	require.Len(t, matches, 1)

	blocks, err := restore.Dump(a.Writer(), matches[0].Start)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, "a complex amplitude", blocks[0].Assistant)
	assert.Equal(t, "interaction with a measuring device", blocks[2].Assistant)
}

func TestAppendSkipsUnchangedConversations(t *testing.T) {
	dataDir := t.TempDir()
	sorted := t.TempDir()
	writeConversation(t, sorted, "alpha", "Alpha", [][2]string{{"q", "a"}})
	writeConversation(t, sorted, "beta", "Beta", [][2]string{{"q2", "a2"}})

	a := newArchiver(t, dataDir)
	_, err := a.StoreAll(context.Background(), sorted, ModeFresh)
	require.NoError(t, err)
	cursorBefore := a.alloc.Peek()

	// A separate archiver reloads everything from disk, as a new process would.
	b := newArchiver(t, dataDir)
	stats, err := b.StoreAll(context.Background(), sorted, ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Stored)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, cursorBefore, b.alloc.Peek())
}

func TestAppendStoresNewConversationAfterExisting(t *testing.T) {
	dataDir := t.TempDir()
	sorted := t.TempDir()
	writeConversation(t, sorted, "alpha", "Alpha", [][2]string{{"q", "a"}, {"q2", "a2"}})

	a := newArchiver(t, dataDir)
	_, err := a.StoreAll(context.Background(), sorted, ModeFresh)
	require.NoError(t, err)

	writeConversation(t, sorted, "beta", "Beta", [][2]string{{"hello", "world"}})

	b := newArchiver(t, dataDir)
	stats, err := b.StoreAll(context.Background(), sorted, ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stored)
	assert.Equal(t, 1, stats.Skipped)

	beta, ok := b.Index().Resolve("beta")
	require.True(t, ok)
	assert.Equal(t, mustParse(t, "00 00 00 00 00 03"), beta.Start)

	blocks, err := restore.Dump(b.Writer(), beta.Start)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "world", blocks[0].Assistant)
}

func TestAppendRestoresChangedConversationAtFreshCoordinates(t *testing.T) {
	dataDir := t.TempDir()
	sorted := t.TempDir()
	writeConversation(t, sorted, "alpha", "Alpha", [][2]string{{"q", "a"}})

	a := newArchiver(t, dataDir)
	_, err := a.StoreAll(context.Background(), sorted, ModeFresh)
	require.NoError(t, err)
	before, ok := a.Index().Resolve("alpha")
	require.True(t, ok)

	// The conversation grew an extra turn since the last store.
	writeConversation(t, sorted, "alpha", "Alpha", [][2]string{{"q", "a"}, {"q2", "a2"}})

	b := newArchiver(t, dataDir)
	stats, err := b.StoreAll(context.Background(), sorted, ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stored)

	after, ok := b.Index().Resolve("alpha")
	require.True(t, ok)
	assert.NotEqual(t, before.Start, after.Start, "changed conversation must move to fresh coordinates")

	blocks, err := restore.Dump(b.Writer(), after.Start)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	// The original run is left intact; only the index forgets it.
	old, err := restore.Dump(b.Writer(), before.Start)
	require.NoError(t, err)
	require.Len(t, old, 1)
}

func TestWriteConflictRestartsRunAtFreshCoordinates(t *testing.T) {
	dataDir := t.TempDir()
	sorted := t.TempDir()
	writeConversation(t, sorted, "alpha", "Alpha", [][2]string{{"q", "a"}})

	// Occupy the origin with foreign content so the first allocation conflicts.
	w, err := store.NewWriter(filepath.Join(dataDir, "blocks"))
	require.NoError(t, err)
	require.NoError(t, w.Write(coordinate.Origin(), &block.Block{Turn: 1, User: "someone else"}, ""))

	a := newArchiver(t, dataDir)
	stats, err := a.StoreAll(context.Background(), sorted, ModeFresh)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Stored)

	alpha, ok := a.Index().Resolve("alpha")
	require.True(t, ok)
	assert.NotEqual(t, coordinate.Origin(), alpha.Start)

	blocks, err := restore.Dump(a.Writer(), alpha.Start)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "q", blocks[0].User)

	// The occupied block was never overwritten.
	orig, err := a.Writer().Read(coordinate.Origin())
	require.NoError(t, err)
	assert.Equal(t, "someone else", orig.User)
}

func TestBrokenFolderIsRecordedAndRunContinues(t *testing.T) {
	dataDir := t.TempDir()
	sorted := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(sorted, "broken"), 0o750))
	writeConversation(t, sorted, "good", "Good", [][2]string{{"q", "a"}})

	a := newArchiver(t, dataDir)
	stats, err := a.StoreAll(context.Background(), sorted, ModeFresh)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, stats.Failed)
	assert.Equal(t, 1, stats.Stored)

	_, ok := a.Index().Resolve("good")
	assert.True(t, ok)
}

func TestCancelledContextStopsRun(t *testing.T) {
	dataDir := t.TempDir()
	sorted := t.TempDir()
	writeConversation(t, sorted, "alpha", "Alpha", [][2]string{{"q", "a"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newArchiver(t, dataDir)
	_, err := a.StoreAll(ctx, sorted, ModeFresh)
	assert.ErrorIs(t, err, context.Canceled)
}
