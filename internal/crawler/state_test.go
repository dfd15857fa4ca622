package crawler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func tempPaths(t *testing.T) StatePaths {
	t.Helper()
	return StatePaths{
		CrawlFile:     "crawl_state.json",
		SongPagesFile: "song_pages.json",
		MetadataFile:  "song_metadata.json",
	}.Join(t.TempDir())
}

func TestCrawlStateRoundTrip(t *testing.T) {
	t.Parallel()

	paths := tempPaths(t)
	state := NewCrawlState(paths, zap.NewNop())

	require.True(t, state.Enqueue(WorkItem{URL: "https://pagalgana.com/a.html", Depth: 1}))
	require.True(t, state.Enqueue(WorkItem{URL: "https://pagalgana.com/b.html", Depth: 2}))
	state.MarkVisited("https://pagalgana.com/")
	require.True(t, state.AddSongPage("https://pagalgana.com/song1.html"))
	audio := "https://dl.pagalgana.com/song1.mp3"
	state.AddRecord(MetadataRecord{
		URL:       "https://pagalgana.com/song1.html",
		Fields:    map[string]string{"Singer": "Someone"},
		Rating:    &Rating{Stars: "★★★☆", OutOf: 5, Value: 3.5},
		Thumbnail: "https://pagalgana.com/thumb1.jpg",
		AudioURL:  &audio,
	})
	require.NoError(t, state.Save())

	loaded := NewCrawlState(paths, zap.NewNop())
	loaded.Load()

	require.Equal(t, 2, loaded.FrontierLen())
	first, ok := loaded.PopFront()
	require.True(t, ok)
	require.Equal(t, WorkItem{URL: "https://pagalgana.com/a.html", Depth: 1}, first)
	second, ok := loaded.PopFront()
	require.True(t, ok)
	require.Equal(t, WorkItem{URL: "https://pagalgana.com/b.html", Depth: 2}, second)

	require.True(t, loaded.Visited("https://pagalgana.com/"))
	require.Equal(t, 1, loaded.SongPageCount())
	require.True(t, loaded.HasRecord("https://pagalgana.com/song1.html"))
	require.Equal(t, 1, loaded.RecordCount())
}

func TestCrawlStateLoadMissingFiles(t *testing.T) {
	t.Parallel()

	state := NewCrawlState(tempPaths(t), zap.NewNop())
	state.Load()

	require.Zero(t, state.FrontierLen())
	require.Zero(t, state.VisitedCount())
	require.Zero(t, state.SongPageCount())
	require.Zero(t, state.RecordCount())
}

func TestCrawlStateLoadCorruptFiles(t *testing.T) {
	t.Parallel()

	paths := tempPaths(t)
	for _, p := range []string{paths.CrawlFile, paths.SongPagesFile, paths.MetadataFile} {
		require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o600))
	}

	state := NewCrawlState(paths, zap.NewNop())
	state.Load() // must not panic or fail

	require.Zero(t, state.FrontierLen())
	require.Zero(t, state.VisitedCount())
	require.Zero(t, state.SongPageCount())
	require.Zero(t, state.RecordCount())
}

func TestCrawlStateLoadOneCorruptDocument(t *testing.T) {
	t.Parallel()

	paths := tempPaths(t)
	require.NoError(t, os.WriteFile(paths.SongPagesFile,
		[]byte(`["https://pagalgana.com/song1.html"]`), 0o600))
	require.NoError(t, os.WriteFile(paths.CrawlFile, []byte("corrupt"), 0o600))

	state := NewCrawlState(paths, zap.NewNop())
	state.Load()

	// Corruption is scoped per document.
	require.Equal(t, 1, state.SongPageCount())
	require.Zero(t, state.FrontierLen())
	require.Zero(t, state.VisitedCount())
}

func TestCrawlStateLoadDeduplicatesFrontier(t *testing.T) {
	t.Parallel()

	paths := tempPaths(t)
	doc := `{"to_visit": [["https://pagalgana.com/a.html", 1], ["https://pagalgana.com/a.html", 2]], "visited_urls": []}`
	require.NoError(t, os.WriteFile(paths.CrawlFile, []byte(doc), 0o600))

	state := NewCrawlState(paths, zap.NewNop())
	state.Load()

	require.Equal(t, 1, state.FrontierLen())
}

func TestCrawlStateEnqueueIdempotence(t *testing.T) {
	t.Parallel()

	state := NewCrawlState(tempPaths(t), zap.NewNop())

	require.True(t, state.Enqueue(WorkItem{URL: "https://pagalgana.com/a.html", Depth: 1}))
	require.False(t, state.Enqueue(WorkItem{URL: "https://pagalgana.com/a.html", Depth: 3}),
		"same URL must not coexist in the frontier")

	state.MarkVisited("https://pagalgana.com/b.html")
	require.False(t, state.Enqueue(WorkItem{URL: "https://pagalgana.com/b.html", Depth: 1}))

	state.AddSongPage("https://pagalgana.com/song.html")
	require.False(t, state.Enqueue(WorkItem{URL: "https://pagalgana.com/song.html", Depth: 1}))
}

func TestCrawlStateSeed(t *testing.T) {
	t.Parallel()

	t.Run("fresh state starts at the root", func(t *testing.T) {
		state := NewCrawlState(tempPaths(t), zap.NewNop())
		state.Seed("https://pagalgana.com")

		item, ok := state.PopFront()
		require.True(t, ok)
		require.Equal(t, WorkItem{URL: "https://pagalgana.com", Depth: 0}, item)
	})

	t.Run("resumed state re-seeds unvisited root at the head", func(t *testing.T) {
		state := NewCrawlState(tempPaths(t), zap.NewNop())
		state.Enqueue(WorkItem{URL: "https://pagalgana.com/deep.html", Depth: 2})
		state.Seed("https://pagalgana.com")

		item, ok := state.PopFront()
		require.True(t, ok)
		require.Equal(t, "https://pagalgana.com", item.URL)
		require.Equal(t, 1, state.FrontierLen())
	})

	t.Run("visited root is not re-enqueued", func(t *testing.T) {
		state := NewCrawlState(tempPaths(t), zap.NewNop())
		state.MarkVisited("https://pagalgana.com")
		state.Enqueue(WorkItem{URL: "https://pagalgana.com/deep.html", Depth: 2})
		state.Seed("https://pagalgana.com")

		require.Equal(t, 1, state.FrontierLen())
	})
}

func TestCrawlStateAddRecordReplaces(t *testing.T) {
	t.Parallel()

	state := NewCrawlState(tempPaths(t), zap.NewNop())
	url := "https://pagalgana.com/song.html"

	state.AddRecord(NewErrorRecord(url, "fetch failed"))
	require.Equal(t, 1, state.RecordCount())

	state.AddRecord(MetadataRecord{URL: url, Fields: map[string]string{"Singer": "A"}})
	require.Equal(t, 1, state.RecordCount(), "re-extraction must replace, not append")
}

func TestCrawlStateSaveWritesEmptyArrays(t *testing.T) {
	t.Parallel()

	paths := tempPaths(t)
	state := NewCrawlState(paths, zap.NewNop())
	require.NoError(t, state.Save())

	data, err := os.ReadFile(paths.SongPagesFile)
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(data))

	data, err = os.ReadFile(paths.CrawlFile)
	require.NoError(t, err)
	require.JSONEq(t, `{"to_visit": [], "visited_urls": []}`, string(data))
}

func TestCrawlStateSaveFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := StatePaths{
		CrawlFile:     filepath.Join(dir, "missing", "sub", "crawl.json"),
		SongPagesFile: filepath.Join(dir, "songs.json"),
		MetadataFile:  filepath.Join(dir, "meta.json"),
	}
	// Make the crawl file's parent an unwritable file so MkdirAll fails.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "missing"), []byte("x"), 0o600))

	state := NewCrawlState(paths, zap.NewNop())
	err := state.Save()
	require.Error(t, err)

	// The independent documents were still written.
	_, statErr := os.Stat(paths.SongPagesFile)
	require.NoError(t, statErr)
}

func TestMetadataRecordJSON(t *testing.T) {
	t.Parallel()

	t.Run("full record", func(t *testing.T) {
		audio := "https://dl.pagalgana.com/track.mp3"
		rec := MetadataRecord{
			URL:       "https://pagalgana.com/track.html",
			Fields:    map[string]string{"Singer": "Someone", "Duration": "3:42"},
			Rating:    &Rating{Stars: "★★★★☆", OutOf: 5, Value: 4.5},
			Thumbnail: "https://pagalgana.com/thumb.jpg",
			AudioURL:  &audio,
		}

		data, err := json.Marshal(rec)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		require.Equal(t, "https://pagalgana.com/track.html", m["URL"])
		require.Equal(t, "Someone", m["Singer"])
		require.Equal(t, audio, m["Play Online"])
		rating, ok := m["Rating"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "★★★★☆", rating["stars"])
		require.InDelta(t, 4.5, rating["value"], 0.0001)

		var back MetadataRecord
		require.NoError(t, json.Unmarshal(data, &back))
		require.Equal(t, rec, back)
	})

	t.Run("missing audio serializes as explicit null", func(t *testing.T) {
		rec := MetadataRecord{URL: "https://pagalgana.com/t.html"}
		data, err := json.Marshal(rec)
		require.NoError(t, err)

		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &m))
		raw, present := m["Play Online"]
		require.True(t, present)
		require.Equal(t, "null", string(raw))
	})

	t.Run("error record carries only URL and error", func(t *testing.T) {
		rec := NewErrorRecord("https://pagalgana.com/t.html", "Failed to fetch page")
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		require.JSONEq(t,
			`{"URL": "https://pagalgana.com/t.html", "error": "Failed to fetch page"}`,
			string(data))

		var back MetadataRecord
		require.NoError(t, json.Unmarshal(data, &back))
		require.Equal(t, rec, back)
	})

	t.Run("missing details table flag", func(t *testing.T) {
		rec := MetadataRecord{URL: "https://pagalgana.com/t.html", TableMissing: true}
		data, err := json.Marshal(rec)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		require.Equal(t, false, m["tbody_data_present"])

		var back MetadataRecord
		require.NoError(t, json.Unmarshal(data, &back))
		require.True(t, back.TableMissing)
	})
}

func TestWorkItemJSON(t *testing.T) {
	t.Parallel()

	item := WorkItem{URL: "https://pagalgana.com/a.html", Depth: 3}
	data, err := json.Marshal(item)
	require.NoError(t, err)
	require.JSONEq(t, `["https://pagalgana.com/a.html", 3]`, string(data))

	var back WorkItem
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, item, back)

	require.Error(t, json.Unmarshal([]byte(`["only-url"]`), &back))
	require.Error(t, json.Unmarshal([]byte(`{"url": "x"}`), &back))
}
