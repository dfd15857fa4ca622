package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const songPageHTML = `<!DOCTYPE html>
<html>
<head>
<script type="application/ld+json">
{"@type": "MusicRecording", "image": "https://pagalgana.com/thumbs/track.jpg"}
</script>
</head>
<body>
<div id="audio-container"></div>
<div>
<table>
<tbody>
<tr class="tr"><td>Song Name:</td><td>Test Track</td></tr>
<tr class="tr"><td>Singer:</td><td>  Some
 Artist </td></tr>
<tr class="tr"><td>Rating:</td><td><span>★</span><span>★</span><span>★</span><span>☆</span></td></tr>
<tr class="tr"><td>lonely cell</td></tr>
</tbody>
</table>
</div>
<script>
var player = new Audio("https://dl.pagalgana.com/tracks/test.mp3");
</script>
</body>
</html>`

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return New("test-agent/1.0", 5*time.Second, zap.NewNop())
}

func TestExtractSongPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(songPageHTML))
	}))
	defer srv.Close()

	rec := newTestExtractor(t).Extract(context.Background(), srv.URL)

	require.Empty(t, rec.Error)
	require.Equal(t, srv.URL, rec.URL)
	require.Equal(t, "Test Track", rec.Fields["Song Name"])
	require.Equal(t, "Some Artist", rec.Fields["Singer"], "whitespace collapses to single spaces")
	require.NotContains(t, rec.Fields, "lonely cell", "rows without a value cell are skipped")

	require.NotNil(t, rec.Rating)
	require.Equal(t, "★★★☆", rec.Rating.Stars)
	require.Equal(t, 5, rec.Rating.OutOf)
	require.InDelta(t, 3.5, rec.Rating.Value, 0.0001)

	require.Equal(t, "https://pagalgana.com/thumbs/track.jpg", rec.Thumbnail)
	require.NotNil(t, rec.AudioURL)
	require.Equal(t, "https://dl.pagalgana.com/tracks/test.mp3", *rec.AudioURL)
	require.False(t, rec.TableMissing)
}

func TestExtractPageWithoutDetailsTable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	}))
	defer srv.Close()

	rec := newTestExtractor(t).Extract(context.Background(), srv.URL)

	require.Empty(t, rec.Error)
	require.True(t, rec.TableMissing)
	require.Nil(t, rec.AudioURL, "missing stream URL stays nil for an explicit null on disk")
	require.Empty(t, rec.Thumbnail)
}

func TestExtractFetchFailure(t *testing.T) {
	t.Parallel()

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		rec := newTestExtractor(t).Extract(context.Background(), srv.URL)

		require.Equal(t, srv.URL, rec.URL)
		require.Equal(t, "Failed to fetch page", rec.Error)
		require.Nil(t, rec.Fields)
	})

	t.Run("unreachable host", func(t *testing.T) {
		rec := newTestExtractor(t).Extract(context.Background(), "http://127.0.0.1:1/x.html")

		require.Equal(t, "Failed to fetch page", rec.Error)
	})
}

func TestExtractIgnoresMalformedJSONLD(t *testing.T) {
	t.Parallel()

	page := `<html><head>
<script type="application/ld+json">{broken</script>
<script type="application/ld+json">{"image": "https://pagalgana.com/ok.jpg"}</script>
</head><body>
<table><tbody><tr class="tr"><td>Singer:</td><td>A</td></tr></tbody></table>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	rec := newTestExtractor(t).Extract(context.Background(), srv.URL)

	require.Equal(t, "https://pagalgana.com/ok.jpg", rec.Thumbnail)
	require.Equal(t, "A", rec.Fields["Singer"])
}
