package crawler

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// WorkItem is one pending visit: a URL and its link-hop distance from the
// crawl root. Its JSON form is a two-element ["url", depth] array to stay
// compatible with existing crawl_state.json files.
type WorkItem struct {
	URL   string
	Depth int
}

// MarshalJSON encodes the item as ["url", depth].
func (w WorkItem) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{w.URL, w.Depth})
}

// UnmarshalJSON decodes the ["url", depth] pair form.
func (w *WorkItem) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("work item: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("work item: expected [url, depth], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &w.URL); err != nil {
		return fmt.Errorf("work item url: %w", err)
	}
	if err := json.Unmarshal(pair[1], &w.Depth); err != nil {
		return fmt.Errorf("work item depth: %w", err)
	}
	return nil
}

// Rating is the structured star-rating harvested from a song page's details
// table. Value counts full glyphs as 1 and partial glyphs as 0.5.
type Rating struct {
	Stars string  `json:"stars"`
	OutOf int     `json:"out_of"`
	Value float64 `json:"value"`
}

// MetadataRecord is the flat key/value record extracted for one song page.
// Exactly one record exists per song URL. A failed extraction produces a
// record carrying only the URL and an error message.
type MetadataRecord struct {
	URL          string
	Fields       map[string]string
	Rating       *Rating
	Thumbnail    string
	AudioURL     *string
	TableMissing bool
	Error        string
}

// NewErrorRecord builds the failure form of a record.
func NewErrorRecord(url, reason string) MetadataRecord {
	return MetadataRecord{URL: url, Error: reason}
}

// MarshalJSON flattens the record into the on-disk object shape: the URL,
// the details-table pairs, the nested Rating, and the special keys
// "Thumbnail", "Play Online" (explicitly null when the stream URL was not
// found), "tbody_data_present", and "error".
func (r MetadataRecord) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+5)
	m["URL"] = r.URL
	if r.Error != "" {
		m["error"] = r.Error
		return json.Marshal(m)
	}
	for k, v := range r.Fields {
		m[k] = v
	}
	if r.Rating != nil {
		m["Rating"] = r.Rating
	}
	if r.TableMissing {
		m["tbody_data_present"] = false
	}
	if r.Thumbnail != "" {
		m["Thumbnail"] = r.Thumbnail
	}
	if r.AudioURL != nil {
		m["Play Online"] = *r.AudioURL
	} else {
		m["Play Online"] = nil
	}
	return json.Marshal(m)
}

// UnmarshalJSON reverses MarshalJSON, routing unknown string keys back into
// Fields.
func (r *MetadataRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("metadata record: %w", err)
	}
	*r = MetadataRecord{}
	for key, val := range raw {
		switch key {
		case "URL":
			if err := json.Unmarshal(val, &r.URL); err != nil {
				return fmt.Errorf("metadata record URL: %w", err)
			}
		case "error":
			if err := json.Unmarshal(val, &r.Error); err != nil {
				return fmt.Errorf("metadata record error field: %w", err)
			}
		case "Rating":
			r.Rating = &Rating{}
			if err := json.Unmarshal(val, r.Rating); err != nil {
				return fmt.Errorf("metadata record rating: %w", err)
			}
		case "Thumbnail":
			if err := json.Unmarshal(val, &r.Thumbnail); err != nil {
				return fmt.Errorf("metadata record thumbnail: %w", err)
			}
		case "Play Online":
			if string(val) != "null" {
				var audio string
				if err := json.Unmarshal(val, &audio); err != nil {
					return fmt.Errorf("metadata record audio url: %w", err)
				}
				r.AudioURL = &audio
			}
		case "tbody_data_present":
			var present bool
			if err := json.Unmarshal(val, &present); err != nil {
				return fmt.Errorf("metadata record table flag: %w", err)
			}
			r.TableMissing = !present
		default:
			var s string
			if err := json.Unmarshal(val, &s); err != nil {
				// A non-string free-form value; keep its raw text.
				s = string(val)
			}
			if r.Fields == nil {
				r.Fields = make(map[string]string)
			}
			r.Fields[key] = s
		}
	}
	return nil
}

// ProgressSnapshot is a point-in-time view of a crawl run, safe to serve
// from the status API while the engine keeps running.
type ProgressSnapshot struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	Processed       int64     `json:"pages_processed"`
	FrontierSize    int64     `json:"frontier_size"`
	Visited         int64     `json:"visited"`
	SongPages       int64     `json:"song_pages"`
	MetadataRecords int64     `json:"metadata_records"`
	Checkpoints     int64     `json:"checkpoints"`
	LastURL         string    `json:"last_url,omitempty"`
}

// Progress accumulates run counters. The engine is the only writer; the
// status server reads concurrently, hence the atomics.
type Progress struct {
	runID     string
	startedAt time.Time

	processed   atomic.Int64
	frontier    atomic.Int64
	visited     atomic.Int64
	songs       atomic.Int64
	records     atomic.Int64
	checkpoints atomic.Int64

	mu      sync.Mutex
	lastURL string
}

// NewProgress creates a Progress for one run.
func NewProgress(runID string) *Progress {
	return &Progress{runID: runID, startedAt: time.Now().UTC()}
}

func (p *Progress) setLastURL(url string) {
	p.mu.Lock()
	p.lastURL = url
	p.mu.Unlock()
}

// Snapshot returns the current counters.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	last := p.lastURL
	p.mu.Unlock()
	return ProgressSnapshot{
		RunID:           p.runID,
		StartedAt:       p.startedAt,
		Processed:       p.processed.Load(),
		FrontierSize:    p.frontier.Load(),
		Visited:         p.visited.Load(),
		SongPages:       p.songs.Load(),
		MetadataRecords: p.records.Load(),
		Checkpoints:     p.checkpoints.Load(),
		LastURL:         last,
	}
}
