package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// StatePaths names the three checkpoint documents.
type StatePaths struct {
	CrawlFile     string
	SongPagesFile string
	MetadataFile  string
}

// Join prefixes every file with dir.
func (p StatePaths) Join(dir string) StatePaths {
	if dir == "" {
		return p
	}
	return StatePaths{
		CrawlFile:     filepath.Join(dir, p.CrawlFile),
		SongPagesFile: filepath.Join(dir, p.SongPagesFile),
		MetadataFile:  filepath.Join(dir, p.MetadataFile),
	}
}

// crawlDocument is the wire form of the frontier and visited set.
type crawlDocument struct {
	ToVisit     []WorkItem `json:"to_visit"`
	VisitedURLs []string   `json:"visited_urls"`
}

// CrawlState is the persisted crawl aggregate: the pending frontier, the
// visited set, the confirmed song-page index, and the extracted metadata
// records. The engine is its sole owner during a run.
type CrawlState struct {
	paths  StatePaths
	logger *zap.Logger

	frontier   []WorkItem
	inFrontier map[string]struct{}

	visited      map[string]struct{}
	visitedOrder []string

	songPages []string
	songSet   map[string]struct{}

	records   []MetadataRecord
	recordIdx map[string]int
}

// NewCrawlState returns an empty state bound to the given document paths.
func NewCrawlState(paths StatePaths, logger *zap.Logger) *CrawlState {
	return &CrawlState{
		paths:      paths,
		logger:     logger,
		inFrontier: make(map[string]struct{}),
		visited:    make(map[string]struct{}),
		songSet:    make(map[string]struct{}),
		recordIdx:  make(map[string]int),
	}
}

// FrontierLen reports the number of pending work items.
func (s *CrawlState) FrontierLen() int { return len(s.frontier) }

// PopFront removes and returns the oldest work item.
func (s *CrawlState) PopFront() (WorkItem, bool) {
	if len(s.frontier) == 0 {
		return WorkItem{}, false
	}
	item := s.frontier[0]
	s.frontier = s.frontier[1:]
	delete(s.inFrontier, item.URL)
	return item, true
}

// Enqueue appends item to the frontier unless its URL is already pending,
// already visited, or already a known song page. Returns true when added.
func (s *CrawlState) Enqueue(item WorkItem) bool {
	if _, ok := s.inFrontier[item.URL]; ok {
		return false
	}
	if _, ok := s.visited[item.URL]; ok {
		return false
	}
	if _, ok := s.songSet[item.URL]; ok {
		return false
	}
	s.frontier = append(s.frontier, item)
	s.inFrontier[item.URL] = struct{}{}
	return true
}

// pushFront puts item at the head of the frontier, used when re-seeding a
// resumed crawl with its root.
func (s *CrawlState) pushFront(item WorkItem) {
	if _, ok := s.inFrontier[item.URL]; ok {
		return
	}
	s.frontier = append([]WorkItem{item}, s.frontier...)
	s.inFrontier[item.URL] = struct{}{}
}

// Seed primes the frontier with the crawl root. A fresh state starts at the
// root; a resumed state gets the root pushed back to the head unless it was
// already handled.
func (s *CrawlState) Seed(rootURL string) {
	if len(s.frontier) == 0 && len(s.visited) == 0 {
		s.Enqueue(WorkItem{URL: rootURL, Depth: 0})
		return
	}
	if _, ok := s.visited[rootURL]; !ok {
		s.pushFront(WorkItem{URL: rootURL, Depth: 0})
	}
}

// Visited reports whether url has already been processed.
func (s *CrawlState) Visited(url string) bool {
	_, ok := s.visited[url]
	return ok
}

// MarkVisited records url as processed. Idempotent; entries never leave.
func (s *CrawlState) MarkVisited(url string) {
	if _, ok := s.visited[url]; ok {
		return
	}
	s.visited[url] = struct{}{}
	s.visitedOrder = append(s.visitedOrder, url)
}

// VisitedCount returns the size of the visited set.
func (s *CrawlState) VisitedCount() int { return len(s.visited) }

// AddSongPage records url in the song-page index. Returns true the first
// time the URL is seen.
func (s *CrawlState) AddSongPage(url string) bool {
	if _, ok := s.songSet[url]; ok {
		return false
	}
	s.songSet[url] = struct{}{}
	s.songPages = append(s.songPages, url)
	return true
}

// SongPageCount returns the size of the song-page index.
func (s *CrawlState) SongPageCount() int { return len(s.songPages) }

// HasRecord reports whether a metadata record exists for url.
func (s *CrawlState) HasRecord(url string) bool {
	_, ok := s.recordIdx[url]
	return ok
}

// AddRecord stores rec, replacing any previous record for the same URL.
func (s *CrawlState) AddRecord(rec MetadataRecord) {
	if i, ok := s.recordIdx[rec.URL]; ok {
		s.records[i] = rec
		return
	}
	s.recordIdx[rec.URL] = len(s.records)
	s.records = append(s.records, rec)
}

// RecordCount returns the number of metadata records.
func (s *CrawlState) RecordCount() int { return len(s.records) }

// Load reads the three checkpoint documents. A missing file yields an empty
// default; an unparseable one logs a warning and also yields an empty
// default. Load never fails the run.
func (s *CrawlState) Load() {
	var songs []string
	if loadDocument(s.paths.SongPagesFile, &songs, s.logger) {
		for _, url := range songs {
			s.AddSongPage(url)
		}
	}

	var records []MetadataRecord
	if loadDocument(s.paths.MetadataFile, &records, s.logger) {
		for _, rec := range records {
			s.AddRecord(rec)
		}
	}

	var doc crawlDocument
	if loadDocument(s.paths.CrawlFile, &doc, s.logger) {
		for _, url := range doc.VisitedURLs {
			s.MarkVisited(url)
		}
		for _, item := range doc.ToVisit {
			s.Enqueue(item)
		}
	}

	s.logger.Info("Crawl state loaded",
		zap.Int("to_visit", len(s.frontier)),
		zap.Int("visited", len(s.visited)),
		zap.Int("song_pages", len(s.songPages)),
		zap.Int("metadata_records", len(s.records)),
	)
}

// Save rewrites all three checkpoint documents in full. Documents are
// written independently so a failure on one does not block the others.
func (s *CrawlState) Save() error {
	songsErr := writeDocument(s.paths.SongPagesFile, nonNil(s.songPages))
	metaErr := writeDocument(s.paths.MetadataFile, nonNil(s.records))
	doc := crawlDocument{
		ToVisit:     nonNil(s.frontier),
		VisitedURLs: nonNil(s.visitedOrder),
	}
	crawlErr := writeDocument(s.paths.CrawlFile, doc)

	if err := errors.Join(songsErr, metaErr, crawlErr); err != nil {
		return fmt.Errorf("save crawl state: %w", err)
	}
	s.logger.Info("Crawl state saved",
		zap.Int("to_visit", len(s.frontier)),
		zap.Int("visited", len(s.visited)),
		zap.Int("song_pages", len(s.songPages)),
		zap.Int("metadata_records", len(s.records)),
	)
	return nil
}

// loadDocument reads path into out. Returns false when the document was
// absent or corrupt; corrupt files only warn.
func loadDocument(path string, out any, logger *zap.Logger) bool {
	data, err := os.ReadFile(path) // #nosec G304 -- paths come from config
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read state document", zap.String("path", path), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		logger.Warn("State document corrupted; starting fresh",
			zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

// nonNil keeps empty collections serializing as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeDocument(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create state dir for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
