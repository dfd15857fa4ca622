// Package extract implements the song-page metadata extractor. It fetches
// pages over plain HTTP, independently of the crawl browser session, and
// flattens the page's details table, thumbnail, and audio stream URL into a
// metadata record.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/musicdex/pagalgana-crawler/internal/crawler"
)

// audioURLPattern matches the inline player's stream URL in the raw markup.
var audioURLPattern = regexp.MustCompile(`new Audio\(["'](https://[^"']+\.mp3)["']\)`)

const (
	ratingKey    = "Rating"
	fullStar     = "★"
	halfStar     = "☆"
	ratingOutOf  = 5
	fullStarVal  = 1.0
	halfStarVal  = 0.5
	extractorErr = "error_extracting_metadata"
)

// Extractor implements crawler.MetadataExtractor using a Colly collector.
type Extractor struct {
	base   *colly.Collector
	logger *zap.Logger
}

// New constructs an Extractor with its own HTTP identity; it shares no
// cookies or session state with the crawl browser.
func New(userAgent string, timeout time.Duration, logger *zap.Logger) *Extractor {
	base := colly.NewCollector(colly.UserAgent(userAgent))
	base.AllowURLRevisit = true
	if timeout > 0 {
		base.SetRequestTimeout(timeout)
	}
	return &Extractor{base: base, logger: logger}
}

// Extract fetches url and returns its metadata record. Failures never
// escape: a fetch error yields a record with only the URL and an error
// message.
func (e *Extractor) Extract(ctx context.Context, url string) crawler.MetadataRecord {
	e.logger.Debug("Extracting song metadata", zap.String("url", url))

	body, err := e.fetch(ctx, url)
	if err != nil {
		e.logger.Warn("Metadata fetch failed", zap.String("url", url), zap.Error(err))
		return crawler.NewErrorRecord(url, "Failed to fetch page")
	}
	return parseRecord(url, body)
}

// fetch retrieves the page body with a per-request clone of the base
// collector.
func (e *Extractor) fetch(ctx context.Context, url string) ([]byte, error) {
	collector := e.base.Clone()

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != 200 {
			fetchErr = errors.New("unexpected status")
			return
		}
		body = append([]byte{}, r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown fetch error")
		}
		fetchErr = err
	})

	if err := collector.Visit(url); err != nil {
		return nil, err
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if body == nil {
		return nil, errors.New("fetch produced no response")
	}
	return body, nil
}

// parseRecord pulls the details table, thumbnail, and stream URL out of the
// page. Parse-level problems are recorded in the result rather than
// returned.
func parseRecord(url string, body []byte) crawler.MetadataRecord {
	rec := crawler.MetadataRecord{URL: url, Fields: map[string]string{}}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		rec.Fields[extractorErr] = err.Error()
		return rec
	}

	parseDetailsTable(doc, &rec)
	rec.Thumbnail = extractThumbnail(doc)
	if m := audioURLPattern.FindSubmatch(body); m != nil {
		audio := string(m[1])
		rec.AudioURL = &audio
	}
	return rec
}

// parseDetailsTable flattens the song details rows into key/value pairs,
// with the star-rating row converted into a structured Rating.
func parseDetailsTable(doc *goquery.Document, rec *crawler.MetadataRecord) {
	rows := doc.Find("table tbody tr.tr")
	if rows.Length() == 0 {
		rec.TableMissing = true
		return
	}

	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		key := strings.TrimSuffix(strings.TrimSpace(cells.Eq(0).Text()), ":")
		value := cells.Eq(1)

		if key == ratingKey {
			if rating := parseRating(value); rating != nil {
				rec.Rating = rating
			}
			return
		}
		rec.Fields[key] = collapseWhitespace(value.Text())
	})
}

// parseRating concatenates the star glyphs and scores them: a full glyph is
// one point, a partial glyph half a point, out of five.
func parseRating(cell *goquery.Selection) *crawler.Rating {
	spans := cell.Find("span")
	if spans.Length() == 0 {
		return nil
	}
	var stars strings.Builder
	spans.Each(func(_ int, span *goquery.Selection) {
		stars.WriteString(strings.TrimSpace(span.Text()))
	})
	glyphs := stars.String()
	value := fullStarVal*float64(strings.Count(glyphs, fullStar)) +
		halfStarVal*float64(strings.Count(glyphs, halfStar))
	return &crawler.Rating{Stars: glyphs, OutOf: ratingOutOf, Value: value}
}

// extractThumbnail pulls the image URL out of the page's JSON-LD blocks.
func extractThumbnail(doc *goquery.Document) string {
	var thumbnail string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, script *goquery.Selection) bool {
		var payload map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(script.Text())), &payload); err != nil {
			return true
		}
		if image, ok := payload["image"].(string); ok && image != "" {
			thumbnail = image
			return false
		}
		return true
	})
	return thumbnail
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
