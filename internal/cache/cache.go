// Package cache is the content-addressed store shared across runs: seen post
// URLs, translation memos and summary memos, all keyed by a hash of their
// trimmed value. Every operation degrades to a no-op or a miss when the cache
// is disabled or the database misbehaves; failures never reach callers.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/sehyun-dev/snsweep/internal/types"
)

// DefaultTechCategory is used when a summary row carries no category
const DefaultTechCategory = "기타"

// timeFormat keeps stored timestamps fixed-width UTC so string comparison
// in SQL matches chronological order
const timeFormat = time.RFC3339

const schema = `
CREATE TABLE IF NOT EXISTS post_cache (
	url_hash TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	platform TEXT,
	source_name TEXT,
	posted_at TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_post_cache_created_at ON post_cache(created_at);

CREATE TABLE IF NOT EXISTS translation_cache (
	text_hash TEXT PRIMARY KEY,
	source_text TEXT NOT NULL,
	translated_text TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS summary_cache (
	text_hash TEXT PRIMARY KEY,
	source_text TEXT NOT NULL,
	summary TEXT NOT NULL,
	tech_category TEXT NOT NULL,
	headline TEXT,
	detail TEXT,
	updated_at TEXT NOT NULL
);
`

// Cache wraps the SQLite store. Writes go through a single-connection handle
// so there is one logical writer; reads use a separate read-only handle.
type Cache struct {
	writeDB *sql.DB
	readDB  *sql.DB
	enabled bool
	log     *logrus.Entry
}

// SummaryEntry is one memoized summarization result
type SummaryEntry struct {
	Summary      string
	TechCategory string
	Headline     string
	Detail       string
}

// Stats counts the rows in each store
type Stats struct {
	SeenURLCount     int
	TranslationCount int
	SummaryCount     int
}

// Open creates or opens the cache database at path
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	writeDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	c := &Cache{
		writeDB: writeDB,
		readDB:  readDB,
		enabled: true,
		log:     logrus.WithField("component", "cache"),
	}

	if _, err := c.writeDB.Exec(schema); err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return c, nil
}

// Disabled returns a cache where every read misses and every write is a
// no-op. Callers fall back to it when Open fails or caching is turned off.
func Disabled() *Cache {
	return &Cache{log: logrus.WithField("component", "cache")}
}

// Enabled reports whether the cache is backed by a database
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Close releases both database handles
func (c *Cache) Close() error {
	if !c.enabled {
		return nil
	}
	var firstErr error
	if err := c.readDB.Close(); err != nil {
		firstErr = err
	}
	if err := c.writeDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// HashText returns the hex sha256 of the trimmed value. Equal trimmed
// strings always hash equal, regardless of surrounding whitespace.
func HashText(value string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(value)))
	return hex.EncodeToString(sum[:])
}

// HashURL hashes a URL the same way text is hashed
func HashURL(url string) string {
	return HashText(url)
}

// LoadSeenURLHashes returns stored URL hashes, newest first. recentHours > 0
// restricts to rows created inside that window; maxCount > 0 caps the result.
// Zero for either means unrestricted.
func (c *Cache) LoadSeenURLHashes(recentHours, maxCount int) map[string]struct{} {
	seen := make(map[string]struct{})
	if !c.enabled {
		return seen
	}

	query := "SELECT url_hash FROM post_cache"
	var args []any

	if recentHours > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(recentHours) * time.Hour).Format(timeFormat)
		query += " WHERE created_at >= ?"
		args = append(args, cutoff)
	}
	query += " ORDER BY created_at DESC"
	if maxCount > 0 {
		query += " LIMIT ?"
		args = append(args, maxCount)
	}

	rows, err := c.readDB.Query(query, args...)
	if err != nil {
		c.log.Warnf("seen-url load failed: %v", err)
		return seen
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			c.log.Warnf("seen-url scan failed: %v", err)
			return seen
		}
		seen[hash] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		c.log.Warnf("seen-url load incomplete: %v", err)
	}

	return seen
}

// AddPosts records the URLs of posts, ignoring ones already present and
// posts without a URL. Returns how many rows were actually inserted.
func (c *Cache) AddPosts(posts []types.RawPost) int {
	if !c.enabled || len(posts) == 0 {
		return 0
	}

	tx, err := c.writeDB.Begin()
	if err != nil {
		c.log.Warnf("post write failed: %v", err)
		return 0
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO post_cache (url_hash, url, platform, source_name, posted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		c.log.Warnf("post write failed: %v", err)
		return 0
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(timeFormat)
	inserted := 0
	for _, post := range posts {
		if post.PostURL == "" {
			continue
		}
		res, err := stmt.Exec(HashURL(post.PostURL), post.PostURL, string(post.Platform), post.SourceName, post.PostedAt, now)
		if err != nil {
			c.log.Warnf("post write failed for %s: %v", post.PostURL, err)
			continue
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		c.log.Warnf("post write commit failed: %v", err)
		return 0
	}
	return inserted
}

// Translation returns the memoized translation for sourceText
func (c *Cache) Translation(sourceText string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	var translated string
	err := c.readDB.QueryRow(
		"SELECT translated_text FROM translation_cache WHERE text_hash = ?",
		HashText(sourceText),
	).Scan(&translated)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		c.log.Warnf("translation read failed: %v", err)
		return "", false
	}
	return translated, true
}

// SetTranslation memoizes a translation. Rewriting the same source updates
// the value and refreshes its timestamp; blank inputs are dropped.
func (c *Cache) SetTranslation(sourceText, translatedText string) {
	if !c.enabled {
		return
	}

	source := strings.TrimSpace(sourceText)
	translated := strings.TrimSpace(translatedText)
	if source == "" || translated == "" {
		return
	}

	_, err := c.writeDB.Exec(`
		INSERT INTO translation_cache (text_hash, source_text, translated_text, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(text_hash) DO UPDATE SET
			translated_text = excluded.translated_text,
			updated_at = excluded.updated_at
	`, HashText(source), source, translated, time.Now().UTC().Format(timeFormat))
	if err != nil {
		c.log.Warnf("translation write failed: %v", err)
	}
}

// Summary returns the memoized summary entry for sourceText
func (c *Cache) Summary(sourceText string) (SummaryEntry, bool) {
	if !c.enabled {
		return SummaryEntry{}, false
	}

	var entry SummaryEntry
	err := c.readDB.QueryRow(`
		SELECT summary, tech_category, headline, detail
		FROM summary_cache
		WHERE text_hash = ?
	`, HashText(sourceText)).Scan(&entry.Summary, &entry.TechCategory, &entry.Headline, &entry.Detail)
	if err == sql.ErrNoRows {
		return SummaryEntry{}, false
	}
	if err != nil {
		c.log.Warnf("summary read failed: %v", err)
		return SummaryEntry{}, false
	}

	if strings.TrimSpace(entry.TechCategory) == "" {
		entry.TechCategory = DefaultTechCategory
	}
	return entry, true
}

// SetSummary memoizes a summary entry. Entries without a summary are
// dropped; a blank category falls back to the default.
func (c *Cache) SetSummary(sourceText string, entry SummaryEntry) {
	if !c.enabled {
		return
	}

	source := strings.TrimSpace(sourceText)
	summary := strings.TrimSpace(entry.Summary)
	if source == "" || summary == "" {
		return
	}

	category := strings.TrimSpace(entry.TechCategory)
	if category == "" {
		category = DefaultTechCategory
	}

	_, err := c.writeDB.Exec(`
		INSERT INTO summary_cache (text_hash, source_text, summary, tech_category, headline, detail, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(text_hash) DO UPDATE SET
			summary = excluded.summary,
			tech_category = excluded.tech_category,
			headline = excluded.headline,
			detail = excluded.detail,
			updated_at = excluded.updated_at
	`, HashText(source), source, summary, category,
		strings.TrimSpace(entry.Headline), strings.TrimSpace(entry.Detail),
		time.Now().UTC().Format(timeFormat))
	if err != nil {
		c.log.Warnf("summary write failed: %v", err)
	}
}

// Stats counts rows in each store for observability
func (c *Cache) Stats() Stats {
	var s Stats
	if !c.enabled {
		return s
	}

	for table, target := range map[string]*int{
		"post_cache":        &s.SeenURLCount,
		"translation_cache": &s.TranslationCount,
		"summary_cache":     &s.SummaryCount,
	} {
		if err := c.readDB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(target); err != nil {
			c.log.Warnf("stats read failed for %s: %v", table, err)
		}
	}
	return s
}
