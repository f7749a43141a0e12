// Package app runs the collection pipeline end to end: load sources, scan
// feeds, drop already-seen posts, analyze what is left and merge the
// briefing rows into the output workbook.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sehyun-dev/snsweep/internal/analyzer"
	"github.com/sehyun-dev/snsweep/internal/browser"
	"github.com/sehyun-dev/snsweep/internal/cache"
	"github.com/sehyun-dev/snsweep/internal/config"
	"github.com/sehyun-dev/snsweep/internal/process"
	"github.com/sehyun-dev/snsweep/internal/scraper"
	"github.com/sehyun-dev/snsweep/internal/sources"
	"github.com/sehyun-dev/snsweep/internal/storage"
	"github.com/sehyun-dev/snsweep/internal/types"
)

// Stats summarizes one pipeline run.
type Stats struct {
	RunID     string        `json:"run_id"`
	Sources   int           `json:"sources"`
	Raw       int           `json:"raw_collected"`
	Fresh     int           `json:"fresh_after_cache"`
	Processed int           `json:"processed_rows"`
	Added     int           `json:"added"`
	TotalRows int           `json:"total_rows"`
	Collect   time.Duration `json:"-"`
	Process   time.Duration `json:"-"`
	Save      time.Duration `json:"-"`
	CacheIO   time.Duration `json:"-"`
}

// Pipeline wires collection, analysis and storage together. One Pipeline
// value serves many runs; each Run opens and closes its own sessions and
// cache handles.
type Pipeline struct {
	cfg     *config.Config
	factory browser.Factory
	log     *logrus.Entry
}

func New(cfg *config.Config, factory browser.Factory) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		factory: factory,
		log:     logrus.WithField("component", "pipeline"),
	}
}

// Run executes one full collection pass.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	stats := Stats{RunID: shortRunID()}
	log := p.log.WithField("run", stats.RunID)

	created, err := sources.Ensure(p.cfg.Sources.Path)
	if err != nil {
		return stats, fmt.Errorf("ensure sources: %w", err)
	}
	if created {
		log.Infof("created starter sources workbook: %s", p.cfg.Sources.Path)
	}
	srcs, err := sources.Load(p.cfg.Sources.Path)
	if err != nil {
		return stats, err
	}
	stats.Sources = len(srcs)

	log.Info("start")
	log.Infof("sources file: %s", p.cfg.Sources.Path)
	log.Infof("loaded sources: %d", len(srcs))
	log.Infof("keywords: %s", keywordsLabel(p.cfg.Search.Keywords))
	log.Infof("lookback hours: %d", p.cfg.Search.LookbackHours)
	log.Infof("workers: %d", p.cfg.Collect.Workers)
	log.Infof("cache: %s", cacheLabel(p.cfg.Cache))
	log.Infof("cache window hours: %s", orLabel(p.cfg.Cache.WindowHours, "all"))
	log.Infof("cache max urls: %s", orLabel(p.cfg.Cache.MaxURLs, "unlimited"))
	log.Infof("instagram candidate multiplier: %d", p.cfg.Collect.InstagramCandidateMultiplier)

	store, err := p.openStore()
	if err != nil {
		return stats, err
	}
	defer store.Close()

	seen := store.LoadSeenURLHashes(p.cfg.Cache.WindowHours, p.cfg.Cache.MaxURLs)
	if store.Enabled() {
		cs := store.Stats()
		log.Infof("cache urls(total)=%d, loaded=%d, translations=%d, summaries=%d",
			cs.SeenURLCount, len(seen), cs.TranslationCount, cs.SummaryCount)
	}

	// Collection only reads the seen set; it is mutated again once the
	// scan is over and freshness filtering starts.
	skip := func(url string) bool {
		_, hit := seen[cache.HashURL(url)]
		return hit
	}

	log.Info("collecting posts...")
	collectStart := time.Now()
	orch := scraper.NewOrchestrator(p.scanConfig(), p.factory)
	results := orch.CollectBySource(ctx, srcs, p.cfg.Search.Keywords, p.cfg.Collect.LimitPerSource, skip)
	stats.Collect = time.Since(collectStart)

	if p.cfg.Analysis.Enabled && strings.TrimSpace(p.cfg.Analysis.APIKey) == "" {
		log.Warn("GEMINI_API_KEY not set: falling back to rule-based summaries")
	}
	summarizer := analyzer.NewSummarizer(p.cfg.Analysis, store)
	proc := process.New(summarizer)
	excel := storage.NewExcel(p.cfg.Output.Path, p.cfg.Output.Sheet)

	var rows []process.Row
	var toCache []types.RawPost

	for i, result := range results {
		sourceStart := time.Now()
		stats.Raw += len(result.Posts)
		fresh := filterFresh(result.Posts, seen)
		stats.Fresh += len(fresh)

		log.Infof("source %d/%d %s: raw=%d, fresh=%d",
			i+1, len(results), result.Source.Name, len(result.Posts), len(fresh))

		if len(fresh) > 0 {
			processStart := time.Now()
			processed := proc.Process(ctx, fresh)
			stats.Process += time.Since(processStart)
			stats.Processed += len(processed)
			rows = append(rows, processed...)
			toCache = append(toCache, fresh...)

			if len(processed) > 0 {
				log.Info("refined summaries:")
				for n, row := range processed {
					log.Infof("[%d] %s", n+1, row.Briefing)
				}
			}
		}
		log.Infof("source %d/%d %s: elapsed=%.2fs",
			i+1, len(results), result.Source.Name, time.Since(sourceStart).Seconds())
	}

	saveStart := time.Now()
	added, total, err := excel.MergeAndSave(rows)
	if err != nil {
		return stats, err
	}
	stats.Save = time.Since(saveStart)
	stats.Added = added
	stats.TotalRows = total

	if store.Enabled() && len(toCache) > 0 {
		cacheStart := time.Now()
		store.AddPosts(toCache)
		stats.CacheIO = time.Since(cacheStart)
	}

	log.Infof("raw collected: %d", stats.Raw)
	log.Infof("fresh after cache: %d", stats.Fresh)
	log.Infof("processed rows: %d", stats.Processed)
	log.Infof("added: %d", stats.Added)
	log.Infof("total rows: %d", stats.TotalRows)
	log.Infof("output: %s", p.cfg.Output.Path)
	log.Infof("timings(sec): collect=%.2f, process=%.2f, save=%.2f, cache_write=%.2f, total=%.2f",
		stats.Collect.Seconds(), stats.Process.Seconds(), stats.Save.Seconds(), stats.CacheIO.Seconds(),
		(stats.Collect + stats.Process + stats.Save + stats.CacheIO).Seconds())

	if store.Enabled() {
		cs := store.Stats()
		log.Infof("cache urls(total)=%d, translations=%d, summaries=%d",
			cs.SeenURLCount, cs.TranslationCount, cs.SummaryCount)
	}
	log.Info("done")
	return stats, nil
}

func (p *Pipeline) openStore() (*cache.Cache, error) {
	if !p.cfg.Cache.Enabled {
		return cache.Disabled(), nil
	}
	return cache.Open(p.cfg.Cache.Path)
}

func (p *Pipeline) scanConfig() scraper.Config {
	c := p.cfg.Collect
	return scraper.Config{
		ScrollLimit:                  c.ScrollLimit,
		ScrollWait:                   time.Duration(c.ScrollWaitMs) * time.Millisecond,
		NoGrowthBreakLimit:           c.NoGrowthBreakLimit,
		OldPostBreakLimit:            c.OldPostBreakLimit,
		NavTimeout:                   time.Duration(c.NavTimeoutMs) * time.Millisecond,
		NavRetries:                   c.NavRetries,
		NavRetryBase:                 time.Duration(c.NavRetryBaseMs) * time.Millisecond,
		LookbackHours:                p.cfg.Search.LookbackHours,
		IncludeUnknownTime:           p.cfg.Search.IncludeUnknownTime,
		XKeywordFilter:               c.XKeywordFilter,
		InstagramCandidateMultiplier: c.InstagramCandidateMultiplier,
		SelectorVersion:              c.SelectorVersion,
		BlockResources:               c.BlockResources,
		Workers:                      c.Workers,
	}
}

// filterFresh keeps posts whose URL hash is not in the seen set and claims
// the hash right away, so the same post cannot ride in through a second
// source in the same run.
func filterFresh(posts []types.RawPost, seen map[string]struct{}) []types.RawPost {
	var fresh []types.RawPost
	for _, post := range posts {
		if post.PostURL == "" {
			continue
		}
		h := cache.HashURL(post.PostURL)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		fresh = append(fresh, post)
	}
	return fresh
}

func keywordsLabel(keywords []string) string {
	if len(keywords) == 0 {
		return "(none)"
	}
	return strings.Join(keywords, ", ")
}

func cacheLabel(c config.CacheConfig) string {
	if !c.Enabled {
		return "off"
	}
	return c.Path
}

func orLabel(n int, unlimited string) string {
	if n > 0 {
		return strconv.Itoa(n)
	}
	return unlimited
}

func shortRunID() string {
	return uuid.NewString()[:8]
}
