package scraper

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sehyun-dev/snsweep/internal/browser"
	"github.com/sehyun-dev/snsweep/internal/types"
)

// Orchestrator routes each source to its platform collector and fans the
// work out across workers. Every worker owns one isolated browser session;
// results come back in input order, one entry per source, and a source that
// fails only costs its own entry.
type Orchestrator struct {
	cfg        Config
	collectors map[types.Platform]Collector
	newSession browser.Factory
	log        *logrus.Entry
}

// NewOrchestrator wires the three platform collectors onto a session factory.
func NewOrchestrator(cfg Config, factory browser.Factory) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg: cfg,
		collectors: map[types.Platform]Collector{
			types.PlatformX:         NewXCollector(cfg),
			types.PlatformInstagram: NewInstagramCollector(cfg),
			types.PlatformFacebook:  NewFacebookCollector(cfg),
		},
		newSession: factory,
		log:        logrus.WithField("component", "collector"),
	}
}

// DetectPlatform maps a source URL onto a platform by host.
func DetectPlatform(rawURL string) types.Platform {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return types.PlatformUnknown
	}
	host := strings.ToLower(parsed.Host)
	switch {
	case strings.Contains(host, "x.com") || strings.Contains(host, "twitter.com"):
		return types.PlatformX
	case strings.Contains(host, "instagram.com"):
		return types.PlatformInstagram
	case strings.Contains(host, "facebook.com") || strings.Contains(host, "fb.com"):
		return types.PlatformFacebook
	default:
		return types.PlatformUnknown
	}
}

// CollectBySource scans every source and returns one result per source in
// input order. Parallel fan-out kicks in above one worker when there is more
// than one source.
func (o *Orchestrator) CollectBySource(ctx context.Context, sources []types.Source, keywords []string, limit int, skip SkipFunc) []types.SourceResult {
	o.log.Infof("start (sources=%d, limit=%d, workers=%d)", len(sources), limit, o.cfg.Workers)
	if len(sources) == 0 {
		return nil
	}

	var results []types.SourceResult
	if o.cfg.Workers <= 1 || len(sources) == 1 {
		results = o.collectSequential(ctx, sources, keywords, limit, skip)
	} else {
		results = o.collectParallel(ctx, sources, keywords, limit, skip)
	}

	total := 0
	for _, r := range results {
		total += len(r.Posts)
	}
	o.log.Infof("done (total_collected=%d)", total)
	return results
}

// collectSequential drives all sources through a single session.
func (o *Orchestrator) collectSequential(ctx context.Context, sources []types.Source, keywords []string, limit int, skip SkipFunc) []types.SourceResult {
	results := make([]types.SourceResult, 0, len(sources))

	session, err := o.openSession(ctx)
	if err != nil {
		o.log.Errorf("browser session unavailable: %v", err)
		for _, src := range sources {
			results = append(results, types.SourceResult{Source: src})
		}
		return results
	}
	defer session.Close()

	for i, src := range sources {
		posts := o.collectOne(session, i, len(sources), src, keywords, limit, skip)
		results = append(results, types.SourceResult{Source: src, Posts: posts})
	}
	return results
}

// collectParallel splits the sources round-robin into one batch per worker.
// Round-robin keeps neighboring sources, which tend to share a platform, on
// different workers. Each worker fills its own result slots, so the output
// stays in input order without a merge step.
func (o *Orchestrator) collectParallel(ctx context.Context, sources []types.Source, keywords []string, limit int, skip SkipFunc) []types.SourceResult {
	type indexedSource struct {
		index  int
		source types.Source
	}

	workerCount := o.cfg.Workers
	if len(sources) < workerCount {
		workerCount = len(sources)
	}

	batches := make([][]indexedSource, workerCount)
	for i, src := range sources {
		batches[i%workerCount] = append(batches[i%workerCount], indexedSource{index: i, source: src})
	}

	slots := make([]types.SourceResult, len(sources))
	var wg sync.WaitGroup

	for workerIdx, batch := range batches {
		wg.Add(1)
		go func(workerIdx int, batch []indexedSource) {
			defer wg.Done()
			log := o.log.WithField("worker", workerIdx+1)

			session, err := o.openSession(ctx)
			if err != nil {
				log.Errorf("browser session unavailable: %v", err)
				for _, item := range batch {
					slots[item.index] = types.SourceResult{Source: item.source}
				}
				return
			}
			defer session.Close()

			for _, item := range batch {
				posts := o.collectOne(session, item.index, len(sources), item.source, keywords, limit, skip)
				slots[item.index] = types.SourceResult{Source: item.source, Posts: posts}
			}
		}(workerIdx, batch)
	}

	wg.Wait()
	return slots
}

// collectOne scans a single source and contains any panic from the scan so
// one broken page cannot take down the batch.
func (o *Orchestrator) collectOne(session browser.Session, index, total int, src types.Source, keywords []string, limit int, skip SkipFunc) (posts []types.RawPost) {
	platform := DetectPlatform(src.URL)
	collector, ok := o.collectors[platform]
	if !ok {
		o.log.Warnf("unsupported platform: %s", src.URL)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Errorf("skip %s: panic during scan: %v", src.Name, r)
			posts = nil
		}
	}()

	started := time.Now()
	o.log.Infof("[%d/%d] %s (%s) collecting...", index+1, total, src.Name, platform)
	posts = collector.Collect(session, src, keywords, limit, skip)
	o.log.Infof("[%d/%d] %s: %d posts (elapsed=%.2fs)", index+1, total, src.Name, len(posts), time.Since(started).Seconds())
	return posts
}

// openSession builds one isolated session and installs resource blocking.
// A blocking setup failure is logged and ignored; the scan just runs heavier.
func (o *Orchestrator) openSession(ctx context.Context) (browser.Session, error) {
	session, err := o.newSession(ctx)
	if err != nil {
		return nil, err
	}
	if o.cfg.BlockResources {
		if err := session.InterceptRequests(blockHeavyResources); err != nil {
			o.log.Warnf("resource blocking setup failed: %v", err)
		}
	}
	return session, nil
}

var adHostTokens = []string{"doubleclick", "googlesyndication", "google-analytics", "analytics"}

// blockHeavyResources drops images, media, fonts and ad or analytics calls.
// Feed scanning only needs the DOM.
func blockHeavyResources(req browser.RequestInfo) bool {
	switch strings.ToLower(req.ResourceType) {
	case "image", "media", "font":
		return true
	}
	lowered := strings.ToLower(req.URL)
	for _, token := range adHostTokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}
