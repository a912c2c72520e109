package playstore

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"reviews-etl/config"
	"reviews-etl/models"
	"reviews-etl/utils"
)

const detailsURL = "https://play.google.com/store/apps/details?id=%s&hl=%s&gl=%s"

// maxScrollRounds bounds the reviews-panel pagination per source.
const maxScrollRounds = 60

// Scraper collects Play Store reviews for the configured sources.
type Scraper struct {
	cfg    *config.Config
	logger *utils.Logger
	pool   *utils.WorkerPool
	seen   *utils.IDSet
	retry  *utils.RetryConfig

	mu      sync.Mutex
	reviews []*models.RawReview
}

// New creates a ready-to-use Play Store Scraper.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:    cfg,
		logger: logger,
		pool:   utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		seen:   utils.NewIDSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   5 * time.Second,
			Logger:      logger,
		},
		reviews: make([]*models.RawReview, 0),
	}
}

// Scrape collects reviews for every configured source and returns the raw
// batch. A source that keeps failing after retries is skipped, not fatal.
func (s *Scraper) Scrape() ([]*models.RawReview, error) {
	s.logger.Info("[playstore] Starting scrape — %d sources, target %d reviews each",
		len(s.cfg.Sources), s.cfg.ReviewsPerSource)

	chromeBin := findChromeBinary()
	s.logger.Info("[playstore] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelSilent()
	allocCtx = silentCtx

	start := time.Now()
	for _, source := range s.cfg.Sources {
		src := source
		s.pool.Submit(func() {
			collected, err := s.scrapeSource(allocCtx, src)
			if err != nil {
				s.logger.Error("[playstore] %s failed: %v — skipping source", src.Code, err)
				return
			}

			s.mu.Lock()
			s.reviews = append(s.reviews, collected...)
			s.mu.Unlock()

			s.logger.Info("[playstore] %s done — %d reviews collected", src.Code, len(collected))
		})
	}
	s.pool.Wait()

	s.logger.Info("[playstore] Scrape complete in %.1fs — total raw reviews: %d",
		time.Since(start).Seconds(), len(s.reviews))
	return s.reviews, nil
}

// reviewData mirrors the fields extracted from one review node in the panel.
type reviewData struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Text     string `json:"text"`
	Rating   string `json:"rating"`
	Date     string `json:"date"`
	ThumbsUp int    `json:"thumbsUp"`
	Reply    string `json:"reply"`
	Version  string `json:"version"`
}

// scrapeSource opens one app's details page, opens the reviews panel and
// scroll-paginates until the per-source target is reached or the panel stops
// yielding new reviews.
func (s *Scraper) scrapeSource(allocCtx context.Context, src config.Source) ([]*models.RawReview, error) {
	var collected []*models.RawReview

	err := s.retry.Do("scrape-"+src.Code, func() error {
		ctx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		ctx, cancelTimeout := context.WithTimeout(ctx, 10*time.Minute)
		defer cancelTimeout()

		url := fmt.Sprintf(detailsURL, src.AppID, s.cfg.ScrapeLang, s.cfg.ScrapeCountry)
		s.logger.Info("[playstore] %s — navigating to %s", src.Code, url)

		err := chromedp.Run(ctx,
			chromedp.Navigate(url),
			chromedp.Sleep(4*time.Second),

			// Open the "See all reviews" panel
			chromedp.Evaluate(`
				(function() {
					var buttons = document.querySelectorAll('button, span[role="button"]');
					for (var i = 0; i < buttons.length; i++) {
						var t = (buttons[i].innerText || '').toLowerCase();
						if (t.indexOf('see all reviews') !== -1 || t.indexOf('all reviews') !== -1) {
							buttons[i].click();
							return true;
						}
					}
					return false;
				})()
			`, nil),
			chromedp.Sleep(3*time.Second),
		)
		if err != nil {
			return fmt.Errorf("open reviews panel: %w", err)
		}

		collected = collected[:0]
		stale := 0

		for round := 0; round < maxScrollRounds && len(collected) < s.cfg.ReviewsPerSource; round++ {
			batch, err := s.extractVisibleReviews(ctx)
			if err != nil {
				return fmt.Errorf("extract reviews: %w", err)
			}

			added := 0
			for _, r := range batch {
				if r.Text == "" && r.Rating == "" {
					continue
				}
				if !s.seen.Add(src.Code + ":" + r.ID) {
					continue
				}
				collected = append(collected, &models.RawReview{
					ReviewID:      r.ID,
					UserName:      r.Author,
					ReviewText:    r.Text,
					Rating:        r.Rating,
					ReviewDate:    r.Date,
					ThumbsUpCount: r.ThumbsUp,
					ReplyContent:  r.Reply,
					SourceCode:    src.Code,
					SourceName:    src.DisplayName,
					AppVersion:    r.Version,
					Origin:        models.OriginGooglePlay,
				})
				added++
				if len(collected) >= s.cfg.ReviewsPerSource {
					break
				}
			}

			s.logger.Debug("[playstore] %s round %d — +%d reviews (%d total)",
				src.Code, round+1, added, len(collected))

			if added == 0 {
				stale++
				if stale >= 3 {
					s.logger.Warn("[playstore] %s — panel stopped yielding new reviews at %d",
						src.Code, len(collected))
					break
				}
			} else {
				stale = 0
			}

			// Scroll the panel (or the page when no dialog is present)
			err = chromedp.Run(ctx,
				chromedp.Evaluate(`
					(function() {
						var panel = document.querySelector('div[role="dialog"] div[jsname]') ||
						            document.querySelector('div[role="dialog"]');
						if (panel) {
							panel.scrollTo(0, panel.scrollHeight);
						} else {
							window.scrollTo(0, document.body.scrollHeight);
						}
					})()
				`, nil),
				chromedp.Sleep(2*time.Second),
			)
			if err != nil {
				return fmt.Errorf("scroll reviews panel: %w", err)
			}
		}

		if len(collected) == 0 {
			return fmt.Errorf("no reviews extracted for %s", src.AppID)
		}
		return nil
	})

	return collected, err
}

// extractVisibleReviews pulls every review node currently rendered in the
// panel. The store's class names are obfuscated, so extraction leans on
// stable attributes (data-review-id, aria-label) with text-shape fallbacks.
func (s *Scraper) extractVisibleReviews(ctx context.Context) ([]reviewData, error) {
	var batch []reviewData

	err := chromedp.Run(ctx,
		chromedp.Evaluate(`
			(function() {
				var results = [];
				var nodes = document.querySelectorAll('div[data-review-id]');
				for (var i = 0; i < nodes.length; i++) {
					var node = nodes[i];
					var r = {
						id: node.getAttribute('data-review-id') || '',
						author: '',
						text: '',
						rating: '',
						date: '',
						thumbsUp: 0,
						reply: '',
						version: ''
					};

					var authorEl = node.querySelector('header div[class]');
					if (authorEl) r.author = authorEl.innerText.trim().split('\n')[0];

					// Star rating lives in an aria-label like "Rated 4 stars out of five stars"
					var starEl = node.querySelector('[aria-label*="star"]') ||
					             node.querySelector('[role="img"]');
					if (starEl) {
						var label = starEl.getAttribute('aria-label') || '';
						var m = label.match(/(\d(?:\.\d)?)/);
						if (m) r.rating = m[1];
					}

					var dateEl = node.querySelector('header span:last-child') ||
					             node.querySelector('span[class*="date"]');
					if (dateEl) r.date = dateEl.innerText.trim();

					var textEl = node.querySelector('div[jsname] > div') ||
					             node.querySelector('div[class*="review-body"]');
					if (textEl) {
						r.text = textEl.innerText.trim();
					} else {
						// Fallback: longest text block inside the node
						var blocks = node.querySelectorAll('div, span');
						for (var j = 0; j < blocks.length; j++) {
							var t = blocks[j].innerText ? blocks[j].innerText.trim() : '';
							if (t.length > r.text.length) r.text = t;
						}
					}

					var thumbsEl = node.querySelector('div[aria-label*="helpful"]') ||
					               node.querySelector('button[aria-label*="helpful"]');
					if (thumbsEl) {
						var tm = (thumbsEl.innerText || '').match(/(\d+)/);
						if (tm) r.thumbsUp = parseInt(tm[1], 10);
					}

					var replyEl = node.querySelector('div[class*="developer"]') ||
					              node.querySelector('div[jscontroller] blockquote');
					if (replyEl) r.reply = replyEl.innerText.trim();

					results.push(r);
				}
				return results;
			})()
		`, &batch),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp evaluate: %w", err)
	}
	return batch, nil
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
