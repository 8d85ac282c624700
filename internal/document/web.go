package document

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
)

// loadURLs fetches a batch of URLs with bounded parallelism and a polite
// per-domain delay, extracting the main article text from each page.
// Per-URL failures are logged and skipped; the batch never fails as a
// whole.
func (l *Loader) loadURLs(ctx context.Context, urls []string) []Document {
	sc := l.cfg.Scraper

	c := colly.NewCollector(
		colly.UserAgent(sc.UserAgent),
		colly.Async(true),
	)
	c.SetRequestTimeout(time.Duration(sc.TimeoutMs) * time.Millisecond)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: sc.Parallelism,
		Delay:       time.Duration(sc.DelayMs) * time.Millisecond,
	}); err != nil {
		l.logger.Warn("applying scraper limits", "error", err)
	}

	var (
		mu   sync.Mutex
		docs []Document
	)

	c.OnResponse(func(r *colly.Response) {
		pageURL := r.Request.URL
		text, title, err := extractPage(r.Body, pageURL)
		if err != nil {
			l.logger.Warn("extracting page content", "url", pageURL.String(), "error", err)
			return
		}

		doc := New(text, pageURL.String(), "web")
		if title != "" {
			doc.Metadata["title"] = title
		}

		mu.Lock()
		docs = append(docs, doc)
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		l.logger.Warn("fetching URL", "url", r.Request.URL.String(), "error", err)
	})

	for _, u := range urls {
		if ctx.Err() != nil {
			l.logger.Warn("URL batch canceled", "remaining", len(urls))
			break
		}
		if err := c.Visit(u); err != nil {
			l.logger.Warn("queuing URL", "url", u, "error", err)
		}
	}
	c.Wait()

	return docs
}

// extractPage pulls readable article text out of an HTML payload.
// go-readability is the preferred extractor; when it errors or finds no
// article body, a plain goquery pass strips chrome elements and returns the
// remaining body text.
func extractPage(body []byte, pageURL *url.URL) (text, title string, err error) {
	article, rerr := readability.FromReader(bytes.NewReader(body), pageURL)
	if rerr == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.TextContent, article.Title, nil
	}

	doc, qerr := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if qerr != nil {
		if rerr != nil {
			return "", "", fmt.Errorf("readability: %v; goquery: %w", rerr, qerr)
		}
		return "", "", fmt.Errorf("parsing HTML: %w", qerr)
	}

	doc.Find("script, style, noscript, nav, header, footer, aside").Remove()
	text = strings.TrimSpace(doc.Find("body").Text())
	if text == "" {
		return "", "", fmt.Errorf("no extractable text")
	}
	return text, strings.TrimSpace(doc.Find("title").First().Text()), nil
}
