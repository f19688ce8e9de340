package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/cognixio/chunker/pkg/resilience"
)

const (
	defaultMaxDepth = 3
	defaultMaxPages = 200
)

// URLExtractor crawls from a seed URL, restricted to the same registrable
// domain, collecting visible text per page.
type URLExtractor struct {
	HTTPFetcher HTTPFetcher
	Renderer    Renderer
	MaxDepth    int
	MaxPages    int
	// Limiter paces page fetches during recursive crawls. Nil means
	// unthrottled, the default for a single-page fetch.
	Limiter *resilience.Limiter
}

type crawlNode struct {
	url   string
	depth int
}

// Extract performs a breadth-first crawl starting at job.URL. If
// job.URLRecursive is false, only the seed page is fetched.
func (e *URLExtractor) Extract(ctx context.Context, job Job) ([]Item, error) {
	if job.URL == "" {
		return nil, fmt.Errorf("extract: URL job missing url")
	}
	maxDepth := e.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	maxPages := e.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	seedDomain, err := registrableDomain(job.URL)
	if err != nil {
		return nil, fmt.Errorf("extract: parse seed url: %w", err)
	}

	visited := map[string]bool{}
	queue := []crawlNode{{url: job.URL, depth: 0}}
	var items []Item

	for len(queue) > 0 && len(visited) < maxPages {
		node := queue[0]
		queue = queue[1:]

		if visited[node.url] {
			continue
		}
		visited[node.url] = true

		if e.Limiter != nil && node.depth > 0 {
			if err := e.Limiter.Wait(ctx); err != nil {
				continue
			}
		}

		html, err := e.fetchWithFallback(ctx, node.url)
		if err != nil {
			if node.depth == 0 {
				return nil, fmt.Errorf("extract: fetch seed %s: %w", node.url, err)
			}
			continue
		}

		text, links := extractTextAndLinks(html, node.url)
		if text != "" {
			items = append(items, Item{Content: text, Reference: node.url})
		}

		if !job.URLRecursive {
			break
		}
		if node.depth >= maxDepth {
			continue
		}
		for _, link := range links {
			if visited[link] {
				continue
			}
			linkDomain, err := registrableDomain(link)
			if err != nil || linkDomain != seedDomain {
				continue
			}
			queue = append(queue, crawlNode{url: link, depth: node.depth + 1})
		}
	}

	return items, nil
}

func (e *URLExtractor) fetchWithFallback(ctx context.Context, pageURL string) (string, error) {
	html, err := e.HTTPFetcher.Fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	if text, _ := extractTextAndLinks(html, pageURL); text == "" && e.Renderer != nil {
		if rendered, rerr := e.Renderer.Render(ctx, pageURL); rerr == nil {
			return rendered, nil
		}
	}
	return html, nil
}

// extractTextAndLinks parses html with goquery, collecting visible text from
// paragraph/article/div elements (deduplicated, items under 10 characters
// dropped, joined by blank lines) and absolute http(s) links with no
// fragment.
func extractTextAndLinks(html, base string) (string, []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil
	}

	seen := map[string]bool{}
	var pieces []string
	doc.Find("p, article, div").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) < 10 || seen[text] {
			return
		}
		seen[text] = true
		pieces = append(pieces, text)
	})

	baseURL, err := url.Parse(base)
	var links []string
	if err == nil {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			resolved, err := baseURL.Parse(href)
			if err != nil || resolved.Fragment != "" {
				return
			}
			if resolved.Scheme != "http" && resolved.Scheme != "https" {
				return
			}
			links = append(links, resolved.String())
		})
	}

	return strings.Join(pieces, "\n\n"), links
}

// registrableDomain returns the eTLD+1 for a URL's host, used to scope the
// crawl to the seed's domain.
func registrableDomain(rawurl string) (string, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in %q", rawurl)
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Hosts like "localhost" have no public suffix; fall back to the
		// bare host so local/test crawls still work.
		return host, nil
	}
	return domain, nil
}
