package effector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/vinayprograms/taskforce/internal/protocol"
)

// DefaultSearchURL is the DuckDuckGo HTML endpoint.
const DefaultSearchURL = "https://html.duckduckgo.com/html/"

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher queries a DuckDuckGo-compatible HTML search page.
type Searcher struct {
	endpoint string
	client   *http.Client
}

// NewSearcher returns a searcher for endpoint (DefaultSearchURL if empty).
func NewSearcher(endpoint string, timeout time.Duration) *Searcher {
	if endpoint == "" {
		endpoint = DefaultSearchURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Searcher{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

// Search returns at most limit results for query.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; taskforce)")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	results := extractResults(doc)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// extractResults walks the page for result__a links and the snippet that
// follows each one.
func extractResults(doc *html.Node) []SearchResult {
	var results []SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				results = append(results, SearchResult{
					Title: strings.TrimSpace(textOf(n)),
					URL:   resultURL(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = strings.TrimSpace(textOf(n))
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// resultURL unwraps DuckDuckGo redirect links (/l/?uddg=...).
func resultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// Execute handles SEARCH_WEB.
func (s *Searcher) Execute(ctx context.Context, a protocol.Action) Result {
	query := a.Field("QUERY")
	limit, err := strconv.Atoi(a.Field("MAX_RESULTS"))
	if err != nil || limit <= 0 {
		limit = 5
	}
	results, err := s.Search(ctx, query, limit)
	if err != nil {
		return Fail("search %q: %v", query, err)
	}
	if len(results) == 0 {
		return OK(fmt.Sprintf("No results for %q.", query))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   %s", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "\n   %s", r.Snippet)
		}
	}
	return OK(b.String())
}
