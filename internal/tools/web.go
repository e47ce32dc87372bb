package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/zulandar/conductor/internal/extract"
)

const (
	// browserUserAgent avoids bot-blocking on scraped endpoints.
	browserUserAgent = "Mozilla/5.0"
	// maxSearchResults bounds results returned by the search tools.
	maxSearchResults = 3
	// maxGoogleResults bounds results from the Custom Search API.
	maxGoogleResults = 5
	// maxPageChars is the fetch_url truncation limit.
	maxPageChars = 2000
	// maxFetchBody caps how much of a page body is read.
	maxFetchBody = 1 << 20
)

// webSearchTool searches DuckDuckGo's HTML endpoint and scrapes results.
func webSearchTool(opts BuiltinOpts) Tool {
	return Tool{
		Name:        "web_search",
		Description: "Search the web and return result titles and URLs, one per line.",
		Params: []Param{
			{Name: "query", Type: "string", Description: "The search query to look up.", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query := stringArg(args, "query")
			endpoint := fmt.Sprintf("%s/html/?q=%s", opts.SearchBaseURL, url.QueryEscape(query))
			body, err := fetchBody(ctx, opts.HTTPClient, endpoint)
			if err != nil {
				return "", fmt.Errorf("web search: %w", err)
			}
			results := scrapeSearchResults(body, maxSearchResults)
			if len(results) == 0 {
				return "No results found.", nil
			}
			return strings.Join(results, "\n"), nil
		},
	}
}

// scrapeSearchResults pulls "title: href" lines out of DuckDuckGo's HTML,
// matching anchors carrying the result__url class.
func scrapeSearchResults(body []byte, limit int) []string {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}
	var results []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			var href, class string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "href":
					href = attr.Val
				case "class":
					class = attr.Val
				}
			}
			if href != "" && strings.Contains(class, "result__url") {
				title := strings.TrimSpace(nodeText(n))
				results = append(results, fmt.Sprintf("%s: %s", title, href))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// nodeText concatenates the text content beneath a node.
func nodeText(n *html.Node) string {
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
	return b.String()
}

// googleSearchTool queries the Google Custom Search JSON API. Without
// configured credentials it reports what is missing instead of failing the
// turn.
func googleSearchTool(opts BuiltinOpts) Tool {
	return Tool{
		Name:        "google_search",
		Description: "Search Google and return result titles, URLs and snippets.",
		Params: []Param{
			{Name: "query", Type: "string", Description: "The search query to look up on Google.", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if opts.GoogleAPIKey == "" || opts.GoogleCX == "" {
				return "Google search is not configured (missing google.api_key or google.cx).", nil
			}
			query := stringArg(args, "query")
			endpoint := fmt.Sprintf("%s/customsearch/v1?key=%s&cx=%s&q=%s&num=%d",
				opts.GoogleBaseURL, url.QueryEscape(opts.GoogleAPIKey),
				url.QueryEscape(opts.GoogleCX), url.QueryEscape(query), maxGoogleResults)
			body, err := fetchBody(ctx, opts.HTTPClient, endpoint)
			if err != nil {
				return "", fmt.Errorf("google search: %w", err)
			}

			var data struct {
				Items []struct {
					Title   string `json:"title"`
					Link    string `json:"link"`
					Snippet string `json:"snippet"`
				} `json:"items"`
			}
			if err := json.Unmarshal(body, &data); err != nil {
				return "", fmt.Errorf("google search: decode: %w", err)
			}
			if len(data.Items) == 0 {
				return "No results found.", nil
			}
			var lines []string
			for _, item := range data.Items {
				line := fmt.Sprintf("%s: %s", item.Title, item.Link)
				if item.Snippet != "" {
					line += " - " + item.Snippet
				}
				lines = append(lines, line)
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

// fetchURLTool downloads a web page and returns its visible text.
func fetchURLTool(opts BuiltinOpts) Tool {
	return Tool{
		Name:        "fetch_url",
		Description: "Fetch a web page and return its text content.",
		Params: []Param{
			{Name: "url", Type: "string", Description: "The URL of the web page to fetch.", Required: true},
			{Name: "unlimit_web_content", Type: "boolean", Description: "Return the entire page text instead of truncating to 2000 characters.", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			target := stringArg(args, "url")
			body, err := fetchBody(ctx, opts.HTTPClient, target)
			if err != nil {
				return "", fmt.Errorf("fetch %s: %w", target, err)
			}
			text, err := extract.HTMLText(body)
			if err != nil {
				return "", fmt.Errorf("fetch %s: %w", target, err)
			}
			if runes := []rune(text); !boolArg(args, "unlimit_web_content") && len(runes) > maxPageChars {
				text = string(runes[:maxPageChars]) + "... [Content truncated]"
			}
			return text, nil
		},
	}
}

// fetchBody GETs a URL with a browser user agent and returns up to
// maxFetchBody bytes of the response.
func fetchBody(ctx context.Context, client *http.Client, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
}
