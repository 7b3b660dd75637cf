package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/weknora-chat/ragstream/internal/logger"
	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/weknora-chat/ragstream/internal/utils"
	"github.com/PuerkitoBio/goquery"
)

var webSearchTool = BaseTool{
	name:        ToolWebSearch,
	description: "Search the public web and return the top result snippets. Opaque to the core beyond its name; results are not cited the way knowledge_search results are.",
	schema:      utils.GenerateSchema[WebSearchInput](),
}

type WebSearchInput struct {
	Query string `json:"query" jsonschema:"The search query."`
}

// SeenURLTracker deduplicates web_search results across calls within one
// session, grounded on application/service/web_search_state.go's
// Redis-backed seenURLs set.
type SeenURLTracker interface {
	Seen(ctx context.Context, sessionID, url string) bool
	MarkSeen(ctx context.Context, sessionID, url string)
}

// WebSearchTool scrapes a search engine's result page with goquery,
// grounded on SPEC_FULL.md §B's PuerkitoBio/goquery wiring.
type WebSearchTool struct {
	BaseTool
	client      *http.Client
	endpoint    string // result page URL template, "%s" replaced by the URL-encoded query
	sessionID   string
	seenTracker SeenURLTracker
}

func NewWebSearchTool(endpoint, sessionID string, seenTracker SeenURLTracker) *WebSearchTool {
	if endpoint == "" {
		endpoint = "https://html.duckduckgo.com/html/?q=%s"
	}
	return &WebSearchTool{BaseTool: webSearchTool, client: &http.Client{}, endpoint: endpoint, sessionID: sessionID, seenTracker: seenTracker}
}

func (t *WebSearchTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var input WebSearchInput
	if err := json.Unmarshal(args, &input); err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to parse args: %v", err)}, nil
	}
	if input.Query == "" {
		return &types.ToolResult{Success: false, Error: "missing 'query' parameter"}, nil
	}

	reqURL := fmt.Sprintf(t.endpoint, url.QueryEscape(input.Query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("build request: %v", err)}, nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ragstream/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("parse result page: %v", err)}, nil
	}

	var b strings.Builder
	count := 0
	doc.Find(".result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if count >= 5 {
			return false
		}
		title := strings.TrimSpace(s.Find(".result__title").Text())
		snippet := strings.TrimSpace(s.Find(".result__snippet").Text())
		link, _ := s.Find(".result__url").Attr("href")
		if title == "" {
			return true
		}
		if t.seenTracker != nil {
			if t.seenTracker.Seen(ctx, t.sessionID, link) {
				return true
			}
			t.seenTracker.MarkSeen(ctx, t.sessionID, link)
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", count+1, title, link, snippet)
		count++
		return true
	})

	if count == 0 {
		logger.Debugf(ctx, "web_search returned no new results for query %q", input.Query)
		return &types.ToolResult{Success: true, Output: "No new results found."}, nil
	}
	return &types.ToolResult{Success: true, Output: b.String(), Data: map[string]any{"result_count": count}}, nil
}
