// Opaque built-in tools (spec.md §4.4: "the core imposes no further
// semantics"). Each is a thin HTTP call against a configurable third-party
// endpoint, shaped like modelclient/rerank/jina.go's request/response
// pattern but condensed since these tools have no algorithmic content the
// core depends on.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"net/url"

	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/weknora-chat/ragstream/internal/utils"
)

// httpGetTool is the shared shape of the read-only lookup tools
// (weather_query, geocode, ip_location, poi_search, route_planning): GET a
// templated URL, return the raw JSON body as the tool output.
type httpGetTool struct {
	BaseTool
	client      *http.Client
	urlTemplate string // "%s" placeholders filled positionally from the parsed args, in ArgOrder
	argOrder    []string
}

func newHTTPGetTool(base BaseTool, urlTemplate string, argOrder []string) *httpGetTool {
	return &httpGetTool{BaseTool: base, client: &http.Client{}, urlTemplate: urlTemplate, argOrder: argOrder}
}

func (t *httpGetTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var fields map[string]any
	if err := json.Unmarshal(args, &fields); err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to parse args: %v", err)}, nil
	}

	values := make([]any, len(t.argOrder))
	for i, name := range t.argOrder {
		v, ok := fields[name]
		if !ok {
			return &types.ToolResult{Success: false, Error: fmt.Sprintf("missing required argument %q", name)}, nil
		}
		values[i] = url.QueryEscape(fmt.Sprintf("%v", v))
	}
	reqURL := fmt.Sprintf(t.urlTemplate, values...)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("build request: %v", err)}, nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("read response: %v", err)}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("upstream returned %s", resp.Status)}, nil
	}
	return &types.ToolResult{Success: true, Output: string(body)}, nil
}

// WeatherQueryInput, GeocodeInput, IPLocationInput, POISearchInput, and
// RoutePlanningInput exist only to drive utils.GenerateSchema; the tools
// themselves forward the raw fields to the upstream service untouched.

type WeatherQueryInput struct {
	Location string `json:"location" jsonschema:"City or place name."`
}

type GeocodeInput struct {
	Address string `json:"address" jsonschema:"Free-form address to geocode."`
}

type IPLocationInput struct {
	IP string `json:"ip" jsonschema:"IPv4 or IPv6 address to locate."`
}

type POISearchInput struct {
	Query    string `json:"query" jsonschema:"Place or category to search for."`
	Location string `json:"location" jsonschema:"Center point as 'lat,lng'."`
}

type RoutePlanningInput struct {
	Origin      string `json:"origin" jsonschema:"Origin as 'lat,lng' or address."`
	Destination string `json:"destination" jsonschema:"Destination as 'lat,lng' or address."`
}

// NewWeatherQueryTool builds the weather_query tool against baseURL
// (an OpenWeatherMap-compatible current-conditions endpoint).
func NewWeatherQueryTool(baseURL string) Tool {
	return newHTTPGetTool(BaseTool{
		name:        ToolWeatherQuery,
		description: "Look up current weather conditions for a named location.",
		schema:      utils.GenerateSchema[WeatherQueryInput](),
	}, baseURL+"?q=%s", []string{"location"})
}

// NewGeocodeTool builds the geocode tool against a Nominatim-compatible
// forward-geocoding endpoint.
func NewGeocodeTool(baseURL string) Tool {
	return newHTTPGetTool(BaseTool{
		name:        ToolGeocode,
		description: "Convert a free-form address into latitude/longitude coordinates.",
		schema:      utils.GenerateSchema[GeocodeInput](),
	}, baseURL+"?q=%s&format=json", []string{"address"})
}

// NewIPLocationTool builds the ip_location tool against an ip-api.com-style
// endpoint.
func NewIPLocationTool(baseURL string) Tool {
	return newHTTPGetTool(BaseTool{
		name:        ToolIPLocation,
		description: "Resolve the approximate geographic location of an IP address.",
		schema:      utils.GenerateSchema[IPLocationInput](),
	}, baseURL+"/%s", []string{"ip"})
}

// NewPOISearchTool builds the poi_search tool against an Amap/Google
// Places-style nearby-search endpoint.
func NewPOISearchTool(baseURL string) Tool {
	return newHTTPGetTool(BaseTool{
		name:        ToolPOISearch,
		description: "Search for points of interest near a location.",
		schema:      utils.GenerateSchema[POISearchInput](),
	}, baseURL+"?keywords=%s&location=%s", []string{"query", "location"})
}

// NewRoutePlanningTool builds the route_planning tool against a
// directions-style endpoint.
func NewRoutePlanningTool(baseURL string) Tool {
	return newHTTPGetTool(BaseTool{
		name:        ToolRoutePlanning,
		description: "Compute a route between two points.",
		schema:      utils.GenerateSchema[RoutePlanningInput](),
	}, baseURL+"?origin=%s&destination=%s", []string{"origin", "destination"})
}

// EmailSenderInput is the email_sender tool's argument shape.
type EmailSenderInput struct {
	To      string `json:"to" jsonschema:"Recipient email address."`
	Subject string `json:"subject" jsonschema:"Email subject line."`
	Body    string `json:"body" jsonschema:"Plain-text email body."`
}

// EmailSenderTool sends a plain-text email via SMTP.
type EmailSenderTool struct {
	BaseTool
	smtpAddr string
	from     string
	auth     smtp.Auth
}

func NewEmailSenderTool(smtpAddr, from, username, password string) *EmailSenderTool {
	return &EmailSenderTool{
		BaseTool: BaseTool{
			name:        ToolEmailSender,
			description: "Send a plain-text email.",
			schema:      utils.GenerateSchema[EmailSenderInput](),
		},
		smtpAddr: smtpAddr,
		from:     from,
		auth:     smtp.PlainAuth("", username, password, hostOf(smtpAddr)),
	}
}

func (t *EmailSenderTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var input EmailSenderInput
	if err := json.Unmarshal(args, &input); err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to parse args: %v", err)}, nil
	}
	if input.To == "" || input.Subject == "" {
		return &types.ToolResult{Success: false, Error: "'to' and 'subject' are required"}, nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", t.from, input.To, input.Subject, input.Body)
	if err := smtp.SendMail(t.smtpAddr, t.auth, t.from, []string{input.To}, []byte(msg)); err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("send failed: %v", err)}, nil
	}
	return &types.ToolResult{Success: true, Output: fmt.Sprintf("email sent to %s", input.To)}, nil
}

func hostOf(addr string) string {
	host, _, err := splitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func splitHostPort(addr string) (string, string, error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return addr, "", fmt.Errorf("no port in address %q", addr)
}
