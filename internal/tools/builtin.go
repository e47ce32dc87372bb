package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// BuiltinOpts configures the builtin tool set. Base URL fields exist for
// tests; empty values select the real services.
type BuiltinOpts struct {
	HTTPClient     *http.Client
	GoogleAPIKey   string
	GoogleCX       string
	GitHubToken    string
	WeatherBaseURL string
	SearchBaseURL  string
	GoogleBaseURL  string
	GitHubBaseURL  string
	Now            func() time.Time
}

// Builtins returns the full builtin tool set: date/time, arithmetic,
// weather, web search, page fetch, and repository lookup.
func Builtins(opts BuiltinOpts) []Tool {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.WeatherBaseURL == "" {
		opts.WeatherBaseURL = "https://wttr.in"
	}
	if opts.SearchBaseURL == "" {
		opts.SearchBaseURL = "https://duckduckgo.com"
	}
	if opts.GoogleBaseURL == "" {
		opts.GoogleBaseURL = "https://www.googleapis.com"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return []Tool{
		currentDateTool(opts.Now),
		localTimeTool(opts.Now),
		doMathTool(),
		weatherTool(opts),
		webSearchTool(opts),
		googleSearchTool(opts),
		fetchURLTool(opts),
		githubRepoTool(opts),
	}
}

// currentDateTool reports the current date.
func currentDateTool(now func() time.Time) Tool {
	return Tool{
		Name:        "current_date",
		Description: "Get the current date in YYYY-MM-DD format.",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return now().Format("2006-01-02"), nil
		},
	}
}

// localTimeTool reports the current local date and time.
func localTimeTool(now func() time.Time) Tool {
	return Tool{
		Name:        "local_time",
		Description: "Get the current local date and time in YYYY-MM-DD HH:MM:SS format.",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return now().Format("2006-01-02 15:04:05"), nil
		},
	}
}

// doMathTool performs basic integer arithmetic.
func doMathTool() Tool {
	return Tool{
		Name:        "do_math",
		Description: "Do a basic math operation on two integers.",
		Params: []Param{
			{Name: "a", Type: "integer", Description: "The first number.", Required: true},
			{Name: "op", Type: "string", Description: "The operation to perform: +, -, * or /.", Required: true},
			{Name: "b", Type: "integer", Description: "The second number.", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			a, err := intArg(args, "a")
			if err != nil {
				return "", err
			}
			b, err := intArg(args, "b")
			if err != nil {
				return "", err
			}
			switch stringArg(args, "op") {
			case "+":
				return strconv.Itoa(a + b), nil
			case "-":
				return strconv.Itoa(a - b), nil
			case "*":
				return strconv.Itoa(a * b), nil
			case "/":
				if b == 0 {
					return "NaN", nil
				}
				return strconv.FormatFloat(float64(a)/float64(b), 'g', -1, 64), nil
			}
			return "NaN", nil
		},
	}
}

// weatherTool reports the current temperature for a city via wttr.in.
func weatherTool(opts BuiltinOpts) Tool {
	return Tool{
		Name:        "get_current_weather",
		Description: "Get the current weather for a city.",
		Params: []Param{
			{Name: "city", Type: "string", Description: "The city to get the weather for.", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			city := stringArg(args, "city")
			endpoint := fmt.Sprintf("%s/%s?format=j1", opts.WeatherBaseURL, url.PathEscape(city))
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return "", err
			}
			resp, err := opts.HTTPClient.Do(req)
			if err != nil {
				return "", fmt.Errorf("weather request: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("weather: unexpected status %d", resp.StatusCode)
			}

			var data struct {
				CurrentCondition []struct {
					TempC string `json:"temp_C"`
				} `json:"current_condition"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
				return "", fmt.Errorf("weather: decode: %w", err)
			}
			if len(data.CurrentCondition) == 0 {
				return "", fmt.Errorf("weather: no conditions for %q", city)
			}
			return fmt.Sprintf("The current temperature in %s is %s°C", city, data.CurrentCondition[0].TempC), nil
		},
	}
}
