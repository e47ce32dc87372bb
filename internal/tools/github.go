package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// githubRepoTool looks up a GitHub repository's metadata. An optional token
// raises the rate limit and reaches private repositories.
func githubRepoTool(opts BuiltinOpts) Tool {
	return Tool{
		Name:        "github_repo",
		Description: "Look up a GitHub repository and return its description, language and star count.",
		Params: []Param{
			{Name: "repo", Type: "string", Description: "The repository in owner/name form, e.g. golang/go.", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			owner, name, err := splitRepo(stringArg(args, "repo"))
			if err != nil {
				return "", err
			}

			client, err := newGitHubClient(ctx, opts)
			if err != nil {
				return "", err
			}
			repo, _, err := client.Repositories.Get(ctx, owner, name)
			if err != nil {
				return "", fmt.Errorf("github lookup %s/%s: %w", owner, name, err)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%s: %s", repo.GetFullName(), repo.GetDescription())
			fmt.Fprintf(&b, "\nLanguage: %s | Stars: %d | Forks: %d",
				repo.GetLanguage(), repo.GetStargazersCount(), repo.GetForksCount())
			if repo.GetHomepage() != "" {
				fmt.Fprintf(&b, "\nHomepage: %s", repo.GetHomepage())
			}
			fmt.Fprintf(&b, "\nURL: %s", repo.GetHTMLURL())
			return b.String(), nil
		},
	}
}

// newGitHubClient builds the API client, authenticated when a token is
// configured and pointed at GitHubBaseURL when set (tests).
func newGitHubClient(ctx context.Context, opts BuiltinOpts) (*github.Client, error) {
	httpClient := opts.HTTPClient
	if opts.GitHubToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.GitHubToken})
		httpClient = oauth2.NewClient(ctx, src)
	}
	client := github.NewClient(httpClient)
	if opts.GitHubBaseURL != "" {
		base, err := url.Parse(strings.TrimRight(opts.GitHubBaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		client.BaseURL = base
	}
	return client, nil
}

// splitRepo parses "owner/name".
func splitRepo(full string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(full), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo must be owner/name, got %q", full)
	}
	return parts[0], parts[1], nil
}
