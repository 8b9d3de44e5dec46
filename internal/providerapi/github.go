package providerapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dropDatabas3/devpulse/internal/domain/types"
)

// DefaultGitHubAPI es la base de la REST API pública.
const DefaultGitHubAPI = "https://api.github.com"

// GitHubUser es el subconjunto de /user que usa la app.
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type gitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubRepo es el subconjunto de un repositorio.
type GitHubRepo struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	FullName   string    `json:"full_name"`
	Private    bool      `json:"private"`
	HTMLURL    string    `json:"html_url"`
	OpenIssues int       `json:"open_issues_count"`
	UpdatedAt  time.Time `json:"updated_at"`
	Owner      struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// GitHubIssue es el subconjunto de un issue. PullRequest != nil indica un PR.
type GitHubIssue struct {
	ID        int64     `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	Comments  int       `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user"`
	Labels []struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	} `json:"labels"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// GitHub es el cliente de la REST API v3.
type GitHub struct{ c *client }

func NewGitHub(baseURL string, hc *http.Client) *GitHub {
	if baseURL == "" {
		baseURL = DefaultGitHubAPI
	}
	return &GitHub{c: newClient(types.ProviderGitHub, baseURL, hc, map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	})}
}

// User devuelve el usuario autenticado. Falla con ErrInvalidResponse si faltan id/login.
func (g *GitHub) User(ctx context.Context, token string) (*GitHubUser, error) {
	var u GitHubUser
	if err := g.c.getJSON(ctx, "github.user", "/user", nil, token, &u); err != nil {
		return nil, err
	}
	if u.ID == 0 || u.Login == "" {
		return nil, fmt.Errorf("%w: github user without id/login", ErrInvalidResponse)
	}
	return &u, nil
}

// PrimaryEmail busca el email primario verificado (los usuarios con email privado no lo exponen en /user).
func (g *GitHub) PrimaryEmail(ctx context.Context, token string) (string, error) {
	var emails []gitHubEmail
	if err := g.c.getJSON(ctx, "github.emails", "/user/emails", nil, token, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

// Repos lista los repos accesibles por el usuario, más recientes primero.
func (g *GitHub) Repos(ctx context.Context, token string, page int) ([]GitHubRepo, error) {
	q := url.Values{"sort": {"updated"}, "per_page": {"50"}}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	var repos []GitHubRepo
	if err := g.c.getJSON(ctx, "github.repos", "/user/repos", q, token, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// Issues lista issues de owner/repo. state: open|closed|all (default open).
func (g *GitHub) Issues(ctx context.Context, token, owner, repo, state string) ([]GitHubIssue, error) {
	if state == "" {
		state = "open"
	}
	q := url.Values{"state": {state}, "per_page": {"50"}}
	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/issues"
	var issues []GitHubIssue
	if err := g.c.getJSON(ctx, "github.issues", path, q, token, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}
