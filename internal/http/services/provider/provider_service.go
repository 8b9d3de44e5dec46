// Package provider expone las lecturas de GitHub y Jira del usuario autenticado.
// Cada llamada pasa primero por el refresh guard.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/guard"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/providerapi"
	"github.com/dropDatabas3/devpulse/internal/validation"
)

// DefaultJQL es la búsqueda de /api/jira/issues sin parámetros.
const DefaultJQL = "assignee=currentUser() ORDER BY updated DESC"

// TokenSource es lo que el service necesita del guard.
type TokenSource interface {
	Acquire(ctx context.Context, uid string, kind types.ProviderKind) (*guard.Token, error)
}

type Service interface {
	GitHubUser(ctx context.Context, uid string) (*providerapi.GitHubUser, error)
	GitHubRepos(ctx context.Context, uid string, page int) ([]providerapi.GitHubRepo, error)
	GitHubIssues(ctx context.Context, uid, owner, repo, state string) ([]providerapi.GitHubIssue, error)

	JiraUser(ctx context.Context, uid string) (*providerapi.JiraMe, error)
	JiraProjects(ctx context.Context, uid string) ([]providerapi.JiraProject, error)
	JiraIssues(ctx context.Context, uid, project, jql string) ([]providerapi.JiraIssue, error)
	JiraUserStories(ctx context.Context, uid, project string) ([]providerapi.JiraIssue, error)
}

type service struct {
	tokens TokenSource
	gh     *providerapi.GitHub
	jira   *providerapi.Jira
}

func NewService(ts TokenSource, gh *providerapi.GitHub, jira *providerapi.Jira) Service {
	return &service{tokens: ts, gh: gh, jira: jira}
}

func (s *service) GitHubUser(ctx context.Context, uid string) (*providerapi.GitHubUser, error) {
	tok, err := s.tokens.Acquire(ctx, uid, types.ProviderGitHub)
	if err != nil {
		return nil, err
	}
	return s.gh.User(ctx, tok.AccessToken)
}

func (s *service) GitHubRepos(ctx context.Context, uid string, page int) ([]providerapi.GitHubRepo, error) {
	tok, err := s.tokens.Acquire(ctx, uid, types.ProviderGitHub)
	if err != nil {
		return nil, err
	}
	return s.gh.Repos(ctx, tok.AccessToken, page)
}

// GitHubIssues lista issues (sin PRs) de owner/repo.
func (s *service) GitHubIssues(ctx context.Context, uid, owner, repo, state string) ([]providerapi.GitHubIssue, error) {
	if !validation.GitHubName(owner) || !validation.GitHubName(repo) {
		return nil, fmt.Errorf("%w: owner and repo are required", repository.ErrInvalidInput)
	}
	switch state {
	case "", "open", "closed", "all":
	default:
		return nil, fmt.Errorf("%w: state must be open, closed or all", repository.ErrInvalidInput)
	}
	tok, err := s.tokens.Acquire(ctx, uid, types.ProviderGitHub)
	if err != nil {
		return nil, err
	}
	all, err := s.gh.Issues(ctx, tok.AccessToken, owner, repo, state)
	if err != nil {
		return nil, err
	}
	issues := all[:0]
	for _, is := range all {
		if is.PullRequest == nil {
			issues = append(issues, is)
		}
	}
	return issues, nil
}

func (s *service) JiraUser(ctx context.Context, uid string) (*providerapi.JiraMe, error) {
	tok, err := s.tokens.Acquire(ctx, uid, types.ProviderJira)
	if err != nil {
		return nil, err
	}
	return s.jira.Me(ctx, tok.AccessToken)
}

func (s *service) JiraProjects(ctx context.Context, uid string) ([]providerapi.JiraProject, error) {
	tok, cloudID, err := s.jiraSite(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.jira.Projects(ctx, tok, cloudID)
}

// JiraIssues ejecuta jql (o DefaultJQL) opcionalmente acotado a project.
func (s *service) JiraIssues(ctx context.Context, uid, project, jql string) ([]providerapi.JiraIssue, error) {
	if strings.TrimSpace(jql) == "" {
		jql = DefaultJQL
	}
	if project != "" {
		if !validation.ProjectKey(project) {
			return nil, fmt.Errorf("%w: invalid project key", repository.ErrInvalidInput)
		}
		jql = "project = " + project + " AND " + jql
	}
	return s.search(ctx, uid, jql)
}

// JiraUserStories devuelve las historias de usuario, más recientes primero.
func (s *service) JiraUserStories(ctx context.Context, uid, project string) ([]providerapi.JiraIssue, error) {
	jql := "issuetype = Story"
	if project != "" {
		if !validation.ProjectKey(project) {
			return nil, fmt.Errorf("%w: invalid project key", repository.ErrInvalidInput)
		}
		jql = "project = " + project + " AND " + jql
	}
	return s.search(ctx, uid, jql+" ORDER BY updated DESC")
}

func (s *service) search(ctx context.Context, uid, jql string) ([]providerapi.JiraIssue, error) {
	tok, cloudID, err := s.jiraSite(ctx, uid)
	if err != nil {
		return nil, err
	}
	res, err := s.jira.Search(ctx, tok, cloudID, jql, 50)
	if err != nil {
		return nil, err
	}
	return res.Issues, nil
}

// jiraSite devuelve el access token y el cloud id del sitio. Conexiones viejas
// sin cloud id lo resuelven con accessible-resources.
func (s *service) jiraSite(ctx context.Context, uid string) (string, string, error) {
	tok, err := s.tokens.Acquire(ctx, uid, types.ProviderJira)
	if err != nil {
		return "", "", err
	}
	if id := tok.Connection.Profile.CloudID; id != "" {
		return tok.AccessToken, id, nil
	}
	res, err := s.jira.AccessibleResources(ctx, tok.AccessToken)
	if err != nil {
		return "", "", err
	}
	if len(res) == 0 {
		logger.From(ctx).Warn("jira token has no accessible sites")
		return "", "", fmt.Errorf("%w: no accessible jira site", providerapi.ErrNotFound)
	}
	return tok.AccessToken, res[0].ID, nil
}
