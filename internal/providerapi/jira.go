package providerapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dropDatabas3/devpulse/internal/domain/types"
)

// DefaultJiraAPI es el gateway de Atlassian para apps OAuth 2.0 (3LO).
const DefaultJiraAPI = "https://api.atlassian.com"

// JiraMe es el perfil de /me.
type JiraMe struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Nickname  string `json:"nickname"`
	Email     string `json:"email"`
	Picture   string `json:"picture"`
}

// JiraResource es un sitio accesible por el token.
type JiraResource struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

// JiraProject es el subconjunto de un proyecto.
type JiraProject struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// JiraIssue es un issue con los campos que muestra el dashboard.
type JiraIssue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Updated string `json:"updated"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Priority *struct {
			Name string `json:"name"`
		} `json:"priority,omitempty"`
		Assignee *struct {
			AccountID   string `json:"accountId"`
			DisplayName string `json:"displayName"`
		} `json:"assignee,omitempty"`
		Project struct {
			Key  string `json:"key"`
			Name string `json:"name"`
		} `json:"project"`
	} `json:"fields"`
}

// JiraSearchResult es la página devuelta por /search/jql.
type JiraSearchResult struct {
	Issues        []JiraIssue `json:"issues"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
	IsLast        bool        `json:"isLast"`
}

// Jira es el cliente de la REST API v3 vía api.atlassian.com/ex/jira/{cloudId}.
type Jira struct{ c *client }

func NewJira(baseURL string, hc *http.Client) *Jira {
	if baseURL == "" {
		baseURL = DefaultJiraAPI
	}
	return &Jira{c: newClient(types.ProviderJira, baseURL, hc, nil)}
}

// Me devuelve el perfil Atlassian del token. Falla si falta account_id.
func (j *Jira) Me(ctx context.Context, token string) (*JiraMe, error) {
	var me JiraMe
	if err := j.c.getJSON(ctx, "jira.me", "/me", nil, token, &me); err != nil {
		return nil, err
	}
	if me.AccountID == "" {
		return nil, fmt.Errorf("%w: atlassian profile without account_id", ErrInvalidResponse)
	}
	return &me, nil
}

// AccessibleResources lista los sitios Jira autorizados por el usuario.
func (j *Jira) AccessibleResources(ctx context.Context, token string) ([]JiraResource, error) {
	var res []JiraResource
	if err := j.c.getJSON(ctx, "jira.resources", "/oauth/token/accessible-resources", nil, token, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Projects lista los proyectos visibles del sitio cloudID.
func (j *Jira) Projects(ctx context.Context, token, cloudID string) ([]JiraProject, error) {
	var page struct {
		Values []JiraProject `json:"values"`
	}
	q := url.Values{"maxResults": {"100"}, "orderBy": {"name"}}
	if err := j.c.getJSON(ctx, "jira.projects", j.sitePath(cloudID, "/rest/api/3/project/search"), q, token, &page); err != nil {
		return nil, err
	}
	return page.Values, nil
}

// Search ejecuta jql sobre el sitio cloudID.
func (j *Jira) Search(ctx context.Context, token, cloudID, jql string, maxResults int) (*JiraSearchResult, error) {
	if maxResults <= 0 {
		maxResults = 50
	}
	q := url.Values{
		"jql":        {jql},
		"maxResults": {strconv.Itoa(maxResults)},
		"fields":     {"summary,status,issuetype,priority,assignee,updated,project"},
	}
	var res JiraSearchResult
	if err := j.c.getJSON(ctx, "jira.search", j.sitePath(cloudID, "/rest/api/3/search/jql"), q, token, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (j *Jira) sitePath(cloudID, p string) string {
	return "/ex/jira/" + url.PathEscape(cloudID) + p
}
