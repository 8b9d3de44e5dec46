package oauth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/providerapi"
)

// Endpoints de Atlassian OAuth 2.0 (3LO).
const (
	JiraAuthURL  = "https://auth.atlassian.com/authorize"
	JiraTokenURL = "https://auth.atlassian.com/oauth/token"
	jiraAudience = "api.atlassian.com"
)

func newJira(opts Options, hc *http.Client) *provider {
	ep := oauth2.Endpoint{AuthURL: JiraAuthURL, TokenURL: JiraTokenURL, AuthStyle: oauth2.AuthStyleInParams}
	if opts.AuthURL != "" {
		ep.AuthURL = opts.AuthURL
	}
	if opts.TokenURL != "" {
		ep.TokenURL = opts.TokenURL
	}

	api := providerapi.NewJira(opts.APIBaseURL, hc)
	return &provider{
		kind: types.ProviderJira,
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       opts.Scopes,
			Endpoint:     ep,
		},
		authParams: []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("audience", jiraAudience),
			oauth2.SetAuthURLParam("prompt", "consent"),
		},
		profile: func(ctx context.Context, accessToken string) (repository.Profile, error) {
			return jiraProfile(ctx, api, accessToken)
		},
	}
}

// jiraProfile lee /me y toma el primer sitio accesible como cloud id por defecto.
func jiraProfile(ctx context.Context, api *providerapi.Jira, accessToken string) (repository.Profile, error) {
	me, err := api.Me(ctx, accessToken)
	if err != nil {
		return repository.Profile{}, err
	}
	p := repository.Profile{
		AccountID:   me.AccountID,
		Login:       me.Nickname,
		DisplayName: me.Name,
		Email:       me.Email,
		AvatarURL:   me.Picture,
	}
	res, err := api.AccessibleResources(ctx, accessToken)
	if err != nil {
		logger.From(ctx).Warn("jira accessible resources unavailable", logger.Err(err))
		return p, nil
	}
	if len(res) > 0 {
		p.CloudID = res[0].ID
		p.SiteURL = res[0].URL
		p.ProfileURL = res[0].URL + "/jira/people/" + me.AccountID
	}
	return p, nil
}
