package oauth

import (
	"context"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/domain/types"
	"github.com/dropDatabas3/devpulse/internal/observability/logger"
	"github.com/dropDatabas3/devpulse/internal/providerapi"
)

func newGitHub(opts Options, hc *http.Client) *provider {
	ep := github.Endpoint
	if opts.AuthURL != "" {
		ep.AuthURL = opts.AuthURL
	}
	if opts.TokenURL != "" {
		ep.TokenURL = opts.TokenURL
	}
	ep.AuthStyle = oauth2.AuthStyleInParams

	api := providerapi.NewGitHub(opts.APIBaseURL, hc)
	return &provider{
		kind: types.ProviderGitHub,
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       opts.Scopes,
			Endpoint:     ep,
		},
		profile: func(ctx context.Context, accessToken string) (repository.Profile, error) {
			return gitHubProfile(ctx, api, accessToken)
		},
	}
}

// gitHubProfile lee /user y, si el email es privado, lo completa con /user/emails.
func gitHubProfile(ctx context.Context, api *providerapi.GitHub, accessToken string) (repository.Profile, error) {
	u, err := api.User(ctx, accessToken)
	if err != nil {
		return repository.Profile{}, err
	}
	p := repository.Profile{
		AccountID:   strconv.FormatInt(u.ID, 10),
		Login:       u.Login,
		DisplayName: u.Name,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
		ProfileURL:  u.HTMLURL,
	}
	if p.DisplayName == "" {
		p.DisplayName = u.Login
	}
	if p.Email == "" {
		email, err := api.PrimaryEmail(ctx, accessToken)
		if err != nil {
			// requiere scope user:email; el perfil sigue siendo válido sin email
			logger.From(ctx).Debug("github primary email unavailable", logger.Err(err))
		}
		p.Email = email
	}
	return p, nil
}
