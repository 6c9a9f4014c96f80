// Package identity logs users in through a SteemConnect style OAuth2 provider
// and resolves the chain username behind an access token.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/kkkkikiki/infestor/internal/config"
)

var ErrNoUsername = errors.New("identity provider returned no username")

// Provider wraps an oauth2 config and the provider's "me" endpoint
type Provider struct {
	oauth *oauth2.Config
	meURL string
}

// NewProvider builds a provider from configuration; redirectURL is the
// absolute callback URL registered with the provider.
func NewProvider(cfg *config.OAuthConfig, redirectURL string) *Provider {
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: redirectURL,
			Scopes:      strings.Fields(strings.ReplaceAll(cfg.Scope, ",", " ")),
		},
		meURL: cfg.MeURL,
	}
}

// AuthCodeURL is the provider URL the user is redirected to
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for the username it belongs to
func (p *Provider) Exchange(ctx context.Context, code string) (string, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	// SteemConnect returns the username next to the access token
	if username, ok := token.Extra("username").(string); ok && username != "" {
		return username, nil
	}
	return p.Me(ctx, token)
}

// Me asks the provider who owns token
func (p *Provider) Me(ctx context.Context, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.meURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("failed to fetch profile: http %d: %s", resp.StatusCode, body)
	}

	var me struct {
		User string `json:"user"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return "", fmt.Errorf("failed to decode profile: %w", err)
	}
	switch {
	case me.User != "":
		return me.User, nil
	case me.Name != "":
		return me.Name, nil
	}
	return "", ErrNoUsername
}
