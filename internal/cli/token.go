package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type tokenOptions struct {
	clientFlags
	tokenURL     string
	clientID     string
	clientSecret string
	scopes       []string
	authStyle    string
}

func newTokenCommand(root *rootOptions) *cobra.Command {
	o := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain an access token with the client credentials grant",
		Long: `Request an access token from the token endpoint and print it. Values from
the oauth2 section of the config file are used unless overridden by flags.

Examples:
  oauthhttp token --config oauthhttp.yaml
  oauthhttp token --token-url https://auth.example.com/oauth/v2/token \
    --client-id svc --client-secret s3cret --scope openid --json`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, root)
		},
	}

	o.clientFlags.register(cmd.Flags())
	fs := cmd.Flags()
	fs.StringVar(&o.tokenURL, "token-url", "", "Token endpoint URL")
	fs.StringVar(&o.clientID, "client-id", "", "OAuth2 client ID")
	fs.StringVar(&o.clientSecret, "client-secret", "", "OAuth2 client secret")
	fs.StringSliceVar(&o.scopes, "scope", nil, "Requested scope (repeatable or comma-separated)")
	fs.StringVar(&o.authStyle, "auth-style", "", "Client authentication: header or params")

	return cmd
}

func (o *tokenOptions) run(cmd *cobra.Command, root *rootOptions) error {
	oauthCfg := &root.cfg.OAuth2
	fs := cmd.Flags()
	if fs.Changed("token-url") {
		oauthCfg.TokenURL = o.tokenURL
	}
	if fs.Changed("client-id") {
		oauthCfg.ClientID = o.clientID
	}
	if fs.Changed("client-secret") {
		oauthCfg.ClientSecret = o.clientSecret
	}
	if fs.Changed("scope") {
		oauthCfg.Scopes = o.scopes
	}
	if fs.Changed("auth-style") {
		oauthCfg.AuthStyle = o.authStyle
	}

	tm, err := root.tokenManager(cmd.Context(), cmd, &o.clientFlags)
	if err != nil {
		return err
	}

	if _, err := tm.GetTokenWithContext(cmd.Context()); err != nil {
		return err
	}
	token, err := tm.Token()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if root.jsonOutput {
		doc := map[string]any{
			"access_token": token.AccessToken,
			"token_type":   token.Type(),
		}
		if !token.Expiry.IsZero() {
			doc["expiry"] = token.Expiry.UTC().Format(time.RFC3339)
		}
		if scope, ok := token.Extra("scope").(string); ok && scope != "" {
			doc["scope"] = strings.Fields(scope)
		}
		return writeJSON(out, doc)
	}

	_, err = fmt.Fprintln(out, token.AccessToken)
	return err
}
