package cli

import (
	"github.com/AmmannChristian/go-oauthhttp/introspection"
	"github.com/spf13/cobra"
)

type introspectOptions struct {
	clientFlags
	url          string
	issuer       string
	audience     string
	clientID     string
	clientSecret string
	raw          bool
}

func newIntrospectCommand(root *rootOptions) *cobra.Command {
	o := &introspectOptions{}

	cmd := &cobra.Command{
		Use:   "introspect <token>",
		Short: "Validate an opaque token with RFC 7662 introspection",
		Long: `Send the token to the introspection endpoint and print its claims. The
command fails when the token is inactive, expired, or issued for another
issuer or audience. --raw prints the endpoint response without checks.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, root, args[0])
		},
	}

	o.clientFlags.register(cmd.Flags())
	fs := cmd.Flags()
	fs.StringVar(&o.url, "url", "", "Introspection endpoint URL")
	fs.StringVar(&o.issuer, "issuer", "", "Expected token issuer")
	fs.StringVar(&o.audience, "audience", "", "Expected token audience")
	fs.StringVar(&o.clientID, "client-id", "", "Client ID for the introspection endpoint")
	fs.StringVar(&o.clientSecret, "client-secret", "", "Client secret for the introspection endpoint")
	fs.BoolVar(&o.raw, "raw", false, "Print the raw introspection response")

	return cmd
}

func (o *introspectOptions) run(cmd *cobra.Command, root *rootOptions, token string) error {
	ic := root.cfg.Introspection
	fs := cmd.Flags()
	if fs.Changed("url") {
		ic.URL = o.url
	}
	if fs.Changed("issuer") {
		ic.Issuer = o.issuer
	}
	if fs.Changed("audience") {
		ic.Audience = o.audience
	}
	if fs.Changed("client-id") {
		ic.ClientID = o.clientID
	}
	if fs.Changed("client-secret") {
		ic.ClientSecret = o.clientSecret
	}

	executor, err := root.newClient(cmd, &o.clientFlags, nil)
	if err != nil {
		return err
	}

	v, err := introspection.New(ic.URL, ic.Issuer, ic.Audience, ic.ClientID, ic.ClientSecret,
		introspection.WithExecutor(executor),
		introspection.WithLogger(&root.logger),
	)
	if err != nil {
		return configError(err)
	}

	if o.raw {
		resp, err := v.Introspect(cmd.Context(), token)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), resp)
	}

	claims, err := v.ValidateToken(cmd.Context(), token)
	if err != nil {
		return err
	}

	return printClaims(cmd.OutOrStdout(), "token is active", claims, root.jsonOutput)
}
