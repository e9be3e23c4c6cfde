package cli

import (
	"github.com/AmmannChristian/go-oauthhttp/jwks"
	"github.com/spf13/cobra"
)

type verifyOptions struct {
	clientFlags
	jwksURL  string
	issuer   string
	audience string
}

func newVerifyCommand(root *rootOptions) *cobra.Command {
	o := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify <jwt>",
		Short: "Verify a JWT access token against a JWKS endpoint",
		Long: `Download the key set, verify the token signature and check its issuer,
audience and lifetime. RS256/384/512 and ES256/384/512 are accepted.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, root, args[0])
		},
	}

	o.clientFlags.register(cmd.Flags())
	fs := cmd.Flags()
	fs.StringVar(&o.jwksURL, "jwks-url", "", "JWKS endpoint URL")
	fs.StringVar(&o.issuer, "issuer", "", "Expected token issuer")
	fs.StringVar(&o.audience, "audience", "", "Expected token audience")

	return cmd
}

func (o *verifyOptions) run(cmd *cobra.Command, root *rootOptions, token string) error {
	jc := root.cfg.JWKS
	fs := cmd.Flags()
	if fs.Changed("jwks-url") {
		jc.URL = o.jwksURL
	}
	if fs.Changed("issuer") {
		jc.Issuer = o.issuer
	}
	if fs.Changed("audience") {
		jc.Audience = o.audience
	}

	executor, err := root.newClient(cmd, &o.clientFlags, nil)
	if err != nil {
		return err
	}

	v, err := jwks.New(jc.URL, jc.Issuer, jc.Audience,
		jwks.WithExecutor(executor),
		jwks.WithLogger(&root.logger),
		jwks.WithRefreshInterval(jc.Interval()),
	)
	if err != nil {
		return configError(err)
	}

	claims, err := v.ValidateToken(cmd.Context(), token)
	if err != nil {
		return err
	}

	return printClaims(cmd.OutOrStdout(), "token is valid", claims, root.jsonOutput)
}
