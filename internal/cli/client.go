package cli

import (
	"context"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/httpclient"
	"github.com/AmmannChristian/go-oauthhttp/oauth2client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// clientFlags override the client section of the config file.
type clientFlags struct {
	timeout      time.Duration
	maxRedirects int
	userAgent    string
	forceSSL3    bool
	insecure     bool
	http2        bool
}

func (f *clientFlags) register(fs *pflag.FlagSet) {
	fs.DurationVar(&f.timeout, "timeout", httpclient.DefaultTimeout, "Total time allowed per request")
	fs.IntVar(&f.maxRedirects, "max-redirects", httpclient.DefaultMaxRedirects, "Redirects to follow; 0 disables following")
	fs.StringVar(&f.userAgent, "user-agent", httpclient.DefaultUserAgent, "User-Agent header value")
	fs.BoolVar(&f.forceSSL3, "force-ssl3", false, "Pin the legacy TLS protocol version")
	fs.BoolVarP(&f.insecure, "insecure", "k", false, "Skip TLS certificate verification")
	fs.BoolVar(&f.http2, "http2", false, "Negotiate HTTP/2 over TLS")
}

// newClient builds a client from the config file, then applies the flags the
// user set explicitly.
func (o *rootOptions) newClient(cmd *cobra.Command, f *clientFlags, ts httpclient.TokenSource) (*httpclient.Client, error) {
	b, err := o.cfg.Client.Builder()
	if err != nil {
		return nil, configError(err)
	}

	changed := func(name string) bool {
		flag := cmd.Flags().Lookup(name)
		return flag != nil && flag.Changed
	}

	if changed("timeout") {
		b.WithTimeout(f.timeout)
	}
	if changed("max-redirects") {
		b.WithMaxRedirects(f.maxRedirects)
	}
	if changed("user-agent") {
		b.WithUserAgent(f.userAgent)
	}
	if changed("force-ssl3") {
		b.WithForceSSL3(f.forceSSL3)
	}
	if f.insecure {
		b.WithInsecureSkipVerify()
	}
	if f.http2 {
		b.WithHTTP2()
	}
	if ts != nil {
		b.WithTokenSource(ts)
	}

	client, err := b.Build()
	if err != nil {
		return nil, configError(err)
	}

	cfg := client.Config()
	o.logger.Debug().
		Dur("timeout", cfg.Timeout).
		Int("max_redirects", cfg.MaxRedirects).
		Str("user_agent", cfg.UserAgent).
		Bool("force_ssl3", cfg.ForceSSL3).
		Msg("client configured")

	return client, nil
}

// tokenManager builds a token manager from the oauth2 config section.
func (o *rootOptions) tokenManager(ctx context.Context, cmd *cobra.Command, f *clientFlags) (*oauth2client.TokenManager, error) {
	cc, err := o.cfg.OAuth2.ClientCredentials()
	if err != nil {
		return nil, configError(err)
	}

	executor, err := o.newClient(cmd, f, nil)
	if err != nil {
		return nil, err
	}

	opts := []oauth2client.Option{
		oauth2client.WithExecutor(executor),
		oauth2client.WithLogger(&o.logger),
	}
	if leeway := o.cfg.OAuth2.Leeway(); leeway > 0 {
		opts = append(opts, oauth2client.WithExpiryLeeway(leeway))
	}

	return oauth2client.NewTokenManagerFromConfig(ctx, cc, opts...), nil
}
