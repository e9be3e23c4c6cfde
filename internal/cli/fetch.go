package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/httpclient"
	"github.com/spf13/cobra"
)

type fetchOptions struct {
	clientFlags
	method  string
	data    string
	form    []string
	headers []string
	auth    bool
}

func newFetchCommand(root *rootOptions) *cobra.Command {
	o := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Send one request and print the response body",
		Long: `Send one request through the HTTP client adapter and print the response
body. Non-2xx responses are printed like any other; only transport failures
are errors.

Examples:
  oauthhttp fetch https://api.example.com/me --auth
  oauthhttp fetch -X POST -F grant_type=client_credentials https://auth.example.com/token
  oauthhttp fetch -X PUT -d '{"name":"x"}' -H 'If-Match: "1"' https://api.example.com/items/7`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, root, args[0])
		},
	}

	o.clientFlags.register(cmd.Flags())
	fs := cmd.Flags()
	fs.StringVarP(&o.method, "method", "X", "GET", "HTTP method")
	fs.StringVarP(&o.data, "data", "d", "", "Raw request body, or @file to read it from a file")
	fs.StringArrayVarP(&o.form, "form", "F", nil, "Form field key=value (repeatable)")
	fs.StringArrayVarP(&o.headers, "header", "H", nil, "Extra header 'Name: value' (repeatable)")
	fs.BoolVar(&o.auth, "auth", false, "Attach a bearer token obtained with the oauth2 config section")

	return cmd
}

func (o *fetchOptions) run(cmd *cobra.Command, root *rootOptions, rawURL string) error {
	endpoint, err := httpclient.ParseEndpoint(rawURL)
	if err != nil {
		return &exitError{code: ExitUsageError, err: err}
	}

	body, err := o.body()
	if err != nil {
		return err
	}

	headers, err := parseHeaders(o.headers)
	if err != nil {
		return err
	}

	var ts httpclient.TokenSource
	if o.auth {
		tm, err := root.tokenManager(cmd.Context(), cmd, &o.clientFlags)
		if err != nil {
			return err
		}
		ts = tm
	}

	client, err := root.newClient(cmd, &o.clientFlags, ts)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := client.RetrieveResponse(cmd.Context(), endpoint, body, headers, o.method)
	root.logger.Debug().
		Str("method", strings.ToUpper(o.method)).
		Str("url", endpoint.String()).
		Dur("elapsed", time.Since(start)).
		Err(err).
		Msg("request finished")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if root.jsonOutput {
		return writeJSON(out, map[string]any{
			"method": strings.ToUpper(o.method),
			"url":    endpoint.String(),
			"body":   resp,
		})
	}

	if _, err := fmt.Fprint(out, resp); err != nil {
		return err
	}
	if resp != "" && !strings.HasSuffix(resp, "\n") {
		_, err = fmt.Fprintln(out)
	}
	return err
}

func (o *fetchOptions) body() (httpclient.Body, error) {
	if o.data != "" && len(o.form) > 0 {
		return httpclient.NoBody, usageError("--data and --form cannot be combined")
	}

	if len(o.form) > 0 {
		fields := make(map[string]string, len(o.form))
		for _, field := range o.form {
			key, value, ok := strings.Cut(field, "=")
			if !ok || key == "" {
				return httpclient.NoBody, usageError("invalid form field %q, want key=value", field)
			}
			fields[key] = value
		}
		return httpclient.FormBody(fields), nil
	}

	if strings.HasPrefix(o.data, "@") {
		payload, err := os.ReadFile(strings.TrimPrefix(o.data, "@"))
		if err != nil {
			return httpclient.NoBody, usageError("read request body: %w", err)
		}
		return httpclient.RawBytes(payload), nil
	}

	return httpclient.RawBody(o.data), nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, usageError("invalid header %q, want 'Name: value'", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &exitError{code: ExitUsageError, err: err}
		}
		return nil
	}
}
