package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/httpclient"
	"github.com/AmmannChristian/go-oauthhttp/internal/validator"
	"github.com/fatih/color"
	"golang.org/x/oauth2"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printClaims(w io.Writer, headline string, c *validator.TokenClaims, asJSON bool) error {
	if asJSON {
		doc := map[string]any{
			"sub":    c.Subject,
			"iss":    c.Issuer,
			"aud":    c.Audience,
			"scopes": c.Scopes,
		}
		if c.Email != "" {
			doc["email"] = c.Email
		}
		if !c.Expiry.IsZero() {
			doc["exp"] = c.Expiry.UTC().Format(time.RFC3339)
		}
		if !c.IssuedAt.IsZero() {
			doc["iat"] = c.IssuedAt.UTC().Format(time.RFC3339)
		}
		return writeJSON(w, doc)
	}

	label := color.New(color.FgCyan)
	if _, err := color.New(color.FgGreen, color.Bold).Fprintln(w, headline); err != nil {
		return err
	}

	rows := [][2]string{
		{"subject", c.Subject},
		{"issuer", c.Issuer},
		{"audience", strings.Join(c.Audience, ", ")},
		{"scopes", strings.Join(c.Scopes, " ")},
	}
	if c.Email != "" {
		rows = append(rows, [2]string{"email", c.Email})
	}
	if !c.Expiry.IsZero() {
		rows = append(rows, [2]string{"expires", c.Expiry.UTC().Format(time.RFC3339)})
	}
	if !c.IssuedAt.IsZero() {
		rows = append(rows, [2]string{"issued", c.IssuedAt.UTC().Format(time.RFC3339)})
	}

	for _, row := range rows {
		label.Fprintf(w, "  %-9s", row[0]+":")
		fmt.Fprintf(w, " %s\n", row[1])
	}
	return nil
}

func printError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)

	var tre *httpclient.TokenResponseError
	if errors.As(err, &tre) {
		if tre.StatusCode != 0 {
			red.Fprintf(w, "error (status %d): ", tre.StatusCode)
		} else {
			red.Fprint(w, "error: ")
		}
		fmt.Fprintln(w, err)
		return
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		red.Fprintf(w, "error [%s]: ", re.ErrorCode)
		fmt.Fprintln(w, err)
		return
	}

	red.Fprint(w, "error: ")
	fmt.Fprintln(w, err)
}
