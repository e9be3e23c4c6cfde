package oauth2client

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// ErrMissingAccessToken is returned when the token endpoint answered without an access_token.
var ErrMissingAccessToken = errors.New("oauth2: server response missing access_token")

// parseTokenResponse decodes a token endpoint body. The transport does not
// expose status codes, so OAuth error documents are recognised by their
// "error" member and returned as *oauth2.RetrieveError.
func parseTokenResponse(body string, now time.Time) (*oauth2.Token, error) {
	trimmed := strings.TrimSpace(body)

	if gjson.Valid(trimmed) && strings.HasPrefix(trimmed, "{") {
		return parseJSONToken(trimmed, now)
	}

	// Some providers still answer application/x-www-form-urlencoded.
	values, err := url.ParseQuery(trimmed)
	if err != nil || (values.Get("access_token") == "" && values.Get("error") == "") {
		return nil, &oauth2.RetrieveError{
			Body:             []byte(body),
			ErrorCode:        "invalid_response",
			ErrorDescription: "token endpoint returned an unparseable body",
		}
	}
	return parseFormToken(values, body, now)
}

func parseJSONToken(body string, now time.Time) (*oauth2.Token, error) {
	result := gjson.Parse(body)

	if code := result.Get("error"); code.Exists() && code.String() != "" {
		return nil, &oauth2.RetrieveError{
			Body:             []byte(body),
			ErrorCode:        code.String(),
			ErrorDescription: result.Get("error_description").String(),
			ErrorURI:         result.Get("error_uri").String(),
		}
	}

	accessToken := result.Get("access_token").String()
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    result.Get("token_type").String(),
		RefreshToken: result.Get("refresh_token").String(),
	}

	// gjson accepts both numeric and quoted expires_in.
	token.Expiry = expiry(result.Get("expires_in").Int(), accessToken, now)

	if raw, ok := result.Value().(map[string]interface{}); ok {
		token = token.WithExtra(raw)
	}

	return token, nil
}

func parseFormToken(values url.Values, body string, now time.Time) (*oauth2.Token, error) {
	if code := values.Get("error"); code != "" {
		return nil, &oauth2.RetrieveError{
			Body:             []byte(body),
			ErrorCode:        code,
			ErrorDescription: values.Get("error_description"),
			ErrorURI:         values.Get("error_uri"),
		}
	}

	accessToken := values.Get("access_token")
	expiresIn, _ := strconv.ParseInt(values.Get("expires_in"), 10, 64)

	token := &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    values.Get("token_type"),
		RefreshToken: values.Get("refresh_token"),
		Expiry:       expiry(expiresIn, accessToken, now),
	}

	return token.WithExtra(values), nil
}

// expiry prefers expires_in and falls back to the exp claim when the access
// token is a JWT. The signature is not checked; the value only drives refresh.
func expiry(expiresIn int64, accessToken string, now time.Time) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
