// Package config loads client, OAuth2 and validator settings from a YAML or
// TOML file and turns them into configured builders.
//
// The format is chosen by file extension: .yaml and .yml use YAML, .toml
// uses TOML. ${VAR} references are expanded from the environment before
// parsing so secrets can stay out of the file.
//
//	client:
//	  timeout: 10s
//	  max_redirects: 0
//	  user_agent: billing-service/1.4
//	  transport_options:
//	    proxy_url: http://proxy.internal:3128
//	oauth2:
//	  token_url: https://auth.example.com/oauth/v2/token
//	  client_id: billing
//	  client_secret: ${BILLING_SECRET}
//	  scopes: [openid, billing.read]
package config
