// Package validator holds the claim types and helpers shared by the
// introspection and jwks packages.
package validator
