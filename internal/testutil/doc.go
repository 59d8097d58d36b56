// Package testutil provides testing utilities and test fixtures for the
// authorization server. It includes helpers for creating test clients,
// signing keys, PKCE pairs, and assertions.
package testutil
