// Package service implements the CLI's API-key, usage and price features on
// top of an authenticated session.
//
// Every service reads the session through SessionSource and issues calls
// with the client bound to the session's current token. Results that
// arrive after the token changed are not written back to local state.
package service
