// Package connection talks to the metalgate API on behalf of the CLI.
//
//   - http.go: base URL handling, request encoding, status to error mapping
//   - client.go: Client, which attaches the session token and reacts to 401
//   - session.go: SessionManager, the login/resolve/logout state machine
//   - tokenstore.go: persistence of the session token between runs
//
// A Client is bound to one token. When the token changes the manager
// builds a new Client, so results of calls made with an old Client can be
// recognized through IsCurrent and dropped.
package connection
