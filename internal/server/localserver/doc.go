// Package localserver provides the local administration socket.
//
// The server listens on a Unix domain socket that only the service user
// can open and speaks a line protocol: one command per line, answered by
// zero or more output lines and a final "OK" or "ERR <message>" line.
//
//	$ echo status | nc -U /run/metalgate/admin.sock
//	version 1.2.0
//	uptime 3h12m5s
//	OK
//
// Commands are registered by the caller; "help" lists them.
package localserver
