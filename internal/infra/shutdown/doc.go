// Package shutdown coordinates graceful shutdown of metalgate-server.
//
// Hooks registered with OnShutdown run in reverse registration order once
// SIGINT or SIGTERM arrives or Trigger is called, sharing one deadline:
//
//	sd := shutdown.NewHandler(15*time.Second, log)
//	sd.OnShutdown("storage", store.Close)
//	sd.OnShutdown("http", srv.Shutdown)
//	err := sd.Wait()
package shutdown
