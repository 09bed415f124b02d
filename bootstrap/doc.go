// Package bootstrap wires reqtrace together: configuration, logging, the
// upstream backend, the external table loader, the report service and the
// API server.
//
// Usage:
//
//	app, err := bootstrap.NewApp("reqtrace.yaml", bootstrap.Overrides{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Shutdown()
//
//	app.Start()
//	if err := app.WaitForShutdown(ctx); err != nil {
//	    log.Fatal(err)
//	}
package bootstrap
