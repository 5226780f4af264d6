// Package app wires the tabtweak web service together and manages its
// lifecycle.
//
// # Initialization Flow
//
//  1. Load configuration from defaults, config.yaml and TWEAK_* variables
//  2. Resolve and create the data directories
//  3. Initialize logging and OpenTelemetry
//  4. Create the websocket hub, data, operation and health services
//  5. Build the chi router and the HTTP server
//
// # Usage
//
//	app, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until SIGINT or SIGTERM, then drains the job queue, stops the
// hub, releases the table cache and flushes telemetry.
package app
