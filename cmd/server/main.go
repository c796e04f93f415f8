// Command server is the single deployable binary: it wires up the app
// once and, depending on RUN_SERVER/RUN_WORKER, serves the HTTP surface,
// runs the per-platform workers and daily-sync scheduler, or both (spec
// §9 "one binary, env-toggled roles", matching the teacher's cmd/main.go
// shape).
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/scanflow/platform/internal/app"
)

func envTrue(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	runServer := envTrue("RUN_SERVER", true)
	runWorker := envTrue("RUN_WORKER", true)

	if runWorker {
		a.Start()
	}

	if runServer {
		a.Log.Info("http server listening", "addr", a.Cfg.HTTPAddr)
		if err := a.Serve(); err != nil {
			a.Log.Warn("http server stopped", "error", err)
		}
		return
	}

	// Worker/scheduler-only process: keep the binary alive so the
	// goroutines Start launched keep running.
	select {}
}
