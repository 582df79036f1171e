// Command marlinhub is the convenience binary for running Marlin
// standalone: it wires the engine, registers a single demo site that
// answers its own health, and serves it until SIGINT/SIGTERM.
//
// A host application embedding the engine package directly does not
// need this binary — it exists for local smoke-testing and as a
// worked example of the registration calls a real host would make.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/edwig/marlin/core/domain"
	"github.com/edwig/marlin/engine"
	"github.com/edwig/marlin/internal/site"
)

func main() {
	if err := run(); err != nil {
		slog.Error("marlinhub exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	e, err := engine.New(ctx)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	if err := registerHealthSite(e); err != nil {
		return fmt.Errorf("register health site: %w", err)
	}

	if err := e.Init(ctx); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	return e.Run(ctx)
}

// registerHealthSite mounts a minimal site at "/" so a freshly started
// marlinhub answers something before a host registers its own sites.
func registerHealthSite(e *engine.Engine) error {
	s := &domain.Site{
		Port:            8080,
		BasePath:        "/",
		Scheme:          "http",
		HTTPCompression: true,
	}
	s.SetHandler(domain.GET, func(req *domain.Request, resp *domain.Response) {
		body, _ := json.Marshal(map[string]string{
			"name": "marlin",
			"time": time.Now().UTC().Format(time.RFC3339),
		})
		resp.SetHeader("Content-Type", "application/json")
		resp.Answer(http.StatusOK, body)
	})
	return e.Sites().RegisterWithPrefix(site.PrefixStrong, s)
}
