// Comando edge-sync: sella y envía los sobres del journal de una tienda EDGE
// y muestra el estado del journal. Se configura con las mismas variables que cmd/api.
package main

import (
	"context"
	"os"

	"github.com/jhoicas/pos-multitienda/pkg/config"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Node: "edge"})

	if err := newRootCommand(cfg, log).ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("edge-sync")
		os.Exit(1)
	}
}
