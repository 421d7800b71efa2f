package main

import (
	"log/slog"
	"os"

	"github.com/docgen/docgen-sub000/internal/app"
)

func main() {
	engine := app.New()

	if err := engine.Run(); err != nil {
		slog.Error("failed to run engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
