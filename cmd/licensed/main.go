package main

import (
	"log/slog"
	"os"

	"licensekit/internal/app"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		slog.Error("failed to initialize license daemon", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("license daemon error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
