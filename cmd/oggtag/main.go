package main

import (
	"log/slog"
	"os"

	"github.com/mattermost/oggtag/cmd/oggtag/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		slog.Error("oggtag failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
