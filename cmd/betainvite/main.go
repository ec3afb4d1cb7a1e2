package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/betainvite/cmd/betainvite/commands"
)

func main() {
	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}
