package main

import (
	"context"
	"os"

	"github.com/desertthunder/subcord/internal/shared"
)

func main() {
	if err := shared.LoadEnv(); err != nil {
		shared.NewLogger(nil).Warn("ignoring .env", "error", err)
	}

	runner := NewRunner(RunnerOpts{})
	defer runner.Close()

	if err := runner.app().Run(context.Background(), os.Args); err != nil {
		runner.logger.Error("application error", "error", err)
		runner.Close()
		os.Exit(1)
	}
}
