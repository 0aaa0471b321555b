package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/usagewatch/internal/config"
	"github.com/janekbaraniewski/usagewatch/internal/tui"
)

func main() {
	if os.Getenv("USAGEWATCH_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	root := cobra.Command{
		Use:   "usagewatch",
		Short: "usagewatch monitors your vendor plan consumption from the terminal.",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			app.Start()
			return tui.Run(app.Engine, app.Poller, app.Store)
		},
	}

	root.AddCommand(
		newRunCommand(cfg),
		newStatusCommand(cfg),
		newRefreshCommand(cfg),
		newSignInCommand(cfg),
		newSignOutCommand(cfg),
		newVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
