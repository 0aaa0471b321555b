package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/usagewatch/internal/config"
	"github.com/janekbaraniewski/usagewatch/internal/poller"
	"github.com/janekbaraniewski/usagewatch/internal/tui"
	"github.com/janekbaraniewski/usagewatch/internal/version"
)

func newRunCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll usage in the background without the dashboard (for service managers).",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			app.Start()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			return nil
		},
	}
}

func newStatusCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Fetch once and print the current usage status.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			app.Engine.Refresh(cmd.Context(), poller.SourceManual)
			state := app.Engine.State()

			if !state.Authenticated {
				fmt.Println("Not signed in. Run `usagewatch signin` first.")
				return nil
			}
			if state.Record == nil {
				if state.LastError != "" {
					return fmt.Errorf("fetch failed: %s", state.LastError)
				}
				fmt.Println("No usage data available yet.")
				return nil
			}

			rec := state.Record
			fmt.Println(tui.RenderUsageGauge(rec.Percent(), 40))
			if rec.UnitLimit > 0 {
				fmt.Printf("used:      %.0f / %.0f units\n", rec.ConsumedUnits, rec.UnitLimit)
			} else {
				fmt.Printf("used:      %.0f units (limit unknown)\n", rec.ConsumedUnits)
			}
			if state.RatePerHour != nil {
				fmt.Printf("rate:      %.1f units/h\n", *state.RatePerHour)
			}
			if state.ProjectedDays != nil {
				fmt.Printf("projected: %.1f days until exhaustion\n", *state.ProjectedDays)
			}
			if rec.PlanName != "" {
				fmt.Printf("plan:      %s\n", rec.PlanName)
			}
			if rec.RenewalDate != "" {
				fmt.Printf("renews:    %s\n", rec.RenewalDate)
			}
			return nil
		},
	}
}

func newRefreshCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force one usage fetch and print the raw numbers.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			app.Engine.Refresh(cmd.Context(), poller.SourceManual)
			state := app.Engine.State()
			if state.LastError != "" {
				return fmt.Errorf("fetch failed: %s", state.LastError)
			}
			if state.Record == nil {
				fmt.Println("no usable usage data")
				return nil
			}
			fmt.Printf("%.0f/%.0f\n", state.Record.ConsumedUnits, state.Record.UnitLimit)
			return nil
		},
	}
}

func newSignInCommand(cfg config.Config) *cobra.Command {
	var fromBrowser bool

	cmd := &cobra.Command{
		Use:   "signin [token]",
		Short: "Store the vendor session cookie (paste a token, a Cookie header, or a curl snippet).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if fromBrowser {
				fmt.Println("Looking for the session cookie in your browsers…")
				if err := app.SignIn.SignInFromBrowser(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("Signed in from browser session.")
				return nil
			}

			input := ""
			if len(args) == 1 {
				input = args[0]
			} else {
				fmt.Print("Paste your session cookie: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
				input = strings.TrimSpace(line)
			}

			if err := app.SignIn.SignInWithToken(input); err != nil {
				return err
			}
			fmt.Println("Signed in.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromBrowser, "from-browser", false,
		"import the session cookie from an installed browser instead of pasting it")
	return cmd
}

func newSignOutCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the stored session cookie.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			app.SignIn.SignOut(cmd.Context())
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.String())
		},
	}
}
