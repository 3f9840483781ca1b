package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"llm-gateway/internal/infrastructure/llm"
)

func init() {
	rootCmd.AddCommand(modelsCmd, checkProvidersCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := llm.NewRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tPROVIDER\tCONTEXT WINDOW")
		for _, m := range registry.Models() {
			fmt.Fprintf(w, "%s\t%s\t%d\n", m.ID, m.Provider, m.ContextWindow)
		}
		return w.Flush()
	},
}

var checkProvidersCmd = &cobra.Command{
	Use:   "check-providers",
	Short: "Run a health check against every configured provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := llm.NewRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		tracker := llm.NewStatusTracker(registry, cfg.Gateway.Status)
		tracker.CheckAll(cmd.Context())

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tCONFIGURED\tHEALTHY\tCHECKED\tERROR")
		unhealthy := 0
		for _, s := range tracker.Statuses() {
			checked := "-"
			if s.LastChecked != nil {
				checked = s.LastChecked.Format(time.RFC3339)
			}
			if s.Configured && !s.Available {
				unhealthy++
			}
			fmt.Fprintf(w, "%s\t%t\t%t\t%s\t%s\n", s.Provider, s.Configured, s.Available, checked, s.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if unhealthy > 0 {
			return fmt.Errorf("%d configured provider(s) unhealthy", unhealthy)
		}
		return nil
	},
}
