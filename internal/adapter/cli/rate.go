package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"savings-rate-service/internal/domain/model"
	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/pkg/utils"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Get the current rate (remote, cached or synthetic)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAcquirer(func(acq ports.RateAcquirer) error {
			return printSample(cmd.OutOrStdout(), acq.Fetch(cmd.Context()))
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Drop the cached rate and fetch again (quota still applies)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAcquirer(func(acq ports.RateAcquirer) error {
			return printSample(cmd.OutOrStdout(), acq.ForceRefresh(cmd.Context()))
		})
	},
}

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show remote requests left in the current window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAcquirer(func(acq ports.RateAcquirer) error {
			remaining := acq.RemainingQuota(cmd.Context())
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"remaining": remaining, "limit": acq.QuotaLimit()})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d/%d remote requests remaining\n", remaining, acq.QuotaLimit())
			return err
		})
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show cache and quota health without fetching",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAcquirer(func(acq ports.RateAcquirer) error {
			info := acq.Inspect(cmd.Context())
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), model.NewInspectionReport(info, acq.QuotaLimit()))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API requests remaining: %d/%d\n", info.RemainingQuota, acq.QuotaLimit())
			if !info.HasCache {
				_, err := fmt.Fprintln(out, "Cache status: empty")
				return err
			}
			fmt.Fprintln(out, "Cache status: active")
			fmt.Fprintf(out, "Cache age: %s\n", utils.FormatAge(*info.CacheAge))
			_, err := fmt.Fprintf(out, "Cache origin: %s\n", *info.CacheOrigin)
			return err
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the cached rate and the request ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAcquirer(func(acq ports.RateAcquirer) error {
			if err := acq.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear failed: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Cache and limits cleared")
			return err
		})
	},
}

func init() {
	RootCmd.AddCommand(fetchCmd, refreshCmd, quotaCmd, inspectCmd, clearCmd)
}

func printSample(w io.Writer, sample model.RateSample) error {
	if jsonOutput {
		return writeJSON(w, sample)
	}
	_, err := fmt.Fprintf(w, "1 USD = %.2f INR\nsource: %s (%s)\nupdated: %s (%s)\n",
		sample.Rate,
		sample.Source,
		sample.Source.Description(),
		utils.FormatTimestamp(sample.ObservedAt),
		utils.FormatAgo(time.Since(sample.ObservedAt)),
	)
	return err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
