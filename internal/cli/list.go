package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	filterFlag     string
	suspiciousOnly bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List current TCP connections",
	Long:  "Sample the TCP table once and print every connection with its owning process.",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&filterFlag, "filter", "", "Only show connections whose local or remote port contains this text")
	listCmd.Flags().BoolVar(&suspiciousOnly, "suspicious", false, "Only show connections on suspicious ports")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	filter := cfg.Filter
	if cmd.Flags().Changed("filter") {
		filter = filterFlag
	}

	mon, err := newMonitor(cfg, filter, logger)
	if err != nil {
		return err
	}

	cycle := mon.RunCycle(context.Background())
	if cycle.Err != nil {
		return fmt.Errorf("failed to sample connections: %w", cycle.Err)
	}

	records := cycle.Records
	if suspiciousOnly {
		records = onlySuspicious(records)
	}

	if jsonOutput {
		return writeJSON(os.Stdout, toJSONRecords(records))
	}
	return printRecordsTable(os.Stdout, records)
}
