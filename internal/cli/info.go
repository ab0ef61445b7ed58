package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lu-zhengda/tcpmon/internal/monitor"
	"github.com/lu-zhengda/tcpmon/internal/process"
	"github.com/lu-zhengda/tcpmon/internal/tui"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <pid>",
	Short: "Detailed info about a process and its connections",
	Long:  "Display process details and the TCP connections the process currently owns.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()
	info, err := process.NewManager().Info(ctx, pid)
	if err != nil {
		return err
	}

	// Connection listing is best effort; details are still useful without it.
	var owned []monitor.Record
	if mon, err := newMonitor(cfg, "", logger); err == nil {
		cycle := mon.RunCycle(ctx)
		if cycle.Err != nil {
			logger.Warn("could not list connections", "pid", pid, "err", cycle.Err)
		}
		for _, r := range cycle.Records {
			if r.PID == pid {
				owned = append(owned, r)
			}
		}
	}

	if jsonOutput {
		return printInfoJSON(os.Stdout, info, owned)
	}
	return printInfoHuman(os.Stdout, info, owned)
}

func printInfoHuman(w io.Writer, info *process.ProcessInfo, owned []monitor.Record) error {
	fmt.Fprintf(w, "Process:     %s (PID %d)\n", info.Name, info.PID)
	if info.Command != "" {
		fmt.Fprintf(w, "Command:     %s\n", info.Command)
	}
	if info.User != "" {
		fmt.Fprintf(w, "User:        %s\n", info.User)
	}
	if info.Status != "" {
		fmt.Fprintf(w, "Status:      %s\n", info.Status)
	}

	if !info.StartTime.IsZero() {
		ago := time.Since(info.StartTime).Truncate(time.Second)
		fmt.Fprintf(w, "Started:     %s ago (%s)\n",
			formatDuration(ago),
			info.StartTime.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(w, "CPU:         %.1f%%\n", info.CPUPercent)
	fmt.Fprintf(w, "Memory:      %s (RSS)\n", tui.FormatBytes(info.MemRSS))

	if info.PPID > 0 {
		fmt.Fprintf(w, "Parent PID:  %d\n", info.PPID)
	}

	if len(info.Children) > 0 {
		childStrs := make([]string, len(info.Children))
		for i, c := range info.Children {
			childStrs[i] = strconv.Itoa(int(c))
		}
		fmt.Fprintf(w, "Children:    %s\n", strings.Join(childStrs, ", "))
	}

	fmt.Fprintf(w, "Connections: %d\n", len(owned))
	if len(owned) > 0 {
		fmt.Fprintln(w)
		return printRecordsTable(w, owned)
	}
	return nil
}

func printInfoJSON(w io.Writer, info *process.ProcessInfo, owned []monitor.Record) error {
	type jsonInfo struct {
		PID         int32        `json:"pid"`
		Process     string       `json:"process"`
		Command     string       `json:"command,omitempty"`
		User        string       `json:"user,omitempty"`
		Status      string       `json:"status,omitempty"`
		StartTime   string       `json:"start_time,omitempty"`
		CPUPercent  float64      `json:"cpu_percent"`
		MemoryRSS   uint64       `json:"memory_rss_bytes"`
		PPID        int32        `json:"ppid,omitempty"`
		Children    []int32      `json:"children,omitempty"`
		Connections []jsonRecord `json:"connections"`
	}

	out := jsonInfo{
		PID:         info.PID,
		Process:     info.Name,
		Command:     info.Command,
		User:        info.User,
		Status:      info.Status,
		CPUPercent:  info.CPUPercent,
		MemoryRSS:   info.MemRSS,
		PPID:        info.PPID,
		Children:    info.Children,
		Connections: toJSONRecords(owned),
	}
	if !info.StartTime.IsZero() {
		out.StartTime = info.StartTime.Format(time.RFC3339)
	}

	return writeJSON(w, out)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	hours := int(d.Hours())
	if hours < 24 {
		return fmt.Sprintf("%d hours", hours)
	}
	days := hours / 24
	return fmt.Sprintf("%d days %d hours", days, hours%24)
}
