package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/lu-zhengda/tcpmon/internal/conn"
	"github.com/lu-zhengda/tcpmon/internal/monitor"
	"github.com/lu-zhengda/tcpmon/internal/process"
	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill <pid>",
	Short: "Terminate a process",
	Long: `Ask the OS to terminate the process with the given PID (SIGTERM on
unix). The request is sent once; tcpmon does not wait for the process to exit.`,
	Args: cobra.ExactArgs(1),
	RunE: runKill,
}

func runKill(cmd *cobra.Command, args []string) error {
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
	name := monitor.NameUnknown
	if resolver, err := process.NewResolver(cfg.Source, &conn.RealCmdRunner{}); err == nil && pid > 0 {
		if n, err := resolver.Name(ctx, pid); err == nil {
			name = n
		}
	}

	executor := monitor.NewExecutor(process.NewManager(), logger)
	ack, err := executor.Terminate(ctx, pid)
	if err != nil {
		if jsonOutput {
			if encErr := writeJSON(os.Stdout, killResult{PID: pid, Process: name, Error: err.Error()}); encErr != nil {
				logger.Error("encode kill result", "pid", pid, "err", encErr)
			}
		}
		var te *monitor.TerminationError
		if errors.As(err, &te) {
			return fmt.Errorf("failed to kill %s (PID %d): %s", name, pid, te.Reason)
		}
		return err
	}

	if jsonOutput {
		return writeJSON(os.Stdout, killResult{PID: ack.PID, Process: name, Sent: true})
	}
	fmt.Printf("Sent termination request to %s (PID %d).\n", name, ack.PID)
	return nil
}

type killResult struct {
	PID     int32  `json:"pid"`
	Process string `json:"process"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

func parsePID(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid PID %q: %w", s, err)
	}
	return int32(n), nil
}
