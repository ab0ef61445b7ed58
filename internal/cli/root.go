package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lu-zhengda/tcpmon/internal/config"
	"github.com/lu-zhengda/tcpmon/internal/conn"
	"github.com/lu-zhengda/tcpmon/internal/logging"
	"github.com/lu-zhengda/tcpmon/internal/monitor"
	"github.com/lu-zhengda/tcpmon/internal/process"
	"github.com/lu-zhengda/tcpmon/internal/tui"
	"github.com/spf13/cobra"
)

var (
	// Set via ldflags at build time.
	version = "dev"

	// Global flags.
	configPath string
	jsonOutput bool
	sourceFlag string
	logFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "tcpmon",
	Short: "Live TCP connection monitor",
	Long: `tcpmon samples the host's TCP connections every few seconds, flags
connections on suspicious ports, and lets you terminate the owning process.
Launch without subcommands for the interactive dashboard.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if shell, _ := cmd.Flags().GetString("generate-completion"); shell != "" {
			switch shell {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			default:
				return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", shell)
			}
		}
		return runDashboard(cmd)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("tcpmon %s\n", version))
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().String("generate-completion", "", "Generate shell completion (bash, zsh, fish)")
	rootCmd.Flags().MarkHidden("generate-completion")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default ~/.config/tcpmon/config.yaml)")
	pf.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	pf.StringVar(&sourceFlag, "source", "", "Connection source: gopsutil or lsof")
	pf.StringVar(&logFile, "log-file", "", "Write logs to this file")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source = sourceFlag
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the logger for a command. Without a log file, logs go to
// fallback; the dashboard passes nil so nothing lands on its terminal.
func newLogger(cfg *config.Config, fallback io.Writer) (*slog.Logger, func() error, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.LogFile != "" || fallback == nil {
		return logging.Open(cfg.LogFile, level)
	}
	return logging.New(fallback, level), func() error { return nil }, nil
}

// newMonitor wires the configured source, resolver and terminator into a
// Monitor.
func newMonitor(cfg *config.Config, filter string, logger *slog.Logger) (*monitor.Monitor, error) {
	runner := &conn.RealCmdRunner{}

	source, err := conn.NewSource(cfg.Source, runner)
	if err != nil {
		return nil, err
	}
	resolver, err := process.NewResolver(cfg.Source, runner)
	if err != nil {
		return nil, err
	}

	return monitor.New(monitor.Options{
		Source:       source,
		Resolver:     resolver,
		Terminator:   process.NewManager(),
		Watchlist:    monitor.NewPortSet(cfg.SuspiciousPorts...),
		HistorySize:  cfg.HistorySize,
		CycleTimeout: cfg.CycleTimeout,
		Filter:       filter,
		Logger:       logger,
	})
}

func runDashboard(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	mon, err := newMonitor(cfg, cfg.Filter, logger)
	if err != nil {
		return err
	}

	// prog is assigned before the scheduler starts.
	var prog *tea.Program
	sched := monitor.NewScheduler(mon, cfg.RefreshInterval,
		monitor.WithSchedulerLogger(logger),
		monitor.WithOnCycle(func(c monitor.Cycle) {
			prog.Send(tui.CycleMsg{Cycle: c})
		}),
	)
	session := monitor.NewSession(mon, sched)

	prog = tea.NewProgram(tui.New(session, tui.Options{
		Version: version,
		Color:   cfg.ColorEnabled,
		Info:    process.NewManager(),
	}), tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	logger.Info("dashboard started", "source", cfg.Source, "interval", cfg.RefreshInterval)
	_, runErr := prog.Run()

	cancel()
	if err := <-done; err != nil && runErr == nil {
		runErr = err
	}
	logger.Info("dashboard stopped")
	return runErr
}
