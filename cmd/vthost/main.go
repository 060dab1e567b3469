// Package main implements vthost, the VT output half of a conpty-style
// terminal-multiplexing host. It is handed pipe endpoints by the hosting
// process, renders screen-buffer deltas as terminal sequences on the output
// pipe, and services the input and out-of-band signal pipes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vthost/internal/conduit"
	"vthost/internal/config"
	"vthost/internal/vtio"
	"vthost/internal/vtmode"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	debugMode bool
	modeFlag  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vthost",
		Short: "VT output host for conpty-style terminal multiplexing",
		Long: `vthost renders screen-buffer deltas as VT sequences.

The hosting process hands it three pipe endpoints: VT input (terminal to
host), VT output (host to terminal), and an out-of-band signal pipe for
window resizes. vthost owns the output pipe exclusively and guarantees that
shutdown never hangs on a pipe whose reader went away.`,
		Example: `  # Attach to inherited pipe descriptors
  vthost run --in-fd 3 --out-fd 4 --signal-fd 5

  # Force the 7-bit ASCII-safe dialect
  vthost run --out-fd 4 --mode xterm-ascii

  # List the supported VT dialects
  vthost modes`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "VT dialect (empty for default)")

	var inFD, outFD, signalFD int
	var width, height int

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the VT host over inherited pipe descriptors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(inFD, outFD, signalFD, width, height)
		},
	}
	runCmd.Flags().IntVar(&inFD, "in-fd", 0, "VT input pipe descriptor (-1 for none)")
	runCmd.Flags().IntVar(&outFD, "out-fd", 1, "VT output pipe descriptor")
	runCmd.Flags().IntVar(&signalFD, "signal-fd", -1, "Out-of-band signal pipe descriptor (-1 for none)")
	runCmd.Flags().IntVar(&width, "width", 0, "Initial viewport width (0 to use config)")
	runCmd.Flags().IntVar(&height, "height", 0, "Initial viewport height (0 to use config)")

	modesCmd := &cobra.Command{
		Use:   "modes",
		Short: "List the supported VT dialects",
		RunE: func(cmd *cobra.Command, args []string) error {
			printModesTable()
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vthost configuration",
	}
	configPathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return fmt.Errorf("could not determine config path: %w", err)
			}
			fmt.Println(path)
			return nil
		},
	}
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(runCmd, modesCmd, configCmd)

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(fmt.Sprintf("%s\nCommit: %s\nBuilt: %s", version, commit, date)),
	); err != nil {
		os.Exit(1)
	}
}

func runHost(inFD, outFD, signalFD, width, height int) error {
	cfg, err := config.LoadUserConfig()
	if err != nil {
		log.Warn("failed to load config, using defaults", "err", err)
		cfg = config.DefaultConfig()
	}
	if modeFlag != "" {
		cfg.Mode = modeFlag
	}
	if width > 0 {
		cfg.Width = width
	}
	if height > 0 {
		cfg.Height = height
	}
	if debugMode {
		cfg.Debug = true
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "vthost"})
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	// Validate the mode up front for a friendly CLI error; the host
	// re-parses it during Initialize.
	if _, err := vtmode.Parse(cfg.Mode); err != nil {
		return err
	}

	if term.IsTerminal(outFD) {
		logger.Warn("output descriptor is a terminal, sequences will render in place", "fd", outFD)
	}

	opts := vtio.Options{
		Mode:   cfg.Mode,
		Output: conduit.NewPipeFileFromFD(uintptr(outFD), "vt-output"),
		Size:   sizeRect(cfg.Width, cfg.Height),
		Logger: logger,
		OnResize: func(w, h int) {
			logger.Info("terminal resized", "w", w, "h", h)
		},
	}
	// Inherited descriptors arrive blocking; wrap them so the poller
	// tracks them and shutdown can unblock their readers.
	if inFD >= 0 {
		opts.Input = conduit.NewReadFileFromFD(uintptr(inFD), "vt-input")
	}
	if signalFD >= 0 {
		opts.Signal = conduit.NewReadFileFromFD(uintptr(signalFD), "vt-signal")
	}

	h := vtio.NewHost(opts)
	if err := h.Initialize(); err != nil {
		return err
	}
	if err := h.CreateIoHandlers(); err != nil {
		return err
	}
	if err := h.CreateAndStartSignalThread(); err != nil {
		return err
	}
	if err := h.StartIfNeeded(); err != nil {
		return err
	}
	logger.Info("vt host running", "mode", cfg.Mode, "w", cfg.Width, "h", cfg.Height)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		logger.Info("shutting down", "signal", s)
	case <-h.Signal().Done():
		logger.Info("shutting down, terminal went away")
	}
	return h.Close()
}

func sizeRect(w, h int) uv.Rectangle {
	return uv.Rect(0, 0, w, h)
}

func printModesTable() {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Padding(0, 1)
	cellStyle := lipgloss.NewStyle().
		Padding(0, 1)

	rows := [][]string{
		{vtmode.Xterm256String, "xterm with 256-color support, UTF-8 (default)"},
		{vtmode.XtermString, "xterm-compatible, UTF-8"},
		{vtmode.XtermASCIIString, "xterm-compatible, 7-bit ASCII-safe output"},
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers("Mode", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			return cellStyle
		})

	fmt.Println()
	fmt.Println(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Render("VT Dialects"))
	fmt.Println(t.Render())
	fmt.Println()
}
