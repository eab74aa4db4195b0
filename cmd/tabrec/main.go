package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"pkt.systems/psi"
	"pkt.systems/pslog"

	"github.com/hpungsan/tabrec/internal/config"
	"github.com/hpungsan/tabrec/internal/db"
	"github.com/hpungsan/tabrec/internal/logx"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// HomeEnv overrides the data directory (default ~/.tabrec).
const HomeEnv = "TABREC_HOME"

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// resolveArgs maps a bare invocation with piped stdin to the MCP server,
// the way MCP clients launch the binary.
func resolveArgs(args []string, terminal bool) []string {
	if len(args) < 2 && !terminal {
		return append(args, "mcp")
	}
	return args
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  tabrec: cross-tab browser session recorder

  Usage: tabrec <command> [options]
         tabrec --help

  MCP server mode requires piped input.`)
}

// baseDir returns the data directory holding the database and config.
func baseDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".tabrec"), nil
}

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	args := resolveArgs(os.Args, isTerminal())
	if len(args) < 2 {
		printBanner()
		return 0
	}

	// Help and version need neither the database nor the config file
	if isHelpOrVersion(args) {
		app := newCLIApp(nil, config.DefaultConfig())
		if err := app.RunContext(ctx, args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	dir, err := baseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		return 1
	}

	level, known := logx.LevelFromName(cfg.LogLevel)
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole, MinLevel: level}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)
	if !known {
		logger.Warn("unknown log level, using info", "log_level", cfg.LogLevel)
	}

	database, err := db.Init(dir)
	if err != nil {
		logger.Error("failed to initialize database", "err", err, "dir", dir)
		return 1
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	app := newCLIApp(database, cfg)
	if err := app.RunContext(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
