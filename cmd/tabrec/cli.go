package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/tabrec/internal/browser"
	"github.com/hpungsan/tabrec/internal/config"
	"github.com/hpungsan/tabrec/internal/coordinator"
	"github.com/hpungsan/tabrec/internal/errors"
	"github.com/hpungsan/tabrec/internal/logx"
	"github.com/hpungsan/tabrec/internal/mcp"
	"github.com/hpungsan/tabrec/internal/ops"
	"github.com/hpungsan/tabrec/internal/recording"
	"github.com/hpungsan/tabrec/internal/upload"
	"github.com/hpungsan/tabrec/internal/web"
)

// stdout receives command output. Tests replace it.
var stdout io.Writer = os.Stdout

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "tabrec",
		Usage:   "Cross-tab browser session recorder",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(db, cfg),
			attachCmd(db, cfg),
			mcpCmd(db, cfg),
			recordingsCmd(db),
			sessionsCmd(db, cfg),
			purgeCmd(db, cfg),
			stateCmd(db),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd runs the HTTP ingress without a browser. Tab notifications
// arrive over HTTP; directed commands have no receiver.
func serveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the coordinator behind the local HTTP ingress",
		Flags: ingressFlags(cfg),
		Action: func(c *cli.Context) error {
			ctx := c.Context
			coord, err := newCoordinator(ctx, db, cfg, offlineHost{})
			if err != nil {
				return outputError(err)
			}
			defer coord.Close()

			return serveIngress(ctx, c, db, coord)
		},
	}
}

// attachCmd drives Chrome over CDP and runs the HTTP ingress next to it.
func attachCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	flags := append(ingressFlags(cfg),
		&cli.StringFlag{Name: "remote", Value: cfg.BrowserRemoteURL, Usage: "DevTools websocket URL of a running Chrome (empty launches one)"},
		&cli.BoolFlag{Name: "headless", Value: cfg.BrowserHeadless, Usage: "Launch Chrome without a window"},
		&cli.BoolFlag{Name: "stealth", Value: cfg.BrowserStealth, Usage: "Open tabs with anti-detection patches"},
		&cli.StringFlag{Name: "engine", Value: cfg.EngineScript, Usage: "Capture engine script injected into every page"},
		&cli.StringSliceFlag{Name: "open", Usage: "URL to open once attached (repeatable)"},
	)
	return &cli.Command{
		Name:  "attach",
		Usage: "Drive Chrome over DevTools and record across its tabs",
		Flags: flags,
		Action: func(c *cli.Context) error {
			ctx := c.Context

			engine, err := readEngine(c.String("engine"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			bcfg := browser.ConfigFrom(cfg, engine)
			bcfg.RemoteURL = c.String("remote")
			bcfg.Headless = c.Bool("headless")
			bcfg.Stealth = c.Bool("stealth")

			// The host needs the coordinator as its handler and the
			// coordinator needs the host, so route through a late binding.
			var late lateHandler
			host := browser.New(bcfg, &late)
			coord, err := newCoordinator(ctx, db, cfg, host)
			if err != nil {
				return outputError(err)
			}
			defer coord.Close()
			late.set(coord)

			if err := host.Start(ctx); err != nil {
				return outputError(errors.NewInternal(err))
			}
			defer host.Close()

			for _, u := range c.StringSlice("open") {
				id, err := host.Open(ctx, u)
				if err != nil {
					return outputError(err)
				}
				logx.WithTab(logx.Ctx(ctx), string(id)).Info("tab opened", "url", u)
			}

			return serveIngress(ctx, c, db, coord)
		},
	}
}

// mcpCmd serves the MCP tools over stdio.
func mcpCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve recording tools over MCP (stdio)",
		Action: func(c *cli.Context) error {
			if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
				logx.Ctx(c.Context).Warn("unknown disabled tools ignored", "tools", strings.Join(unknown, ","))
			}

			var finalizer mcp.Finalizer
			if cfg.UploadEndpoint != "" {
				coord, err := newCoordinator(c.Context, db, cfg, nil)
				if err != nil {
					return outputError(err)
				}
				defer coord.Close()
				finalizer = coord
			}

			if err := mcp.Run(db, cfg, finalizer, Version); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// recordingsCmd groups operations on individual recordings.
func recordingsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "recordings",
		Usage: "List and delete stored recordings",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recordings newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Filter by session id"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items to return"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.List(c.Context, db, ops.ListInput{
						SessionID: c.String("session"),
						Limit:     c.Int("limit"),
						Offset:    c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a recording by id",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					output, err := ops.Delete(c.Context, db, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every recording",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm deleting everything"},
				},
				Action: func(c *cli.Context) error {
					if !c.Bool("yes") {
						return outputError(errors.NewInvalidRequest("refusing to clear all recordings without --yes"))
					}
					output, err := ops.Clear(c.Context, db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// sessionsCmd groups operations on sessions.
func sessionsCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect, delete and upload sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List sessions, most recently active first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items to return"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ListSessions(c.Context, db, ops.ListSessionsInput{
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "show",
				Usage:     "Show a session with its recordings",
				ArgsUsage: "<session-id>",
				Action: func(c *cli.Context) error {
					output, err := ops.GetSession(c.Context, db, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "events",
				Usage:     "Print the concatenated event stream of a session",
				ArgsUsage: "<session-id>",
				Action: func(c *cli.Context) error {
					output, err := ops.SessionEvents(c.Context, db, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete every recording of a session",
				ArgsUsage: "<session-id>",
				Action: func(c *cli.Context) error {
					output, err := ops.DeleteSession(c.Context, db, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "upload",
				Usage:     "Upload a stored session to the configured endpoint",
				ArgsUsage: "<session-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "endpoint", Value: cfg.UploadEndpoint, Usage: "Override the upload endpoint"},
				},
				Action: func(c *cli.Context) error {
					ucfg := *cfg
					ucfg.UploadEndpoint = c.String("endpoint")
					coord, err := newCoordinator(c.Context, db, &ucfg, nil)
					if err != nil {
						return outputError(err)
					}
					defer coord.Close()

					output, err := coord.Finalize(c.Context, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete old recordings",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Delete recordings saved more than N days ago (e.g., 7d); defaults to retention_days"},
		},
		Action: func(c *cli.Context) error {
			days := cfg.RetentionDays
			if olderThan := c.String("older-than"); olderThan != "" {
				d, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				days = d
			}
			if days <= 0 {
				return outputError(errors.NewInvalidRequest("--older-than is required when retention_days is not configured"))
			}

			output, err := ops.Purge(c.Context, db, ops.PurgeInput{
				OlderThan: time.Duration(days) * 24 * time.Hour,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// stateOutput is the persisted coordinator state.
type stateOutput struct {
	IsRecording bool   `json:"is_recording"`
	SessionID   string `json:"session_id,omitempty"`
}

// stateCmd prints the persisted coordinator state.
func stateCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Show the persisted recording state",
		Action: func(c *cli.Context) error {
			isRecording, sessionID, err := ops.LoadState(c.Context, db)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(stateOutput{IsRecording: isRecording, SessionID: sessionID})
		},
	}
}

// Wiring

// newCoordinator builds a coordinator over the local store and restores
// its persisted state. host may be nil when only Finalize is used.
func newCoordinator(ctx context.Context, db *sql.DB, cfg *config.Config, host coordinator.TabHost) (*coordinator.Coordinator, error) {
	rec := ops.NewRecorder(db)
	opts := coordinator.Options{
		Host:                host,
		Store:               rec,
		State:               rec,
		HandoffDelay:        cfg.HandoffDelay(),
		SettleDelay:         cfg.SettleDelay(),
		ExcludedURLPrefixes: cfg.ExcludedURLPrefixes,
	}
	if cfg.UploadEndpoint != "" {
		opts.Uploader = upload.NewClient(cfg)
	}

	coord := coordinator.New(opts)
	if err := coord.Restore(ctx); err != nil {
		coord.Close()
		return nil, err
	}
	return coord, nil
}

func ingressFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "bind", Value: cfg.HTTPBind, Usage: "Ingress bind address"},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: cfg.HTTPPort, Usage: "Ingress port"},
	}
}

func serveIngress(ctx context.Context, c *cli.Context, db *sql.DB, coord *coordinator.Coordinator) error {
	handler, err := web.NewRouter(db, coord, Version)
	if err != nil {
		return outputError(errors.NewInternal(err))
	}
	addr := net.JoinHostPort(c.String("bind"), strconv.Itoa(c.Int("port")))
	if err := web.ListenAndServe(ctx, addr, handler); err != nil {
		return outputError(errors.NewInternal(err))
	}
	return nil
}

// lateHandler forwards to a coordinator installed after construction.
// Notifications before that are rejected.
type lateHandler struct {
	coord *coordinator.Coordinator
}

func (l *lateHandler) set(c *coordinator.Coordinator) { l.coord = c }

func (l *lateHandler) Handle(ctx context.Context, sender recording.TabID, n coordinator.Notification) (any, error) {
	if l.coord == nil {
		return nil, errors.NewInvalidRequest("coordinator not ready")
	}
	return l.coord.Handle(ctx, sender, n)
}

// offlineHost stands in for the tab facility when no browser is attached.
// Every directed operation reports the tab unreachable, which the
// coordinator treats as stale tab state.
type offlineHost struct{}

var errNoBrowser = fmt.Errorf("no browser attached")

func (offlineHost) Tab(_ context.Context, id recording.TabID) (coordinator.TabInfo, error) {
	return coordinator.TabInfo{}, errors.NewTabUnreachable(string(id), errNoBrowser)
}

func (offlineHost) Send(_ context.Context, id recording.TabID, _ coordinator.Command) error {
	return errors.NewTabUnreachable(string(id), errNoBrowser)
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if rErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", rErr.Code, rErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readEngine loads the capture engine script. An empty path injects only
// the bridge.
func readEngine(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read engine script: %w", err)
	}
	return string(data), nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
