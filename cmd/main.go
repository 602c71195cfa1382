package main

import (
	"bytes"
	"fmt"
	"io"
	"localcal/internal/config"
	"localcal/internal/ics"
	"localcal/internal/models"
	"localcal/internal/store"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	if err := newApp(os.Stdout, os.Stderr, time.Now).Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func newApp(out, errOut io.Writer, now func() time.Time) *cli.App {
	env := &appEnv{now: now}
	return &cli.App{
		Name:      "localcal",
		Usage:     "Keep a local calendar of events in a JSON file.",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to a YAML config file (default " + config.DefaultPath + ")."},
			&cli.StringFlag{Name: "db", Usage: "Path to the calendar JSON file. Overrides config and CALENDAR_DB."},
		},
		Commands: []*cli.Command{
			env.addCommand(),
			env.listCommand(),
			env.todayCommand(),
			env.betweenCommand(),
			env.updateCommand(),
			env.statusCommand("done", "Mark an event as done.", (*store.Store).MarkDone),
			env.statusCommand("cancel", "Mark an event as canceled.", (*store.Store).Cancel),
			env.deleteCommand(),
			env.exportCommand(),
		},
	}
}

// appEnv carries what every command needs to open the store.
type appEnv struct {
	now func() time.Time
}

type session struct {
	conf   *config.Config
	logger *slog.Logger
	loc    *time.Location
	store  *store.Store
}

func (e *appEnv) open(c *cli.Context) (*session, error) {
	conf, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if db := c.String("db"); db != "" {
		conf.DB = db
	}

	logger := setupLogger(c.App.ErrWriter, conf.LogLevel)
	loc, err := conf.Location()
	if err != nil {
		return nil, err
	}

	s := store.New(conf.DB, logger, store.WithLocation(loc), store.WithClock(e.now))
	logger.Debug("Opened calendar.", "file", s.Path(), "timezone", loc.String())
	return &session{conf: conf, logger: logger, loc: loc, store: s}, nil
}

func (e *appEnv) addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add an event.",
		ArgsUsage: "TITLE TIME",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Usage: "Free-form category (default from config, general)."},
			&cli.StringFlag{Name: "priority", Usage: "low, normal or high (default from config, normal)."},
			&cli.IntFlag{Name: "duration", Usage: "Duration in minutes (default from config, 60)."},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("add expects TITLE and TIME, e.g. add Standup 2024-06-01T09:00")
			}
			sess, err := e.open(c)
			if err != nil {
				return err
			}

			ev := models.Event{
				Title:       c.Args().Get(0),
				Time:        c.Args().Get(1),
				Category:    sess.conf.Defaults.Category,
				Priority:    models.Priority(sess.conf.Defaults.Priority),
				DurationMin: sess.conf.Defaults.DurationMin,
			}
			if c.IsSet("category") {
				ev.Category = c.String("category")
			}
			if c.IsSet("priority") {
				ev.Priority = models.Priority(c.String("priority"))
			}
			if c.IsSet("duration") {
				ev.DurationMin = c.Int("duration")
			}

			added, err := sess.store.Add(ev)
			if err != nil {
				return fmt.Errorf("failed to add event: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Added: %s @ %s (%d min) [%s] (id=%s)\n",
				added.Title, added.Time, added.DurationMin, added.Priority, added.ID)
			return nil
		},
	}
}

func (e *appEnv) listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all events.",
		Action: func(c *cli.Context) error {
			sess, err := e.open(c)
			if err != nil {
				return err
			}
			events, err := sess.store.List()
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}
			printEvents(c.App.Writer, events)
			return nil
		},
	}
}

func (e *appEnv) todayCommand() *cli.Command {
	return &cli.Command{
		Name:  "today",
		Usage: "List today's events.",
		Action: func(c *cli.Context) error {
			sess, err := e.open(c)
			if err != nil {
				return err
			}
			events, err := sess.store.Today()
			if err != nil {
				return fmt.Errorf("failed to list today's events: %w", err)
			}
			printEvents(c.App.Writer, events)
			return nil
		},
	}
}

func (e *appEnv) betweenCommand() *cli.Command {
	return &cli.Command{
		Name:      "between",
		Usage:     "List events in a time range (inclusive). Dates alone cover the whole day.",
		ArgsUsage: "START END",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("between expects START and END")
			}
			sess, err := e.open(c)
			if err != nil {
				return err
			}
			start, err := parseBound(c.Args().Get(0), sess.loc, false)
			if err != nil {
				return err
			}
			end, err := parseBound(c.Args().Get(1), sess.loc, true)
			if err != nil {
				return err
			}
			events, err := sess.store.Between(start, end)
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}
			printEvents(c.App.Writer, events)
			return nil
		},
	}
}

func (e *appEnv) updateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Change fields of the first event matching an id or title.",
		ArgsUsage: "ID_OR_TITLE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title"},
			&cli.StringFlag{Name: "time"},
			&cli.StringFlag{Name: "category"},
			&cli.StringFlag{Name: "priority"},
			&cli.IntFlag{Name: "duration"},
			&cli.StringFlag{Name: "status", Usage: "scheduled, done or canceled"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("update expects ID_OR_TITLE")
			}
			sess, err := e.open(c)
			if err != nil {
				return err
			}

			var p store.Patch
			stringField := func(name string) *string {
				if !c.IsSet(name) {
					return nil
				}
				v := c.String(name)
				return &v
			}
			p.Title = stringField("title")
			p.Time = stringField("time")
			p.Category = stringField("category")
			p.Priority = stringField("priority")
			p.Status = stringField("status")
			if c.IsSet("duration") {
				d := c.Int("duration")
				p.DurationMin = &d
			}

			ev, err := sess.store.Update(c.Args().Get(0), p)
			if err != nil {
				return fmt.Errorf("failed to update event: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Updated: %s\n", formatEvent(ev))
			return nil
		},
	}
}

func (e *appEnv) statusCommand(name, usage string, apply func(*store.Store, string) (models.Event, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "ID_OR_TITLE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("%s expects ID_OR_TITLE", name)
			}
			sess, err := e.open(c)
			if err != nil {
				return err
			}
			ev, err := apply(sess.store, c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to update event: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Updated: %s\n", formatEvent(ev))
			return nil
		},
	}
}

func (e *appEnv) deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete every event matching an id or title.",
		ArgsUsage: "ID_OR_TITLE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("delete expects ID_OR_TITLE")
			}
			sess, err := e.open(c)
			if err != nil {
				return err
			}
			ref := c.Args().Get(0)
			n, err := sess.store.Delete(ref)
			if err != nil {
				return fmt.Errorf("failed to delete event: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Deleted %d event(s) matching %q.\n", n, ref)
			return nil
		},
	}
}

func (e *appEnv) exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export all events as iCalendar (.ics).",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write to this file instead of stdout."},
		},
		Action: func(c *cli.Context) error {
			sess, err := e.open(c)
			if err != nil {
				return err
			}
			events, err := sess.store.List()
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}

			var buf bytes.Buffer
			n, err := ics.NewExporter(sess.logger, sess.loc).Encode(&buf, events)
			if err != nil {
				return err
			}

			// The target is only touched once encoding has succeeded.
			if path := c.String("out"); path != "" {
				if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("unable to write export file: %w", err)
				}
			} else if _, err := c.App.Writer.Write(buf.Bytes()); err != nil {
				return fmt.Errorf("unable to write export: %w", err)
			}
			sess.logger.Info("Exported events.", "count", n, "skipped", len(events)-n)
			return nil
		},
	}
}

// parseBound parses a range bound. A bare date is the start of that day, or
// its last instant when endOfDay is set.
func parseBound(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := models.ParseTime(s, loc); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid range bound %q (want YYYY-MM-DD or an ISO 8601 time)", s)
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

func formatEvent(ev models.Event) string {
	return fmt.Sprintf("%s | %s [%s] %dm (%s) id=%s",
		ev.Time, ev.Title, ev.Priority, ev.DurationMin, ev.Status, ev.ID)
}

func printEvents(w io.Writer, events []models.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	for _, ev := range events {
		fmt.Fprintln(w, formatEvent(ev))
	}
}

func setupLogger(w io.Writer, level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
