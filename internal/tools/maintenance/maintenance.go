// Package maintenance implements the provisioning operator command. It
// rebuilds projections from the journal, reports operational statistics,
// and inspects or requeues dead events.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/careloop/careloop/internal/services/provisioning/app"
	"github.com/careloop/careloop/internal/services/provisioning/storage"
	"github.com/careloop/careloop/internal/services/provisioning/storage/sqlite"
)

// Config holds maintenance command configuration.
type Config struct {
	DBPath       string        `env:"CARELOOP_PROVISIONING_DB_PATH"`
	Timeout      time.Duration `env:"CARELOOP_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	MaxAttempts  int           `env:"CARELOOP_PROVISIONING_MAX_ATTEMPTS" envDefault:"5"`
	Replay       bool
	Stats        bool
	DeadEvents   bool
	DeadLimit    int
	RequeueEvent string
	JSONOutput   bool
}

type envConfig struct {
	DBPath      string        `env:"CARELOOP_PROVISIONING_DB_PATH"`
	Timeout     time.Duration `env:"CARELOOP_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	MaxAttempts int           `env:"CARELOOP_PROVISIONING_MAX_ATTEMPTS" envDefault:"5"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		DBPath:      envCfg.DBPath,
		Timeout:     envCfg.Timeout,
		MaxAttempts: envCfg.MaxAttempts,
		DeadLimit:   50,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "provisioning.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to provisioning sqlite database (default: CARELOOP_PROVISIONING_DB_PATH or data/provisioning.db)")
	fs.BoolVar(&cfg.Replay, "replay", false, "truncate projection tables and rebuild them from the journal")
	fs.BoolVar(&cfg.Stats, "stats", false, "report journal, organization, and invitation counts")
	fs.BoolVar(&cfg.DeadEvents, "dead-events", false, "list unprocessed events whose retries are exhausted")
	fs.IntVar(&cfg.DeadLimit, "dead-limit", cfg.DeadLimit, "max dead events to print")
	fs.StringVar(&cfg.RequeueEvent, "requeue-event", "", "event ID to clear retry state on so dispatch retries it")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "retry ceiling used to classify dead events")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	if !cfg.Replay && !cfg.Stats && !cfg.DeadEvents && cfg.RequeueEvent == "" {
		return errors.New("nothing to do: pass -replay, -stats, -dead-events, or -requeue-event")
	}
	if cfg.Replay && cfg.RequeueEvent != "" {
		return errors.New("-replay cannot be combined with -requeue-event")
	}
	if cfg.DeadEvents && cfg.DeadLimit <= 0 {
		return errors.New("-dead-limit must be > 0")
	}
	if cfg.MaxAttempts <= 0 {
		return errors.New("-max-attempts must be > 0")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(errOut, "Error: close store: %v\n", closeErr)
		}
	}()

	if cfg.RequeueEvent != "" {
		if err := runRequeue(ctx, store, cfg.RequeueEvent, cfg.JSONOutput, out); err != nil {
			return err
		}
	}
	if cfg.Replay {
		if err := runReplay(ctx, store, cfg.JSONOutput, out, errOut); err != nil {
			return err
		}
	}
	if cfg.DeadEvents {
		if err := runDeadEvents(ctx, store, cfg.MaxAttempts, cfg.DeadLimit, cfg.JSONOutput, out); err != nil {
			return err
		}
	}
	if cfg.Stats {
		if err := runStats(ctx, store, cfg.MaxAttempts, cfg.JSONOutput, out); err != nil {
			return err
		}
	}
	return nil
}

func runReplay(ctx context.Context, store storage.Store, jsonOutput bool, out, errOut io.Writer) error {
	logf := func(format string, args ...any) {
		fmt.Fprintf(errOut, format+"\n", args...)
	}
	applied, err := app.ReplayProjections(ctx, store, logf)
	if err != nil {
		return fmt.Errorf("replay projections: %w", err)
	}
	if jsonOutput {
		return writeJSON(out, map[string]any{"applied": applied})
	}
	fmt.Fprintf(out, "Replay complete: %d events applied\n", applied)
	return nil
}

func runStats(ctx context.Context, store storage.Store, maxAttempts int, jsonOutput bool, out io.Writer) error {
	stats, err := store.CollectStatistics(ctx, maxAttempts)
	if err != nil {
		return fmt.Errorf("collect statistics: %w", err)
	}
	if jsonOutput {
		return writeJSON(out, map[string]any{
			"total_events":        stats.TotalEvents,
			"processed_events":    stats.ProcessedEvents,
			"failed_events":       stats.FailedEvents,
			"dead_events":         stats.DeadEvents,
			"organizations":       stats.Organizations,
			"active_subdomains":   stats.ActiveSubdomains,
			"pending_invitations": stats.PendingInvitations,
		})
	}
	fmt.Fprintf(out, "Events: %d total, %d processed, %d failing, %d dead\n",
		stats.TotalEvents, stats.ProcessedEvents, stats.FailedEvents, stats.DeadEvents)
	fmt.Fprintf(out, "Organizations: %d (%d with verified subdomains)\n",
		stats.Organizations, stats.ActiveSubdomains)
	fmt.Fprintf(out, "Invitations outstanding: %d\n", stats.PendingInvitations)
	return nil
}

func runDeadEvents(ctx context.Context, store storage.Store, maxAttempts, limit int, jsonOutput bool, out io.Writer) error {
	dead, err := store.ListDeadEvents(ctx, maxAttempts, limit)
	if err != nil {
		return fmt.Errorf("list dead events: %w", err)
	}
	if jsonOutput {
		rows := make([]map[string]any, 0, len(dead))
		for _, evt := range dead {
			rows = append(rows, map[string]any{
				"id":          evt.ID,
				"stream_id":   evt.StreamID,
				"stream_type": string(evt.StreamType),
				"event_type":  string(evt.Type),
				"retry_count": evt.RetryCount,
				"error":       evt.ProcessingError,
			})
		}
		return writeJSON(out, map[string]any{"dead_events": rows})
	}
	if len(dead) == 0 {
		fmt.Fprintln(out, "No dead events")
		return nil
	}
	for _, evt := range dead {
		fmt.Fprintf(out, "%s %s %s/%s retries=%d error=%q\n",
			evt.ID, evt.Type, evt.StreamType, evt.StreamID, evt.RetryCount, evt.ProcessingError)
	}
	return nil
}

func runRequeue(ctx context.Context, store storage.Store, eventID string, jsonOutput bool, out io.Writer) error {
	if err := store.RequeueEvent(ctx, eventID); err != nil {
		return fmt.Errorf("requeue event %s: %w", eventID, err)
	}
	if jsonOutput {
		return writeJSON(out, map[string]any{"requeued": eventID})
	}
	fmt.Fprintf(out, "Requeued event %s\n", eventID)
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
