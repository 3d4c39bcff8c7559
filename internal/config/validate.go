package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

// ValidationError is a configuration field that cannot be used.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate reports every problem of c at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Local.Site == "" {
		errs = append(errs, invalid("local.site", "is required"))
	}
	if c.Local.Parallelism < 1 {
		errs = append(errs, invalid("local.parallelism", "must be at least 1"))
	}
	if c.Queue.Capacity < 1 {
		errs = append(errs, invalid("queue.capacity", "must be at least 1"))
	}
	if c.Worker.OperationTimeout < 0 {
		errs = append(errs, invalid("worker.operation_timeout", "must not be negative"))
	}
	if c.Worker.MaxBackoff > 0 && c.Worker.MaxBackoff < c.Worker.InitialBackoff {
		errs = append(errs, invalid("worker.max_backoff", "must not be below initial_backoff"))
	}
	if c.Controller.MonitorInterval <= 0 {
		errs = append(errs, invalid("controller.monitor_interval", "must be positive"))
	}
	if c.Controller.PollPeriod <= 0 {
		errs = append(errs, invalid("controller.poll_period", "must be positive"))
	}
	if c.Controller.SyncInterval < 0 {
		errs = append(errs, invalid("controller.sync_interval", "must not be negative"))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		pg := c.Store.Postgres
		if pg.Host == "" || pg.DBName == "" || pg.User == "" {
			errs = append(errs, invalid("store.postgres", "host, user and dbname are required"))
		}
	default:
		errs = append(errs, invalid("store.driver", "must be %q or %q", DriverMemory, DriverPostgres))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, invalid("metrics.addr", "is required when metrics are enabled"))
	}
	if c.Health.Enabled && c.Health.Addr == "" {
		errs = append(errs, invalid("health.addr", "is required when health is enabled"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, invalid("log.level", "must be one of debug, info, warn, error"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, invalid("log.format", "must be text or json"))
	}

	errs = append(errs, c.validateSeeds()...)
	return errors.Join(errs...)
}

func (c *Config) validateSeeds() []error {
	var errs []error
	sites := make(map[string]bool, len(c.Sites))
	for i, s := range c.Sites {
		field := fmt.Sprintf("sites[%d]", i)
		switch {
		case s.ID == "":
			errs = append(errs, invalid(field+".id", "is required"))
		case sites[s.ID]:
			errs = append(errs, invalid(field+".id", "duplicate site %q", s.ID))
		}
		if s.Kind == "" {
			errs = append(errs, invalid(field+".kind", "is required"))
		}
		sites[s.ID] = true
	}

	for i, f := range c.Filters {
		field := fmt.Sprintf("filters[%d]", i)
		if f.ID == "" {
			errs = append(errs, invalid(field+".id", "is required"))
		}
		if len(c.Sites) > 0 && !sites[f.SiteID] {
			errs = append(errs, invalid(field+".site_id", "unknown site %q", f.SiteID))
		}
		if f.Priority < types.MinPriority || f.Priority > types.MaxPriority {
			errs = append(errs, invalid(field+".priority", "must be within %d..%d", types.MinPriority, types.MaxPriority))
		}
	}

	for i, r := range c.Replicators {
		field := fmt.Sprintf("replicators[%d]", i)
		if r.ID == "" {
			errs = append(errs, invalid(field+".id", "is required"))
		}
		if r.Source == "" || r.Destination == "" {
			errs = append(errs, invalid(field, "source and destination are required"))
		}
		if r.Source != "" && r.Source == r.Destination {
			errs = append(errs, invalid(field, "source and destination must differ"))
		}
	}
	return errs
}
