package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/catalog-replicator/internal/adapter/memory"
	"github.com/ChuLiYu/catalog-replicator/internal/config"
	"github.com/ChuLiYu/catalog-replicator/pkg/types"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func buildDemoCommand() *cobra.Command {
	var (
		records int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Replicate generated records between two in-memory sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return RunDemo(ctx, cmd.OutOrStdout(), records, timeout)
		},
	}
	cmd.Flags().IntVarP(&records, "records", "n", 100, "number of records to publish on the remote site")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	return cmd
}

// DemoConfig is the configuration of the demo: a local site "home" and a
// remote site "alpha" with two filters of different priority.
func DemoConfig() *config.Config {
	cfg := config.Default()
	cfg.Local.Site = "home"
	cfg.Metrics.Enabled = false
	cfg.Health.Enabled = false
	cfg.Controller.PollPeriod = 200 * time.Millisecond
	cfg.Controller.MonitorInterval = time.Second
	cfg.Worker.InitialBackoff = 10 * time.Millisecond
	cfg.Worker.MaxBackoff = 200 * time.Millisecond
	cfg.Log.Level = "warn"
	cfg.Sites = []types.Site{
		{ID: "home", Name: "Home", URL: "home", Kind: memory.Kind},
		{ID: "alpha", Name: "Alpha", URL: "alpha", Kind: memory.Kind, Parallelism: 2},
	}
	cfg.Filters = []types.Filter{
		{ID: "alpha-datasets", SiteID: "alpha", Name: "datasets", Query: "type = 'dataset'", Priority: 8},
		{ID: "alpha-services", SiteID: "alpha", Name: "services", Query: "type = 'service'", Priority: 2},
	}
	return &cfg
}

// RunDemo publishes n records on an in-memory remote site, runs the
// replicator until the local site holds all of them and prints a summary.
func RunDemo(ctx context.Context, out io.Writer, n int, timeout time.Duration) error {
	cfg := DemoConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	network := memory.NewNetwork()
	alpha, home := network.Node("alpha"), network.Node("home")
	start := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		typ := "service"
		if i%2 == 0 {
			typ = "dataset"
		}
		alpha.Put(types.Metadata{
			ID:               fmt.Sprintf("rec-%04d", i),
			Type:             typ,
			Raw:              []byte(fmt.Sprintf(`{"title":"record %d"}`, i)),
			MetadataModified: start.Add(time.Duration(i) * time.Second),
		}, nil)
	}

	app, err := NewApp(ctx, cfg, newLogger(cfg.Log, out), network)
	if err != nil {
		return err
	}
	defer app.Close()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Run(runCtx) }()

	began := time.Now()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for home.Len() < n {
		select {
		case <-runCtx.Done():
			cancel()
			<-done
			return fmt.Errorf("demo: %d of %d records replicated: %w", home.Len(), n, runCtx.Err())
		case <-ticker.C:
		}
	}
	cancel()
	if err := <-done; err != nil {
		return err
	}

	fmt.Fprintf(out, "replicated %d records from alpha to home in %s\n", home.Len(), time.Since(began).Round(time.Millisecond))
	return app.printStore(ctx, out)
}
