package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/property-map/internal/building"
	"github.com/sells-group/property-map/internal/cadastre"
	"github.com/sells-group/property-map/internal/filter"
	"github.com/sells-group/property-map/internal/mapview"
	"github.com/sells-group/property-map/internal/quality"
	"github.com/sells-group/property-map/internal/record"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Explore the building map interactively from the terminal",
	Long: `Reads commands from stdin:
  tier <name> on|off   show or hide a quality tier
  search <text>        filter by name, address, id, tenants or owner
  flush                apply pending search input now
  list                 print the visible buildings
  view                 print the per-tier counts
  click <point-id>     resolve a cadastral point
  reload               reload the building set
  quit                 leave`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}
		ctx := cmd.Context()

		metrics, err := initMetrics()
		if err != nil {
			return err
		}
		cad, err := initCadastre(ctx, metrics)
		if err != nil {
			return err
		}
		defer cad.Close()

		sf, err := connectCRM()
		if err != nil && !cfg.Salesforce.SampleFallback {
			return err
		}
		fromXLSX, _ := cmd.Flags().GetString("from-xlsx")

		out := &syncWriter{w: cmd.OutOrStdout()}
		b := newBrowser(cad.Aggregator, buildingSource(sf, fromXLSX), out,
			time.Duration(cfg.Search.DebounceMs)*time.Millisecond)
		defer b.Close()

		if err := b.Reload(ctx); err != nil {
			return err
		}
		return b.Run(ctx, os.Stdin)
	},
}

func init() {
	browseCmd.Flags().String("from-xlsx", "", "read buildings from an exported workbook instead of the CRM")
	rootCmd.AddCommand(browseCmd)
}

// syncWriter serializes writes from the REPL and session callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// browser drives a map session from text commands.
type browser struct {
	session *mapview.Session
	feed    *mapview.ClickFeed
	cache   *building.Cache
	out     io.Writer
}

func newBrowser(r mapview.Resolver, src *building.Source, out io.Writer, debounce time.Duration) *browser {
	b := &browser{feed: mapview.NewClickFeed(), out: out}
	b.session = mapview.NewSession(timeoutResolver{r},
		mapview.WithDebounce(filter.WithDelay(debounce)),
		mapview.OnChange(func(v mapview.View) {
			fmt.Fprintf(b.out, "%d of %d buildings visible\n", len(v.Visible), v.Total)
		}),
		mapview.OnResolved(b.printResolution),
	)
	b.cache = building.NewCache(src, func(set *building.Set) {
		b.session.SetBuildings(set.Buildings)
	})
	return b
}

// timeoutResolver bounds every click resolution.
type timeoutResolver struct {
	r mapview.Resolver
}

func (t timeoutResolver) Resolve(ctx context.Context, pointID string) (*cadastre.Aggregate, error) {
	ctx, cancel := withResolveTimeout(ctx)
	defer cancel()
	return t.r.Resolve(ctx, pointID)
}

// Reload loads a fresh building set into the session.
func (b *browser) Reload(ctx context.Context) error {
	set, err := b.cache.Reload(ctx)
	if err != nil {
		return err
	}
	if set.FetchError != "" {
		fmt.Fprintf(b.out, "CRM unavailable, showing sample buildings: %s\n", set.FetchError)
	}
	return nil
}

// Run reads commands from in until EOF, "quit" or ctx ends. Clicks resolve
// in the background so a slow lookup never blocks input; a newer click makes
// older ones stale. Run waits for pending clicks before returning.
func (b *browser) Run(ctx context.Context, in io.Reader) error {
	detach := b.session.Attach(ctx, b.feed)
	defer b.session.Wait()
	defer detach()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if !b.exec(ctx, scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// Close stops the search timer.
func (b *browser) Close() {
	b.session.Close()
}

// exec runs one command line. It returns false to stop.
func (b *browser) exec(ctx context.Context, line string) bool {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "":
	case "quit", "exit":
		return false
	case "tier":
		name, state, _ := strings.Cut(rest, " ")
		t, ok := quality.ParseTier(name)
		if !ok {
			fmt.Fprintf(b.out, "unknown tier %q\n", name)
			break
		}
		switch strings.TrimSpace(state) {
		case "on":
			b.session.SetTier(t, true)
		case "off":
			b.session.SetTier(t, false)
		default:
			fmt.Fprintln(b.out, "usage: tier <name> on|off")
		}
	case "search":
		b.session.Type(rest)
	case "flush":
		b.session.FlushSearch()
	case "list":
		formatBuildings(b.out, b.session.View().Visible)
	case "view":
		v := b.session.View()
		formatHistogram(b.out, v.Histogram)
		if v.State.Search != "" {
			fmt.Fprintf(b.out, "search: %q\n", v.State.Search)
		}
	case "click":
		if rest == "" {
			fmt.Fprintln(b.out, "usage: click <point-id>")
			break
		}
		b.feed.Emit(rest)
	case "reload":
		if err := b.Reload(ctx); err != nil {
			fmt.Fprintf(b.out, "reload failed: %v\n", err)
		}
	default:
		fmt.Fprintf(b.out, "unknown command %q\n", verb)
	}
	return true
}

func (b *browser) printResolution(res mapview.Resolution) {
	if res.Err != nil {
		fmt.Fprintf(b.out, "%s: %v\n", res.PointID, res.Err)
		return
	}
	r, err := record.Build(res.Aggregate, nil, nil)
	if err != nil {
		fmt.Fprintf(b.out, "%s: %v\n", res.PointID, err)
		return
	}
	fmt.Fprintln(b.out, r.Summary)
}
