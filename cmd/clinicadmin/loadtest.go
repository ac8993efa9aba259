package main

import (
	"fmt"
	"math/rand/v2"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/krisalay/clinic-swr-cache/internal/adminapi"
	"github.com/krisalay/clinic-swr-cache/internal/config"
	"github.com/krisalay/clinic-swr-cache/internal/fakebackend"
	"github.com/krisalay/clinic-swr-cache/internal/log"
)

type loadtestOptions struct {
	workers  int
	requests int
	pages    int
	latency  time.Duration
	live     bool
}

func newLoadtestCmd(cfg *config.Config) *cobra.Command {
	var opts loadtestOptions

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Hammer the cache with concurrent dashboard reads and report throughput",
		Long: `loadtest starts many workers that read random families and pages through
the cache. By default it runs against an in-process fake backend with
artificial latency; --live uses the configured backend instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadtest(cmd, *cfg, opts)
		},
	}
	cmd.Flags().IntVar(&opts.workers, "workers", 200, "concurrent workers")
	cmd.Flags().IntVar(&opts.requests, "requests", 5000, "reads per worker")
	cmd.Flags().IntVar(&opts.pages, "pages", 5, "distinct pages per family")
	cmd.Flags().DurationVar(&opts.latency, "latency", 20*time.Millisecond, "fake backend latency")
	cmd.Flags().BoolVar(&opts.live, "live", false, "use the configured backend")
	return cmd
}

func runLoadtest(cmd *cobra.Command, cfg config.Config, opts loadtestOptions) error {
	w := cmd.OutOrStdout()

	var backend *fakebackend.Backend
	if !opts.live {
		gin.SetMode(gin.ReleaseMode)
		backend = fakebackend.New()
		backend.SetLatency(opts.latency)
		srv := httptest.NewServer(backend.Handler())
		defer srv.Close()
		cfg.Backend.BaseURL = srv.URL
		cfg.Backend.RateLimit = 0
	}

	a, err := newApp(&cfg, log.GetLogger())
	if err != nil {
		return err
	}
	defer a.close()

	families := a.store.Families()

	fmt.Fprintln(w, "\n================ CACHE LOAD TEST =================")
	fmt.Fprintln(w, "Shards       :", cfg.Cache.Shards)
	fmt.Fprintln(w, "Families     :", len(families))
	fmt.Fprintln(w, "Pages/Family :", opts.pages)
	fmt.Fprintln(w, "Workers      :", opts.workers)
	fmt.Fprintln(w, "Reads/Worker :", opts.requests)
	fmt.Fprintln(w, "---------------------------------")

	fmt.Fprintln(w, "Warming up cache...")
	if err := a.store.Warm(cmd.Context()); err != nil {
		fmt.Fprintln(w, "Warmup incomplete:", err)
	}

	var failed, stale atomic.Int64
	start := time.Now()

	g, ctx := errgroup.WithContext(cmd.Context())
	for i := range opts.workers {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(i), uint64(start.UnixNano())))
			for range opts.requests {
				if err := ctx.Err(); err != nil {
					return err
				}
				family := families[rng.IntN(len(families))]
				q := adminapi.ListQuery{Page: 1 + rng.IntN(opts.pages)}
				res, err := a.store.Fetch(ctx, family, q)
				if err != nil {
					return err
				}
				if !res.OK() {
					failed.Add(1)
				} else if res.IsStale {
					stale.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	duration := time.Since(start)
	total := opts.workers * opts.requests

	fmt.Fprintln(w, "\n================ RESULTS =================")
	fmt.Fprintf(w, "Total Reads      : %d\n", total)
	fmt.Fprintf(w, "Total Time       : %v\n", duration)
	fmt.Fprintf(w, "Throughput       : %.2f reads/sec\n", float64(total)/duration.Seconds())
	fmt.Fprintf(w, "Failed           : %d\n", failed.Load())
	fmt.Fprintf(w, "Served Stale     : %d\n", stale.Load())
	fmt.Fprintf(w, "Cached Entries   : %d\n", a.cache.Len())
	if backend != nil {
		fmt.Fprintf(w, "Backend Requests : %d\n", backend.TotalHits())
	}
	fmt.Fprintln(w, "=========================================")
	return nil
}
