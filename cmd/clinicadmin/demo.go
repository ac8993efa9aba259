package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/krisalay/clinic-swr-cache/internal/adminapi"
	"github.com/krisalay/clinic-swr-cache/internal/adminstore"
	"github.com/krisalay/clinic-swr-cache/internal/config"
	"github.com/krisalay/clinic-swr-cache/internal/fakebackend"
	"github.com/krisalay/clinic-swr-cache/refresh"
	"github.com/krisalay/clinic-swr-cache/types"
)

// demoTTL is short so the walkthrough shows staleness without waiting minutes.
const demoTTL = 300 * time.Millisecond

func newDemoCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through the cache behaviour against an in-process fake backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), *cfg)
		},
	}
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n==================== %s ====================\n", title)
}

func runDemo(ctx context.Context, w io.Writer, cfg config.Config) error {
	gin.SetMode(gin.ReleaseMode)
	backend := fakebackend.New()
	srv := httptest.NewServer(backend.Handler())
	defer srv.Close()

	cfg.Backend.BaseURL = srv.URL
	cfg.Backend.RateLimit = 0
	cfg.Invalidation.Mode = config.InvalidateImmediate
	cfg.Cache.Families = map[string]config.FamilyConfig{
		adminstore.FamilyStats:   {TTL: time.Minute, Cooldown: time.Second},
		adminstore.FamilyDoctors: {TTL: demoTTL, Cooldown: time.Second},
		adminstore.FamilyOrders:  {TTL: demoTTL, Cooldown: time.Second},
	}

	section(w, "SYSTEM BOOT")
	fmt.Fprintln(w, "BACKEND         :", srv.URL)
	fmt.Fprintln(w, "SHARDS          :", cfg.Cache.Shards)
	fmt.Fprintln(w, "EVICTION POLICY :", cfg.Cache.EvictionPolicy())
	fmt.Fprintln(w, "DOCTORS TTL     :", demoTTL)

	a, err := newApp(&cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer a.close()

	var mu sync.Mutex
	var events []string
	cancel := a.cache.Subscribe("", func(e refresh.Event) {
		if e.Family == "http" {
			return
		}
		mu.Lock()
		events = append(events, fmt.Sprintf("%s %s", e.Kind, e.Key))
		mu.Unlock()
	})
	defer cancel()

	s := a.store
	all := adminapi.ListQuery{}

	section(w, "1) CACHE MISS")
	res := s.Doctors(ctx, all)
	if res.Err != nil {
		return res.Err
	}
	fmt.Fprintf(w, "CACHE  → GET doctors: %d items, source=%s\n", len(res.Value.Items), res.Source)

	section(w, "2) CACHE HIT")
	res = s.Doctors(ctx, all)
	fmt.Fprintf(w, "CACHE  → GET doctors: source=%s stale=%v\n", res.Source, res.IsStale)
	fmt.Fprintln(w, "BACKEND → /admin/doctors requests:", backend.Hits("/admin/doctors"))

	section(w, "3) IN-FLIGHT SHARING")
	backend.SetLatency(100 * time.Millisecond)
	var wg sync.WaitGroup
	var outMu sync.Mutex
	for i := range 5 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r := s.Medicines(ctx, all)
			outMu.Lock()
			defer outMu.Unlock()
			if r.Err != nil {
				fmt.Fprintf(w, "GOROUTINE-%d → GET medicines failed: %v\n", id, r.Err)
				return
			}
			fmt.Fprintf(w, "GOROUTINE-%d → GET medicines: %d items, source=%s\n", id, len(r.Value.Items), r.Source)
		}(i)
	}
	wg.Wait()
	backend.SetLatency(0)
	fmt.Fprintln(w, "BACKEND → /admin/medicines requests:", backend.Hits("/admin/medicines"))

	section(w, "4) STALE WHILE REVALIDATE")
	time.Sleep(demoTTL + 50*time.Millisecond)
	res = s.Doctors(ctx, all)
	fmt.Fprintf(w, "CACHE  → GET doctors after TTL: source=%s stale=%v (served at once)\n", res.Source, res.IsStale)
	a.cache.Wait()
	res = s.Doctors(ctx, all)
	fmt.Fprintf(w, "CACHE  → GET doctors after revalidation: stale=%v\n", res.IsStale)
	fmt.Fprintln(w, "BACKEND → /admin/doctors requests:", backend.Hits("/admin/doctors"))

	section(w, "5) FAILURE AND COOLDOWN")
	backend.Fail("/admin/orders", http.StatusInternalServerError)
	orders := s.Orders(ctx, all)
	fmt.Fprintln(w, "CACHE  → GET orders:", orders.Err)
	orders = s.Orders(ctx, all)
	fmt.Fprintf(w, "CACHE  → GET orders again: unavailable=%v\n", errors.Is(orders.Err, types.ErrUnavailable))
	fmt.Fprintln(w, "BACKEND → /admin/orders requests:", backend.Hits("/admin/orders"))
	backend.Recover("/admin/orders")

	section(w, "6) MUTATION INVALIDATES")
	if r := s.Stats(ctx); r.Err == nil {
		fmt.Fprintf(w, "CACHE  → GET stats: doctors=%d\n", r.Value.Doctors)
	}
	if _, err := s.CreateDoctor(ctx, adminapi.DoctorInput{
		Name: "Dr. Kavya Menon", Email: "kavya@clinic.test", Specialization: "neurology", Fee: 900,
	}); err != nil {
		return err
	}
	fmt.Fprintln(w, "API    → POST doctor")
	_, _, cached := a.cache.Peek(adminstore.KeyFor(adminstore.FamilyStats, all))
	fmt.Fprintln(w, "CACHE  → stats still cached:", cached)
	if r := s.Stats(ctx); r.Err == nil {
		fmt.Fprintf(w, "CACHE  → GET stats: doctors=%d source=%s\n", r.Value.Doctors, r.Source)
	}

	section(w, "NOTIFICATIONS")
	a.cache.Wait()
	mu.Lock()
	for _, e := range events {
		fmt.Fprintln(w, "EVENT  →", e)
	}
	mu.Unlock()

	section(w, "METRICS")
	if err := printMetrics(w, a); err != nil {
		return err
	}

	section(w, "SHUTDOWN")
	fmt.Fprintln(w, "SYSTEM → cache closed cleanly")
	return nil
}

// printMetrics prints the cache counters, one line per metric and family.
func printMetrics(w io.Writer, a *app) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}

	var lines []string
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, "clinic_admin_cache_") || !strings.HasSuffix(name, "_total") {
			continue
		}
		for _, m := range mf.GetMetric() {
			family := ""
			for _, l := range m.GetLabel() {
				if l.GetName() == "family" {
					family = l.GetValue()
				}
			}
			lines = append(lines, fmt.Sprintf("%-45s %-14s %v",
				strings.TrimPrefix(name, "clinic_admin_cache_"), family, m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	return nil
}
