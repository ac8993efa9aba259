package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	cache "github.com/krisalay/clinic-swr-cache"
	"github.com/krisalay/clinic-swr-cache/internal/adminapi"
	"github.com/krisalay/clinic-swr-cache/internal/config"
	"github.com/krisalay/clinic-swr-cache/internal/log"
)

func newFetchCmd(cfg *config.Config) *cobra.Command {
	var q adminapi.ListQuery

	cmd := &cobra.Command{
		Use:   "fetch <family>",
		Short: "Fetch one resource family through the cache and print it as JSON",
		Example: `  clinicadmin fetch doctors --search rao
  clinicadmin fetch orders --status pending --page 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log.GetLogger())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.store.Fetch(cmd.Context(), args[0], q)
			if err != nil {
				return fmt.Errorf("%w (known families: %v)", err, a.store.Families())
			}
			if !res.OK() {
				return res.Err
			}

			out, err := json.MarshalIndent(struct {
				Data      any          `json:"data"`
				Source    cache.Source `json:"source"`
				FetchedAt string       `json:"fetchedAt"`
			}{res.Value, res.Source, res.FetchedAt.Format(time.RFC3339)}, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().IntVar(&q.Page, "page", 0, "page number")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&q.Search, "search", "", "search filter")
	cmd.Flags().StringVar(&q.Status, "status", "", "status filter")
	return cmd
}
