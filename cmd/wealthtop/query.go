package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wealthtop/internal/persistence/history"
	"wealthtop/internal/persistence/indexdb"
	"wealthtop/internal/render"
	"wealthtop/internal/stats"
	"wealthtop/internal/wealth"
)

func newRankCmd(f *rootFlags) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Run one leaderboard pass over the world and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			h, err := startHost(ctx, f)
			if err != nil {
				return err
			}
			defer h.Close()

			snap, err := h.app.Rank(ctx)
			if err != nil {
				return err
			}
			return render.WriteLeaderboard(cmd.OutOrStdout(), snap, page, h.cfg.Leaderboard.PositionsPerPage)
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page to print")
	return cmd
}

func newStatsCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <player|group>",
		Short: "Compute and print the wealth breakdown of one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			h, err := startHost(ctx, f)
			if err != nil {
				return err
			}
			defer h.Close()

			type outcome struct {
				rep stats.Reply
				err error
			}
			ch := make(chan outcome, 1)
			_ = h.app.Lookup(ctx, "cli", args[0], func(rep stats.Reply, err error) {
				ch <- outcome{rep, err}
			})
			var out outcome
			select {
			case out = <-ch:
			case <-ctx.Done():
				return ctx.Err()
			}
			if out.err != nil {
				return out.err
			}
			info := h.app.Measure(ctx, args[0])
			w := cmd.OutOrStdout()
			for _, line := range render.StatsLines(out.rep.Record, nil) {
				fmt.Fprintln(w, line)
			}
			fmt.Fprintf(w, "  claims: %d (%d cells)\n", info.Claims, info.Cells)
			return nil
		},
	}
}

func newHistoryCmd(f *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recorded leaderboard passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.config()
			if err != nil {
				return err
			}
			passes, err := history.ReadDir(cfg.Path("history"))
			if err != nil {
				return err
			}
			if limit > 0 && len(passes) > limit {
				passes = passes[len(passes)-limit:]
			}
			w := cmd.OutOrStdout()
			for _, p := range passes {
				fmt.Fprintf(w, "%s  run=%s  entries=%d\n", p.BuiltAt.Format(time.RFC3339), p.RunID, len(p.Entries))
				for _, e := range p.Entries[:min(len(p.Entries), 3)] {
					fmt.Fprintf(w, "    %d. %s - %s\n", e.Position, e.Name, wealth.FormatValue(e.Total))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "newest passes to print (0 for all)")
	return cmd
}

func newStandingCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "standing <name>",
		Short: "Print the stored standing of one entity from the sqlite index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config()
			if err != nil {
				return err
			}
			log, err := f.logger()
			if err != nil {
				return err
			}
			idx, err := indexdb.OpenSQLite(cfg.Path("wealthtop.sqlite"), log)
			if err != nil {
				return err
			}
			defer idx.Close()

			st, err := idx.Latest(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s #%d total %s (run %s, %s)\n", st.Name, st.Position,
				wealth.FormatValue(st.Total), st.RunID, st.ComputedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "  balance %s  land %s  inventory %s\n",
				wealth.FormatValue(st.Balance), wealth.FormatValue(st.Land), wealth.FormatValue(st.Inventory))
			for name, v := range st.External {
				fmt.Fprintf(w, "  %s %s\n", name, wealth.FormatValue(v))
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	var baseURL string
	var trigger bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running server's admin status, or trigger a pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, method := "/admin/v1/status", http.MethodGet
			if trigger {
				path, method = "/admin/v1/rank", http.MethodPost
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
			req, err := http.NewRequestWithContext(ctx, method, u, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
			if resp.StatusCode/100 != 2 {
				return errors.New(resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")
	cmd.Flags().BoolVar(&trigger, "trigger", false, "start a manual pass instead")
	return cmd
}
