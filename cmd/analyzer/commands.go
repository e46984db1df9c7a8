package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coldbell/walletrank/backend/internal/dashboard"
	"github.com/coldbell/walletrank/backend/internal/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "analyzer",
		Short:         "rank Solana wallets by trading performance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			collector := metrics.New()
			svc, err := a.newPipeline(ctx, collector)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)
			if a.cfg.MetricsAddr != "" {
				g.Go(func() error {
					return collector.Serve(ctx, a.cfg.MetricsAddr, a.logger)
				})
			}
			g.Go(func() error {
				return svc.Run(ctx)
			})
			return g.Wait()
		},
	}
	root.AddCommand(newRefreshCommand(), newDashboardCommand())
	return root
}

func newRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <address>",
		Short: "recompute one wallet from its own history and update the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid wallet address %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.newPipeline(ctx, metrics.New())
			if err != nil {
				return err
			}
			snapshot, err := svc.RefreshWallet(ctx, address.String())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		},
	}
}

func newDashboardCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "print the current leaderboard as a text dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return errors.New("--limit must be >= 0")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.LeaderboardCap
			}
			wallets, err := a.cache.GetRankedList(ctx, limit)
			if err != nil {
				return err
			}
			return dashboard.Render(cmd.OutOrStdout(), dashboard.Generate(wallets))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "wallets to include (defaults to the leaderboard cap)")
	return cmd
}
