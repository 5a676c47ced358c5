package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/yearn/yprice-go/internal/config"
	"github.com/yearn/yprice-go/internal/store"
)

// newDBCmd builds the `db info|vacuum|clear|nuke` command group (spec §6.3).
func newDBCmd() *cobra.Command {
	db := &cobra.Command{
		Use:   "db",
		Short: "Inspect and maintain the local price database",
	}
	db.AddCommand(newDBInfoCmd(), newDBVacuumCmd(), newDBClearCmd(), newDBNukeCmd())
	return db
}

func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	st, err := store.Open(store.Config{
		Provider:   cfg.DBProvider,
		ChainID:    cfg.ChainID,
		SQLitePath: cfg.SQLitePath,
		DBHost:     cfg.DBHost,
		DBPort:     cfg.DBPort,
		DBUser:     cfg.DBUser,
		DBPassword: cfg.DBPassword,
		DBName:     cfg.DBName,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Bind(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func newDBInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print a row count per table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			rows, err := st.Info(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", r.Table, r.Rows)
			}
			return nil
		},
	}
}

func newDBVacuumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Reclaim disk space / refresh the query planner's statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Vacuum(cmd.Context())
		},
	}
}

// resolveToken accepts either a hex address or a known token symbol,
// matching spec §6.3's "--token ADDR|SYM".
func resolveToken(ctx context.Context, st *store.Store, arg string) (common.Address, error) {
	if common.IsHexAddress(arg) {
		return common.HexToAddress(arg), nil
	}
	addr, ok, err := st.TokenBySymbol(ctx, arg)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, fmt.Errorf("clear: no known token with symbol %q", arg)
	}
	return addr, nil
}

func newDBClearCmd() *cobra.Command {
	var tokenArg string
	var blockArg uint64
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached prices for one token or one block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (tokenArg == "") == (blockArg == 0) {
				return fmt.Errorf("clear: exactly one of --token or --block is required")
			}
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			if tokenArg != "" {
				addr, err := resolveToken(cmd.Context(), st, tokenArg)
				if err != nil {
					return err
				}
				return st.ClearToken(cmd.Context(), addr)
			}
			return st.ClearBlock(cmd.Context(), blockArg)
		},
	}
	cmd.Flags().StringVar(&tokenArg, "token", "", "token address to clear cached prices for")
	cmd.Flags().Uint64Var(&blockArg, "block", 0, "block number to clear cached prices at")
	return cmd
}

func newDBNukeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "nuke",
		Short: "Delete every row for the configured chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("nuke: refusing to run without --force")
			}
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Nuke(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the destructive reset")
	return cmd
}
