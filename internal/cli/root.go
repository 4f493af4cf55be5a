// Package cli implements seatctl, the operator command line for the seat
// ledger.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/seat-hold-engine/internal/clock"
	"github.com/iliyamo/seat-hold-engine/internal/config"
	"github.com/iliyamo/seat-hold-engine/internal/database"
	"github.com/iliyamo/seat-hold-engine/internal/ledger"
	"github.com/iliyamo/seat-hold-engine/internal/model"
	"github.com/iliyamo/seat-hold-engine/internal/repository"
	"github.com/iliyamo/seat-hold-engine/internal/utils"
)

// EngineOpener returns an engine and a function that releases it.
type EngineOpener func(ctx context.Context) (*ledger.Engine, func(), error)

// MySQLEngine opens the engine described by cfg.  The memory driver is
// refused because a separate process cannot see the server's state.
func MySQLEngine(cfg config.Config) EngineOpener {
	return func(ctx context.Context) (*ledger.Engine, func(), error) {
		if cfg.LedgerDriver != config.DriverMySQL {
			return nil, nil, fmt.Errorf("seatctl needs LEDGER_DRIVER=%s, got %q", config.DriverMySQL, cfg.LedgerDriver)
		}
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mysql: %w", err)
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		engine := ledger.NewEngine(repository.NewDefaultSeatLedger(db), clock.Real{}, cfg.Layout)
		return engine, func() { _ = db.Close() }, nil
	}
}

// NewRootCmd builds the seatctl command tree.  secret signs the tokens
// minted by the token command.
func NewRootCmd(open EngineOpener, secret string) *cobra.Command {
	root := &cobra.Command{
		Use:           "seatctl",
		Short:         "Seat ledger operator CLI",
		Long:          `Inspect occupancy, release holds, purge expired holds and mint service tokens.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		purgeCmd(open),
		occupiedCmd(open),
		releaseCmd(open),
		reservationsCmd(open),
		tokenCmd(secret),
	)
	return root
}

// Execute runs seatctl with the process arguments and exits non-zero on
// failure.
func Execute(open EngineOpener, secret string) {
	if err := NewRootCmd(open, secret).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withEngine opens the engine for the duration of fn.
func withEngine(cmd *cobra.Command, open EngineOpener, fn func(ctx context.Context, e *ledger.Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, e)
}

// showArgs is the positional form of a show: movie date time room.
var showArgs = cobra.ExactArgs(4)

func showFromArgs(args []string) model.ShowKey {
	return model.ShowKey{MovieID: args[0], Date: args[1], Time: args[2], Room: args[3]}.Normalize()
}

func purgeCmd(open EngineOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every expired hold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, open, func(ctx context.Context, e *ledger.Engine) error {
				n, err := e.PurgeExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired holds\n", n)
				return nil
			})
		},
	}
}

func occupiedCmd(open EngineOpener) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "occupied MOVIE DATE TIME ROOM",
		Short: "List occupied seats of a show",
		Args:  showArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, open, func(ctx context.Context, e *ledger.Engine) error {
				seats, err := e.Occupied(ctx, showFromArgs(args), token)
				if err != nil {
					return err
				}
				if len(seats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no occupied seats")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(seats, ","))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "hold token whose own holds are not counted")
	return cmd
}

func releaseCmd(open EngineOpener) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "release MOVIE DATE TIME ROOM",
		Short: "Release every hold of a token on a show",
		Args:  showArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, open, func(ctx context.Context, e *ledger.Engine) error {
				n, err := e.ReleaseHold(ctx, token, showFromArgs(args))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "released %d seats\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "hold token to release")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func reservationsCmd(open EngineOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "reservations MOVIE DATE TIME ROOM",
		Short: "List confirmed reservations of a show",
		Args:  showArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, open, func(ctx context.Context, e *ledger.Engine) error {
				res, err := e.Reservations(ctx, showFromArgs(args))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, r := range res {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", r.Seat, r.Owner, r.PaymentRef, r.CreatedAt.Format(time.RFC3339))
				}
				fmt.Fprintf(out, "%d reservations\n", len(res))
				return nil
			})
		},
	}
}

func tokenCmd(secret string) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a service JWT for the payment service or an operator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			role = strings.ToUpper(strings.TrimSpace(role))
			if role != utils.RolePayments && role != utils.RoleOps {
				return fmt.Errorf("role must be %s or %s", utils.RolePayments, utils.RoleOps)
			}
			tok, err := utils.NewServiceToken(secret, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "seatctl", "token subject")
	cmd.Flags().StringVar(&role, "role", utils.RoleOps, "PAYMENTS or OPS")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
