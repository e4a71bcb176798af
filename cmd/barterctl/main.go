package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"barter-service/config"
	"barter-service/internal/auth"
	"barter-service/internal/models"
	"barter-service/internal/redisclient"
	"barter-service/internal/sequence"
	"barter-service/internal/service"
	"barter-service/internal/store"
	"barter-service/internal/util"

	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "barterctl",
	Short:         "operator tooling for the barter service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		return util.InitLogger(cfg.Server.Env)
	},
}

var tokenFlags struct {
	id    int64
	email string
	ttl   time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "mint a bearer token for a principal",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenFlags.id < 1 || tokenFlags.email == "" {
			return fmt.Errorf("--id and --email are required")
		}
		ttl := tokenFlags.ttl
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}

		token, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, ttl).
			GenerateToken(models.Principal{ID: tokenFlags.id, Email: tokenFlags.email})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var allocateFlags struct {
	name    string
	backend string
}

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "allocate the next id from a counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		backend := allocateFlags.backend
		if backend == "" {
			backend = cfg.Business.SequenceBackend
		}

		src := sequence.Sources{MongoURI: cfg.Mongo.URI, MongoDatabase: cfg.Mongo.Database}
		switch backend {
		case sequence.BackendRedis:
			rc, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer rc.Close()
			src.Redis = rc
		case sequence.BackendMongo:
		default:
			db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			src.SQL = db
		}

		allocator, closeAllocator, err := sequence.Open(ctx, backend, src)
		if err != nil {
			return err
		}
		defer closeAllocator(context.Background())

		id, err := allocator.Allocate(ctx, allocateFlags.name)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var sweepTimeout time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "release orphaned trading items once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		timeout := sweepTimeout
		if timeout <= 0 {
			timeout = cfg.Business.OrphanLockTimeout
		}

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		released, err := service.NewSweeper(db, nil, timeout, cfg.Business.SweepInterval).SweepOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "released %d orphaned items\n", released)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenFlags.id, "id", 0, "principal id")
	tokenCmd.Flags().StringVar(&tokenFlags.email, "email", "", "principal email")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 0, "token lifetime (defaults to JWT_TTL_HOURS)")

	allocateCmd.Flags().StringVar(&allocateFlags.name, "name", models.CounterTrades, "counter name")
	allocateCmd.Flags().StringVar(&allocateFlags.backend, "backend", "", "sql, redis or mongo (defaults to SEQUENCE_BACKEND)")

	sweepCmd.Flags().DurationVar(&sweepTimeout, "timeout", 0, "release items trading longer than this (defaults to ORPHAN_LOCK_TIMEOUT_SECONDS)")

	rootCmd.AddCommand(tokenCmd, allocateCmd, sweepCmd)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	util.SyncLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*store.Store, error) {
	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
