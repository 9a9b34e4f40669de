package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/seed"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/store"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/config"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/database"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/jwtutil"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var filePath string
	var skipMigrate bool

	flagSet := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flagSet.StringVarP(&filePath, "file", "f", "seed.yaml", "path to the YAML catalog")
	flagSet.BoolVar(&skipMigrate, "skip-migrate", false, "do not run schema migrations before seeding")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.InitLogger(cfg); err != nil {
		return err
	}
	log := logger.GetLogger()
	defer log.Sync()

	catalog, err := seed.LoadFile(filePath)
	if err != nil {
		return err
	}

	var st store.Store
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn("Seeding the in-memory store; nothing persists after exit")
		st = store.NewMemory(log)
	} else {
		db, err := database.Open(&cfg.DB, log)
		if err != nil {
			return err
		}
		defer database.Close(db)
		if !skipMigrate {
			if err := database.Migrate(db); err != nil {
				return err
			}
		}
		st = store.NewGorm(db)
	}

	res, err := catalog.Apply(context.Background(), st, log)
	if err != nil {
		return err
	}

	tokens := jwtutil.NewJWTUtil(&cfg.JWT)
	keys := make([]string, 0, len(res.Users))
	for key := range res.Users {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		u := res.Users[key]
		email := ""
		if u.Email != nil {
			email = *u.Email
		}
		token, err := tokens.GenerateToken(email, u.ID)
		if err != nil {
			return fmt.Errorf("sign token for %s: %w", key, err)
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", key, u.ID, u.Role, token)
	}
	log.Info("Seeding completed",
		zap.Int("companies", len(res.Companies)),
		zap.Int("users", len(res.Users)),
		zap.Int("containers", len(res.Containers)))
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Seed the marketplace store from a YAML catalog.

Connection settings come from the same environment (and .env file) as the
server. One line per seeded user is printed: key, id, role and a signed
bearer token. Users given a password can also log in through
POST /auth/login.

Usage:
  seed [flags]

Flags:
`)
	flagSet.PrintDefaults()
}
