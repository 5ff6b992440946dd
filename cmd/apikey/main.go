// Command apikey manages DaaS API keys from the operator's shell.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wallet-radar/internal/auth"
	"wallet-radar/internal/config"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.NewManager(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := auth.NewStore(cfg.Get().Storage.APIKeysDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open key store")
	}
	defer store.Close()

	switch os.Args[1] {
	case "create":
		create(store, os.Args[2:])
	case "list":
		list(store)
	case "revoke":
		revoke(store, os.Args[2:])
	case "tier":
		setTier(store, os.Args[2:])
	case "subs":
		subs(store)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: apikey <command> [flags]

commands:
  create  -tier free|pro|elite [-ttl 720h]   mint a new key
  list                                        list stored keys
  revoke  -id N                               deactivate a key
  tier    -id N -tier free|pro|elite          change a key's tier
  subs                                        active subscriptions by tier`)
}

func create(store *auth.Store, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	tier := fs.String("tier", auth.TierFree, "key tier")
	ttl := fs.Duration("ttl", 0, "key lifetime, 0 = never expires")
	fs.Parse(args)

	key, id, err := store.CreateKey(*tier, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("key creation failed")
	}
	// plaintext is shown exactly once
	fmt.Printf("id: %d\ntier: %s\nkey: %s\n", id, *tier, key)
}

func list(store *auth.Store) {
	keys, err := store.ListKeys()
	if err != nil {
		log.Fatal().Err(err).Msg("key listing failed")
	}
	fmt.Printf("%-5s %-16s %-6s %-20s %-20s %s\n", "ID", "HASH", "TIER", "CREATED", "EXPIRES", "ACTIVE")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt > 0 {
			expires = time.Unix(k.ExpiresAt, 0).UTC().Format(time.RFC3339)
		}
		fmt.Printf("%-5d %-16s %-6s %-20s %-20s %v\n",
			k.ID, k.KeyHash[:16], k.Tier,
			time.Unix(k.CreatedAt, 0).UTC().Format(time.RFC3339),
			expires, k.IsActive)
	}
}

func revoke(store *auth.Store, args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	id := fs.Int64("id", 0, "key id")
	fs.Parse(args)
	if *id == 0 {
		log.Fatal().Msg("-id is required")
	}
	if err := store.DeactivateKey(*id); err != nil {
		log.Fatal().Err(err).Msg("revoke failed")
	}
	fmt.Printf("key %d deactivated\n", *id)
}

func setTier(store *auth.Store, args []string) {
	fs := flag.NewFlagSet("tier", flag.ExitOnError)
	id := fs.Int64("id", 0, "key id")
	tier := fs.String("tier", "", "new tier")
	fs.Parse(args)
	if *id == 0 || *tier == "" {
		log.Fatal().Msg("-id and -tier are required")
	}
	if err := store.SetKeyTier(*id, *tier); err != nil {
		log.Fatal().Err(err).Msg("tier change failed")
	}
	fmt.Printf("key %d moved to %s\n", *id, *tier)
}

func subs(store *auth.Store) {
	counts, err := store.ActiveSubscriptionCounts()
	if err != nil {
		log.Fatal().Err(err).Msg("subscription count failed")
	}
	for _, tier := range []string{auth.TierFree, auth.TierPro, auth.TierElite} {
		fmt.Printf("%-6s %d\n", tier, counts[tier])
	}
}
