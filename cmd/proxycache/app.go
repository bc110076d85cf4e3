package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/goliatone/go-proxy-cache/cache"
	"github.com/goliatone/go-proxy-cache/pkg/di"
	"github.com/goliatone/go-proxy-cache/proxy"
)

// sources reads a flag from env first, then from the YAML config file at
// path under key.
func sources(path, key, env string) cli.ValueSourceChain {
	chain := []cli.ValueSource{cli.EnvVar(env)}
	if path != "" {
		chain = append(chain, yaml.YAML(key, altsrc.StringSourcer(path)))
	}
	return cli.NewValueSourceChain(chain...)
}

func newApp(configPath string) *cli.Command {
	defaults := cache.DefaultConfig()

	return &cli.Command{
		Name:  "proxycache",
		Usage: "exercise the method cache against a configured store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				Sources: cli.NewValueSourceChain(cli.EnvVar("PROXYCACHE_CONFIG")),
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "store backend: memory, sturdyc or redis",
				Sources: sources(configPath, "backend", "PROXYCACHE_BACKEND"),
				Value:   string(defaults.Backend),
			},
			&cli.DurationFlag{
				Name:    "ttl",
				Usage:   "lifetime of cached results",
				Sources: sources(configPath, "ttl", "PROXYCACHE_TTL"),
				Value:   defaults.TTL,
			},
			&cli.StringFlag{
				Name:    "registry-key",
				Usage:   "store key of the method registry",
				Sources: sources(configPath, "registry_key", "PROXYCACHE_REGISTRY_KEY"),
				Value:   defaults.RegistryKey,
			},
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Usage:   "key namespace",
				Sources: sources(configPath, "namespace", "PROXYCACHE_NAMESPACE"),
				Value:   "demo",
			},
			&cli.BoolFlag{
				Name:    "exact",
				Usage:   "match invalidation prefixes on whole method names",
				Sources: sources(configPath, "exact_match", "PROXYCACHE_EXACT"),
			},
			&cli.IntFlag{
				Name:    "capacity",
				Usage:   "sturdyc capacity",
				Sources: sources(configPath, "sturdyc.capacity", "PROXYCACHE_CAPACITY"),
				Value:   defaults.Sturdyc.Capacity,
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "redis connection URL",
				Sources: sources(configPath, "redis.url", "PROXYCACHE_REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-prefix",
				Usage:   "redis key prefix",
				Sources: sources(configPath, "redis.prefix", "PROXYCACHE_REDIS_PREFIX"),
			},
			&cli.StringFlag{
				Name:    "redis-codec",
				Usage:   "redis value codec: msgpack or json",
				Sources: sources(configPath, "redis.codec", "PROXYCACHE_REDIS_CODEC"),
				Value:   defaults.Redis.Codec,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "demo",
				Usage:  "run the user directory scenario",
				Action: demoAction,
			},
			{
				Name:   "keys",
				Usage:  "list registered cache keys",
				Action: keysAction,
			},
			{
				Name:      "purge",
				Usage:     "purge cached entries of the given method prefixes",
				ArgsUsage: "PREFIX...",
				Action:    purgeAction,
			},
			{
				Name:   "config",
				Usage:  "print the effective configuration",
				Action: configAction,
			},
		},
	}
}

func configFromCommand(cmd *cli.Command) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Backend = cache.Backend(cmd.String("backend"))
	cfg.TTL = cmd.Duration("ttl")
	cfg.RegistryKey = cmd.String("registry-key")
	cfg.Sturdyc.Capacity = int(cmd.Int("capacity"))
	cfg.Redis.URL = cmd.String("redis-url")
	cfg.Redis.Prefix = cmd.String("redis-prefix")
	cfg.Redis.Codec = cmd.String("redis-codec")
	cfg.CleanupInterval = 0
	// The registry must outlive the entries it tracks.
	cfg.RegistryTTL = max(cfg.RegistryTTL, cfg.TTL)
	return cfg
}

func proxyOptions(cmd *cli.Command) []proxy.Option {
	opts := []proxy.Option{
		proxy.WithLogger(log.Log),
		proxy.WithNamespace(cmd.String("namespace")),
	}
	if cmd.Bool("exact") {
		opts = append(opts, proxy.WithExactMethodMatch())
	}
	return opts
}

func openContainer(ctx context.Context, cmd *cli.Command) (*di.Container, error) {
	container, err := di.NewContainer(ctx, configFromCommand(cmd), proxyOptions(cmd)...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return container, nil
}

func demoAction(ctx context.Context, cmd *cli.Command) error {
	container, err := openContainer(ctx, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	counters := proxy.NewCounters()
	p, err := container.NewProxy(newDirectory(), directoryCached, directoryInvalidates, proxy.WithMetrics(counters))
	if err != nil {
		return err
	}

	// Entries left by an earlier run against a shared store would turn
	// every first read into a hit.
	if _, err := p.Registry().Purge(ctx, proxy.MatchPrefix, ""); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"backend":   container.Config().Backend,
		"namespace": p.Engine().Namespace(),
	}).Info("running scenario")

	return runScenario(ctx, cmd.Root().Writer, p, counters, scenario)
}

func keysAction(ctx context.Context, cmd *cli.Command) error {
	container, err := openContainer(ctx, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	engine, err := container.NewEngine()
	if err != nil {
		return err
	}
	keys, err := engine.Registry().Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Fprintln(cmd.Root().Writer, key)
	}
	return nil
}

func purgeAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return errors.New("purge needs at least one method prefix")
	}

	container, err := openContainer(ctx, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	engine, err := container.NewEngine()
	if err != nil {
		return err
	}
	purged, err := engine.Purge(ctx, cmd.Args().Slice()...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "purged %d keys\n", len(purged))
	return nil
}

func configAction(_ context.Context, cmd *cli.Command) error {
	cfg := configFromCommand(cmd)
	w := cmd.Root().Writer

	fmt.Fprintf(w, "backend: %s\n", cfg.Backend)
	fmt.Fprintf(w, "ttl: %s\n", cfg.TTL)
	fmt.Fprintf(w, "registry_key: %s\n", cfg.RegistryKey)
	fmt.Fprintf(w, "registry_ttl: %s\n", cfg.RegistryTTL)
	fmt.Fprintf(w, "namespace: %s\n", cmd.String("namespace"))
	fmt.Fprintf(w, "exact_match: %t\n", cmd.Bool("exact"))
	if cfg.Backend == cache.BackendRedis {
		fmt.Fprintf(w, "redis.url: %s\n", cfg.Redis.URL)
		fmt.Fprintf(w, "redis.codec: %s\n", cfg.Redis.Codec)
	}
	return cfg.Validate()
}
