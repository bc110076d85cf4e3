// Command proxycache runs the method cache against a configured store.
//
//	proxycache --backend sturdyc demo
//	proxycache --config proxycache.yaml keys
//	PROXYCACHE_LOG=debug proxycache --backend redis --redis-url redis://localhost:6379/0 demo
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-proxy-cache/internal/logging"
)

func main() {
	os.Exit(realMain(context.Background(), os.Args))
}

func realMain(ctx context.Context, args []string) int {
	if err := logging.Init(os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	app := newApp(configPath(args))
	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// configPath finds the config file before flag parsing, since the YAML
// sources of the other flags need it.
func configPath(args []string) string {
	for i := 1; i < len(args); i++ {
		arg := args[i]
		for _, name := range []string{"--config", "-c"} {
			if arg == name && i+1 < len(args) {
				return args[i+1]
			}
			if v, ok := strings.CutPrefix(arg, name+"="); ok {
				return v
			}
		}
		if arg == "--" {
			break
		}
	}
	return os.Getenv("PROXYCACHE_CONFIG")
}
