package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-proxy-cache/proxy"
)

var errNoSuchUser = errors.New("no such user")

// directory is the demo target: a user list with reads worth caching.
type directory struct {
	mu    sync.Mutex
	users []string
}

func newDirectory() *directory {
	return &directory{users: []string{"Alice", "Bob", "Carol"}}
}

func (d *directory) GetUsers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.users)
}

func (d *directory) GetUser(name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.Contains(d.users, name) {
		return "", errNoSuchUser
	}
	return name, nil
}

func (d *directory) CountUsers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

func (d *directory) AddUser(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = append(d.users, name)
}

func (d *directory) DeleteUser(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := slices.Index(d.users, name)
	if i < 0 {
		return false
	}
	d.users = slices.Delete(d.users, i, i+1)
	return true
}

var (
	directoryCached      = []string{"get_users", "get_user", "count_users"}
	directoryInvalidates = map[string][]string{
		"delete_user": {"get_users", "get_user", "count_users"},
		"add_user":    {"get_users", "count_users"},
	}
)

type step struct {
	method string
	args   []any
}

var scenario = []step{
	{method: "get_users"},
	{method: "get_users"},
	{method: "get_user", args: []any{"Bob"}},
	{method: "count_users"},
	{method: "delete_user", args: []any{"Bob"}},
	{method: "get_users"},
	{method: "get_user", args: []any{"Bob"}},
	{method: "count_users"},
	{method: "add_user", args: []any{"Dave"}},
	{method: "get_users"},
	{method: "count_users"},
}

func (s step) String() string {
	parts := make([]string, len(s.args))
	for i, a := range s.args {
		if str, ok := a.(string); ok {
			parts[i] = strconv.Quote(str)
		} else {
			parts[i] = fmt.Sprint(a)
		}
	}
	return s.method + "(" + strings.Join(parts, ", ") + ")"
}

// runScenario plays the steps against p and reports where each result came
// from, using counters installed on p.
func runScenario(ctx context.Context, w io.Writer, p *proxy.Proxy, counters *proxy.Counters, steps []step) error {
	for _, s := range steps {
		hits := counters.Hits(s.method)
		purged := counters.InvalidatedKeys(s.method)

		result, err := p.Call(ctx, s.method, s.args...)

		var out string
		switch {
		case err != nil && !errors.Is(err, errNoSuchUser):
			return fmt.Errorf("%s: %w", s, err)
		case err != nil:
			out = "error: " + err.Error()
		case result == nil:
			out = "ok"
		default:
			out = fmt.Sprint(result)
		}

		strategy, _ := p.Strategy(s.method)
		var source string
		switch {
		case strategy == proxy.StrategyInvalidate:
			source = fmt.Sprintf("purged %d", counters.InvalidatedKeys(s.method)-purged)
		case counters.Hits(s.method) > hits:
			source = "cache"
		default:
			source = "target"
		}

		fmt.Fprintf(w, "%s -> %s (%s)\n", s, out, source)
	}
	return nil
}
