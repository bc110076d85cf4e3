// Package logging sets up apex/log for the command line tools.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// EnvLevel is the environment variable holding the log level.
const EnvLevel = "PROXYCACHE_LOG"

const defaultLevel = log.ErrorLevel

// Init installs a Handler writing to w and sets the level from EnvLevel.
// An unknown level keeps the default, error, and is reported.
func Init(w io.Writer) error {
	log.SetHandler(NewHandler(w))

	level, err := Level(os.Getenv(EnvLevel))
	log.SetLevel(level)
	return err
}

// Level parses name, falling back to error when it is empty or unknown.
func Level(name string) (log.Level, error) {
	if name == "" {
		return defaultLevel, nil
	}
	level, err := log.ParseLevel(strings.ToLower(name))
	if err != nil {
		return defaultLevel, fmt.Errorf("%s=%q: %w", EnvLevel, name, err)
	}
	return level, nil
}

// Handler writes one line per entry: timestamp, level initial, message and
// the fields in name order.
type Handler struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func NewHandler(w io.Writer) *Handler {
	return &Handler{w: w, now: time.Now}
}

// HandleLog implements log.Handler.
func (h *Handler) HandleLog(e *log.Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1s %s", h.now().Format(time.DateTime), strings.ToUpper(e.Level.String()), e.Message)
	for _, name := range e.Fields.Names() {
		fmt.Fprintf(&b, " %s=%v", name, e.Fields.Get(name))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}
