package observ

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	out io.Writer = os.Stdout
)

// SetOutput redirects log output (used by tests).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Log emits one JSON line per event. Every field in kv is flattened into the
// top-level object alongside ts and event.
func Log(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	kv["event"] = event
	b, _ := json.Marshal(kv)
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(out, string(b))
}
