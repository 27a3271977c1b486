package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc"

	"github.com/SimplyPrint/lpa-bridge/internal/logging"
	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
)

// Notifier posts download progress events to caller-supplied URLs. Every
// event is sent on its own goroutine; delivery is best effort and failures
// are only logged.
type Notifier struct {
	client  *http.Client
	metrics *Metrics
	wg      conc.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewNotifier returns a Notifier whose requests time out after timeout.
func NewNotifier(timeout time.Duration, m *Metrics) *Notifier {
	return &Notifier{
		client:  &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// Notify sends ev to url in the background and returns immediately. Events
// arriving after Wait has started are dropped.
func (n *Notifier) Notify(url string, ev lpa.DownloadEvent) {
	if url == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		logging.Debug(logging.CatCallback, "Callback dropped during shutdown", map[string]any{
			"url":   url,
			"state": ev.State,
		})
		return
	}
	n.wg.Go(func() {
		if err := n.post(url, ev); err != nil {
			n.metrics.RecordCallback("error")
			logging.Debug(logging.CatCallback, "Callback delivery failed", map[string]any{
				"url":   url,
				"state": ev.State,
				"error": err.Error(),
			})
			return
		}
		n.metrics.RecordCallback("ok")
	})
}

func (n *Notifier) post(url string, ev lpa.DownloadEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Wait stops accepting new events and blocks until every pending delivery
// has finished. A panic inside a delivery goroutine is logged rather than
// propagated.
func (n *Notifier) Wait() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	if r := n.wg.WaitAndRecover(); r != nil {
		logging.Error(logging.CatCallback, "Callback goroutine panicked", map[string]any{
			"panic": fmt.Sprint(r.Value),
			"stack": string(r.Stack),
		})
	}
}
