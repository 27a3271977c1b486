package bridge

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
)

func TestNotifierPostsEvent(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	var contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(data, &body))
		mu.Lock()
		bodies = append(bodies, body)
		contentType = r.Header.Get("Content-Type")
		mu.Unlock()
	}))
	defer srv.Close()

	m := NewMetrics(prometheus.NewRegistry())
	n := NewNotifier(time.Second, m)

	addr, mid := "smdp.example.com", "ABC"
	n.Notify(srv.URL, lpa.DownloadEvent{
		Timestamp:  1700000000,
		State:      "Downloading",
		Progress:   60,
		Address:    &addr,
		MatchingID: &mid,
	})
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	body := bodies[0]
	require.Equal(t, "application/json", contentType)
	require.Equal(t, float64(1700000000), body["timestamp"])
	require.Equal(t, "Downloading", body["state"])
	require.Equal(t, float64(60), body["progress"])
	require.Equal(t, "smdp.example.com", body["address"])
	require.Equal(t, "ABC", body["matchingId"])

	for _, key := range []string{"confirmationCode", "imei"} {
		v, present := body[key]
		require.True(t, present, "%s must be sent as null", key)
		require.Nil(t, v)
	}

	require.Equal(t, float64(1), testutil.ToFloat64(m.CallbacksTotal.WithLabelValues("ok")))
}

func TestNotifierSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewMetrics(prometheus.NewRegistry())
	n := NewNotifier(time.Second, m)

	n.Notify(srv.URL, lpa.DownloadEvent{State: "Preparing"})
	n.Notify("://not a url", lpa.DownloadEvent{State: "Preparing"})
	n.Notify("http://127.0.0.1:1/unreachable", lpa.DownloadEvent{State: "Preparing"})
	n.Wait()

	require.Equal(t, float64(3), testutil.ToFloat64(m.CallbacksTotal.WithLabelValues("error")))
}

func TestNotifierDoesNotBlockCaller(t *testing.T) {
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-unblock
	}))
	defer srv.Close()

	n := NewNotifier(5*time.Second, nil)

	start := time.Now()
	for i := 0; i < 5; i++ {
		n.Notify(srv.URL, lpa.DownloadEvent{State: "Connecting"})
	}
	require.Less(t, time.Since(start), 500*time.Millisecond)

	close(unblock)
	n.Wait()
}

func TestNotifierEmptyURL(t *testing.T) {
	n := NewNotifier(time.Second, nil)
	n.Notify("", lpa.DownloadEvent{})
	n.Wait()
}

func TestNotifierDropsEventsAfterWait(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	m := NewMetrics(prometheus.NewRegistry())
	n := NewNotifier(time.Second, m)

	n.Notify(srv.URL, lpa.DownloadEvent{State: "Preparing"})
	n.Wait()
	n.Notify(srv.URL, lpa.DownloadEvent{State: "Connecting"})
	n.Wait()

	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, float64(1), testutil.ToFloat64(m.CallbacksTotal.WithLabelValues("ok")))
}

func TestNotifierConcurrentNotifyAndWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	n := NewNotifier(time.Second, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				n.Notify(srv.URL, lpa.DownloadEvent{State: "Downloading"})
			}
		}()
	}
	n.Wait()
	wg.Wait()
	n.Wait()
}
