// Package metrics provides a lightweight Prometheus-compatible metrics
// registry for WallCue. It deliberately avoids the prometheus/client_golang
// package so the server binary stays small with no additional dependencies.
//
// Calling Registry.Handler() returns an http.Handler that renders all
// counters in the Prometheus exposition format (text/plain; version=0.0.4).
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// ─── Counter ─────────────────────────────────────────────────────────────────

// Counter is a single monotone counter.
type Counter struct {
	v atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.v.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.v.Add(n) }

// Value returns the current count.
func (c *Counter) Value() int64 { return c.v.Load() }

// ─── labelCounter ─────────────────────────────────────────────────────────────

// labelCounter is a lock-free, label-keyed counter map backed by sync.Map and
// atomic.Int64 values. Keys are tab-separated label tuples so a single map
// holds every label combination without nesting.
type labelCounter struct {
	vals sync.Map // key string → *atomic.Int64
}

func (lc *labelCounter) get(key string) *atomic.Int64 {
	v, _ := lc.vals.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Inc increments the counter for key by 1.
func (lc *labelCounter) Inc(key string) { lc.get(key).Add(1) }

// Each calls fn for every key/value pair. The order is non-deterministic.
func (lc *labelCounter) Each(fn func(key string, val int64)) {
	lc.vals.Range(func(k, v any) bool {
		fn(k.(string), v.(*atomic.Int64).Load())
		return true
	})
}

// ─── Registry ─────────────────────────────────────────────────────────────────

// Registry holds all WallCue application metrics.
type Registry struct {
	// Message lifecycle.
	MessagesAdded      Counter
	MessagesDispatched Counter
	MessagesDeduped    Counter
	MessagesExpired    Counter
	MessagesCancelled  Counter

	// OSC wire traffic.
	OSCDatagramsSent Counter
	OSCSendErrors    Counter

	// Peer sync.
	EnvelopesIn    Counter
	EnvelopesOut   Counter
	DecodeFailures Counter

	// HTTP API. key = "method\tpath\tstatus"
	HTTPReqs labelCounter
}

// HTTPKey builds the label key used by HTTPReqs.
func HTTPKey(method, path, status string) string {
	return method + "\t" + path + "\t" + status
}

// HTTPInc records one HTTP request.
func (r *Registry) HTTPInc(method, path, status string) {
	r.HTTPReqs.Inc(HTTPKey(method, path, status))
}

// ─── Prometheus text serialisation ────────────────────────────────────────────

// Handler returns an http.Handler that renders all metrics in the Prometheus
// plain-text exposition format (text/plain; version=0.0.4).
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		var b strings.Builder

		scalar := func(name, help string, c *Counter) {
			fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
			fmt.Fprintf(&b, "# TYPE %s counter\n", name)
			fmt.Fprintf(&b, "%s %d\n", name, c.Value())
		}

		scalar("wallcue_messages_added_total", "Total messages added to the queue", &r.MessagesAdded)
		scalar("wallcue_messages_dispatched_total", "Total messages pushed to the wall", &r.MessagesDispatched)
		scalar("wallcue_messages_deduped_total", "Total dispatches suppressed by the dedup ledger", &r.MessagesDeduped)
		scalar("wallcue_messages_expired_total", "Total messages expired by countdown or supersession", &r.MessagesExpired)
		scalar("wallcue_messages_cancelled_total", "Total messages cancelled", &r.MessagesCancelled)
		scalar("wallcue_osc_datagrams_sent_total", "Total OSC datagrams sent to the video engine", &r.OSCDatagramsSent)
		scalar("wallcue_osc_send_errors_total", "Total OSC datagram send failures", &r.OSCSendErrors)
		scalar("wallcue_sync_envelopes_in_total", "Total peer envelopes received", &r.EnvelopesIn)
		scalar("wallcue_sync_envelopes_out_total", "Total peer envelopes broadcast", &r.EnvelopesOut)
		scalar("wallcue_sync_decode_failures_total", "Total inbound envelopes dropped as malformed", &r.DecodeFailures)

		writeFamily(&b, "wallcue_http_requests_total",
			"Total HTTP requests by method, path, and status code", "counter",
			func(fn func(labels, val string)) {
				r.HTTPReqs.Each(func(key string, val int64) {
					method, path, status := splitThree(key)
					fn(fmt.Sprintf(`method=%q,path=%q,status=%q`, method, path, status),
						fmt.Sprintf("%d", val))
				})
			})

		fmt.Fprint(w, b.String())
	})
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// writeFamily writes a single Prometheus metric family to b.
// fill is called with a writer function that appends individual label+value lines.
func writeFamily(
	b *strings.Builder,
	name, help, typ string,
	fill func(fn func(labels, val string)),
) {
	var lines []string
	fill(func(labels, val string) {
		lines = append(lines, fmt.Sprintf("%s{%s} %s\n", name, labels, val))
	})
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	for _, l := range lines {
		b.WriteString(l)
	}
}

// splitTwo splits a tab-delimited key of the form "a\tb" into (a, b).
func splitTwo(key string) (string, string) {
	i := strings.IndexByte(key, '\t')
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// splitThree splits a tab-delimited key "a\tb\tc" into (a, b, c).
func splitThree(key string) (string, string, string) {
	a, rest := splitTwo(key)
	b, c := splitTwo(rest)
	return a, b, c
}
