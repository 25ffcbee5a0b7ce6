// wsbench opens many concurrent connections and floods the server with
// chat traffic, measuring throughput and echo latency percentiles from
// the server-confirmed copies of its own messages.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"
)

var opts struct {
	url      string
	clients  int
	rate     int
	duration time.Duration
	quiet    bool
	flood    bool
}

var phrases = []string{
	"Hallo, hoe gaat het?",
	"De zon schijnt vandaag!",
	"Wat een mooi weer.",
	"Ik ben aan het testen.",
	"Dit is een benchmark bericht.",
	"Hello from the benchmark tool!",
	"Testing WebSocket performance.",
	"Random message number",
	"How fast can we go?",
	"Stress testing in progress...",
	"The quick brown fox jumps over the lazy dog.",
	"Lorem ipsum dolor sit amet.",
	"WebSocket verbinding werkt prima.",
	"Server response time check.",
	"Latency measurement ongoing.",
}

type benchStats struct {
	connected atomic.Uint64
	sent      atomic.Uint64
	received  atomic.Uint64
	errors    atomic.Uint64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *benchStats) recordLatency(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

type chatOut struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type nameOut struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type chatIn struct {
	Type string `json:"type"`
	From string `json:"from"`
	Text string `json:"text"`
}

func main() {
	root := &cobra.Command{
		Use:   "wsbench",
		Short: "WebSocket benchmark tool for stress testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	root.Flags().StringVar(&opts.url, "url", "ws://127.0.0.1:3001/ws", "WebSocket server URL")
	root.Flags().IntVar(&opts.clients, "clients", 10, "number of concurrent clients")
	root.Flags().IntVar(&opts.rate, "rate", 60, "messages per minute per client")
	root.Flags().DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	root.Flags().BoolVar(&opts.quiet, "quiet", false, "only show summary")
	root.Flags().BoolVar(&opts.flood, "flood", false, "send as fast as possible, ignoring --rate")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	stats := &benchStats{}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < opts.clients; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := runClient(ctx, idx, stats); err != nil && ctx.Err() == nil {
				stats.errors.Add(1)
			}
		}(i)
	}

	if !opts.quiet {
		go progress(ctx, stats)
	}

	wg.Wait()
	elapsed := time.Since(start)
	summarize(stats, elapsed)
	return nil
}

func runClient(ctx context.Context, idx int, stats *benchStats) error {
	conn, _, err := websocket.Dial(ctx, opts.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	stats.connected.Add(1)

	name := fmt.Sprintf("bench-%d-%04d", idx, rand.Intn(10000))
	if err := wsjson.Write(ctx, conn, nameOut{Type: "setName", Name: name}); err != nil {
		return err
	}

	// Pending echo timestamps keyed by the nonced message text; only
	// this client's goroutines touch it.
	var pendingMu sync.Mutex
	pending := make(map[string]time.Time)

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			var in chatIn
			if json.Unmarshal(data, &in) != nil || in.Type != "chat" || in.From != name {
				continue
			}
			pendingMu.Lock()
			sentAt, ok := pending[in.Text]
			if ok {
				delete(pending, in.Text)
			}
			pendingMu.Unlock()
			if ok {
				stats.received.Add(1)
				stats.recordLatency(time.Since(sentAt))
			}
		}
	}()

	interval := time.Duration(0)
	if !opts.flood && opts.rate > 0 {
		interval = time.Minute / time.Duration(opts.rate)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		default:
		}

		text := randomPhrase()
		pendingMu.Lock()
		pending[text] = time.Now()
		pendingMu.Unlock()

		if err := wsjson.Write(ctx, conn, chatOut{Type: "chat", Text: text}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		stats.sent.Add(1)

		if interval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(jitter(interval)):
			}
		}
	}
}

// randomPhrase appends a nonce so every message is unique and echo
// matching never collides across sends.
func randomPhrase() string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = byte('a' + rand.Intn(26))
	}
	return phrases[rand.Intn(len(phrases))] + string(suffix)
}

// jitter spreads send instants by ±30% so clients do not phase-lock.
func jitter(base time.Duration) time.Duration {
	variance := int64(float64(base) * 0.3)
	if variance <= 0 {
		return base
	}
	offset := rand.Int63n(2*variance+1) - variance
	d := time.Duration(int64(base) + offset)
	if d < 100*time.Microsecond {
		d = 100 * time.Microsecond
	}
	return d
}

func progress(ctx context.Context, stats *benchStats) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Printf("connected=%d sent=%d received=%d errors=%d\n",
				stats.connected.Load(), stats.sent.Load(), stats.received.Load(), stats.errors.Load())
		}
	}
}

func summarize(stats *benchStats, elapsed time.Duration) {
	sent := stats.sent.Load()
	received := stats.received.Load()

	fmt.Printf("\n--- benchmark summary ---\n")
	fmt.Printf("clients:    %d\n", opts.clients)
	fmt.Printf("duration:   %.1fs\n", elapsed.Seconds())
	fmt.Printf("sent:       %d (%.1f msg/s)\n", sent, float64(sent)/elapsed.Seconds())
	fmt.Printf("received:   %d (%.1f msg/s)\n", received, float64(received)/elapsed.Seconds())
	fmt.Printf("errors:     %d\n", stats.errors.Load())

	stats.mu.Lock()
	latencies := stats.latencies
	stats.mu.Unlock()
	if len(latencies) == 0 {
		return
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	fmt.Printf("latency p50: %.2fms\n", toMS(percentile(latencies, 50)))
	fmt.Printf("latency p95: %.2fms\n", toMS(percentile(latencies, 95)))
	fmt.Printf("latency p99: %.2fms\n", toMS(percentile(latencies, 99)))
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func toMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
