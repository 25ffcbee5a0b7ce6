// wsmonitor sends application-level pings over a WebSocket connection
// and reports round-trip times. The exit code reflects success, so it
// doubles as a health check.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const defaultURL = "ws://127.0.0.1:3001/ws"

type pingRequest struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type pongResponse struct {
	Type  string  `json:"type"`
	Token *string `json:"token"`
}

func main() {
	verbose := flag.Bool("v", false, "print response times")
	count := flag.Int("count", 1, "number of pings to send")
	flag.Usage = usage
	flag.Parse()

	url := defaultURL
	if flag.NArg() > 0 {
		url = flag.Arg(0)
	}

	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		if *verbose {
			fmt.Fprintf(os.Stderr, "Failed to connect to %s: %v\n", url, err)
		}
		os.Exit(1)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if *verbose {
		fmt.Fprintf(os.Stderr, "PING %s (%d pings)\n", url, *count)
	}

	var (
		success int
		total   float64
		minTime = math.MaxFloat64
		maxTime float64
	)

	for seq := 1; seq <= *count; seq++ {
		token := uuid.NewString()
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)

		start := time.Now()
		if err := wsjson.Write(reqCtx, conn, pingRequest{Type: "ping", Token: token}); err != nil {
			cancel()
			if *verbose {
				fmt.Fprintf(os.Stderr, "seq=%d: send failed\n", seq)
			}
			continue
		}

		ms, ok := awaitPong(reqCtx, conn, token, start)
		cancel()
		if !ok {
			if *verbose {
				fmt.Fprintf(os.Stderr, "seq=%d: timeout\n", seq)
			}
			continue
		}

		success++
		total += ms
		minTime = math.Min(minTime, ms)
		maxTime = math.Max(maxTime, ms)
		if *verbose {
			fmt.Printf("seq=%d: time=%.2fms\n", seq, ms)
		}

		if seq < *count {
			time.Sleep(100 * time.Millisecond)
		}
	}

	if *verbose && *count > 1 {
		loss := float64(*count-success) / float64(*count) * 100
		fmt.Fprintf(os.Stderr, "\n--- %s ping statistics ---\n", url)
		fmt.Fprintf(os.Stderr, "%d pings, %d received, %.0f%% loss\n", *count, success, loss)
		if success > 0 {
			fmt.Fprintf(os.Stderr, "rtt min/avg/max = %.2f/%.2f/%.2f ms\n",
				minTime, total/float64(success), maxTime)
		}
	}

	if success != *count {
		os.Exit(1)
	}
}

// awaitPong reads frames until the pong carrying our token arrives or
// the context expires. Pongs for other tokens are never mistaken for
// ours.
func awaitPong(ctx context.Context, conn *websocket.Conn, token string, start time.Time) (float64, bool) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return 0, false
		}
		var pong pongResponse
		if json.Unmarshal(data, &pong) != nil {
			continue
		}
		if pong.Type == "pong" && pong.Token != nil && *pong.Token == token {
			return float64(time.Since(start).Microseconds()) / 1000, true
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: wsmonitor [OPTIONS] [URL]\n\n")
	fmt.Fprintf(os.Stderr, "Arguments:\n  [URL]  WebSocket server URL (default: %s)\n\n", defaultURL)
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExit codes:\n  0  All pings successful\n  1  Connection or ping failed\n")
}
