// Command stream_load opens many concurrent frame subscribers against a
// running replay (websocket /ws or SSE /equity/stream) and reports delivery
// and eviction counts. With --play it starts playback so frames flow.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	frames      atomic.Int64
}

func (c *counters) String() string {
	return fmt.Sprintf("connected=%d connect_errs=%d stream_errs=%d frames=%d",
		c.connected.Load(), c.connectErrs.Load(), c.streamErrs.Load(), c.frames.Load())
}

func main() {
	var (
		baseURL      string
		mode         string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
		playSpeed    float64
	)

	flag.StringVar(&baseURL, "url", "http://127.0.0.1:8090", "replay server base URL")
	flag.StringVar(&mode, "mode", "ws", "subscriber kind: ws or sse")
	flag.IntVar(&connections, "conns", 200, "number of concurrent subscribers")
	flag.DurationVar(&testDuration, "dur", 30*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread subscriber starts across this window")
	flag.Float64Var(&playSpeed, "play", 0, "start playback at this speed before subscribing (0 leaves playback alone)")
	flag.Parse()

	if connections <= 0 {
		log.Fatalf("invalid conns: %d", connections)
	}
	if mode != "ws" && mode != "sse" {
		log.Fatalf("invalid mode: %s", mode)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if testDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, testDuration)
		defer stop()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 10,
			MaxIdleConnsPerHost: connections + 10,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	if playSpeed > 0 {
		if err := startPlayback(ctx, httpClient, baseURL, playSpeed); err != nil {
			log.Fatalf("start playback: %v", err)
		}
	}

	log.Printf("starting %s load: url=%s conns=%d duration=%s ramp=%s", mode, baseURL, connections, testDuration, rampUp)

	var (
		stats    counters
		wg       sync.WaitGroup
		start    = time.Now()
		interval time.Duration
	)
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if mode == "ws" {
				subscribeWS(ctx, baseURL, &stats)
				return
			}
			subscribeSSE(ctx, httpClient, baseURL, &stats)
		}()
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("status: %s elapsed=%s", stats.String(), time.Since(start).Truncate(time.Second))
			}
		}
	}()

	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("done: %s elapsed=%s frames/s=%.2f\n",
		stats.String(), elapsed.Truncate(time.Millisecond), float64(stats.frames.Load())/elapsed.Seconds())
}

func startPlayback(ctx context.Context, client *http.Client, baseURL string, speed float64) error {
	body, _ := json.Marshal(map[string]float64{"speed": speed})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/replay/play", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func subscribeWS(ctx context.Context, baseURL string, stats *counters) {
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	stats.connected.Add(1)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			// a closed context also ends the read loop
			if ctx.Err() == nil {
				stats.streamErrs.Add(1)
			}
			return
		}
		stats.frames.Add(1)
	}
}

func subscribeSSE(ctx context.Context, client *http.Client, baseURL string, stats *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/equity/stream", nil)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		stats.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		stats.connectErrs.Add(1)
		return
	}
	stats.connected.Add(1)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: ") {
			stats.frames.Add(1)
		}
	}
	if ctx.Err() == nil {
		stats.streamErrs.Add(1)
	}
}
