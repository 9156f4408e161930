package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/loadtest/client"
	"github.com/Kunalchandra007/SuddenConnect/internal/loadtest/stats"
	"github.com/Kunalchandra007/SuddenConnect/internal/pairing"
	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
)

var (
	industries = []string{"Technology", "Finance", "Healthcare", "Education", "Design"}
	languages  = []string{"English", "Spanish", "Hindi", "French"}
	topics     = []string{"go", "rust", "startups", "ml", "design", "music", "hiring", "cloud"}
)

type options struct {
	url         string
	metricsURL  string
	clients     int
	ramp        time.Duration
	concurrency int
	wait        time.Duration
	profiles    bool
}

func parseOptions(name string, args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&o.url, "url", "ws://localhost:8080/ws", "WebSocket endpoint")
	fs.StringVar(&o.metricsURL, "metrics-url", "http://localhost:8080/metrics", "Prometheus endpoint, empty to skip scraping")
	fs.IntVar(&o.clients, "clients", 1000, "number of simulated participants")
	fs.DurationVar(&o.ramp, "ramp", 10*time.Second, "time over which connections are opened")
	fs.IntVar(&o.concurrency, "concurrency", 50, "maximum simultaneous dial attempts")
	fs.DurationVar(&o.wait, "wait", 30*time.Second, "how long to wait for pairing or to hold connections")
	fs.BoolVar(&o.profiles, "profiles", true, "send random matching preferences on connect")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.clients <= 0 || o.concurrency <= 0 {
		return o, fmt.Errorf("loadtest: -clients and -concurrency must be positive")
	}
	return o, nil
}

// randomProfile builds connect query parameters for participant i.
func randomProfile(r *rand.Rand, i int, withPrefs bool) url.Values {
	q := url.Values{"name": {"lt-" + strconv.Itoa(i)}}
	if !withPrefs {
		return q
	}
	q.Set("industry", industries[r.Intn(len(industries))])
	q.Set("language", languages[r.Intn(len(languages))])
	q.Set("level", pairing.ExperienceLevels[r.Intn(len(pairing.ExperienceLevels))])

	picked := make([]string, 0, 3)
	for _, idx := range r.Perm(len(topics))[:1+r.Intn(3)] {
		picked = append(picked, topics[idx])
	}
	q.Set("interests", strings.Join(picked, ","))
	return q
}

// connectAll opens o.clients connections spread over o.ramp and calls setup
// on each before its session is confirmed.
func connectAll(ctx context.Context, o options, collector *stats.Collector, setup func(c *client.Client, start time.Time)) []*client.Client {
	interval := o.ramp / time.Duration(o.clients)
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		mu      sync.Mutex
		clients = make([]*client.Client, 0, o.clients)
		wg      sync.WaitGroup
		sem     = make(chan struct{}, o.concurrency)
		r       = rand.New(rand.NewSource(time.Now().UnixNano()))
	)

	for i := 0; i < o.clients; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			return clients
		case <-ticker.C:
		}

		query := randomProfile(r, i, o.profiles)
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			start := time.Now()
			c, err := client.New(dialCtx, o.url, query)
			if err != nil {
				collector.AddError()
				return
			}
			if setup != nil {
				setup(c, start)
			}
			if err := c.WaitForSession(dialCtx); err != nil {
				collector.AddError()
				_ = c.Close()
				return
			}
			collector.AddConnect(c.Metrics().ConnectLatency)

			mu.Lock()
			clients = append(clients, c)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return clients
}

func startScraper(ctx context.Context, o options, collector *stats.Collector) func() {
	if o.metricsURL == "" {
		return func() {}
	}
	s := stats.NewScraper(o.metricsURL, 2*time.Second)
	collector.SetScraper(s)
	s.Start(ctx)
	return s.Stop
}

func closeAll(clients []*client.Client) {
	for _, c := range clients {
		_ = c.Close()
	}
}

func runSaturate(args []string) error {
	o, err := parseOptions("saturate", args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	stopScraper := startScraper(ctx, o, collector)

	fmt.Printf("Saturate: %d connections to %s over %s\n", o.clients, o.url, o.ramp)
	clients := connectAll(ctx, o, collector, nil)
	fmt.Printf("Holding %d connections for %s\n", len(clients), o.wait)

	select {
	case <-ctx.Done():
	case <-time.After(o.wait):
	}

	closed := 0
	for _, c := range clients {
		select {
		case <-c.Done():
			closed++
		default:
		}
	}
	fmt.Printf("%d connections were dropped by the server while held\n", closed)

	closeAll(clients)
	stopScraper()
	collector.Report(os.Stdout)
	return nil
}

// runPair connects participants and waits for send-offer. With chat set,
// every paired participant also sends one chat message and times its echo
// through the room.
func runPair(args []string, chat bool) error {
	name := "pair"
	if chat {
		name = "chat"
	}
	o, err := parseOptions(name, args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	stopScraper := startScraper(ctx, o, collector)

	var paired, echoed, timedOut atomic.Int64
	setup := func(c *client.Client, start time.Time) {
		var sentAt atomic.Int64

		c.On(protocol.EventSendOffer, func(data json.RawMessage) {
			collector.Observe("pair", time.Since(start))
			paired.Add(1)
			if !chat {
				return
			}
			var offer protocol.SendOfferMsg
			if json.Unmarshal(data, &offer) != nil {
				return
			}
			sentAt.Store(time.Now().UnixNano())
			if err := c.Send(protocol.EventChatMessage, protocol.ChatMessageMsg{
				RoomID: offer.RoomID,
				Text:   "hello from " + c.ID(),
			}); err != nil {
				collector.AddError()
			}
		})
		c.On(protocol.EventChatMessage, func(data json.RawMessage) {
			var msg protocol.ServerChatMsg
			if json.Unmarshal(data, &msg) != nil || msg.From != c.ID() {
				return
			}
			if at := sentAt.Swap(0); at != 0 {
				collector.Observe("chat", time.Since(time.Unix(0, at)))
				echoed.Add(1)
			}
		})
		c.On(protocol.EventQueueTimeout, func(json.RawMessage) {
			timedOut.Add(1)
		})
		c.On(protocol.EventError, func(data json.RawMessage) {
			collector.AddError()
		})
	}

	fmt.Printf("%s: %d participants to %s over %s (profiles=%v)\n", name, o.clients, o.url, o.ramp, o.profiles)
	clients := connectAll(ctx, o, collector, setup)
	fmt.Printf("Connected %d/%d, waiting up to %s for pairing\n", len(clients), o.clients, o.wait)

	target := int64(len(clients) - len(clients)%2)
	deadline := time.After(o.wait)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
wait:
	for {
		done := paired.Load() >= target
		if chat {
			done = done && echoed.Load() >= target
		}
		if done {
			break
		}
		select {
		case <-ctx.Done():
			break wait
		case <-deadline:
			break wait
		case <-ticker.C:
			fmt.Printf("  paired: %d/%d  echoed: %d  timeouts: %d  errors: %d\n",
				paired.Load(), target, echoed.Load(), timedOut.Load(), collector.ErrorCount())
		}
	}

	closeAll(clients)
	stopScraper()
	collector.Report(os.Stdout)
	return nil
}
