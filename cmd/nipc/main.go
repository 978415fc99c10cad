package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/nivrem/nipc"
	"github.com/nivrem/nipc/codec"
	"github.com/nivrem/nipc/config"
	"github.com/nivrem/nipc/metrics"
	"github.com/nivrem/nipc/middleware"
	"github.com/nivrem/nipc/pubsub"
	"github.com/nivrem/nipc/pubsub/nats"
	"github.com/nivrem/nipc/pubsub/p2p"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Version of the binary, assigned during build.
var Version = "dev"

// Options contains the flag options.
type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show node logging. Repeat for debug output."`
	Version bool   `long:"version" description:"Print version and exit."`
	Config  string `long:"config" description:"Path to a YAML config file."`
	Servers string `long:"servers" description:"Comma separated NATS server URLs. Overrides config and NATS_SERVERS."`
	ID      string `long:"id" description:"Node id of this process. Defaults to config or a generated id."`
	Codec   string `long:"codec" description:"Codec for call arguments and results. (json|msgpack)"`

	Transport string   `long:"transport" description:"Pubsub transport backend." choice:"nats" choice:"p2p" default:"nats"`
	P2PListen []string `long:"p2p-listen" description:"Multiaddr the libp2p host listens on. Repeatable."`
	P2PPeer   []string `long:"p2p-peer" description:"Bootstrap peer multiaddr. Repeatable."`
	P2PMDNS   bool     `long:"p2p-mdns" description:"Discover peers on the local network via mDNS."`
	P2PKey    string   `long:"p2p-key" description:"Path to the libp2p identity key. Created when missing."`

	Serve struct {
		Metrics string `long:"metrics" description:"Listen address of the prometheus endpoint. Overrides config."`
	} `command:"serve" description:"Run a demo node answering echo, add, sleep and methods."`

	Call struct {
		Timeout time.Duration `long:"timeout" description:"Time to wait for the reply. Defaults to the config timeout."`
		Args    struct {
			Target string   `positional-arg-name:"target" required:"yes" description:"Node id to call."`
			Method string   `positional-arg-name:"method" required:"yes" description:"Method name."`
			Args   []string `positional-arg-name:"arg" description:"Arguments, JSON encoded. Bare words pass as strings."`
		} `positional-args:"yes"`
	} `command:"call" description:"Call a method on a node and print the result."`

	Broadcast struct {
		Args struct {
			Channel string `positional-arg-name:"channel" required:"yes" description:"Channel to publish to."`
			Data    string `positional-arg-name:"data" required:"yes" description:"Payload, JSON encoded. Bare words pass as strings."`
		} `positional-args:"yes"`
	} `command:"broadcast" description:"Publish a message to a broadcast channel."`

	Listen struct {
		Args struct {
			Channels []string `positional-arg-name:"channel" required:"1" description:"Channels to subscribe to."`
		} `positional-args:"yes"`
	} `command:"listen" description:"Subscribe to broadcast channels and print incoming messages."`

	Bench struct {
		Target      string        `long:"target" description:"Node id to benchmark against." default:"demo"`
		Method      string        `long:"method" description:"Method to call with one string argument." default:"echo"`
		Iterations  int           `short:"n" long:"iterations" description:"Number of measured calls." default:"100"`
		Warmup      int           `long:"warmup" description:"Calls made before measuring starts." default:"10"`
		Size        int           `long:"size" description:"Payload size in bytes." default:"1000"`
		Concurrency []int         `short:"c" long:"concurrency" description:"Concurrent round sizes. Repeatable." default:"1" default:"10" default:"50"`
		Timeout     time.Duration `long:"timeout" description:"Per call timeout." default:"5s"`
	} `command:"bench" description:"Measure call latency against a running node."`
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	parser.SubcommandsOptional = true
	if _, err := parser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	if options.Version {
		fmt.Println(Version)
		return
	}
	if parser.Active == nil {
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}

	cmd := parser.Active.Name
	if err := run(cmd, options); err != nil {
		exit(2, "%s failed: %s\n", cmd, err)
	}
}

func run(cmd string, options Options) error {
	cfg, err := loadConfig(options)
	if err != nil {
		return err
	}
	log := newLogger(options, cfg, cmd)

	// cancel the root context on ctrl+c so nodes and transports shut down
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	pub, sub, cleanup, err := connect(ctx, options, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	switch cmd {
	case "serve":
		return serve(ctx, options, cfg, log, pub, sub)
	case "call":
		return call(ctx, options, cfg, log, pub, sub)
	case "broadcast":
		return broadcast(ctx, options, cfg, log, pub, sub)
	case "listen":
		return listen(ctx, options, cfg, log, pub, sub)
	case "bench":
		return bench(ctx, options, cfg, log, pub, sub)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func serve(ctx context.Context, options Options, cfg *config.Config, log *logrus.Logger,
	pub pubsub.Publisher, sub pubsub.Subscriber) error {
	id := cfg.NodeID
	if id == "" {
		id = "demo"
	}

	c := codec.Get(cfg.Codec)
	if c == nil {
		return fmt.Errorf("unknown codec %q", cfg.Codec)
	}
	logger := nipc.NewLogrusLogger(log)
	nodeOpts := []nipc.Option{
		nipc.WithID(id),
		nipc.WithLogger(logger),
		nipc.WithCodec(c),
		nipc.WithCallTimeout(cfg.Timeout),
		nipc.WithMiddleware(middleware.Logging(logger)),
	}

	metricsAddr := ""
	if cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.ListenAddr
	}
	if options.Serve.Metrics != "" {
		metricsAddr = options.Serve.Metrics
	}
	var prom *metrics.Prom
	if metricsAddr != "" {
		prom = metrics.NewProm()
		nodeOpts = append(nodeOpts, nipc.WithMetrics(prom))
	}

	node, err := nipc.NewNode(pub, sub, nodeOpts...)
	if err != nil {
		return err
	}
	if err := registerDemoMethods(node); err != nil {
		return err
	}
	defer node.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return node.Listen(ctx)
	})
	if prom != nil {
		srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(prom)}
		g.Go(func() error {
			log.Infof("metrics listening on %s", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			return srv.Shutdown(shutCtx)
		})
	}

	log.Infof("node %q serving methods: %s", node.ID(), strings.Join(node.Methods(), ", "))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerDemoMethods registers the handlers the bench and call commands are
// pointed at by default.
func registerDemoMethods(node *nipc.Node) error {
	if err := node.Register("echo", func(_ context.Context, args nipc.Args) (interface{}, error) {
		if len(args) == 0 {
			return nil, nil
		}
		var v interface{}
		if err := args.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}); err != nil {
		return err
	}

	if err := node.Register("add", func(_ context.Context, args nipc.Args) (interface{}, error) {
		var a, b float64
		if err := args.Decode(&a, &b); err != nil {
			return nil, err
		}
		return a + b, nil
	}); err != nil {
		return err
	}

	if err := node.Register("sleep", func(ctx context.Context, args nipc.Args) (interface{}, error) {
		var secs float64
		if err := args.Decode(&secs); err != nil {
			return nil, err
		}
		select {
		case <-time.After(time.Duration(secs * float64(time.Second))):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return map[string]interface{}{"completed": true, "duration": secs}, nil
	}); err != nil {
		return err
	}

	return node.Register("methods", func(context.Context, nipc.Args) (interface{}, error) {
		return node.Methods(), nil
	})
}

func call(ctx context.Context, options Options, cfg *config.Config, log *logrus.Logger,
	pub pubsub.Publisher, sub pubsub.Subscriber) error {
	node, err := clientNode(ctx, options, cfg, log, pub, sub)
	if err != nil {
		return err
	}
	defer node.Close()

	args := make([]interface{}, 0, len(options.Call.Args.Args))
	for _, raw := range options.Call.Args.Args {
		args = append(args, parseArg(raw))
	}

	timeout := options.Call.Timeout
	if timeout <= 0 {
		timeout = cfg.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result interface{}
	if err := node.Call(callCtx, options.Call.Args.Target, options.Call.Args.Method, &result, args...); err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func broadcast(ctx context.Context, options Options, cfg *config.Config, log *logrus.Logger,
	pub pubsub.Publisher, sub pubsub.Subscriber) error {
	node, err := clientNode(ctx, options, cfg, log, pub, sub)
	if err != nil {
		return err
	}
	defer node.Close()

	channel := options.Broadcast.Args.Channel
	if err := node.Broadcast(channel, parseArg(options.Broadcast.Args.Data)); err != nil {
		return err
	}
	// make sure the message left the process before disconnecting
	if err := sub.Flush(); err != nil {
		return err
	}
	log.Infof("published to %q", channel)
	return nil
}

func listen(ctx context.Context, options Options, cfg *config.Config, log *logrus.Logger,
	pub pubsub.Publisher, sub pubsub.Subscriber) error {
	node, err := clientNode(ctx, options, cfg, log, pub, sub)
	if err != nil {
		return err
	}
	defer node.Close()

	for _, channel := range options.Listen.Args.Channels {
		channel := channel
		if _, err := node.Subscribe(channel, func(_ context.Context, v nipc.Value) {
			var data interface{}
			if err := v.Decode(&data); err != nil {
				log.Errorf("undecodable message on %q: %v", channel, err)
				return
			}
			out, err := json.Marshal(data)
			if err != nil {
				log.Errorf("unprintable message on %q: %v", channel, err)
				return
			}
			fmt.Printf("%s %s\n", channel, out)
		}); err != nil {
			return err
		}
	}

	log.Infof("listening on %s", strings.Join(options.Listen.Args.Channels, ", "))
	<-ctx.Done()
	return nil
}

func bench(ctx context.Context, options Options, cfg *config.Config, log *logrus.Logger,
	pub pubsub.Publisher, sub pubsub.Subscriber) error {
	node, err := clientNode(ctx, options, cfg, log, pub, sub)
	if err != nil {
		return err
	}
	defer node.Close()

	b := options.Bench
	payload := strings.Repeat("x", b.Size)
	once := func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, b.Timeout)
		defer cancel()
		var got string
		return node.Call(callCtx, b.Target, b.Method, &got, payload)
	}

	// wait for the target to come up
	if err := nipc.Retry(ctx, nipc.RetryOptions{MaxRetries: 4, Delay: 250 * time.Millisecond}, once); err != nil {
		return fmt.Errorf("target %q not responding: %w", b.Target, err)
	}

	for i := 0; i < b.Warmup; i++ {
		if err := once(ctx); err != nil {
			return err
		}
	}

	latencies := make([]float64, 0, b.Iterations)
	for i := 0; i < b.Iterations; i++ {
		start := time.Now()
		if err := once(ctx); err != nil {
			return err
		}
		latencies = append(latencies, ms(time.Since(start)))
	}
	if len(latencies) > 0 {
		st := summarize(latencies)
		fmt.Printf("%s %dB x%d: mean %.2fms median %.2fms p95 %.2fms p99 %.2fms min %.2fms max %.2fms\n",
			b.Method, b.Size, len(latencies), st.mean, st.median, st.p95, st.p99, st.min, st.max)
	}

	for _, n := range b.Concurrency {
		if n <= 0 {
			continue
		}
		start := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < n; i++ {
			g.Go(func() error { return once(gctx) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
		elapsed := ms(time.Since(start))
		fmt.Printf("concurrency %3d: %7.2fms total, %.2fms per call\n", n, elapsed, elapsed/float64(n))
	}
	return nil
}

// clientNode builds and starts the node the client commands operate through.
func clientNode(ctx context.Context, options Options, cfg *config.Config, log *logrus.Logger,
	pub pubsub.Publisher, sub pubsub.Subscriber) (*nipc.Node, error) {
	c := codec.Get(cfg.Codec)
	if c == nil {
		return nil, fmt.Errorf("unknown codec %q", cfg.Codec)
	}

	opts := []nipc.Option{
		nipc.WithLogger(nipc.NewLogrusLogger(log)),
		nipc.WithCodec(c),
		nipc.WithCallTimeout(cfg.Timeout),
	}
	if cfg.NodeID != "" {
		opts = append(opts, nipc.WithID(cfg.NodeID))
	}

	node, err := nipc.NewNode(pub, sub, opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Run(ctx); err != nil {
		return nil, err
	}
	return node, nil
}

func connect(ctx context.Context, options Options, cfg *config.Config, log *logrus.Logger) (
	pubsub.Publisher, pubsub.Subscriber, func(), error) {
	if options.Transport == "p2p" {
		t, err := p2p.New(ctx, p2p.Options{
			ListenAddrs:     options.P2PListen,
			Bootstrap:       options.P2PPeer,
			Rendezvous:      "nipc",
			EnableMDNS:      options.P2PMDNS,
			IdentityKeyFile: options.P2PKey,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("start libp2p transport: %w", err)
		}
		log.Infof("libp2p peer %s listening on %s", t.PeerID(), strings.Join(t.ListenAddrs(), ", "))
		return t, t, func() { _ = t.Close() }, nil
	}

	conn, err := nats.Connect(cfg.Servers)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to %s: %w", strings.Join(cfg.Servers, ","), err)
	}
	return nats.Publisher(conn), nats.Subscriber(conn), conn.Close, nil
}

func loadConfig(options Options) (*config.Config, error) {
	cfg, err := config.Load(options.Config)
	if err != nil {
		return nil, err
	}
	if options.Servers != "" {
		cfg.Servers = config.SplitServers(options.Servers)
	}
	if options.ID != "" {
		cfg.NodeID = options.ID
	}
	if options.Codec != "" {
		cfg.Codec = options.Codec
	}
	return cfg, nil
}

// newLogger builds the process logger. serve follows the configured level,
// the client commands stay quiet unless -v is given.
func newLogger(options Options, cfg *config.Config, cmd string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := logrus.WarnLevel
	if cmd == "serve" {
		if l, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			level = l
		} else {
			level = logrus.InfoLevel
		}
	}
	switch n := len(options.Verbose); {
	case n == 1:
		level = logrus.InfoLevel
	case n >= 2:
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log
}

// parseArg reads a command line argument as JSON, falling back to a plain
// string so bare words work: nipc call demo echo hi
func parseArg(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func metricsMux(prom *metrics.Prom) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

type benchStats struct {
	min, max, mean, median, p95, p99 float64
}

func summarize(latencies []float64) benchStats {
	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	pick := func(q float64) float64 {
		i := int(float64(len(sorted)) * q)
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return sorted[i]
	}
	return benchStats{
		min:    sorted[0],
		max:    sorted[len(sorted)-1],
		mean:   sum / float64(len(sorted)),
		median: pick(0.5),
		p95:    pick(0.95),
		p99:    pick(0.99),
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}
