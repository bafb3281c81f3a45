// Command srtla-sender runs the SRTLA mobile-side sender core standalone,
// relaying one local SRT stream across the uplinks named on the command
// line to a remote SRTLA server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/srtla-go/sender/core"
	"github.com/srtla-go/sender/link"
	"github.com/srtla-go/sender/metrics"
	"github.com/srtla-go/sender/supervisor"
)

// linkSpec is one --link flag value: virtualip=transport@local_ip, e.g.
// "cell0=cellular@10.0.0.4". Discovering interfaces automatically is
// out of scope; the operator names each uplink's local
// address explicitly instead.
type linkSpec struct {
	virtualIP string
	transport link.Transport
	localIP   string
}

func parseLinkSpec(s string) (linkSpec, error) {
	vip, rest, ok := strings.Cut(s, "=")
	if !ok {
		return linkSpec{}, fmt.Errorf("missing '=' in %q", s)
	}
	transport, localIP, ok := strings.Cut(rest, "@")
	if !ok {
		return linkSpec{}, fmt.Errorf("missing '@' in %q", s)
	}
	return linkSpec{virtualIP: vip, transport: link.ParseTransport(transport), localIP: localIP}, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "srtla-sender:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listenPort = flag.Int("listen-port", 4001, "UDP port the local SRT encoder sends to")
		serverHost = flag.String("server-host", "", "SRTLA server hostname or IP")
		serverPort = flag.Int("server-port", 5000, "SRTLA server port")
		metricsAddr = flag.String("metrics-addr", ":9090", "address to serve Prometheus metrics on")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
		linkFlags  = flag.StringArray("link", nil, "virtualip=transport@local_ip, repeatable")
	)
	flag.Parse()

	if *serverHost == "" {
		return fmt.Errorf("-server-host is required")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid -log-level %q: %w", *logLevel, err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	specs := make([]linkSpec, 0, len(*linkFlags))
	for _, raw := range *linkFlags {
		spec, err := parseLinkSpec(raw)
		if err != nil {
			return fmt.Errorf("-link %q: %w", raw, err)
		}
		specs = append(specs, spec)
	}

	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		return fmt.Errorf("register metrics collector: %w", err)
	}
	go serveMetrics(*metricsAddr, reg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sup := supervisor.New(supervisor.Options{
		ListenPort: *listenPort,
		ServerHost: *serverHost,
		ServerPort: *serverPort,
		OnStatus: func(status string) {
			log.Info(status)
		},
		OnStats: collector.Update,
		OnRegErr: func(virtualIP string) {
			log.Warn("link registration rejected by server", slog.String("virtual_ip", virtualIP))
		},
		OnLinkRemoved: collector.Forget,
		OnCoreReady: func(c *core.Core) {
			dialLinks(ctx, c, *serverHost, *serverPort, specs, log)
		},
	}, log)

	return sup.Run(ctx)
}

func dialLinks(ctx context.Context, c *core.Core, serverHost string, serverPort int, specs []linkSpec, log *slog.Logger) {
	serverAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", serverHost, serverPort))
	if err != nil {
		log.Error("resolve server address for links", slog.String("err", err.Error()))
		return
	}
	for _, spec := range specs {
		localAddr, err := net.ResolveUDPAddr("udp4", spec.localIP+":0")
		if err != nil {
			log.Error("resolve local link address", slog.String("virtual_ip", spec.virtualIP), slog.String("err", err.Error()))
			continue
		}
		conn, err := net.DialUDP("udp4", localAddr, serverAddr)
		if err != nil {
			log.Error("dial link", slog.String("virtual_ip", spec.virtualIP), slog.String("err", err.Error()))
			continue
		}
		added, err := c.AddLink(conn, spec.virtualIP, 0, spec.transport)
		if err != nil || !added {
			log.Warn("link rejected", slog.String("virtual_ip", spec.virtualIP))
			conn.Close()
			continue
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server exited", slog.String("err", err.Error()))
	}
}
