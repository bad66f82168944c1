// ts-probe receives a wfdcast stream over UDP, SRT or QUIC (or reads a .ts
// file), strips the RTP framing and prints the transport stream structure.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/zsiec/wfdcast/internal/certs"
	"github.com/zsiec/wfdcast/internal/ingest"
)

func main() {
	udpFlag := flag.String("udp", "", "Listen for RTP over UDP on this address (e.g. :19000)")
	srtFlag := flag.String("srt", "", "Listen for RTP over SRT on this address")
	quicFlag := flag.String("quic", "", "Listen for RTP over QUIC datagrams on this address")
	fileFlag := flag.String("file", "", "Probe a .ts file instead of listening")
	verboseFlag := flag.Bool("v", false, "Print every PES and PCR")
	durationFlag := flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *durationFlag > 0 {
		ctx, cancel = context.WithTimeout(ctx, *durationFlag)
		defer cancel()
	}

	if *fileFlag != "" {
		if err := probeFile(ctx, *fileFlag, *verboseFlag); err != nil {
			fmt.Fprintf(os.Stderr, "ts-probe: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *udpFlag == "" && *srtFlag == "" && *quicFlag == "" {
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  ts-probe -udp :19000           Receive RTP over UDP\n")
		fmt.Fprintf(os.Stderr, "  ts-probe -srt :19000           Receive RTP over SRT\n")
		fmt.Fprintf(os.Stderr, "  ts-probe -quic :19000          Receive RTP over QUIC datagrams\n")
		fmt.Fprintf(os.Stderr, "  ts-probe -file capture.ts      Probe a transport stream file\n")
		os.Exit(1)
	}

	var mu sync.Mutex
	// Probes run on registry goroutines; inflight lets main wait for
	// their summaries after the listeners stop.
	var inflight atomic.Int32
	registry := ingest.NewRegistry(func(key string, input io.Reader, transport ingest.Transport) {
		inflight.Add(1)
		defer inflight.Add(-1)
		s, err := probe(ctx, key, input, lockedWriter{&mu, os.Stdout}, *verboseFlag)
		io.Copy(io.Discard, input)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			fmt.Fprintf(os.Stdout, "[%s] probe error: %v\n", key, err)
		}
		s.print(key, os.Stdout)
	})

	var servers []func(context.Context) error
	if *udpFlag != "" {
		servers = append(servers, ingest.NewUDPServer(*udpFlag, registry, nil).Start)
	}
	if *srtFlag != "" {
		servers = append(servers, ingest.NewSRTServer(*srtFlag, registry, nil).Start)
	}
	if *quicFlag != "" {
		cert, err := certs.Generate(24 * time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ts-probe: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("QUIC certificate fingerprint: %s\n", cert.FingerprintHex())
		servers = append(servers, ingest.NewQUICServer(*quicFlag, cert, registry, nil).Start)
	}

	errc := make(chan error, len(servers))
	for _, start := range servers {
		go func() { errc <- start(ctx) }()
	}
	for range servers {
		if err := <-errc; err != nil {
			fmt.Fprintf(os.Stderr, "ts-probe: %v\n", err)
			cancel()
		}
	}
	for deadline := time.Now().Add(2 * time.Second); inflight.Load() > 0 && time.Now().Before(deadline); {
		time.Sleep(20 * time.Millisecond)
	}
}

func probeFile(ctx context.Context, path string, verbose bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s, err := probe(ctx, path, f, os.Stdout, verbose)
	if err != nil {
		return err
	}
	s.print(path, os.Stdout)
	return nil
}

// lockedWriter serializes output from concurrent probes.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
