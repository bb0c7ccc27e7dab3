// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rtio/internal/audio"
	"rtio/internal/config"
	"rtio/internal/events"
	applog "rtio/internal/log"
	"rtio/internal/meter"
	"rtio/internal/monitor"
	"rtio/internal/record"
	"rtio/internal/server"
	"rtio/internal/spectrum"
	"rtio/internal/transport"
	"rtio/internal/transport/udp"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	midiLogInterval = 100 * time.Millisecond
	shutdownTimeout = 2 * time.Second
)

type runFlags struct {
	configPath string
	clientName string
	record     bool
	meter      bool
	verbose    bool
}

func newRunCmd(dial server.Dialer) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open a stream and run until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStream(ctx, dial, cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "",
		"Configuration file (YAML or TOML). Default is rtio.yaml, rtio.yml or rtio.toml if present")
	f.StringVarP(&flags.clientName, "name", "n", "", "Client name to register with the server")
	f.BoolVarP(&flags.record, "record", "r", false, "Record the configured input bus to a WAV file")
	f.BoolVarP(&flags.meter, "meter", "m", false, "Meter input levels and log them at debug level")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Show verbose output")
	return cmd
}

// apply lets explicitly set flags win over the configuration file.
func (f runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("name") {
		cfg.ClientName = f.clientName
	}
	if f.record {
		cfg.Recording.Enabled = true
	}
	if f.meter {
		cfg.Meter.Enabled = true
		cfg.Meter.Log = true
	}
	if f.verbose {
		cfg.LogLevel = applog.LevelDebug.String()
	}
}

// runStream spawns the stream described by cfg and serves its side tasks
// until ctx is done or the server shuts the stream down. A fatal stream
// error is returned.
func runStream(ctx context.Context, dial server.Dialer, cfg *config.Config, out io.Writer) error {
	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}

	opts := monitor.Options{
		Gate:           cfg.Gate.Enabled,
		GateThreshold:  cfg.Gate.Threshold,
		Meter:          cfg.Meter.Enabled,
		Spectrum:       cfg.Spectrum.Enabled,
		SpectrumSize:   cfg.Spectrum.FFTSize,
		MidiThru:       cfg.Midi.Thru,
		MidiLog:        cfg.Midi.Log,
		RecordBus:      cfg.Recording.Bus,
		RecordBitDepth: cfg.Recording.BitDepth,
	}
	if cfg.Recording.Enabled {
		opts.RecordPath = record.DefaultFileName(cfg.Recording.OutputDir, time.Now())
	}
	proc := monitor.New(opts)

	bus := events.New()
	defer bus.Subscribe(func(n events.ServerNotification) {
		cliLog.Debugf("%s: %s %s", n.Client, n.Kind, n.Detail)
	})()

	// The handler runs on the server's notification thread and must not block.
	fatalCh := make(chan audio.FatalStreamError, 1)
	fatal := audio.FatalErrorFunc(func(err audio.FatalStreamError) {
		select {
		case fatalCh <- err:
		default:
		}
	})

	info, stream, err := audio.Spawn(dial, cfg.StreamConfig(), proc, fatal, cfg.ClientName, audio.WithEventBus(bus))
	if err != nil {
		return err
	}
	defer stream.Close()
	fmt.Fprintf(out, "%s\n", info)

	var pub *transport.Publisher
	if proc.Meter() != nil || proc.Spectrum() != nil {
		sinks, err := meterSinks(cfg.Meter)
		if err != nil {
			return err
		}
		if len(sinks) > 0 {
			pub = transport.NewPublisher(time.Duration(cfg.Meter.Interval), func() any { return readFrame(proc) }, sinks...)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case err := <-fatalCh:
			return err
		case <-gctx.Done():
			return nil
		}
	})

	if cfg.MetricsAddr != "" {
		serveMetrics(gctx, g, cfg.MetricsAddr)
	}

	if pub != nil {
		pub.Start()
		g.Go(func() error {
			<-gctx.Done()
			return pub.Close()
		})
	}

	if a := proc.Spectrum(); a != nil {
		g.Go(func() error { return a.Run(gctx, spectrum.DefaultInterval) })
	}

	if rec := proc.Recorder(); rec != nil {
		g.Go(func() error { return rec.Run(gctx, record.DefaultDrainInterval) })
	}

	if cfg.Midi.Log {
		g.Go(func() error { return proc.LogMidi(gctx, midiLogInterval) })
	}

	err = g.Wait()

	if rec := proc.Recorder(); rec != nil {
		if n := rec.Dropped(); n > 0 {
			cliLog.Warnf("recorder dropped %d samples", n)
		}
		fmt.Fprintf(out, "Recording saved to: %s\n", rec.Path())
	}
	if cerr := stream.Close(); cerr != nil {
		cliLog.Warnf("closing stream: %v", cerr)
	}
	return err
}

// frame is what the meter publisher sends each tick.
type frame struct {
	Levels   *meter.Snapshot    `json:"levels,omitempty"`
	Spectrum *spectrum.Snapshot `json:"spectrum,omitempty"`
}

// AppendValues lays out the levels first, then the band levels.
func (f frame) AppendValues(dst []float32) []float32 {
	if f.Levels != nil {
		dst = f.Levels.AppendValues(dst)
	}
	if f.Spectrum != nil {
		dst = f.Spectrum.AppendValues(dst)
	}
	return dst
}

func readFrame(proc *monitor.Processor) frame {
	var f frame
	if m := proc.Meter(); m != nil {
		s := m.Snapshot()
		f.Levels = &s
	}
	if a := proc.Spectrum(); a != nil {
		s := a.Snapshot()
		f.Spectrum = &s
	}
	return f
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		cliLog.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func meterSinks(cfg config.MeterConfig) ([]transport.Transport, error) {
	var sinks []transport.Transport
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	if cfg.WebSocketAddr != "" {
		ws, err := transport.NewWebSocketTransport(cfg.WebSocketAddr)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ws)
	}
	if cfg.UDPTarget != "" {
		sender, err := udp.NewSender(cfg.UDPTarget)
		if err != nil {
			closeAll()
			return nil, err
		}
		pub, err := udp.NewPublisher(sender)
		if err != nil {
			sender.Close()
			closeAll()
			return nil, err
		}
		sinks = append(sinks, pub)
	}
	if cfg.Log {
		sinks = append(sinks, transport.NewLoggingTransport())
	}
	return sinks, nil
}
