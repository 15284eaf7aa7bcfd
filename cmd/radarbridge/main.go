package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/shaunagostinho/radarbridge/internal/console"
	"github.com/shaunagostinho/radarbridge/internal/publish"
	"github.com/shaunagostinho/radarbridge/internal/radar"
	"github.com/shaunagostinho/radarbridge/internal/server"
	"github.com/shaunagostinho/radarbridge/web"
)

func main() {
	configPath := flag.String("config", "/etc/radarbridge/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with a simulated sensor")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	glog.Infof("[main] radarbridge starting")

	// Load config
	cfg := server.LoadConfig(*configPath)

	if *demo {
		cfg.Radar.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	rc := cfg.Snapshot().Radar

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("[main] received %v, shutting down", sig)
		cancel()
	}()

	var open radar.Opener
	switch rc.Type {
	case "ld2410":
		open = radar.SerialOpener(rc.PortPath, rc.BaudRate)
	default:
		open = radar.DemoOpener()
	}
	sensor := radar.NewSensor(radar.Config{
		Open:           open,
		PollHz:         rc.PollHz,
		CommandTimeout: time.Duration(rc.CommandTimeoutMs) * time.Millisecond,
		Liveness:       time.Duration(rc.LivenessMs) * time.Millisecond,
	})
	defer sensor.Close()
	go sensor.Run(ctx)

	// Connect and reconnect in the background; the server starts regardless
	go supervise(ctx, sensor, rc)

	if cc := cfg.Snapshot().Console; cc.Enabled {
		go runConsole(ctx, sensor, cc)
	}

	if mc := cfg.Snapshot().MQTT; mc.Enabled {
		pub, err := publish.New(publish.Config{
			URL:      mc.URL,
			Interval: time.Duration(mc.IntervalMs) * time.Millisecond,
		}, sensor)
		if err != nil {
			glog.Errorf("[main] mqtt disabled: %v", err)
		} else {
			go func() {
				if err := pub.Run(ctx); err != nil {
					glog.Errorf("[mqtt] stopped: %v", err)
				}
			}()
		}
	}

	srv := server.New(cfg, sensor, web.FS)
	if err := srv.Run(ctx); err != nil {
		glog.Errorf("[main] server exited: %v", err)
	}
}

// supervise keeps the sensor connected and runs the session start policy
// after every (re)connect.
func supervise(ctx context.Context, sensor *radar.Sensor, rc server.RadarConfig) {
	for {
		if !sensor.IsOpen() {
			if !connectWithRetry(ctx, "radar", sensor, 10) {
				return
			}
			startSession(ctx, sensor, rc)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func startSession(ctx context.Context, sensor *radar.Sensor, rc server.RadarConfig) {
	if rc.StayInConfigMode {
		sensor.Do(ctx, func(e *radar.Engine) error {
			e.ExitConfigMode = false
			return nil
		})
	}
	sensor.Startup(ctx, radar.StartupOptions{
		ReadConfiguration: rc.ReadConfig,
		Engineering:       rc.Engineering,
		EngineeringRetry:  radar.RetryPolicy{Attempts: rc.EngineeringTries, Delay: time.Second},
	})
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely. It returns false when ctx is
// done first.
func connectWithRetry(ctx context.Context, name string, sensor *radar.Sensor, maxAttempts int) bool {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if err := sensor.Connect(); err != nil {
			attempt++
			if attempt <= maxAttempts {
				glog.Warningf("[%s] connect attempt %d/%d failed: %v (retry in %v)",
					name, attempt, maxAttempts, err, delay)
			} else {
				glog.Warningf("[%s] connect attempt %d failed: %v (retry in %v)",
					name, attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		} else {
			glog.Infof("[%s] connected successfully (attempt %d)", name, attempt+1)
			return true
		}
	}
}

func runConsole(ctx context.Context, sensor *radar.Sensor, cc server.ConsoleConfig) {
	var (
		out io.Writer = os.Stdout
		in  io.Reader = os.Stdin
	)
	if cc.PortPath != "" && cc.PortPath != "-" {
		port, err := console.OpenSerial(cc.PortPath, cc.BaudRate)
		if err != nil {
			glog.Errorf("[console] %v", err)
			return
		}
		defer port.Close()
		out, in = port, port
	}

	c := console.New(sensor, out, in)
	if cc.ReportIntervalMs > 0 {
		c.ReportInterval = time.Duration(cc.ReportIntervalMs) * time.Millisecond
	}
	c.Run(ctx)
}
