package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/shaunagostinho/radarbridge/internal/radar"
	"github.com/shaunagostinho/radarbridge/internal/shell"
)

func main() {
	portPath := flag.String("port", "/dev/ttyUSB0", "Radar serial port")
	baud := flag.Int("baud", 256000, "Radar baud rate")
	demo := flag.Bool("demo", false, "Talk to a simulated sensor")
	timeout := flag.Duration("timeout", radar.DefaultCommandTimeout, "ACK timeout per command")
	flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	open := radar.SerialOpener(*portPath, *baud)
	if *demo {
		open = radar.DemoOpener()
	}
	sensor := radar.NewSensor(radar.Config{
		Open:           open,
		CommandTimeout: *timeout,
	})
	if err := sensor.Connect(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer sensor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sensor.Run(ctx)

	sh := shell.New(sensor)
	if !sh.Interactive {
		// Give the first reports a chance to arrive for status.
		time.Sleep(200 * time.Millisecond)
	}
	if err := sh.Run(flag.Args()...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
