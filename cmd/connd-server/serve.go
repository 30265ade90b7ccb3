// Copyright (C) 2017-2020  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// You can also Link and Combine this program with other software covered by
// the terms of any of the Free Software licenses or any of the Open Source
// Initiative approved licenses and Convey the resulting work. Corresponding
// source of such a combination shall include the source code for all other
// software used.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

package main
// cli to run the demo connection-driver service

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"

	"lab.nexedi.com/kirr/go123/prog"

	"lab.nexedi.com/kirr/connd"
	"lab.nexedi.com/kirr/connd/demo"
	"lab.nexedi.com/kirr/connd/internal/log"
	"lab.nexedi.com/kirr/connd/metrics"
	"lab.nexedi.com/kirr/connd/pool"
	"lab.nexedi.com/kirr/connd/transport"
)

const serveSummary = "run the demo connection-driver service"

func serveUsage(w io.Writer) {
	fmt.Fprintf(w,
`Usage: connd-server serve [options]
Accept connections, decode length-prefixed frames, and echo each one back
upper-cased through the connection driver and worker pool.

Connections whose first bytes look like an HTTP request are routed instead
to a /metrics endpoint exposing Prometheus counters for the accepted
connections.
`)
}

func serveMain(argv []string) {
	flags := flag.NewFlagSet("", flag.ExitOnError)
	flags.Usage = func() { serveUsage(os.Stderr); flags.PrintDefaults() }
	bind := flags.String("bind", ":9999", "address to serve on")
	poolSize := flags.Int("pool-size", 64, "maximum number of connections draining concurrently")
	configPath := flags.String("config-watch", "", "optional path to a file whose writes trigger a Config reload")
	flags.Parse(argv[1:])

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		cancel()
	}()

	if err := run(ctx, *bind, *poolSize, *configPath); err != nil {
		prog.Fatal(err)
	}
}

func run(ctx context.Context, bind string, poolSize int, configPath string) error {
	ilog := log.NewInternal()

	cfg := connd.ConfigFromEnv()
	if configPath != "" {
		stopWatch, err := connd.WatchConfigFile(ctx, configPath, func(c connd.Config) {
			ilog.Infof(ctx, "config reloaded from %s: %+v", configPath, c)
			cfg = c
		})
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	metricsReg := prometheus.NewRegistry()
	promMetrics := metrics.NewPrometheus("connd", "conn")
	if err := promMetrics.Register(metricsReg); err != nil {
		return err
	}

	workers := pool.New(poolSize)

	l, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	ilog.Infof(ctx, "listening at %s ...", l.Addr())

	mux := cmux.New(l)
	httpL := mux.Match(cmux.HTTP1Fast())
	connL := mux.Match(cmux.Any())

	wg, ctx := errgroup.WithContext(ctx)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	wg.Go(func() error {
		err := mux.Serve()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	wg.Go(func() error {
		httpMux := http.NewServeMux()
		httpMux.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Handler: httpMux}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		err := srv.Serve(httpL)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	wg.Go(func() error {
		return transport.Serve(ctx, connL, func(ctx context.Context, ch *transport.Channel) {
			go serveConn(ctx, ch, cfg, promMetrics, workers)
		})
	})

	err = wg.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// serveConn wires one accepted Channel to a fresh Driver/Machine pair and
// feeds it decoded frames until the connection's peer hangs up.
func serveConn(ctx context.Context, ch *transport.Channel, cfg connd.Config, m connd.MetricsEmitter, workers *pool.Pool) {
	ilog := log.NewInternal()
	out := ch.NewOutput()
	machine := demo.NewMachine(out)

	factory := &connd.Factory{Metrics: m, Config: cfg}
	d := factory.NewDriver(ch, out, machine)
	d.Start(ctx)

	for {
		frame, err := demo.ReadFrame(ch.Raw())
		if err != nil {
			if err != io.EOF {
				ilog.Infof(ctx, "conn[%s]: read: %v", d.ID(), err)
			}
			d.Stop(ctx)
			return
		}

		d.Enqueue(ctx, demo.NewJob(frame, out))
		workers.Schedule(ctx, d)
	}
}
