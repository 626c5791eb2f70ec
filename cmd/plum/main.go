/*
 * Plum - An OpenFlow Policy Controller
 *
 * Copyright (C) 2015 Samjung Data Service, Inc. All rights reserved.
 * Kitae Kim <superkkt@sds.co.kr>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/superkkt/plum"
	"github.com/superkkt/plum/api/status"
	"github.com/superkkt/plum/flow"
	"github.com/superkkt/plum/log"
	"github.com/superkkt/plum/network"
	"github.com/superkkt/plum/policy"

	"github.com/fsnotify/fsnotify"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	programName     = "plum"
	defaultLogLevel = logging.INFO
)

var (
	logger            = logging.MustGetLogger("main")
	loggerLeveled     logging.LeveledBackend
	showVersion       = flag.Bool("version", false, "Show program version and exit")
	defaultConfigFile = flag.String("config", fmt.Sprintf("/usr/local/etc/%v.yaml", programName), "absolute path of the configuration file")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("Version: %v\n", plum.Version)
		os.Exit(0)
	}

	initConfig()
	if err := initLog(getLogLevel(viper.GetString("default.log_level"))); err != nil {
		logger.Fatalf("failed to init log: %v", err)
	}

	controller, err := createController()
	if err != nil {
		logger.Fatalf("failed to create the controller: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	initSignalHandler(controller, cancel)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listen(ctx, viper.GetInt("default.port"), controller)
	})
	if port := viper.GetInt("rest.port"); port > 0 {
		g.Go(func() error {
			return serveAPI(ctx, uint16(port), controller)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatalf("terminated: %v", err)
	}
	logger.Warning("bye")
}

func initConfig() {
	setDefaults(viper.GetViper())
	viper.SetConfigFile(*defaultConfigFile)
	// Read the config file.
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatalf("failed to read the config file: %v", err)
	}
	// Watching and re-reading config file whenever it changes.
	viper.OnConfigChange(func(e fsnotify.Event) {
		// Ignore the WRITE operation to avoid reading empty config.
		if e.Op != fsnotify.Write {
			return
		}

		if loggerLeveled != nil {
			// Set log level for all modules
			loggerLeveled.SetLevel(getLogLevel(viper.GetString("default.log_level")), "")
		}
	})
	viper.WatchConfig()
	if err := validateConfig(viper.GetViper()); err != nil {
		logger.Fatalf("failed to validate the configuration: %v", err)
	}
}

func createController() (*network.Controller, error) {
	reg, err := parseHostRegistry(viper.GetViper())
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse the hosts")
	}
	logger.Infof("policy hosts: %v", reg)

	evaluator, err := policy.NewEvaluator(reg, uint16(viper.GetInt("policy.idle_timeout")))
	if err != nil {
		return nil, err
	}
	planner := flow.NewPlanner(viper.GetDuration("policy.flow_cache_expiration"))

	return network.NewController(evaluator, planner), nil
}

func serveAPI(ctx context.Context, port uint16, controller *network.Controller) error {
	srv := &status.API{Controller: controller}
	srv.Port = port
	if viper.GetBool("rest.tls") {
		srv.TLS.Cert = viper.GetString("rest.cert_file")
		srv.TLS.Key = viper.GetString("rest.key_file")
	}

	if err := srv.Serve(ctx); err != nil {
		return errors.Wrap(err, "failed to run the API server")
	}

	return nil
}

func initSignalHandler(controller *network.Controller, cancel context.CancelFunc) {
	go func() {
		c := make(chan os.Signal, 5)
		signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

		// Infinte loop.
		for {
			s := <-c
			if s == syscall.SIGTERM || s == syscall.SIGINT {
				// Graceful shutdown
				logger.Warning("Shutting down...")
				cancel()
				// Timeout for cancelation
				time.Sleep(5 * time.Second)
				os.Exit(0)
			} else if s == syscall.SIGHUP {
				fmt.Println("* Controller status:")
				fmt.Println(controller.String())
			}
		}
	}()
}

func initLog(level logging.Level) error {
	var backend logging.Backend
	if viper.GetString("default.log_output") == "stderr" {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	} else {
		var err error
		backend, err = log.NewSyslog(programName)
		if err != nil {
			return err
		}
	}
	backend = logging.NewBackendFormatter(backend, logging.MustStringFormatter(`%{level}: %{shortpkg}.%{shortfunc}: %{message}`))

	loggerLeveled = logging.AddModuleLevel(backend)
	// Set log level for all modules
	loggerLeveled.SetLevel(level, "")
	logging.SetBackend(loggerLeveled)

	return nil
}

func getLogLevel(level string) logging.Level {
	level = strings.ToUpper(level)
	ret, err := logging.LogLevel(level)
	if err != nil {
		logger.Infof("invalid log level=%v, defaulting to %v..", level, defaultLogLevel)
		return defaultLogLevel
	}

	return ret
}

func listen(ctx context.Context, port int, controller *network.Controller) error {
	type KeepAliver interface {
		SetKeepAlive(keepalive bool) error
		SetKeepAlivePeriod(d time.Duration) error
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %v port", port)
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	logger.Infof("listening on %v for switches", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("terminating the main listener loop...")
				return nil
			}
			logger.Errorf("failed to accept a new connection: %v", err)
			continue
		}
		logger.Infof("new device is connected from %v", conn.RemoteAddr())

		if v, ok := conn.(KeepAliver); ok {
			if err := v.SetKeepAlive(true); err == nil {
				// Makes a broken connection will be disconnected within 45 seconds.
				v.SetKeepAlivePeriod(time.Duration(5) * time.Second)
			} else {
				logger.Errorf("failed to enable socket keepalive: %v", err)
			}
		}
		controller.AddConnection(ctx, conn)
	}
}
