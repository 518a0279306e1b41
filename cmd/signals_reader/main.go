package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/EzeErlicher/signals"
	"github.com/EzeErlicher/signals/internal/asyncbufio"
	"github.com/EzeErlicher/signals/internal/pins"
	"github.com/EzeErlicher/signals/internal/sampledb"
	"github.com/EzeErlicher/signals/internal/statuspub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var githash = "githash not computed"
var gitdate = "git date not computed"
var buildDate = "build date not computed"

func startLogger(pfname string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	}, "", log.LstdFlags)
}

func setBuildInfo() {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	signals.Build.Date = buildDate
	signals.Build.Githash = githash
	signals.Build.Summary = fmt.Sprintf("signals_reader version %s (git commit %s of %s)",
		signals.Build.Version, githash, gitdate)
	if host, err := os.Hostname(); err == nil {
		signals.Build.Host = host
	} else {
		signals.Build.Host = "host not detected"
	}
}

func main() {
	setBuildInfo()
	printVersion := flag.Bool("version", false, "print version and quit")
	configFile := flag.String("config", "", "read this config file instead of searching for config.yaml")
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is signals_reader version %s\n", signals.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		fmt.Printf("Running on %d CPUs.\n", runtime.NumCPU())
		os.Exit(0)
	}

	banner := fmt.Sprintf("\nThis is %s on %s\n", signals.Build.Summary, signals.Build.Host)
	fmt.Print(banner)

	// Start logging problems and updates to 2 log files.
	HOME, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}
	logdir := filepath.Join(HOME, ".signals", "logs")
	problemname, err := signals.MakeFileExist(logdir, "problems.log")
	if err != nil {
		log.Fatal(err)
	}
	logname, err := signals.MakeFileExist(logdir, "updates.log")
	if err != nil {
		log.Fatal(err)
	}
	signals.ProblemLogger = startLogger(problemname)
	signals.UpdateLogger = startLogger(logname)
	fmt.Printf("Logging problems       to %s\n", problemname)
	fmt.Printf("Logging client updates to %s\n\n", logname)
	signals.UpdateLogger.Printf("\n\n\n\n%s", banner)

	// Find config file, creating it if needed, and read it.
	v := viper.New()
	if err := signals.SetupViper(v, *configFile); err != nil {
		log.Fatal(err)
	}
	cfg, err := signals.LoadConfig(v)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Using config file %s\n", v.ConfigFileUsed())

	if err := run(cfg); err != nil {
		signals.ProblemLogger.Print(err)
		log.Fatal(err)
	}
}

// run brings the daemon up in order, undoing the finished steps if a later one
// fails, and tears it down in reverse once SIGINT or SIGTERM arrives.
func run(cfg signals.Config) (err error) {
	schedule, err := signals.ParseSchedule(cfg.Sampler.Schedule)
	if err != nil {
		return err
	}

	inputs, err := pins.OpenInputs(cfg.Pins)
	if err != nil {
		return fmt.Errorf("request input lines: %w", err)
	}
	// The sampler owns inputs once it exists; until then close them here.
	samplerOwnsInputs := false
	defer func() {
		if !samplerOwnsInputs {
			inputs.Close()
		}
	}()

	pub, err := statuspub.New(cfg.Ports.Status)
	if err != nil {
		return err
	}
	updater := signals.NewClientUpdater(pub)

	var trace *asyncbufio.Writer
	if cfg.Trace.File != "" {
		f, err := os.OpenFile(cfg.Trace.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0664)
		if err != nil {
			updater.Close()
			return fmt.Errorf("open tick trace: %w", err)
		}
		trace = asyncbufio.NewWriter(f, 1024, time.Second)
	}

	sampler, err := signals.NewSampler(signals.SamplerSetup{
		Inputs:   inputs,
		Capacity: cfg.Sampler.Capacity,
		Tick:     cfg.Sampler.Tick,
		Schedule: schedule,
		Metrics:  signals.NewMetrics(prometheus.DefaultRegisterer),
		Trace:    trace,
		Updater:  updater,
	})
	if err != nil {
		updater.Close()
		if trace != nil {
			trace.Close()
		}
		return err
	}
	samplerOwnsInputs = true
	defer func() {
		if serr := sampler.Shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()

	dbAbort := make(chan struct{})
	db := sampledb.DummyConnection()
	if cfg.DB.Enabled {
		db = sampledb.StartConnection(sampledb.Options{Addr: cfg.DB.Addr, Logger: signals.ProblemLogger},
			sampler.ActivityMessage(), dbAbort)
	}
	sampler.SetRecorder(db)
	defer func() {
		close(dbAbort)
		db.Wait()
	}()

	if cfg.Metrics.Addr != "" {
		srv, err := signals.ServeMetrics(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		defer srv.Close()
		fmt.Printf("Serving metrics on %s/metrics\n", cfg.Metrics.Addr)
	}

	rs, err := signals.StartRPCServer(sampler, fmt.Sprintf(":%d", cfg.Ports.RPC), signals.RPCSettings{
		StatusInterval: signals.DefaultRPCSettings.StatusInterval,
		IdleTimeout:    cfg.Sessions.IdleTimeout,
	})
	if err != nil {
		return err
	}
	defer rs.Close()

	if err := sampler.Start(); err != nil {
		return err
	}
	fmt.Printf("Sampling %s lines %d and %d every %v into %d samples per channel\n",
		cfg.Pins.Backend, cfg.Pins.InputA, cfg.Pins.InputB, cfg.Sampler.Tick, cfg.Sampler.Capacity)
	fmt.Printf("Sessions on JSON-RPC port %d, status on ZMQ port %d\n", cfg.Ports.RPC, cfg.Ports.Status)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	sig := <-interrupt
	signal.Stop(interrupt)
	fmt.Printf("\nReceived %v, shutting down\n", sig)
	signals.UpdateLogger.Printf("received %v, shutting down", sig)
	return nil
}
