// Command gen_signal drives two GPIO outputs as square waves with independent
// half-periods, for wiring to the sampler's inputs during testing.
//
// Usage:
//
//	gen_signal [-config file] [halfPeriodA_ms halfPeriodB_ms]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/EzeErlicher/signals"
	"github.com/EzeErlicher/signals/internal/pins"
	"github.com/spf13/viper"
)

func parseMillis(arg string) (time.Duration, error) {
	ms, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("half-period %q is not a whole number of milliseconds: %w", arg, signals.ErrBadConfig)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func main() {
	configFile := flag.String("config", "", "read this config file instead of searching for config.yaml")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config file] [halfPeriodA_ms halfPeriodB_ms]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	v := viper.New()
	if err := signals.SetupViper(v, *configFile); err != nil {
		log.Fatal(err)
	}
	switch flag.NArg() {
	case 0:
	case 2:
		halfA, err := parseMillis(flag.Arg(0))
		if err != nil {
			log.Fatal(err)
		}
		halfB, err := parseMillis(flag.Arg(1))
		if err != nil {
			log.Fatal(err)
		}
		v.Set("generator.half_period_a", halfA)
		v.Set("generator.half_period_b", halfB)
	default:
		flag.Usage()
		os.Exit(2)
	}

	// Only the pins and generator sections matter here.
	signals.SetDefaults(v)
	var cfg signals.Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatal(err)
	}
	settings, err := cfg.GeneratorSettings()
	if err != nil {
		log.Fatal(err)
	}

	out, err := pins.OpenOutputs(cfg.Pins)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()
	gen, err := signals.NewGenerator(settings, out)
	if err != nil {
		out.Close()
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Printf("Toggling %s lines %d and %d every %v and %v\n", cfg.Pins.Backend,
		cfg.Pins.OutputA, cfg.Pins.OutputB, settings.HalfPeriods[0], settings.HalfPeriods[1])
	if err := gen.Run(ctx); err != nil {
		log.Print(err)
	}
	toggles := gen.Toggles()
	fmt.Printf("\nStopped after %d and %d toggles\n", toggles[0], toggles[1])
}
