// Command sigdump opens one session on a running signals_reader, reads its
// snapshot once, and prints both channels with an estimate of each half-period.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"time"

	"github.com/EzeErlicher/signals"
	"github.com/davecgh/go-spew/spew"
	"github.com/sbinet/npyio"
)

func bits(samples []signals.Sample) string {
	var sb strings.Builder
	for _, s := range samples {
		sb.WriteByte('0' + byte(s))
	}
	return sb.String()
}

func main() {
	addr := flag.String("addr", "localhost:5600", "JSON-RPC address of signals_reader")
	npyFile := flag.String("npy", "", "also write the samples to this .npy file")
	verbose := flag.Bool("v", false, "dump the sampler status")
	flag.Parse()

	client, err := jsonrpc.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("could not connect to %s: %v", *addr, err)
	}
	defer client.Close()

	dummy := ""
	var status signals.ServerStatus
	if err := client.Call("SamplerControl.Status", &dummy, &status); err != nil {
		log.Fatal(err)
	}
	if *verbose {
		spew.Dump(status)
	}

	var id signals.SessionID
	if err := client.Call("SamplerControl.Open", &dummy, &id); err != nil {
		log.Fatal(err)
	}
	var reply signals.ReadReply
	readErr := client.Call("SamplerControl.Read", &id, &reply)
	var okay bool
	if err := client.Call("SamplerControl.Close", &id, &okay); err != nil {
		log.Printf("closing session %s: %v", id, err)
	}
	if readErr != nil {
		log.Fatal(readErr)
	}

	a, b, err := signals.DecodeSnapshot([]byte(reply.Data))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Session %s: %d samples per channel\n", id, len(a))
	fmt.Printf("A: %s\n", bits(a))
	fmt.Printf("B: %s\n", bits(b))

	tick := time.Duration(status.TickMs * float64(time.Millisecond))
	for i, samples := range [][]signals.Sample{a, b} {
		rs := analyze(samples, tick)
		if rs.Runs == 0 {
			fmt.Printf("%v: no complete runs\n", signals.Channel(i))
			continue
		}
		fmt.Printf("%v: %d runs, %.2f ± %.2f ticks, half-period ≈ %v\n",
			signals.Channel(i), rs.Runs, rs.MeanTicks, rs.StdTicks, rs.HalfPeriod)
	}

	if *npyFile != "" && len(a) > 0 {
		f, err := os.Create(*npyFile)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if err := npyio.Write(f, asMatrix(a, b)); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Wrote %s\n", *npyFile)
	}
}
