// Command kgoctl is a minimal smoke-testing CLI over the Producer and
// SingleConsumer façades, not an administrative tool (spec §1 lists
// administrative CLI/GUI as a non-goal; this is a development aid).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dcrodman/kaf/kgo"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "produce":
		runProduce(os.Args[2:])
	case "consume":
		runConsume(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kgoctl produce -brokers host:port -topic T   (reads lines from stdin)")
	fmt.Fprintln(os.Stderr, "       kgoctl consume -brokers host:port -topic T [-from beginning|end]")
}

func runProduce(args []string) {
	fs := flag.NewFlagSet("produce", flag.ExitOnError)
	brokers := fs.String("brokers", "127.0.0.1:9092", "comma-separated seed broker addresses")
	topic := fs.String("topic", "", "topic to produce to")
	fs.Parse(args)

	if *topic == "" {
		fmt.Fprintln(os.Stderr, "kgoctl: -topic is required")
		os.Exit(2)
	}

	cl, err := kgo.NewClient(kgo.WithSeedBrokers(strings.Split(*brokers, ",")...))
	if err != nil {
		fatal(err)
	}
	defer cl.Close()

	producer := kgo.NewProducer(cl)
	defer producer.Close()

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		res, err := producer.ProduceRaw(pctx, *topic, []byte(line), nil)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "kgoctl: produce error: %v\n", err)
			continue
		}
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "kgoctl: partition rejected record: %v\n", res.Err)
			continue
		}
		fmt.Printf("ok base_offset=%d\n", res.BaseOffset)
	}
}

func runConsume(args []string) {
	fs := flag.NewFlagSet("consume", flag.ExitOnError)
	brokers := fs.String("brokers", "127.0.0.1:9092", "comma-separated seed broker addresses")
	topic := fs.String("topic", "", "topic to consume from")
	from := fs.String("from", "end", "beginning|end")
	interval := fs.Duration("poll", time.Second, "delay between consume polls")
	fs.Parse(args)

	if *topic == "" {
		fmt.Fprintln(os.Stderr, "kgoctl: -topic is required")
		os.Exit(2)
	}

	start := kgo.End()
	if *from == "beginning" {
		start = kgo.Beginning()
	}

	cl, err := kgo.NewClient(kgo.WithSeedBrokers(strings.Split(*brokers, ",")...))
	if err != nil {
		fatal(err)
	}
	defer cl.Close()

	consumer := kgo.NewSingleConsumer(cl)
	defer consumer.Close()

	ctx := context.Background()
	for {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		records, err := consumer.Consume(cctx, *topic, start)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "kgoctl: consume error: %v\n", err)
		}
		for _, r := range records {
			fmt.Printf("%s[%d]@%d %s\n", r.Topic, r.Partition, r.Offset, r.Value)
		}
		time.Sleep(*interval)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "kgoctl: %v\n", err)
	os.Exit(1)
}
