package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"dnswalk/internal/parser"
	"dnswalk/internal/resolver"
	"dnswalk/internal/server"

	"go.uber.org/zap"
)

func main() {
	qtypeFlag := flag.String("type", "A", "record type to query (A or NS)")
	timeout := flag.Duration("timeout", server.DefaultTimeout, "per-exchange timeout")
	deadline := flag.Duration("deadline", 30*time.Second, "overall resolution deadline (0 disables)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: resolve [flags] <domain>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	qtype, err := parser.ParseRecordType(*qtypeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	transport := server.NewUDPTransport()
	transport.Timeout = *timeout

	r := resolver.NewResolver(transport, logger)
	r.Timeout = *deadline

	rr, err := r.Resolve(flag.Arg(0), qtype)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(rr)
}
