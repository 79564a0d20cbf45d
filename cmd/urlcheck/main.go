// urlcheck classifies one URL against the configured classifier endpoint
// and prints the verdict. Exit code 2 means phishing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/phishshield/shield_agent/internal/classifier"
	"github.com/phishshield/shield_agent/internal/config"
)

func main() {
	asJSON := flag.Bool("json", false, "print the verdict as JSON")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: urlcheck [-json] <url>")
		os.Exit(64)
	}
	rawURL := flag.Arg(0)

	// Quiet by default; this is a print-and-exit tool.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg, err := config.LoadAgent()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	cls := classifier.New(cfg.ClassifierURL, time.Duration(cfg.ClassifyTimeoutMS)*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	verdict, err := cls.Classify(ctx, rawURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "classify:", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(verdict); err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("%s\t%s\n", verdict.Label, verdict.URL)
	}

	if verdict.Phishing {
		os.Exit(2)
	}
}
