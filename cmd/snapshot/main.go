// Command snapshot fetches one contract's candles, computes the indicator
// series and prints its tail together with the snapshot the monitor would
// act on. It is a debugging aid and never touches monitor state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"option-monitor/config"
	"option-monitor/internal/indicator"
	"option-monitor/internal/marketdata"
	"option-monitor/internal/marketdata/delta"
	"option-monitor/internal/marketdata/synthetic"
	"option-monitor/internal/markethours"
	"option-monitor/internal/model"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	contract := flag.String("contract", "", "Contract symbol of the option chart (required)")
	resStr := flag.String("res", "5m", "Resolution")
	limit := flag.Int("limit", 200, "Number of candles to fetch")
	tail := flag.Int("tail", 10, "Rows of the indicator series to print")
	source := flag.String("source", "", "delta|synthetic (default: DATA_SOURCE)")
	flag.Parse()

	if *contract == "" {
		flag.Usage()
		os.Exit(2)
	}
	res, err := model.ParseResolution(*resStr)
	if err != nil {
		log.Fatalf("[snapshot] %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[snapshot] config: %v", err)
	}
	if *source == "" {
		*source = cfg.DataSource
	}

	var src marketdata.Source
	switch *source {
	case config.SourceSynthetic:
		src = synthetic.New()
	case config.SourceDelta:
		src = delta.New(delta.Config{BaseURL: cfg.DeltaBaseURL, Timeout: cfg.FetchTimeout, Debug: cfg.LogLevel == "debug"})
	default:
		log.Fatalf("[snapshot] unknown source %q", *source)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
	defer cancel()
	candles, err := src.Candles(ctx, *contract, res, *limit)
	if err != nil {
		log.Fatalf("[snapshot] fetch %s %s: %v", *contract, res, err)
	}

	now := time.Now()
	points := indicator.Compute(candles, indicator.Params{})
	start := max(len(points)-*tail, 0)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "time (IST)\tclose\trsi\tmacd_hist\tst_line\tst_dir")
	for _, p := range points[start:] {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.4f\t%.2f\t%+d\n",
			markethours.FormatIST(p.TS), p.Close, p.RSI, p.MACDHist, p.STLine, p.STDir)
	}
	_ = tw.Flush()

	snap, ok := indicator.Latest(points, now, res)
	if !ok {
		log.Fatalf("[snapshot] %s: %v", *contract, model.ErrNoData)
	}
	fmt.Printf("\n%s\n", markethours.StatusString(now, res))
	out, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Println(string(out))
}
