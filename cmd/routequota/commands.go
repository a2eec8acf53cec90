package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/mihaimyh/routequota/pkg/priority"
	"github.com/mihaimyh/routequota/pkg/routequota"
)

// sampleFlights cover one flight per scorer signal
var sampleFlights = []priority.Flight{
	{Callsign: "RCH345", ICAOHex: "AE1234"},                         // military
	{Callsign: "N12345", ICAOHex: "A12345", Registration: "N12345"}, // private
	{Callsign: "FDX1234", ICAOHex: "A12345"},                        // cargo
	{Callsign: "UAL123", ICAOHex: "A12345"},                         // commercial
	{Callsign: "AAL100", ICAOHex: "A12345"},                         // common commercial
}

const statsWindow = 30 * 24 * time.Hour

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runStatus(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: status takes no arguments", errUsage)
	}
	return a.tracker.Status(ctx).Render(out, a.cfg.Quota.LowQuotaWarning)
}

func runCheck(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("check", out)
	api := fs.String("api", routequota.DefaultAPI, "metered API name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	callsign := fs.Arg(0)
	d := a.tracker.CanRequest(ctx, *api, callsign)
	verdict := "DENY"
	if d.Allowed {
		verdict = "ALLOW"
	}
	fmt.Fprintf(out, "%-10s %-6s %s\n", callsign, verdict, d.Reason)
	if d.Low {
		fmt.Fprintf(out, "warning: only %d of %d %s calls left this month\n", d.Remaining, d.Total, *api)
	}
	return nil
}

func runRecord(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("record", out)
	api := fs.String("api", routequota.DefaultAPI, "metered API name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.tracker.Total(*api) == 0 {
		return fmt.Errorf("unknown api %q", *api)
	}

	remaining := a.tracker.RecordRequest(ctx, *api)
	fmt.Fprintf(out, "%s: %d remaining\n", *api, remaining)
	return nil
}

func runScore(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("score", out)
	remaining := fs.Int("remaining", -1, "remaining quota to score against (default: tracker's remaining)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flights := sampleFlights
	if fs.NArg() > 0 {
		flights = []priority.Flight{flightFromArgs(fs.Args())}
	}

	left := *remaining
	if left < 0 {
		left = a.tracker.Remaining(ctx, routequota.DefaultAPI)
	}

	for _, f := range flights {
		d := a.scorer.Score(ctx, f, left)
		verdict := "SKIP"
		if d.Admit {
			verdict = "CALL API"
		}
		fmt.Fprintf(out, "%-15s -> %-10s %s\n", f.Callsign, verdict, d.Reason)
	}

	if a.stats != nil {
		stats, err := a.stats.Stats(ctx, time.Now().Add(-statsWindow))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nLast 30 days: %d flights, %d with routes (%.1f%%)\n",
			stats.Total, stats.WithRoutes, stats.RoutePercentage)
	}
	return nil
}

func runResolve(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: resolve <callsign> [icao [registration]]", errUsage)
	}

	res := a.resolver.Resolve(ctx, flightFromArgs(args))
	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(body))
	return err
}

func flightFromArgs(args []string) priority.Flight {
	var f priority.Flight
	if len(args) > 0 {
		f.Callsign = args[0]
	}
	if len(args) > 1 {
		f.ICAOHex = args[1]
	}
	if len(args) > 2 {
		f.Registration = args[2]
	}
	return f
}
