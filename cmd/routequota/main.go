// Command routequota inspects and spends the monthly route-lookup quota.
//
// Usage:
//
//	routequota [-config file] <command> [flags] [args]
//
// Commands:
//
//	status                              print usage for every configured API
//	check [-api name] <callsign>        ask whether one more call is allowed
//	record [-api name]                  count one call
//	score [-remaining n] [callsign [icao [registration]]]
//	                                    run the priority scorer (sample flights when no callsign)
//	resolve <callsign> [icao [registration]]
//	                                    look up a route through the full pipeline
//	serve [-addr host:port]             run the HTTP API with /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/mihaimyh/routequota/internal/config"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string, out io.Writer) error
}

var commands = map[string]command{
	"status":  {usage: "print usage for every configured API", run: runStatus},
	"check":   {usage: "ask whether one more call is allowed", run: runCheck},
	"record":  {usage: "count one call", run: runRecord},
	"score":   {usage: "run the priority scorer", run: runScore},
	"resolve": {usage: "look up a route through the full pipeline", run: runResolve},
	"serve":   {usage: "run the HTTP API", run: runServe},
}

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("routequota", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	fs.Usage = func() { printUsage(fs, stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "routequota: unknown command %q\n", name)
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "routequota: %v\n", err)
		return 1
	}

	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "routequota: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := cmd.run(ctx, a, fs.Args()[1:], stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "routequota %s: %v\n", name, err)
		return 1
	}
	return 0
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "usage: routequota [-config file] <command> [flags] [args]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}
