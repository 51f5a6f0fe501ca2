// Command stagelog is a tool for viewing and analyzing stage event logs.
//
// Event logs are written by stagectl with the -event-log flag. Snapshot
// databases are written by stagectl with the -record flag.
//
// Usage:
//
//	stagelog <command> [flags] <file.stlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL, YAML or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//	history  Show recorded snapshots from a recorder database
//
// Examples:
//
//	# View all events
//	stagelog view stage.stlog
//
//	# View only boundary stops
//	stagelog view -category boundary stage.stlog
//
//	# Export sampler events to YAML
//	stagelog export -format yaml -source sampler stage.stlog
//
//	# Filter one session and save to new file
//	stagelog filter -session 5f0c2e7a-... -o session.stlog stage.stlog
//
//	# List recorded sessions
//	stagelog history samples.db
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/hdrlab/linstage/cmd/stagelog/commands"
)

const usage = `stagelog - Linear Stage Event Log Analyzer

Usage:
  stagelog <command> [flags] <file.stlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL, YAML or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file
  history  Show recorded snapshots from a recorder database

Use "stagelog <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "history":
		runHistory(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func newFlagSet(name, synopsis, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "stagelog %s - %s\n\nUsage:\n  stagelog %s [flags] %s\n\nFlags:\n", name, synopsis, name, args)
		fs.PrintDefaults()
	}
	return fs
}

// pathArg returns the single positional argument or exits.
func pathArg(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// viewFlags registers the filter flags shared by view and export.
func viewFlags(fs *flag.FlagSet) func() commands.ViewFilter {
	source := fs.String("source", "", "Filter by source (controller, sampler)")
	category := fs.String("category", "", "Filter by category (command, state, boundary, safety, sampler, error)")
	session := fs.String("session", "", "Filter by session ID")

	return func() commands.ViewFilter {
		filter := commands.ViewFilter{SessionID: *session}
		if *source != "" {
			s, err := commands.ParseSourceFlag(*source)
			if err != nil {
				fatal(err)
			}
			filter.Source = &s
		}
		if *category != "" {
			c, err := commands.ParseCategoryFlag(*category)
			if err != nil {
				fatal(err)
			}
			filter.Category = &c
		}
		return filter
	}
}

func runView(args []string) {
	fs := newFlagSet("view", "View log file in human-readable format", "<file.stlog>")
	filter := viewFlags(fs)
	path := pathArg(fs, args)

	if err := commands.RunView(path, filter(), os.Stdout); err != nil {
		fatal(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export log file to JSONL, YAML or CSV format", "<file.stlog>")
	format := fs.String("format", "jsonl", "Output format (jsonl, yaml, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	filter := viewFlags(fs)
	path := pathArg(fs, args)

	if err := commands.RunExport(path, *format, *output, filter()); err != nil {
		fatal(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter log file and write to new file", "<file.stlog>")
	output := fs.String("o", "", "Output file (required)")
	session := fs.String("session", "", "Filter by session ID")
	port := fs.String("port", "", "Filter by device port")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	source := fs.String("source", "", "Filter by source (controller, sampler)")
	category := fs.String("category", "", "Filter by category (command, state, boundary, safety, sampler, error)")
	path := pathArg(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := commands.FilterOptions{
		Output:    *output,
		SessionID: *session,
		Port:      *port,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
		Source:    *source,
		Category:  *category,
	}

	if err := commands.RunFilter(path, opts, os.Stdout); err != nil {
		fatal(err)
	}
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the log file", "<file.stlog>")
	path := pathArg(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fatal(err)
	}
}

func runHistory(args []string) {
	fs := newFlagSet("history", "Show recorded snapshots from a recorder database", "<file.db>")
	session := fs.String("session", "", "Show samples of one session (default: list sessions)")
	limit := fs.Int("limit", 0, "Maximum number of samples (0: all)")
	path := pathArg(fs, args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := commands.HistoryOptions{SessionID: *session, Limit: *limit}
	if err := commands.RunHistory(ctx, path, opts, os.Stdout); err != nil {
		fatal(err)
	}
}
