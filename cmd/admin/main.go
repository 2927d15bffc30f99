package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"paddlers.io/internal/gamemaster"
	"paddlers.io/internal/persistence/journal"
	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/persistence/store/sqlite"
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/tuning"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "pending":
		err = pendingCmd(os.Stdout, os.Args[2:])
	case "attacks":
		err = attacksCmd(os.Stdout, os.Args[2:])
	case "journal":
		err = journalCmd(os.Stdout, os.Args[2:])
	case "metrics":
		err = metricsCmd(os.Stdout, os.Args[2:])
	default:
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var errStop = errors.New("limit reached")

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: admin <pending|attacks|journal|metrics> [flags]")
}

func openStore(ctx context.Context, path string) (*sqlite.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return sqlite.Open(ctx, path)
}

// pendingCmd lists the events a restart would enqueue, without touching
// the database.
func pendingCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("pending", flag.ContinueOnError)
	dbPath := fs.String("db", "./data/paddlers.sqlite", "sqlite database path")
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tune, err := tuning.Load(*tuningPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load tuning: %w", err)
	}

	ctx := context.Background()
	st, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := gamemaster.Derive(ctx, st, tune)
	if err != nil {
		return err
	}
	evs := append([]event.Event(nil), p.Events...)
	sort.Slice(evs, func(i, j int) bool { return event.Compare(evs[i], evs[j]) < 0 })

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DUE\tKIND\tPAYLOAD")
	for _, ev := range evs {
		b, _ := json.Marshal(ev.Payload)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.Due, ev.Kind, b)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d events, %d drafted attacks, %d admitted attacks\n", len(evs), len(p.Drafted), len(p.Admitted))
	return nil
}

func attacksCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("attacks", flag.ContinueOnError)
	dbPath := fs.String("db", "./data/paddlers.sqlite", "sqlite database path")
	states := fs.String("state", "", "comma separated states (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var filter []store.AttackState
	for _, s := range strings.Split(*states, ",") {
		if s = strings.TrimSpace(s); s != "" {
			filter = append(filter, store.AttackState(s))
		}
	}
	if len(filter) == 0 {
		filter = []store.AttackState{
			store.AttackDrafted, store.AttackAdmitted, store.AttackInFlight,
			store.AttackArrived, store.AttackResolved, store.AttackRejected,
		}
	}

	ctx := context.Background()
	st, err := openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	attacks, err := st.ListAttacks(ctx, filter...)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, a := range attacks {
		if err := enc.Encode(a); err != nil {
			return err
		}
	}
	return nil
}

func journalCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	dir := fs.String("dir", "./data/journal", "event journal directory")
	outcome := fs.String("outcome", "", "only entries with this outcome (done, skipped, retry, dead)")
	kind := fs.String("kind", "", "only entries of this event kind, e.g. ATTACK_ARRIVAL")
	limit := fs.Int("limit", 0, "stop after this many entries (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var wantKind event.Kind
	if *kind != "" {
		k, ok := event.ParseKind(*kind)
		if !ok {
			return fmt.Errorf("unknown kind %q", *kind)
		}
		wantKind = k
	}

	enc := json.NewEncoder(out)
	n := 0
	err := journal.Read(*dir, func(e journal.Entry) error {
		if *outcome != "" && string(e.Outcome) != *outcome {
			return nil
		}
		if *kind != "" && e.Kind != wantKind {
			return nil
		}
		if err := enc.Encode(e); err != nil {
			return err
		}
		n++
		if *limit > 0 && n >= *limit {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return err
	}
	return nil
}
