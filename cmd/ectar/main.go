// Command ectar packages and unpacks erasure-coded archives: tar-style
// concatenation, per-chunk zstd compression, and systematic Reed-Solomon
// erasure coding spread across fixed-size shard files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/xerrors"

	"github.com/ectar-archive/ectar"
	"github.com/ectar-archive/ectar/internal/trace"
)

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var ctracefile = flag.String("ctracefile", "", "if non-empty, write a Chrome trace event file covering the chunk pipeline to this path")

func funcmain() error {
	flag.Parse()

	if *ctracefile != "" {
		f, err := os.Create(*ctracefile)
		if err != nil {
			return xerrors.Errorf("-ctracefile: %w", err)
		}
		ectar.RegisterAtExit(f.Close)
		trace.Sink(f)
	}

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"create":  {create},
		"extract": {extract},
	}

	args := flag.Args()
	verb := "create"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	if verb == "help" {
		fmt.Fprintf(os.Stderr, "ectar <command> [-flags] [args]\n")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "\tcreate  - build an erasure-coded archive from a file list\n")
		fmt.Fprintf(os.Stderr, "\textract - reconstruct and unpack an archive from its shards\n")
		os.Exit(2)
	}

	ctx, canc := ectar.InterruptibleContext()
	defer canc()

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: ectar <command> [options]\n")
		os.Exit(2)
	}
	verbErr := v.fn(ctx, args)
	if err := ectar.RunAtExit(); err != nil && verbErr == nil {
		return xerrors.Errorf("atexit: %w", err)
	}
	if verbErr != nil {
		return xerrors.Errorf("%s: %w", verb, verbErr)
	}
	return nil
}
