// Command checkcast-remover removes duplicated adjacent checkcast
// instructions from a compiled class file, rewriting it in place.
package main

import (
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/slarse/duplicate-checkcast-remover/errors"
	"github.com/slarse/duplicate-checkcast-remover/insnlist"
	"github.com/slarse/duplicate-checkcast-remover/rewrite"
)

const usage = "usage: checkcast-remover <CLASSFILE>"

var (
	countStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#98FB98"))

	methodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("checkcast-remover", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		verbose     = flags.Bool("v", false, "Log rewrite decisions to stderr")
		workers     = flags.Int("j", 1, "Methods rewritten concurrently (0 uses every CPU)")
		interactive = flags.Bool("i", false, "Review changes before writing (TUI)")
	)
	if err := flags.Parse(args); err != nil || flags.NArg() != 1 {
		fmt.Fprintln(stdout, usage)
		return 1
	}
	path := flags.Arg(0)

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer logger.Sync()
		insnlist.SetLogger(logger.Named("insnlist"))
		rewrite.SetLogger(logger.Named("rewrite"))
	}

	opts := []rewrite.Option{rewrite.WithWorkers(*workers)}
	var (
		report *rewrite.Report
		err    error
	)
	if *interactive {
		report, err = review(path, opts)
	} else {
		report, err = rewrite.File(path, opts...)
	}
	if err != nil {
		if stderrors.Is(err, errors.ErrFileNotFound) {
			fmt.Fprintf(stderr, "No such file: %s\n", path)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	if report != nil {
		printReport(stdout, report)
	}
	return 0
}

func printReport(w io.Writer, report *rewrite.Report) {
	styled := isTerminal(w)
	for _, m := range report.Methods {
		if !styled {
			fmt.Fprintf(w, "Removed %d duplicated CHECKCAST instructions from %s\n", m.Removed, report.Qualified(m))
			continue
		}
		fmt.Fprintf(w, "Removed %s duplicated CHECKCAST instructions from %s\n",
			countStyle.Render(fmt.Sprint(m.Removed)),
			methodStyle.Render(report.Qualified(m)))
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
