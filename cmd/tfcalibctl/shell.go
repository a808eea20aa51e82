package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/c-bata/go-prompt"

	"github.com/xtxerr/tfcalib/internal/calibration/store"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
)

// Shell executes record store commands.
type Shell struct {
	db          *store.DuckDB
	out         io.Writer
	defaultPath string
}

// NewShell creates a shell over db writing to out. Commands without an
// explicit object path use defaultPath.
func NewShell(db *store.DuckDB, out io.Writer, defaultPath string) *Shell {
	return &Shell{db: db, out: out, defaultPath: defaultPath}
}

var commands = []prompt.Suggest{
	{Text: "list", Description: "list [path] - records of an object path"},
	{Text: "at", Description: "at <path> <tf> - record valid at a time frame"},
	{Text: "count", Description: "count - number of stored records"},
	{Text: "help", Description: "show commands"},
	{Text: "exit", Description: "leave the shell"},
}

// Complete suggests command names for the first word.
func (s *Shell) Complete(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
}

// Execute runs one command line. It returns true when the shell should exit.
func (s *Shell) Execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	ctx := context.Background()
	var err error

	switch fields[0] {
	case "exit", "quit":
		return true
	case "help":
		s.help()
	case "count":
		err = s.count(ctx)
	case "list":
		path := s.defaultPath
		if len(fields) > 1 {
			path = fields[1]
		}
		err = s.list(ctx, path)
	case "at":
		err = s.at(ctx, fields[1:])
	default:
		err = fmt.Errorf("unknown command %q (try help)", fields[0])
	}

	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
	return false
}

func (s *Shell) help() {
	for _, c := range commands {
		fmt.Fprintf(s.out, "  %-6s %s\n", c.Text, c.Description)
	}
}

func (s *Shell) count(ctx context.Context) error {
	n, err := s.db.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d records\n", n)
	return nil
}

func (s *Shell) list(ctx context.Context, path string) error {
	records, err := s.db.List(ctx, path)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(s.out, "no records for %s\n", path)
		return nil
	}
	s.table(records)
	return nil
}

func (s *Shell) at(ctx context.Context, args []string) error {
	var path, tf string
	switch len(args) {
	case 1:
		path, tf = s.defaultPath, args[0]
	case 2:
		path, tf = args[0], args[1]
	default:
		return errors.NewValidation("at", "usage: at <path> <tf>")
	}

	t, err := strconv.ParseInt(tf, 10, 64)
	if err != nil {
		return errors.NewInvalidValue("tf", tf, "must be an integer")
	}

	rec, err := s.db.Lookup(ctx, path, t)
	if err != nil {
		return err
	}
	s.table([]types.Record{rec})
	return nil
}

func (s *Shell) table(records []types.Record) {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VALIDITY\tSLOT\tENOUGH\tSIDE A\tSIDE C")
	for _, r := range records {
		fmt.Fprintf(tw, "[%d, %d)\t[%d, %d)\t%t\t%s\t%s\n",
			r.ValidityStart, r.ValidityEnd,
			r.SlotStart, r.SlotEnd,
			r.EnoughData,
			r.Stats[types.SideA], r.Stats[types.SideC])
	}
	tw.Flush()
}
