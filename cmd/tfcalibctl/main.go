// tfcalibctl inspects a calibration record store.
//
// On a terminal it runs an interactive shell; otherwise it executes the
// commands read line by line from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	defaults "github.com/xtxerr/tfcalib/config"
	"github.com/xtxerr/tfcalib/internal/calibration/store"
)

func main() {
	storePath := flag.String("store", defaults.DefaultStorePath, "record store path")
	objectPath := flag.String("path", defaults.DefaultObjectPath, "default object path")
	flag.Parse()

	db, err := store.Open(store.Options{Path: *storePath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	sh := NewShell(db, os.Stdout, *objectPath)

	if args := flag.Args(); len(args) > 0 {
		sh.Execute(strings.Join(args, " "))
		return
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if sh.Execute(scanner.Text()) {
				return
			}
		}
		return
	}

	fmt.Printf("tfcalibctl: %s (type help)\n", *storePath)

	exit := false
	p := prompt.New(
		func(line string) { exit = sh.Execute(line) },
		sh.Complete,
		prompt.OptionPrefix("tfcalib> "),
		prompt.OptionTitle("tfcalibctl"),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return exit }),
	)
	p.Run()
}

