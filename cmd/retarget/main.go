package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/retarget/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "map":
		err = runMap(args, os.Stdout)
	case "replay":
		err = runReplay(args, os.Stdout)
	case "list":
		err = runList(args, os.Stdout)
	case "debug":
		err = runDebug(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func printUsage() {
	fmt.Println(`retarget - skeleton retargeting tools

Usage: retarget <command> [options]

Commands:
  map        Align a target skeleton, generate joint mappings and store the config
  replay     Drive a retargeter from a stored config with a synthetic source
  list       List stored configs
  debug      Serve the database debug pages (tailsql)
  version    Show retarget version
  help       Show this help message

Common Flags:
  --db <file>        SQLite database path (default: retarget.db)
  --config <file>    Tuning configuration JSON (default: built-in defaults)

Examples:
  # Generate and store a config from two skeleton descriptions
  retarget map --source tracker.json --target avatar.json --align --name avatar

  # Replay 300 frames, writing a frame stream and scale plots
  retarget replay --id <config-id> --frames 300 --out frames.bin --plots plots/

  # Inspect the database on http://localhost:8090/debug/
  retarget debug --listen localhost:8090`)
}
