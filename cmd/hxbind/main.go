package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		if err := runServe(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "watch":
		if err := runWatch(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("hxbind version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`hxbind - reactive data-binding bridge

Usage:
  hxbind <command> [arguments]

Commands:
  serve                 Run the demo server (bar chart with click feedback)
  watch                 Connect to a server and draw its outputs in the terminal
  version               Print version
  help                  Show this help

Options for serve:
  --config <file>       YAML config file (HXBIND_* env vars override it)

Options for watch:
  --url <url>           Session endpoint (default http://localhost:8080/_b/)
  --click <n>           Click bar n after the first render
  --log-level <level>   debug, info, warn or error (default warn)

Examples:
  hxbind serve --config hxbind.yaml
  HXBIND_SERVER_ROUTER=gin hxbind serve
  hxbind watch --click 2`)
}
