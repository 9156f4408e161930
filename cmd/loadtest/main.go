// Command loadtest drives a running SuddenConnect server with simulated
// participants.
//
//	loadtest saturate -clients 5000     hold N idle connections
//	loadtest pair -clients 1000         connect N participants and time pairing
//	loadtest chat -clients 1000         pair, then time one chat round trip per participant
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "saturate":
		err = runSaturate(os.Args[2:])
	case "pair":
		err = runPair(os.Args[2:], false)
	case "chat":
		err = runPair(os.Args[2:], true)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: loadtest <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  saturate    open N idle connections and hold them")
	fmt.Println("  pair        connect N participants with random profiles and time until send-offer")
	fmt.Println("  chat        like pair, then send one chat message per participant and time its echo")
	fmt.Println()
	fmt.Println("Run 'loadtest <command> -h' for command-specific options.")
}
