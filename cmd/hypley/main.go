// Command hypley runs the HypleyIA gateway and its local clients.
//
// Usage:
//
//	hypley serve                 run the gateway
//	hypley live [--agent id]     voice session on the local sound card
//	hypley chat [message]        text chat through a gateway
//	hypley history [id]          stored conversations
//	hypley migrate               apply the Postgres schema
package main

import (
	"context"
	"os"

	"github.com/hypley-ai/hypley-live/cmd/hypley/commands"
)

func main() {
	os.Exit(commands.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
