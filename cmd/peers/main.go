// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command peers is the terminal client for the Aleutian Peers server.
//
// It talks to the HTTP API exposed by peersd: ask a question and get a
// grounded answer, inspect the Cypher a question would generate without
// running it, or list recent rounds.
//
// Usage:
//
//	peers ask "what was kajaria's revenue in fy2024?"
//	peers cypher "compare ebitda margins for somany and kajaria"
//	peers history -n 5
//
// The server address is resolved from the --server flag, then the
// PEERS_SERVER_URL environment variable, then http://localhost:8086.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at release time via -ldflags "-X main.version=...".
var version = "1.0.0"

// serverFlag holds the --server flag value shared by all subcommands.
var serverFlag string

// newRootCommand assembles the peers command tree. Built fresh per
// invocation so tests never share flag state between runs.
func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "peers",
		Short: "Query the Aleutian Peers financial knowledge graph",
		Long: `peers is the terminal client for the Aleutian Peers server.

Questions are sent to the server, translated to Cypher, executed against
the company knowledge graph, and answered strictly from the rows that come
back. Every answer cites the figures it was built from.

The server address is resolved in order: --server flag, PEERS_SERVER_URL
environment variable, then http://localhost:8086.`,
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "",
		"peers server base URL (overrides PEERS_SERVER_URL)")

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question and print the grounded answer",
		Example: `  peers ask "what was kajaria's revenue in fy2024?"
  peers ask --show-query "compare ebitda margins for somany and kajaria"`,
		Args: cobra.MinimumNArgs(1),
		Run:  runAskCommand,
	}
	askCmd.Flags().BoolVar(&askShowQuery, "show-query", false,
		"print the executed Cypher and parameters after the answer")

	cypherCmd := &cobra.Command{
		Use:     "cypher <question>",
		Short:   "Generate the Cypher for a question without executing it",
		Example: `  peers cypher "what was somany's ebitda in fy2023?"`,
		Args:    cobra.MinimumNArgs(1),
		Run:     runCypherCommand,
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent question rounds, oldest first",
		Args:  cobra.NoArgs,
		Run:   runHistoryCommand,
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0,
		"show at most the last N rounds (0 shows all)")

	rootCmd.AddCommand(askCmd, cypherCmd, historyCmd)
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
