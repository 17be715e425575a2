// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// askShowQuery and historyLimit hold flag values for the ask and history
// commands.
var (
	askShowQuery bool
	historyLimit int
)

// queryRequest is the payload for POST /v1/peers/query and /v1/peers/cypher.
type queryRequest struct {
	Question string `json:"question"`
}

// queryResponse mirrors the server's full pipeline response.
type queryResponse struct {
	Answer              string         `json:"answer"`
	Cypher              string         `json:"cypher"`
	Params              map[string]any `json:"params,omitempty"`
	Provenance          string         `json:"provenance"`
	Complexity          string         `json:"complexity"`
	DegradedFromComplex bool           `json:"degraded_from_complex"`
	RowCount            int            `json:"row_count"`
	DurationMS          int64          `json:"duration_ms"`
}

// cypherResponse mirrors the server's generate-only response.
type cypherResponse struct {
	Cypher     string         `json:"cypher"`
	Params     map[string]any `json:"params,omitempty"`
	Provenance string         `json:"provenance"`
}

// historyQuery is the generated query recorded with a history entry.
type historyQuery struct {
	Text       string         `json:"text"`
	Params     map[string]any `json:"params,omitempty"`
	Provenance string         `json:"provenance"`
}

// historyEntry mirrors one completed round from GET /v1/peers/history.
type historyEntry struct {
	Timestamp  time.Time        `json:"timestamp"`
	Question   string           `json:"question"`
	Query      historyQuery     `json:"query"`
	RawResults []map[string]any `json:"raw_results,omitempty"`
	Answer     string           `json:"answer"`
}

// historyResponse mirrors the server's history listing, oldest first.
type historyResponse struct {
	Entries []historyEntry `json:"entries"`
	Count   int            `json:"count"`
}

func runAskCommand(_ *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	fmt.Printf("Asking: %s\n", question)
	fmt.Println("---")

	var resp queryResponse
	if err := postWithSpinner("/v1/peers/query", "Thinking", queryRequest{Question: question}, &resp); err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("\nAnswer:\n%s\n", resp.Answer)

	if askShowQuery {
		fmt.Printf("\nCypher:\n%s\n", resp.Cypher)
		if len(resp.Params) > 0 {
			fmt.Printf("Params: %s\n", mapToString(resp.Params))
		}
	}

	status := fmt.Sprintf("%s, %d rows, %dms", resp.Provenance, resp.RowCount, resp.DurationMS)
	if resp.DegradedFromComplex {
		status += ", degraded from complex"
	}
	fmt.Printf("\n[%s]\n", status)
}

func runCypherCommand(_ *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	var resp cypherResponse
	if err := postWithSpinner("/v1/peers/cypher", "Generating", queryRequest{Question: question}, &resp); err != nil {
		log.Fatalf("Error: %v", err)
	}

	// Output is pasteable into cypher-shell; metadata rides in comments.
	fmt.Println(resp.Cypher)
	if len(resp.Params) > 0 {
		fmt.Printf("// params: %s\n", mapToString(resp.Params))
	}
	fmt.Printf("// provenance: %s\n", resp.Provenance)
}

func runHistoryCommand(_ *cobra.Command, _ []string) {
	hist, err := fetchHistory()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if hist.Count == 0 {
		fmt.Println("No completed questions yet.")
		return
	}

	entries := hist.Entries
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}

	for i, entry := range entries {
		fmt.Printf("%d. [%s] %s\n", i+1, entry.Timestamp.Format("2006-01-02 15:04"), entry.Question)
		fmt.Printf("   %s\n", collapseToLine(entry.Answer, 160))
		fmt.Printf("   (%s, %d rows)\n", entry.Query.Provenance, len(entry.RawResults))
	}

	if len(entries) < hist.Count {
		fmt.Printf("\n(showing last %d of %d)\n", len(entries), hist.Count)
	}
}

// getServerBaseURL resolves the server address: --server flag first, then
// PEERS_SERVER_URL, then the local default peersd address.
func getServerBaseURL() string {
	if serverFlag != "" {
		return strings.TrimRight(serverFlag, "/")
	}
	if env := os.Getenv("PEERS_SERVER_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return "http://localhost:8086"
}

// postWithSpinner sends payload to path on the peers server and decodes the
// 200 response into out.
//
// # Description
//
// A spinner animates on stdout while the request is in flight, but only when
// stdout is a terminal; piped output (scripts, CI) stays clean. Non-200
// responses are turned into errors carrying the server's structured error
// body when it parses.
//
// # Inputs
//
//   - path: Server path, e.g. "/v1/peers/query".
//   - spinnerMsg: Label shown next to the spinner.
//   - payload: Marshaled as the JSON request body.
//   - out: Pointer the JSON response is decoded into.
//
// # Outputs
//
//   - error: Non-nil on connection failure, non-200 status, or decode error.
func postWithSpinner(path, spinnerMsg string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to create request body: %w", err)
	}

	targetURL := getServerBaseURL() + path
	client := &http.Client{Timeout: 3 * time.Minute}

	var done chan bool
	if stdoutIsTerminal() {
		done = make(chan bool)
		go showSpinner(spinnerMsg, done)
	}

	resp, err := client.Post(targetURL, "application/json", bytes.NewBuffer(body))
	if done != nil {
		done <- true
		fmt.Print("\r                                                \r")
	}
	if err != nil {
		return fmt.Errorf("peers server unavailable at %s: %w", getServerBaseURL(), err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(resp.StatusCode, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		log.Printf("Raw response from server: %s", string(bodyBytes))
		return fmt.Errorf("failed to parse server response: %w", err)
	}
	return nil
}

// fetchHistory retrieves completed question rounds from the server.
func fetchHistory() (historyResponse, error) {
	var hist historyResponse
	targetURL := fmt.Sprintf("%s/v1/peers/history", getServerBaseURL())

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(targetURL)
	if err != nil {
		return hist, fmt.Errorf("peers server unavailable at %s: %w", getServerBaseURL(), err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return hist, fmt.Errorf("failed to read server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return hist, serverError(resp.StatusCode, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, &hist); err != nil {
		log.Printf("Raw response from server: %s", string(bodyBytes))
		return hist, fmt.Errorf("failed to parse server response: %w", err)
	}
	return hist, nil
}

// serverError turns a non-200 response into an error, preferring the
// server's structured {error, code} body when it parses.
func serverError(status int, body []byte) error {
	var er struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return fmt.Errorf("server error %s (HTTP %d): %s", er.Code, status, er.Error)
	}
	return fmt.Errorf("server returned HTTP %d: %s", status, strings.TrimSpace(string(body)))
}

// stdoutIsTerminal reports whether stdout is attached to a terminal. The
// spinner and its cursor escapes are suppressed for piped output.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// showSpinner displays the animation until done receives a value.
func showSpinner(msg string, done chan bool) {
	chars := []string{"▖", "▘", "▝", "▗"}
	i := 0

	// Hide the cursor while animating
	fmt.Print("\033[?25l")
	defer fmt.Print("\033[?25h") // Restore cursor on exit

	for {
		select {
		case <-done:
			return
		default:
			// \r = return to start of line, \033[K = clear to end of line
			fmt.Printf("\r%s  %s... \033[K", chars[i%len(chars)], msg)
			i++
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func mapToString(m map[string]interface{}) string {
	b, _ := json.Marshal(m)
	return string(b)
}

// collapseToLine flattens s to a single line and truncates it for list
// display. Truncation is rune-safe; answers carry ₹ and other multi-byte
// characters.
func collapseToLine(s string, max int) string {
	line := strings.Join(strings.Fields(s), " ")
	runes := []rune(line)
	if len(runes) <= max {
		return line
	}
	return string(runes[:max]) + "..."
}
