// Package main implements the dialerctl CLI for manual operations against
// the dialerd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the dialerd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dialerctl",
	Short: "CLI for dialerd server operations",
	Long: `dialerctl is a command-line interface for interacting with the dialerd server.
It provides commands for checking server health and inspecting active call sessions.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9085", "dialerd server URL")
	callbackCmd.Flags().StringVar(&callbackAt, "at", "", "callback time (RFC 3339), defaults to the next business day")
	callbackCmd.Flags().StringVar(&callbackReason, "reason", "", "reason recorded with the callback")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(callbackCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check dialerd server health",
	Long: `Check the health status of the dialerd server.

Examples:
  # Check health
  dialerctl health

  # Check health on a different server
  dialerctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// sessionsCmd lists active call sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions [call-id]",
	Short: "List active call sessions",
	Long: `List the active call sessions held by the dialerd server, or show one
session in full when a call id is given.

Examples:
  # List all active sessions
  dialerctl sessions

  # Show one session
  dialerctl sessions call-abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessions,
}

var (
	callbackAt     string
	callbackReason string
)

// callbackCmd schedules a callback for an active session
var callbackCmd = &cobra.Command{
	Use:   "callback <call-id>",
	Short: "Schedule a callback for an active session",
	Long: `Schedule a callback with the dialer system for the lead on an active
session. Without --at the server picks the next business day at its
configured callback hour.

Examples:
  # Callback at the default time
  dialerctl callback call-abc123 --reason "requested afternoon call"

  # Callback at an explicit time
  dialerctl callback call-abc123 --at 2026-09-01T14:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runCallback,
}

// HealthResponse matches internal/httpapi healthResponse.
type HealthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	ActiveSessions int    `json:"active_sessions"`
}

// SessionView is the subset of the session snapshot the CLI displays.
type SessionView struct {
	CallID          string    `json:"call_id"`
	PhoneNumber     string    `json:"phone_number"`
	State           string    `json:"state"`
	Status          string    `json:"status"`
	AgentExtension  string    `json:"agent_extension"`
	StartTime       time.Time `json:"start_time"`
	DispositionSent bool      `json:"disposition_sent"`
}

func getJSON(path string, out any) error {
	url := serverURL + path
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func postJSON(path string, payload, out any) error {
	url := serverURL + path
	client := &http.Client{Timeout: 5 * time.Second}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	var health HealthResponse
	if err := getJSON("/health", &health); err != nil {
		return err
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	fmt.Printf("Active Sessions: %d\n", health.ActiveSessions)
	return nil
}

// runCallback handles the callback command
func runCallback(cmd *cobra.Command, args []string) error {
	payload := struct {
		CallbackDateTime time.Time `json:"callbackDateTime,omitzero"`
		Reason           string    `json:"reason,omitempty"`
	}{Reason: callbackReason}

	if callbackAt != "" {
		at, err := time.Parse(time.RFC3339, callbackAt)
		if err != nil {
			return fmt.Errorf("invalid --at time %q: %w", callbackAt, err)
		}
		payload.CallbackDateTime = at
	}

	var result struct {
		Scheduled bool   `json:"scheduled"`
		Note      string `json:"note"`
	}
	if err := postJSON("/sessions/"+args[0]+"/callback", payload, &result); err != nil {
		return err
	}

	if result.Scheduled {
		fmt.Println("Callback scheduled")
	} else {
		fmt.Printf("Callback not scheduled: %s\n", result.Note)
	}
	return nil
}

// runSessions handles the sessions command
func runSessions(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		var raw json.RawMessage
		if err := getJSON("/sessions/"+args[0], &raw); err != nil {
			return err
		}
		var pretty map[string]any
		if err := json.Unmarshal(raw, &pretty); err != nil {
			return err
		}
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	var sessions []SessionView
	if err := getJSON("/sessions", &sessions); err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CALL ID\tPHONE\tSTATE\tSTATUS\tEXT\tAGE\tDISPOSED")
	now := time.Now()
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
			s.CallID,
			s.PhoneNumber,
			s.State,
			s.Status,
			s.AgentExtension,
			now.Sub(s.StartTime).Truncate(time.Second),
			s.DispositionSent,
		)
	}
	return w.Flush()
}
