package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL     string
	target        string
	securityLevel string
)

var rootCmd = &cobra.Command{
	Use:   "threatsim",
	Short: "Attack simulation driver for a running BioGate server",
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lockdown state, threshold, and accuracy metrics",
	RunE:  runStatus,
}

var bruteForceCmd = &cobra.Command{
	Use:   "brute-force",
	Short: "Fire impostor probes until the lockdown trips",
	RunE:  makeThreatRunner("BRUTE_FORCE"),
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Inject a replayed-challenge signature",
	RunE:  makeThreatRunner("REPLAY"),
}

var hijackCmd = &cobra.Command{
	Use:   "hijack",
	Short: "Inject a session hijacking signature",
	RunE:  makeThreatRunner("SESSION_HIJACKING"),
}

var injectionCmd = &cobra.Command{
	Use:   "injection",
	Short: "Inject a template injection signature",
	RunE:  makeThreatRunner("INJECTION"),
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every attack scenario in sequence, waiting out each lockdown",
	RunE:  runAll,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the BioGate server")
	rootCmd.PersistentFlags().StringVar(&target, "target", "", "display name of the target identity")
	rootCmd.PersistentFlags().StringVar(&securityLevel, "level", "HIGH", "security level (HIGH or LOW)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(bruteForceCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(hijackCmd)
	rootCmd.AddCommand(injectionCmd)
	rootCmd.AddCommand(allCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var client = &http.Client{Timeout: 10 * time.Second}

func runStatus(cmd *cobra.Command, args []string) error {
	resp, err := client.Get(serverURL + "/api/v1/status")
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	return printJSON(resp.Body)
}

func makeThreatRunner(kind string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return executeThreat(kind)
	}
}

func executeThreat(kind string) error {
	if target == "" {
		return fmt.Errorf("--target is required")
	}

	body, err := json.Marshal(map[string]string{
		"kind":          kind,
		"target":        target,
		"securityLevel": securityLevel,
	})
	if err != nil {
		return err
	}

	resp, err := client.Post(serverURL+"/api/v1/threats/execute", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("threat request failed: %w", err)
	}
	defer resp.Body.Close()

	fmt.Printf("%s -> HTTP %d\n", kind, resp.StatusCode)
	return printJSON(resp.Body)
}

func runAll(cmd *cobra.Command, args []string) error {
	kinds := []string{"BRUTE_FORCE", "REPLAY", "SESSION_HIJACKING", "INJECTION"}
	for i, kind := range kinds {
		if i > 0 {
			if err := waitForUnlock(); err != nil {
				return err
			}
		}
		if err := executeThreat(kind); err != nil {
			return err
		}
	}
	return nil
}

// waitForUnlock polls status until the previous scenario's lockdown expires.
func waitForUnlock() error {
	for {
		resp, err := client.Get(serverURL + "/api/v1/status")
		if err != nil {
			return fmt.Errorf("status request failed: %w", err)
		}

		var st struct {
			Locked           bool `json:"locked"`
			RemainingSeconds int  `json:"remainingSeconds"`
		}
		err = json.NewDecoder(resp.Body).Decode(&st)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("bad status response: %w", err)
		}

		if !st.Locked {
			return nil
		}
		fmt.Printf("locked, waiting %ds...\n", st.RemainingSeconds)
		time.Sleep(time.Duration(st.RemainingSeconds)*time.Second + time.Second)
	}
}

func printJSON(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
