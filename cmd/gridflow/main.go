// gridflow is the operator CLI: submit jobs, read statuses, and inspect
// cluster state through the API server.
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

var apiURL string

func main() {
	root := &cobra.Command{
		Use:   "gridflow",
		Short: "Operator client for the gridflow dispatch cluster",
	}
	root.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8000", "API server base URL")

	root.AddCommand(newSubmitCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newClusterCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSubmitCmd() *cobra.Command {
	var (
		workload   string
		size       int
		iterations int
		priority   string
		deadline   int
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{
				"workload":   workload,
				"size":       size,
				"iterations": iterations,
				"priority":   priority,
			}
			if deadline > 0 {
				payload["deadline_sec"] = deadline
			}
			body, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			return doRequest(http.MethodPost, apiURL+"/submit", bytes.NewReader(body))
		},
	}
	cmd.Flags().StringVar(&workload, "workload", "sleep", "workload tag (matmul|conv|sleep|cnn|ddp_mock)")
	cmd.Flags().IntVar(&size, "size", 100, "problem size (or batch size)")
	cmd.Flags().IntVar(&iterations, "iterations", 1, "iteration/step count")
	cmd.Flags().StringVar(&priority, "priority", "med", "priority class (high|med|low)")
	cmd.Flags().IntVar(&deadline, "deadline", 0, "deadline SLO in seconds (0 = server default)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Read a job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(http.MethodGet, apiURL+"/status/"+args[0], nil)
		},
	}
}

func newClusterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cluster",
		Short: "Show queue lengths and worker state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(http.MethodGet, apiURL+"/cluster", nil)
		},
	}
}

// doRequest performs the call and pretty-prints the JSON response.
func doRequest(method, url string, body io.Reader) error {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Write(raw)
	}
	fmt.Println(pretty.String())

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: HTTP %d", method, url, resp.StatusCode)
	}
	return nil
}
