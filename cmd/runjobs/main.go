// runjobs is a small operator CLI that submits a workflow definition to a
// running API instance, triggers an execution, and optionally polls the job
// until it reaches a terminal state.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"taskflow/backend/pkg/models"
)

var (
	serverURL string
	filePath  string
	token     string
	watch     bool
	pollEvery time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "runjobs",
		Short: "Submit and trigger workflows against a running API instance",
		RunE:  run,
	}
	root.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the workflow API")
	root.Flags().StringVar(&filePath, "file", "", "path to a JSON workflow definition")
	root.Flags().StringVar(&token, "token", "", "bearer token for the API")
	root.Flags().BoolVar(&watch, "watch", false, "poll the job until it finishes")
	root.Flags().DurationVar(&pollEvery, "poll-interval", 2*time.Second, "interval between status polls")
	_ = root.MarkFlagRequired("file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	raw, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read workflow file: %w", err)
	}

	// Validate locally before submitting, for a faster failure.
	var wf models.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return fmt.Errorf("parse workflow file: %w", err)
	}
	if err := wf.Validate(); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	var created models.Workflow
	if err := postJSON(ctx, client, serverURL+"/workflow-create", raw, &created); err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	fmt.Printf("workflow created: %s\n", created.ID)

	var trigger struct {
		JobID string `json:"job_id"`
	}
	url := serverURL + "/job/workflow-trigger/" + created.ID
	if err := postJSON(ctx, client, url, nil, &trigger); err != nil {
		return fmt.Errorf("trigger workflow: %w", err)
	}
	fmt.Printf("job enqueued: %s\n", trigger.JobID)

	if !watch {
		return nil
	}
	return pollJob(ctx, client, trigger.JobID)
}

func pollJob(ctx context.Context, client *http.Client, jobID string) error {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var job models.Job
		if err := getJSON(ctx, client, serverURL+"/job/status/"+jobID, &job); err != nil {
			return fmt.Errorf("poll job status: %w", err)
		}
		fmt.Printf("job %s: %s\n", jobID, job.Status)

		if job.Status.Terminal() {
			out, err := json.MarshalIndent(job.Result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if job.Status == models.JobStatusFailure {
				return fmt.Errorf("job %s failed", jobID)
			}
			return nil
		}
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req, out)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return do(client, req, out)
}

func do(client *http.Client, req *http.Request, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d: %s", req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
