// Command smoke drives a running notegraph server through the climate
// scenario: two opposing notes, background detection, then a dismissal.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type client struct {
	baseURL string
	user    string
	http    *http.Client
}

func (c *client) do(method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", c.user)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		return resp.StatusCode, json.Unmarshal(data, out)
	}
	return resp.StatusCode, nil
}

type note struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

type contradiction struct {
	ID      string `json:"id"`
	NoteAID string `json:"note_a_id"`
	NoteBID string `json:"note_b_id"`
	Status  string `json:"status"`
}

func run(c *client, wait time.Duration) error {
	step := func(name string) { fmt.Println("==>", name) }

	step("creating notes")
	var a, b note
	if _, err := c.do(http.MethodPost, "/notes", map[string]any{
		"title": "Nuclear", "body": "Nuclear energy is the best climate solution",
	}, &a); err != nil {
		return err
	}
	if _, err := c.do(http.MethodPost, "/notes", map[string]any{
		"title": "Renewables", "body": "Only solar and wind are viable climate solutions",
	}, &b); err != nil {
		return err
	}

	step("requesting detection")
	if _, err := c.do(http.MethodPost, "/notes/"+b.ID+"/detect", nil, nil); err != nil {
		return err
	}

	step("waiting for the contradiction")
	var found *contradiction
	deadline := time.Now().Add(wait)
	for found == nil {
		if time.Now().After(deadline) {
			return fmt.Errorf("no contradiction between %s and %s after %s", a.ID, b.ID, wait)
		}
		var list struct {
			Contradictions []contradiction `json:"contradictions"`
		}
		if _, err := c.do(http.MethodGet, "/contradictions?status=unresolved", nil, &list); err != nil {
			return err
		}
		for i, x := range list.Contradictions {
			if (x.NoteAID == a.ID && x.NoteBID == b.ID) || (x.NoteAID == b.ID && x.NoteBID == a.ID) {
				found = &list.Contradictions[i]
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Printf("    flagged %s\n", found.ID)

	step("dismissing")
	var dismissed contradiction
	if _, err := c.do(http.MethodPost, "/contradictions/"+found.ID+"/dismiss", map[string]any{"reason": "smoke test"}, &dismissed); err != nil {
		return err
	}
	if dismissed.Status != "dismissed" {
		return fmt.Errorf("expected dismissed, got %q", dismissed.Status)
	}
	if code, err := c.do(http.MethodPost, "/contradictions/"+found.ID+"/dismiss", nil, nil); code != http.StatusConflict {
		return fmt.Errorf("second dismissal: expected 409, got %d (%v)", code, err)
	}

	step("cleaning up")
	for _, id := range []string{a.ID, b.ID} {
		if _, err := c.do(http.MethodDelete, "/notes/"+id, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	var (
		baseURL string
		user    string
		wait    time.Duration
	)
	cmd := &cobra.Command{
		Use:          "smoke",
		Short:        "Exercise a running notegraph server end to end",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				user = "smoke-" + uuid.NewString()
			}
			c := &client{baseURL: baseURL, user: user, http: &http.Client{Timeout: 10 * time.Second}}
			if err := run(c, wait); err != nil {
				return err
			}
			fmt.Println("PASSED")
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&user, "user", "", "user id sent in X-User-ID (random when empty)")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for background detection")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "FAILED:", err)
		os.Exit(1)
	}
}
