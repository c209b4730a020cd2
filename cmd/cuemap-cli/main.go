// Command cuemap-cli is an admin client for a running cuemapd instance:
// cobra subcommands that issue plain HTTP requests against the JSON API,
// falling back to an interactive shell when invoked with no subcommand.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// cli holds the shared state for all subcommands.
type cli struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func main() {
	var url, apiKey, tenant string
	var interactive bool

	c := &cli{httpClient: &http.Client{Timeout: 30 * time.Second}}

	rootCmd := &cobra.Command{
		Use:   "cuemap-cli",
		Short: "cuemap-cli — admin client for cuemapd servers",
		Long:  "A command-line client for inspecting and driving a running CueMap daemon.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = os.Getenv("CUEMAP_URL")
			}
			if url == "" {
				url = "http://localhost:8080"
			}
			if apiKey == "" {
				apiKey = os.Getenv("CUEMAP_API_KEY")
			}
			c.baseURL = strings.TrimRight(url, "/")
			c.apiKey = apiKey
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			runREPL(c, tenant)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&url, "url", "", "Server base URL (overrides CUEMAP_URL, default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "X-API-Key header value (overrides CUEMAP_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&tenant, "tenant", "t", "", "Tenant id (X-Project-ID header)")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start interactive shell (default when no subcommand given)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.getJSON("/health", "")
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show tenant statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.getJSON("/v1/stats", tenant)
		},
	})

	addCmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Add a new memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cues, _ := cmd.Flags().GetStringSlice("cue")
			payload := map[string]any{"content": args[0]}
			if len(cues) > 0 {
				payload["cues"] = cues
			}
			body, _ := json.Marshal(payload)
			return c.postJSON("/v1/memories", string(body), tenant)
		},
	}
	addCmd.Flags().StringSlice("cue", nil, "Cue to attach (repeatable: --cue a --cue b)")
	rootCmd.AddCommand(addCmd)

	recallCmd := &cobra.Command{
		Use:   "recall",
		Short: "Recall memories by cue or query text",
		RunE: func(cmd *cobra.Command, args []string) error {
			cues, _ := cmd.Flags().GetStringSlice("cue")
			query, _ := cmd.Flags().GetString("query")
			limit, _ := cmd.Flags().GetInt("limit")

			q := make([]string, 0, len(cues)+2)
			for _, cue := range cues {
				q = append(q, "cues="+cue)
			}
			if query != "" {
				q = append(q, "query_text="+query)
			}
			q = append(q, "limit="+strconv.Itoa(limit))
			return c.getJSON("/v1/recall?"+strings.Join(q, "&"), tenant)
		},
	}
	recallCmd.Flags().StringSlice("cue", nil, "Cue to recall by (repeatable)")
	recallCmd.Flags().String("query", "", "Free text query, used when no cues given")
	recallCmd.Flags().Int("limit", 10, "Max results")
	rootCmd.AddCommand(recallCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "get [memory-id]",
		Short: "Fetch a memory by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.getJSON("/v1/memories/"+args[0], tenant)
		},
	})

	reinforceCmd := &cobra.Command{
		Use:   "reinforce [memory-id]",
		Short: "Reinforce a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cues, _ := cmd.Flags().GetStringSlice("cue")
			payload := map[string]any{}
			if len(cues) > 0 {
				payload["extra_cues"] = cues
			}
			body, _ := json.Marshal(payload)
			return c.postJSON("/v1/memories/"+args[0]+"/reinforce", string(body), tenant)
		},
	}
	reinforceCmd.Flags().StringSlice("cue", nil, "Extra cue to attach on reinforcement")
	rootCmd.AddCommand(reinforceCmd)

	aliasCmd := &cobra.Command{
		Use:   "alias [from] [to]",
		Short: "Add an alias edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			weight, _ := cmd.Flags().GetFloat64("weight")
			body, _ := json.Marshal(map[string]any{"from": args[0], "to": args[1], "weight": weight})
			return c.postJSON("/v1/aliases", string(body), tenant)
		},
	}
	aliasCmd.Flags().Float64("weight", 0.85, "Alias edge weight (0,1]")
	rootCmd.AddCommand(aliasCmd)

	lexiconCmd := &cobra.Command{Use: "lexicon", Short: "Lexicon inspection and wiring"}
	lexiconCmd.AddCommand(&cobra.Command{
		Use:   "inspect [cue]",
		Short: "Show outgoing/incoming lexicon edges for a cue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.getJSON("/v1/lexicon/"+args[0], tenant)
		},
	})
	lexiconCmd.AddCommand(&cobra.Command{
		Use:   "wire [token] [canonical]",
		Short: "Wire a token to a canonical cue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]any{"token": args[0], "canonical": args[1]})
			return c.postJSON("/v1/lexicon/wire", string(body), tenant)
		},
	})
	rootCmd.AddCommand(lexiconCmd)

	rootCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if interactive {
			runREPL(c, tenant)
			os.Exit(0)
		}
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (c *cli) doRequest(method, path, body, tenant string) error {
	url := c.baseURL + path
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set("X-Project-ID", tenant)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "Error %d: %s\n", resp.StatusCode, string(data))
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var pretty map[string]any
	if err := json.Unmarshal(data, &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	var arr []any
	if err := json.Unmarshal(data, &arr); err == nil {
		out, _ := json.MarshalIndent(arr, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(string(data))
	return nil
}

func (c *cli) getJSON(path, tenant string) error        { return c.doRequest("GET", path, "", tenant) }
func (c *cli) postJSON(path, body, tenant string) error { return c.doRequest("POST", path, body, tenant) }

func (c *cli) silentGet(path, tenant string) error {
	url := c.baseURL + path
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	if tenant != "" {
		req.Header.Set("X-Project-ID", tenant)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
