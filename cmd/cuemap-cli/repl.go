package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const replHelp = `
CueMap Interactive Shell — available commands:

  ping                               Check server health
  stats                              Tenant statistics
  add <content>                      Add a memory
    add <content> --cue a --cue b
  recall [query]                     Recall memories
    recall --cue a --cue b --limit N
  get <memory-id>                    Fetch a memory by id
  reinforce <memory-id>              Reinforce a memory
    reinforce <memory-id> --cue extra
  alias <from> <to>                  Add an alias edge
    alias <from> <to> --weight 0.9
  lexicon inspect <cue>              Show lexicon edges for a cue
  lexicon wire <token> <canonical>   Wire a token to a canonical cue

  \tenant                            Show active tenant
  \tenant <id>                       Switch active tenant
  \help                              Show this help
  \quit  (or exit, quit, Ctrl-D)     Exit
`

// runREPL starts the interactive shell. tenant, if non-empty, is the
// initial active tenant.
func runREPL(c *cli, tenant string) {
	if err := c.silentGet("/health", ""); err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach %s — %v\n", c.baseURL, err)
		os.Exit(1)
	}

	tenantInfo := ""
	if tenant != "" {
		tenantInfo = fmt.Sprintf(", tenant: %s", tenant)
	}
	fmt.Printf("Connected to CueMap at %s%s\nType \\help for commands, \\quit to exit.\n\n", c.baseURL, tenantInfo)

	activeTenant := tenant
	scanner := bufio.NewScanner(os.Stdin)

	for {
		prompt := "cuemap"
		if activeTenant != "" {
			prompt = fmt.Sprintf("cuemap[%s]", activeTenant)
		}
		fmt.Printf("%s> ", prompt)

		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if done := dispatchREPL(c, line, &activeTenant); done {
			fmt.Println("Bye.")
			break
		}
	}
}

// dispatchREPL parses and executes one REPL line. Returns true when the
// user wants to quit.
func dispatchREPL(c *cli, line string, activeTenant *string) bool {
	parts := tokenize(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case `\quit`, `\q`, "exit", "quit":
		return true

	case `\help`, `\h`, "help":
		fmt.Print(replHelp)

	case `\tenant`:
		if len(parts) < 2 {
			if *activeTenant == "" {
				fmt.Println("no active tenant (use \\tenant <id> to set one)")
			} else {
				fmt.Printf("active tenant: %s\n", *activeTenant)
			}
		} else {
			*activeTenant = parts[1]
			fmt.Printf("switched to tenant: %s\n", *activeTenant)
		}

	case "ping":
		if err := c.getJSON("/health", ""); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

	case "stats":
		c.getJSON("/v1/stats", *activeTenant) //nolint:errcheck

	case "add":
		replAdd(c, parts[1:], *activeTenant)

	case "recall":
		replRecall(c, parts[1:], *activeTenant)

	case "get":
		if len(parts) < 2 {
			fmt.Fprintln(os.Stderr, "usage: get <memory-id>")
		} else {
			c.getJSON("/v1/memories/"+parts[1], *activeTenant) //nolint:errcheck
		}

	case "reinforce":
		replReinforce(c, parts[1:], *activeTenant)

	case "alias":
		replAlias(c, parts[1:], *activeTenant)

	case "lexicon":
		replLexicon(c, parts[1:], *activeTenant)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q — type \\help for available commands\n", cmd)
	}

	return false
}

func replAdd(c *cli, args []string, tenant string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: add <content> [--cue a --cue b]")
		return
	}
	content := args[0]
	var cues []string
	for i := 1; i < len(args); i++ {
		if args[i] == "--cue" && i+1 < len(args) {
			i++
			cues = append(cues, args[i])
		}
	}
	payload := map[string]any{"content": content}
	if len(cues) > 0 {
		payload["cues"] = cues
	}
	body, _ := json.Marshal(payload)
	c.postJSON("/v1/memories", string(body), tenant) //nolint:errcheck
}

func replRecall(c *cli, args []string, tenant string) {
	var cues []string
	query := ""
	limit := 10
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--cue":
			if i+1 < len(args) {
				i++
				cues = append(cues, args[i])
			}
		case "--limit":
			if i+1 < len(args) {
				i++
				if n, err := strconv.Atoi(args[i]); err == nil {
					limit = n
				}
			}
		default:
			if query == "" {
				query = args[i]
			}
		}
	}

	q := make([]string, 0, len(cues)+2)
	for _, cue := range cues {
		q = append(q, "cues="+cue)
	}
	if query != "" {
		q = append(q, "query_text="+query)
	}
	q = append(q, "limit="+strconv.Itoa(limit))
	c.getJSON("/v1/recall?"+strings.Join(q, "&"), tenant) //nolint:errcheck
}

func replReinforce(c *cli, args []string, tenant string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: reinforce <memory-id> [--cue extra]")
		return
	}
	id := args[0]
	var cues []string
	for i := 1; i < len(args); i++ {
		if args[i] == "--cue" && i+1 < len(args) {
			i++
			cues = append(cues, args[i])
		}
	}
	payload := map[string]any{}
	if len(cues) > 0 {
		payload["extra_cues"] = cues
	}
	body, _ := json.Marshal(payload)
	c.postJSON("/v1/memories/"+id+"/reinforce", string(body), tenant) //nolint:errcheck
}

func replAlias(c *cli, args []string, tenant string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: alias <from> <to> [--weight 0.9]")
		return
	}
	from, to := args[0], args[1]
	weight := 0.85
	for i := 2; i < len(args); i++ {
		if args[i] == "--weight" && i+1 < len(args) {
			i++
			if w, err := strconv.ParseFloat(args[i], 64); err == nil {
				weight = w
			}
		}
	}
	body, _ := json.Marshal(map[string]any{"from": from, "to": to, "weight": weight})
	c.postJSON("/v1/aliases", string(body), tenant) //nolint:errcheck
}

func replLexicon(c *cli, args []string, tenant string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: lexicon inspect <cue> | lexicon wire <token> <canonical>")
		return
	}
	switch args[0] {
	case "inspect":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: lexicon inspect <cue>")
			return
		}
		c.getJSON("/v1/lexicon/"+args[1], tenant) //nolint:errcheck
	case "wire":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: lexicon wire <token> <canonical>")
			return
		}
		body, _ := json.Marshal(map[string]any{"token": args[1], "canonical": args[2]})
		c.postJSON("/v1/lexicon/wire", string(body), tenant) //nolint:errcheck
	default:
		fmt.Fprintf(os.Stderr, "unknown lexicon subcommand %q\n", args[0])
	}
}

// tokenize splits a line into tokens respecting quoted strings.
func tokenize(line string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case inQuote:
			if ch == quoteChar {
				inQuote = false
			} else {
				cur.WriteRune(ch)
			}
		case ch == '"' || ch == '\'':
			inQuote = true
			quoteChar = ch
		case ch == ' ' || ch == '\t':
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(ch)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
