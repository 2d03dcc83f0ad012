// Command pagecache-cli is an interactive client for pagecached: a
// readline-driven REPL that sends the line protocol pkg/transport
// defines over a plain TCP connection and prints the raw replies.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".connect"),
	readline.PcItem(".exit"),
	readline.PcItem("INSERT"),
	readline.PcItem("UPDATE"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("STATS"),
	readline.PcItem("FRAG"),
)

const helpText = `
pagecache-cli - interactive client for pagecached

Commands:
  .help              - show this help message
  .connect address   - connect to a pagecached instance (default localhost:9851)
  .exit              - exit the program

  INSERT key value   - store a new key, failing if it already exists
  UPDATE key value   - overwrite an existing key's value
  GET key            - retrieve a value by key
  DELETE key         - remove a key
  STATS              - print request/hit/miss/eviction counters
  FRAG               - print the current fragmentation snapshot
`

func main() {
	addr := flag.String("address", "localhost:9851", "pagecached address to connect to")
	flag.Parse()

	conn, r, w, err := dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	fmt.Printf("Connected to %s\n", *addr)

	historyFile := filepath.Join(os.TempDir(), ".pagecache_cli_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pagecache> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "error reading input: %s\n", readErr)
			continue
		}

		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])

		switch cmd {
		case ".help":
			fmt.Print(helpText)
			continue
		case ".exit":
			fmt.Println("Goodbye!")
			return
		case ".connect":
			if len(parts) < 2 {
				fmt.Println("usage: .connect host:port")
				continue
			}
			if conn != nil {
				conn.Close()
			}
			conn, r, w, err = dial(parts[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", parts[1], err)
				continue
			}
			fmt.Printf("Connected to %s\n", parts[1])
			continue
		}

		if conn == nil {
			fmt.Println("not connected; use .connect host:port")
			continue
		}

		if err := sendCommand(w, parts); err != nil {
			fmt.Fprintf(os.Stderr, "error sending command: %s\n", err)
			continue
		}
		if err := printReply(r, strings.ToUpper(parts[0])); err != nil {
			fmt.Fprintf(os.Stderr, "error reading reply: %s\n", err)
		}
	}

	if conn != nil {
		conn.Close()
	}
}

func dial(addr string) (net.Conn, *bufio.Reader, *bufio.Writer, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, nil, err
	}
	return conn, bufio.NewReader(conn), bufio.NewWriter(conn), nil
}

// sendCommand writes one line-protocol command for the given REPL
// arguments. INSERT/UPDATE carry the remainder of the line as the value
// and its byte length, matching pkg/transport.ReadCommand's wire format.
func sendCommand(w *bufio.Writer, parts []string) error {
	op := strings.ToUpper(parts[0])
	switch op {
	case "INSERT", "UPDATE":
		if len(parts) < 3 {
			return fmt.Errorf("%s requires <key> <value>", op)
		}
		key := parts[1]
		value := strings.Join(parts[2:], " ")
		fmt.Fprintf(w, "%s %s %d\r\n%s\r\n", op, key, len(value), value)
	case "GET", "DELETE":
		if len(parts) < 2 {
			return fmt.Errorf("%s requires <key>", op)
		}
		fmt.Fprintf(w, "%s %s\r\n", op, parts[1])
	case "STATS", "FRAG":
		fmt.Fprintf(w, "%s\r\n", op)
	default:
		return fmt.Errorf("unknown command %q", parts[0])
	}
	return w.Flush()
}

// printReply reads and prints one reply line, plus its value payload for
// a GET hit (a "+OK <n>\r\n" header followed by n raw bytes and a CRLF).
func printReply(r *bufio.Reader, op string) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimRight(line, "\r\n")
	fmt.Println(line)

	if op != "GET" || !strings.HasPrefix(line, "+OK ") {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(line, "+OK "))
	if err != nil {
		return nil
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	trailer := make([]byte, 2)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}
