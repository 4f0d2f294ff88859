package cmd

import (
	"bufio"
	"flag"
	"fmt"
	"github.com/fzft/go-tcp-reactor/deps/linenoise"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	defaultHistFile = ".tcpcli_history"
	histFileEnv     = "TCPCLI_HISTFILE"
	replyIdle       = 300 * time.Millisecond
)

// RunCLI runs the interactive client. With a terminal on stdin it offers a
// line-edited prompt with history; otherwise it reads commands from the
// pipe, one line per send.
func RunCLI(args []string) int {
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	host := fs.String("h", "127.0.0.1", "server host")
	port := fs.Int("p", 6379, "server port")
	timeout := fs.Duration("t", DefaultDialTimeout, "dial timeout")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	client := NewClient(*host, *port)
	client.SetTimeout(*timeout)
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "could not connect to server at %s: %v\n", client.Addr(), err)
		return 1
	}
	defer client.Close()

	if isatty.IsTerminal(os.Stdin.Fd()) {
		return runPrompt(client)
	}
	return runPipe(client)
}

func historyPath() string {
	if p := os.Getenv(histFileEnv); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultHistFile
	}
	return filepath.Join(home, defaultHistFile)
}

func runPrompt(client *Client) int {
	line := linenoise.New()
	defer line.Close()

	histFile := historyPath()
	line.HistoryLoad(histFile)
	defer line.HistorySave(histFile)

	prompt := client.Addr() + "> "
	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return 0
			}
			fmt.Fprintf(os.Stderr, "read line: %v\n", err)
			return 1
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch strings.ToLower(input) {
		case "quit", "exit":
			return 0
		case "help":
			printHelp()
			continue
		case "clear":
			line.ClearScreen()
			continue
		}

		if !dispatchLine(client, input) {
			return 1
		}
	}
}

func runPipe(client *Client) int {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		input := strings.TrimSpace(sc.Text())
		if input == "" {
			continue
		}
		if !dispatchLine(client, input) {
			return 1
		}
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
		return 1
	}
	return 0
}

// dispatchLine sends one line and prints whatever comes back. Returns false
// when the connection is gone and the loop should stop.
func dispatchLine(client *Client, input string) bool {
	if err := client.Send([]byte(input)); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return false
	}
	reply, err := client.RecvUntilIdle(replyIdle)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server closed the connection\n")
		return false
	}
	if len(reply) > 0 {
		fmt.Println(formatReply(reply))
	}
	return true
}

func formatReply(reply []byte) string {
	s := string(reply)
	for _, r := range s {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return strconv.Quote(s)
		}
	}
	return strings.TrimRight(s, "\r\n")
}

func printHelp() {
	fmt.Println("Send a line of text to the server and print the reply.")
	fmt.Println("  help          show this message")
	fmt.Println("  clear         clear the screen")
	fmt.Println("  quit, exit    leave the prompt")
}
