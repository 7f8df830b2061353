package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replHistory string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive wire format session",
	Long: `Start a read-eval-print loop for the wire format.

Commands:
  type <expr>     set the current type
  decode <hex>    decode a buffer (a bare line is decoded too)
  encode <json>   encode a value
  size <json>     print the encoded size of a value
  exit            leave the session

Features:
  - Command history (up/down arrows)
  - Line editing`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if replHistory == "" {
			home, _ := os.UserHomeDir()
			replHistory = filepath.Join(home, ".wirecat_history")
		}

		rl, err := readline.NewEx(&readline.Config{
			Prompt:            "wire> ",
			HistoryFile:       replHistory,
			HistoryLimit:      1000,
			InterruptPrompt:   "^C",
			EOFPrompt:         "exit",
			HistorySearchFold: true,
		})
		if err != nil {
			return fmt.Errorf("init readline: %w", err)
		}
		defer rl.Close()

		session := &replSession{expr: typeExpr}
		fmt.Fprintln(rl.Stderr(), "wirecat repl (type 'exit' to quit, Ctrl+D to exit)")

		for {
			line, err := rl.Readline()
			if err != nil {
				if err == readline.ErrInterrupt {
					continue
				}
				if err == io.EOF {
					return nil
				}
				return fmt.Errorf("read input: %w", err)
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}

			out, err := session.eval(line)
			if err != nil {
				fmt.Fprintf(rl.Stderr(), "Error: %v\n", err)
				continue
			}
			if out != "" {
				fmt.Fprintln(rl.Stdout(), out)
			}
		}
	},
}

func init() {
	replCmd.Flags().StringVar(&replHistory, "history", "", "history file path (default: ~/.wirecat_history)")
	rootCmd.AddCommand(replCmd)
}

type replSession struct {
	expr string
	wt   *wireType
}

func (s *replSession) current() (*wireType, error) {
	if s.expr == "" {
		return nil, fmt.Errorf("no type set, use: type <expr>")
	}
	if s.wt == nil {
		wt, err := loadType(s.expr)
		if err != nil {
			return nil, err
		}
		s.wt = wt
	}
	return s.wt, nil
}

func (s *replSession) eval(line string) (string, error) {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "type":
		if rest == "" {
			if s.expr == "" {
				return "no type set", nil
			}
			return s.expr, nil
		}
		wt, err := loadType(rest)
		if err != nil {
			return "", err
		}
		s.expr, s.wt = rest, wt
		return "", nil

	case "encode", "size":
		wt, err := s.current()
		if err != nil {
			return "", err
		}
		if verb == "size" {
			n, err := wt.size(rest)
			if err != nil {
				return "", err
			}
			return fmt.Sprint(n), nil
		}
		data, err := wt.encode(rest)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%x", data), nil

	case "decode":
		line = rest
	}

	wt, err := s.current()
	if err != nil {
		return "", err
	}
	data, err := parseHex(line)
	if err != nil {
		return "", err
	}
	return wt.decode(data)
}
