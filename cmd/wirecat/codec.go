package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex]",
	Short: "Decode a hex buffer and print it as JSON",
	Long: `Decode a wire buffer and print the value as indented JSON.

The buffer is read from the argument, or from stdin when no argument is
given. Whitespace and a 0x prefix are ignored.`,
	Example: `  wirecat decode --type 'list<string>' '00000001 00000002 6869'`,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireType(); err != nil {
			return err
		}
		input, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}
		out, err := decodeHex(typeExpr, input)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var encodeCmd = &cobra.Command{
	Use:   "encode [json]",
	Short: "Encode a JSON value and print the buffer as hex",
	Long: `Encode a JSON value into a wire buffer and print it as hex.

Records are JSON objects, tuples and lists are arrays, enums are case
names, flags are arrays of names and variants are {"case": ..., "value": ...}.`,
	Example: `  wirecat encode --type 'record<id: u64, name: string>' '{"id": 7, "name": "x"}'`,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireType(); err != nil {
			return err
		}
		input, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}
		out, err := encodeJSON(typeExpr, input)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var sizeCmd = &cobra.Command{
	Use:   "size [json]",
	Short: "Print the encoded size of a JSON value in bytes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireType(); err != nil {
			return err
		}
		input, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}
		w, err := loadType(typeExpr)
		if err != nil {
			return err
		}
		n, err := w.size(input)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd, encodeCmd, sizeCmd)
}

func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func decodeHex(expr, input string) (string, error) {
	w, err := loadType(expr)
	if err != nil {
		return "", err
	}
	data, err := parseHex(input)
	if err != nil {
		return "", err
	}
	return w.decode(data)
}

func encodeJSON(expr, input string) (string, error) {
	w, err := loadType(expr)
	if err != nil {
		return "", err
	}
	data, err := w.encode(input)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}
