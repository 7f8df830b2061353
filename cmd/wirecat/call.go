package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/wasmlib"
)

var (
	callWasm   string
	callFunc   string
	callResult string
	callList   bool
	callPages  uint32
)

var callCmd = &cobra.Command{
	Use:   "call [json]",
	Short: "Call a buffer-passing export of a wasm library",
	Long: `Load a wasm library and call one of its exports.

The argument is encoded with --type and passed as (ptr, len, status).
The export returns a packed i64 buffer (ptr<<32 | len) which is decoded
with --result, or with --type when --result is not set. The library must
export memory, ffi_alloc and ffi_free.`,
	Example: `  wirecat call --wasm lib.wasm --func echo --type string '"hi"'
  wirecat call --wasm lib.wasm --list`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if callWasm == "" {
			return fmt.Errorf("--wasm is required")
		}
		data, err := os.ReadFile(callWasm)
		if err != nil {
			return fmt.Errorf("read wasm: %w", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		lib, err := wasmlib.Load(ctx, data, &wasmlib.Config{MemoryLimitPages: callPages})
		if err != nil {
			return err
		}
		defer lib.Close(ctx)

		if callList {
			for _, line := range listExports(lib.Module()) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		}

		if callFunc == "" {
			return fmt.Errorf("--func is required")
		}
		if err := requireType(); err != nil {
			return err
		}
		input, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}
		resultExpr := callResult
		if resultExpr == "" {
			resultExpr = typeExpr
		}
		out, err := callBuffer(ctx, lib, callFunc, typeExpr, resultExpr, input)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	callCmd.Flags().StringVarP(&callWasm, "wasm", "w", "", "path to the wasm library")
	callCmd.Flags().StringVarP(&callFunc, "func", "f", "", "export to call")
	callCmd.Flags().StringVarP(&callResult, "result", "r", "", "result type expression (defaults to --type)")
	callCmd.Flags().BoolVarP(&callList, "list", "l", false, "list exported functions and exit")
	callCmd.Flags().Uint32Var(&callPages, "memory-pages", 0, "memory limit in 64KiB pages (0 for no limit)")
	rootCmd.AddCommand(callCmd)
}

// callBuffer lowers input, hands the buffer to fn and lifts the returned
// buffer. Ownership of the argument buffer passes to the callee.
func callBuffer(ctx context.Context, lib *wasmlib.Library, fn, argExpr, resultExpr, input string) (string, error) {
	argType, err := loadType(argExpr)
	if err != nil {
		return "", err
	}
	resultType, err := loadType(resultExpr)
	if err != nil {
		return "", err
	}
	export, err := lib.Func(fn)
	if err != nil {
		return "", err
	}

	arg, err := argType.encode(input)
	if err != nil {
		return "", err
	}
	ptr, n, err := lib.WriteBuffer(arg)
	if err != nil {
		return "", err
	}

	var st call.Status
	res, err := export.Call(ctx, &st, uint64(ptr), uint64(n))
	if err != nil {
		return "", err
	}
	if err := call.Check(&st, nil); err != nil {
		return "", err
	}
	if len(res) != 1 {
		return "", fmt.Errorf("%s returned %d values, want one packed buffer", fn, len(res))
	}
	data, err := lib.TakeBuffer(res[0])
	if err != nil {
		return "", err
	}
	return resultType.decode(data)
}

func listExports(mod api.Module) []string {
	defs := mod.ExportedFunctionDefinitions()
	lines := make([]string, 0, len(defs))
	for name, def := range defs {
		lines = append(lines, name+"("+valueTypes(def.ParamTypes())+") -> ("+valueTypes(def.ResultTypes())+")")
	}
	sort.Strings(lines)
	return lines
}

func valueTypes(ts []api.ValueType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}
