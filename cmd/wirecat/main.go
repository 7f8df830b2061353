// Command wirecat encodes, decodes and inspects values in the FFI wire
// format, and calls buffer-passing exports of a wasm native library.
package main

func main() {
	Execute()
}
