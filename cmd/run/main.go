package main

import (
	"bytes"
	"context"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/engine"
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/runtime"
)

type options struct {
	configFile          string
	engine              string
	heapPages           uint32
	maxMemory           uint32
	allowMissingImports bool
	keepMemory          bool
	verbose             bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "run",
		Short:         "Execute exports of a WebAssembly module from a clean state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file")
	flags.StringVar(&opts.engine, "engine", "", "wazero engine: auto, compiler or interpreter")
	flags.Uint32Var(&opts.heapPages, "heap-pages", 0, "initial linear memory in 64 KiB pages")
	flags.Uint32Var(&opts.maxMemory, "max-memory", 0, "linear memory cap in bytes (0 = unbounded)")
	flags.BoolVar(&opts.allowMissingImports, "allow-missing-imports", false, "stub env imports without a host")
	flags.BoolVar(&opts.keepMemory, "keep-memory", false, "skip zeroing linear memory between calls")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(newCallCommand(opts), newInspectCommand(opts), newInteractiveCommand(opts))
	return root
}

func newCallCommand(opts *options) *cobra.Command {
	var (
		export string
		input  string
		repeat int
	)
	cmd := &cobra.Command{
		Use:   "call <file.wasm>",
		Short: "Call an export with hex input and print the hex output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseHex(input)
			if err != nil {
				return err
			}
			return runCall(cmd.Context(), opts, args[0], export, data, repeat, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&export, "export", "e", "main", "export to call")
	cmd.Flags().StringVarP(&input, "input", "i", "", "input bytes as hex")
	cmd.Flags().IntVarP(&repeat, "repeat", "n", 1, "call N times and check the outputs match")
	return cmd
}

func newInspectCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.wasm>",
		Short: "Print the module's memory, heap base and snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}
}

func newInteractiveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive <file.wasm>",
		Short: "Pick exports and call them from a terminal UI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("interactive mode requires a terminal")
			}
			return runInteractive(opts, args[0])
		},
	}
}

// config layers the command line flags over the config file.
func (o *options) config() (runtime.Config, error) {
	cfg := runtime.DefaultConfig()
	if o.configFile != "" {
		loaded, err := runtime.LoadConfig(o.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if o.engine != "" {
		cfg.Engine = engine.EngineKind(o.engine)
	}
	if o.heapPages != 0 {
		cfg.HeapPages = o.heapPages
	}
	if o.maxMemory != 0 {
		limit := o.maxMemory
		cfg.MaxMemorySize = &limit
	}
	cfg.AllowMissingImports = cfg.AllowMissingImports || o.allowMissingImports
	if o.keepMemory {
		cfg.ClearMemory = false
	}

	if o.verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return cfg, fmt.Errorf("create logger: %w", err)
		}
		engine.SetLogger(logger)
		cfg.Logger = logger
	}
	return cfg, cfg.Validate()
}

func load(ctx context.Context, opts *options, file string) (*runtime.Runtime, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	code, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return runtime.Create(ctx, code, cfg, nil)
}

// instantiate creates an instance of rt. The CLI registers no host
// functions, so link failures of guests with env imports point at the flag
// that stubs them.
func instantiate(ctx context.Context, rt *runtime.Runtime) (*runtime.Instance, error) {
	inst, err := rt.Instantiate(ctx)
	if err == nil {
		return inst, nil
	}
	if stderrors.Is(err, errors.ErrImportBinding) && !rt.Config().AllowMissingImports && len(rt.Imports()) > 0 {
		return nil, fmt.Errorf("%w (no host functions are available from the command line; "+
			"use --allow-missing-imports to stub the %d env imports)", err, len(rt.Imports()))
	}
	return nil, err
}

func runCall(ctx context.Context, opts *options, file, export string, input []byte, repeat int, w io.Writer) error {
	if repeat < 1 {
		return fmt.Errorf("repeat must be at least 1, got %d", repeat)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := load(ctx, opts, file)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	inst, err := instantiate(ctx, rt)
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	var first []byte
	for i := 0; i < repeat; i++ {
		out, err := inst.Call(ctx, wasmexecutor.Export(export), input)
		if err != nil {
			return fmt.Errorf("call %d: %w", i+1, err)
		}
		if i == 0 {
			first = out
			continue
		}
		if !bytes.Equal(first, out) {
			return fmt.Errorf("call %d: output %s differs from first call %s", i+1, formatHex(out), formatHex(first))
		}
	}

	fmt.Fprintln(w, formatHex(first))
	return nil
}

func runInspect(ctx context.Context, opts *options, file string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Inspection never calls host functions, so unresolved imports are stubbed.
	opts.allowMissingImports = true
	rt, err := load(ctx, opts, file)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	inst, err := instantiate(ctx, rt)
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	stats := inst.Stats()
	fmt.Fprintf(w, "memory:      %s\n", rt.MemorySource())
	fmt.Fprintf(w, "heap base:   %d\n", stats.HeapBase)
	fmt.Fprintf(w, "memory size: %d bytes\n", stats.MemorySize)

	chunks := rt.DataSegments().Chunks()
	fmt.Fprintf(w, "data segments (%d, %d bytes):\n", len(chunks), rt.DataSegments().Size())
	for _, c := range chunks {
		fmt.Fprintf(w, "  @%-8d %d bytes\n", c.Offset, len(c.Data))
	}

	globals := rt.MutableGlobals()
	fmt.Fprintf(w, "mutable globals (%d):\n", len(globals))
	for _, name := range globals {
		v, _, err := inst.GlobalConst(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s = %s\n", name, v)
	}

	imports := rt.Imports()
	fmt.Fprintf(w, "env imports (%d):\n", len(imports))
	for _, imp := range imports {
		fmt.Fprintf(w, "  %s\n", imp.Name)
	}

	exports := inst.Exports()
	fmt.Fprintf(w, "exports (%d):\n", len(exports))
	for _, name := range exports {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}

// parseHex accepts hex with an optional 0x prefix and embedded whitespace.
func parseHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, nil
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return out, nil
}

func formatHex(b []byte) string {
	if len(b) == 0 {
		return "(empty)"
	}
	return "0x" + hex.EncodeToString(b)
}
