// kvshell is an interactive CLI for a kvstore directory.
//
// Usage:
//
//	kvshell <dir>              Open (or create) a store at dir
//	kvshell new [opts] <dir>   Create a new store with explicit sizing
//
// Commands (in REPL):
//
//	put <key> <value>   Insert or update an entry
//	get <key>           Retrieve an entry by key
//	del <key>           Delete an entry
//	bulk <count>        Insert N random entries
//	compact             Request a manual compaction
//	config              Show the store's config as JSONC
//	help                Show this help
//	exit / quit / q     Exit
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kvstore "github.com/calvinalkan/kvstore"
	"github.com/peterh/liner"
	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

// fileConfig mirrors the sizing flags of "kvshell new" so an operator can
// check tuning knobs into a hujson file instead of retyping them. Flags
// passed on the command line take precedence over the file.
type fileConfig struct {
	IndexSize        int     `json:"indexSize"`
	KeySize          int     `json:"keySize"`
	ValueSize        int     `json:"valueSize"`
	HashFactor       float64 `json:"hashFactor"`
	CompactThreshold int     `json:"compactThreshold"`
}

// loadFileConfig reads a hujson config file, standardizing it to strict
// JSON (stripping comments and trailing commas) before decoding.
func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	if err := json.Unmarshal(std, &cfg); err != nil {
		return cfg, fmt.Errorf("decoding config file: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("missing command or store directory")
	}

	if os.Args[1] == "new" {
		return runNew(os.Args[2:])
	}
	return runOpen(os.Args[1:])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  kvshell <dir>              Open (or create) a store at dir")
	fmt.Fprintln(os.Stderr, "  kvshell new [opts] <dir>   Create a new store with explicit sizing")
	fmt.Fprintln(os.Stderr, "\nRun 'kvshell new --help' for sizing options.")
}

func runNew(args []string) error {
	fs := pflag.NewFlagSet("new", pflag.ExitOnError)

	indexSize := fs.IntP("index-size", "i", 0, "initial index region size in bytes")
	keySize := fs.IntP("key-size", "k", 0, "initial key region size in bytes")
	valueSize := fs.IntP("value-size", "s", 0, "initial value region size in bytes")
	hashFactor := fs.Float64P("hash-factor", "f", 0.75, "load factor that triggers index expansion")
	compactThreshold := fs.IntP("compact-threshold", "c", 1024, "updated-slot count that triggers auto-compaction")
	configPath := fs.String("config", "", "hujson file with default sizing knobs; explicit flags above override it")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: kvshell new [options] <dir>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing store directory")
	}

	dir := fs.Arg(0)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("directory already exists: %s (use 'kvshell %s' to open it)", dir, dir)
	}

	opts := kvstore.Options{
		Dir:                  dir,
		IndexInitSize:        *indexSize,
		KeyInitSize:          *keySize,
		ValueInitSize:        *valueSize,
		HashFactor:           *hashFactor,
		AutoCompactThreshold: *compactThreshold,
	}

	if *configPath != "" {
		cfg, err := loadFileConfig(*configPath)
		if err != nil {
			return err
		}
		if !fs.Changed("index-size") {
			opts.IndexInitSize = cfg.IndexSize
		}
		if !fs.Changed("key-size") {
			opts.KeyInitSize = cfg.KeySize
		}
		if !fs.Changed("value-size") {
			opts.ValueInitSize = cfg.ValueSize
		}
		if !fs.Changed("hash-factor") && cfg.HashFactor != 0 {
			opts.HashFactor = cfg.HashFactor
		}
		if !fs.Changed("compact-threshold") && cfg.CompactThreshold != 0 {
			opts.AutoCompactThreshold = cfg.CompactThreshold
		}
	}

	fmt.Printf("Creating store at %s\n", dir)
	e, err := kvstore.Open(opts)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer e.Close()

	repl := &REPL{engine: e, dir: dir}
	return repl.Run()
}

func runOpen(args []string) error {
	fs := pflag.NewFlagSet("open", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: kvshell <dir>")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing store directory")
	}

	dir := fs.Arg(0)
	e, err := kvstore.Open(kvstore.Options{Dir: dir})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer e.Close()

	repl := &REPL{engine: e, dir: dir}
	return repl.Run()
}

// REPL is the interactive command loop over an open Engine.
type REPL struct {
	engine *kvstore.Engine
	dir    string
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kvshell_history")
}

func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("kvshell - kvstore CLI (dir=%s)\n", r.dir)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("kvshell> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "put":
			r.cmdPut(args)
		case "get":
			r.cmdGet(args)
		case "del", "delete":
			r.cmdDelete(args)
		case "bulk":
			r.cmdBulk(args)
		case "compact":
			r.cmdCompact()
		case "config":
			r.cmdConfig()
		case "clear", "cls":
			fmt.Print("\033[H\033[2J")
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"put", "get", "del", "delete", "bulk",
		"compact", "config", "clear", "cls",
		"help", "exit", "quit", "q",
	}

	var completions []string
	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}
	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <key> <value>   Insert or update an entry")
	fmt.Println("  get <key>           Retrieve an entry by key")
	fmt.Println("  del <key>           Delete an entry")
	fmt.Println("  bulk <count>        Insert N random entries")
	fmt.Println("  compact             Request a manual compaction")
	fmt.Println("  config              Show the store's config as JSONC")
	fmt.Println("  clear / cls         Clear the screen")
	fmt.Println("  help                Show this help")
	fmt.Println("  exit / quit / q     Exit")
}

func (r *REPL) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: put <key> <value>")
		return
	}
	key := []byte(args[0])
	value := []byte(strings.Join(args[1:], " "))
	if err := r.engine.Put(key, value); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: get <key>")
		return
	}
	value, ok, err := r.engine.Get([]byte(args[0]))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("(not found)")
		return
	}
	fmt.Printf("%s\n", formatValue(value))
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: del <key>")
		return
	}
	if err := r.engine.Del([]byte(args[0])); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (r *REPL) cmdBulk(args []string) {
	count := 100
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("usage: bulk <count>")
			return
		}
		count = n
	}

	for i := 0; i < count; i++ {
		key := make([]byte, 8)
		value := make([]byte, 16)
		if _, err := rand.Read(key); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		if _, err := rand.Read(value); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		if err := r.engine.Put(key, value); err != nil {
			fmt.Printf("error at entry %d: %v\n", i, err)
			return
		}
	}
	fmt.Printf("inserted %d entries\n", count)
}

func (r *REPL) cmdCompact() {
	r.engine.Compact()
	fmt.Println("compaction requested")
}

// cmdConfig prints the REPL's view of the store directory as JSONC, parsed
// and re-indented through hujson so the output tolerates hand-edited
// comments if the user later pipes a config file through this command.
func (r *REPL) cmdConfig() {
	raw := fmt.Sprintf(`{
  // directory backing this store
  "dir": %q,
}`, r.dir)

	formatted, err := hujson.Format([]byte(raw))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(string(formatted))
}

func formatValue(value []byte) string {
	for _, b := range value {
		if b < 0x20 || b > 0x7e {
			return hex.EncodeToString(value)
		}
	}
	return string(value)
}
