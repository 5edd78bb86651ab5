// mbc compiles, links and optimizes an MBASIC program and prints the
// resulting bytecode listing.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tebeka/atexit"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/mbasic/cache"
	"github.com/chazu/mbasic/compiler"
	"github.com/chazu/mbasic/linker"
	"github.com/chazu/mbasic/manifest"
	"github.com/chazu/mbasic/patopt"
	"github.com/chazu/mbasic/program"
	"github.com/chazu/mbasic/status"
)

var log = commonlog.GetLogger("mbasic.mbc")

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 errors only, 1 info, 2 debug)")
	projectDir := flag.String("C", ".", "Directory to search for mbasic.toml")
	rulesPath := flag.String("rules", "", "Optimizer rule file (overrides mbasic.toml)")
	cachePath := flag.String("cache", "", "Cache database (overrides mbasic.toml)")
	noCache := flag.Bool("no-cache", false, "Do not read or write the cache")
	noOptimize := flag.Bool("O0", false, "Disable optimization")
	strip := flag.Bool("strip", false, "Strip statement markers where possible")
	plain := flag.Bool("plain", false, "Print a plain disassembly instead of a table")
	stats := flag.Bool("stats", false, "Print optimizer rule statistics")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mbc [options] [file.bas]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and links an MBASIC program and prints its bytecode.\n")
		fmt.Fprintf(os.Stderr, "Without a file, the entry named in mbasic.toml is used.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  mbc prog.bas               # Listing with default settings\n")
		fmt.Fprintf(os.Stderr, "  mbc -O0 -plain prog.bas    # Unoptimized disassembly\n")
		fmt.Fprintf(os.Stderr, "  mbc -rules my.xml -stats   # Custom rules, show rule counts\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	m, err := manifest.FindAndLoad(*projectDir)
	if err != nil {
		fail(err)
	}
	if m == nil {
		m = &manifest.Manifest{Dir: *projectDir}
	}

	flags := m.Flags()
	if *noOptimize {
		flags.Optimize = false
	}
	if *strip {
		flags.StripStatements = true
	}

	rules := m.RulesPath()
	if *rulesPath != "" {
		rules = *rulesPath
	}
	if rules != "" {
		patopt.SetPath(rules)
	}

	path := flag.Arg(0)
	if path == "" {
		path = m.EntryPath()
	}
	if path == "" {
		flag.Usage()
		atexit.Exit(2)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		fail(err)
	}
	p, err := program.Parse(filepath.Base(path), string(src))
	if err != nil {
		fail(err)
	}

	var store *cache.Store
	dbPath := m.CachePath()
	if *cachePath != "" {
		dbPath = *cachePath
	}
	if dbPath != "" && !*noCache {
		if store, err = cache.Open(dbPath); err != nil {
			fail(err)
		}
		atexit.Register(func() { store.Close() })
	}

	if err := build(p, flags, rules, store); err != nil {
		fail(err)
	}

	exe := p.Executable()
	if *plain {
		fmt.Print(exe.DisassembleWithName(p.Name))
	} else {
		fmt.Println(listing(p.Name, exe))
		if len(exe.Data) > 0 {
			fmt.Println(dataTable(exe, p.DataLines()))
		}
	}

	if *stats && flags.Optimize {
		r, err := patopt.Default()
		if err != nil {
			fail(err)
		}
		fmt.Println(statsTable(r.Stats()))
	}

	atexit.Exit(0)
}

// build links p, going through the cache when one is open.
func build(p *program.Program, flags compiler.Flags, rules string, store *cache.Store) error {
	var key string
	if store != nil {
		key = cache.Key(p, flags, rules)
		hit, err := store.Restore(key, p)
		if err != nil {
			log.Warningf("ignoring cache entry: %s", err)
		} else if hit {
			log.Infof("%s: cache hit", p.Name)
			return nil
		}
	}

	l, err := linker.New(flags)
	if err != nil {
		return err
	}
	if _, err := l.Link(p); err != nil {
		return err
	}

	if store != nil {
		if err := store.Put(key, p); err != nil {
			log.Warningf("cannot cache %s: %s", p.Name, err)
		}
	}
	return nil
}

func fail(err error) {
	if status.KindOf(err) != 0 {
		fmt.Fprint(os.Stderr, status.Render(err))
	} else {
		fmt.Fprintf(os.Stderr, "mbc: %v\n", err)
	}
	atexit.Exit(1)
}
