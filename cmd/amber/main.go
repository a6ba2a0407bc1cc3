// Amber CLI - loads module images and runs them on the execution engine.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/amber/manifest"
	"github.com/chazu/amber/vm"
	"github.com/chazu/amber/vm/store"
)

var log = commonlog.GetLogger("amber")

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0-2)")
	disasm := flag.Bool("d", false, "Disassemble the module and exit")
	entry := flag.String("entry", "", "Public function to run instead of the main entry")
	budget := flag.Uint64("budget", 0, "Instruction budget per exec call (0 = unlimited)")
	resume := flag.Bool("resume", false, "Automatically resume after sleep instructions")
	storePath := flag.String("store", "", "Module store database path")
	save := flag.Bool("save", false, "Store the module under its file name before running")
	byName := flag.String("name", "", "Load the module from the store by name instead of a file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: amber [options] [module.amx] [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a compiled module image. Extra integer args are pushed as cells.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  amber prog.amx                  # Run from the main entry\n")
		fmt.Fprintf(os.Stderr, "  amber -d prog.amx               # Show the listing\n")
		fmt.Fprintf(os.Stderr, "  amber -entry on_tick prog.amx 7 # Run a public with one argument\n")
		fmt.Fprintf(os.Stderr, "  amber -store amber.db -save prog.amx\n")
		fmt.Fprintf(os.Stderr, "  amber -store amber.db -name prog\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	// Manifest settings fill in what the flags leave at their defaults.
	mf, err := manifest.FindAndLoad(".")
	if err != nil {
		log.Warningf("manifest: %v", err)
	}
	if mf != nil {
		if *budget == 0 {
			*budget = mf.Runtime.MaxInstructions
		}
		if *entry == "" {
			*entry = mf.Runtime.Entry
		}
		if *storePath == "" && (*save || *byName != "") {
			*storePath = filepath.Join(mf.Dir, mf.Store.Path)
		}
	}

	image, name, err := loadImage(flag.Args(), *byName, *storePath, *save)
	if err != nil {
		fail("%v", err)
	}

	if *disasm {
		listing, err := vm.Disassemble(image)
		if err != nil {
			fail("disassemble %s: %v", name, err)
		}
		fmt.Print(listing)
		return
	}

	m, err := vm.NewMachine(image)
	if err != nil {
		fail("load %s: %v", name, err)
	}
	registerConsoleNatives(m)
	if missing := m.UnboundNatives(); len(missing) > 0 {
		fail("%s declares natives this host does not provide: %s", name, strings.Join(missing, ", "))
	}
	m.SetInstructionBudget(*budget)

	selector := vm.ExecMain
	if *entry != "" {
		selector, err = m.FindPublic(*entry)
		if err != nil {
			fail("%s: %v", name, err)
		}
	}
	extra := flag.Args()
	if *byName == "" && len(extra) > 0 {
		extra = extra[1:]
	}
	for _, arg := range argCells(extra) {
		m.PushArg(arg)
	}

	result, err := m.Exec(selector)
	for err != nil && errors.Is(err, vm.ErrSleep) {
		if !*resume {
			log.Infof("%s suspended (machine %s); rerun with -resume to continue", name, m.ID())
			os.Exit(0)
		}
		log.Debugf("resuming %s", name)
		result, err = m.Exec(vm.ExecContinue)
	}
	if err != nil {
		fail("%s faulted (code %d): %v", name, vm.CodeOf(err), err)
	}
	fmt.Println(result)
}

// loadImage resolves the module bytes from the store or from a file, and
// optionally saves a file-loaded module under its base name.
func loadImage(args []string, byName, storePath string, save bool) ([]byte, string, error) {
	if byName != "" {
		if storePath == "" {
			return nil, "", fmt.Errorf("-name requires -store or a manifest store path")
		}
		st, err := store.Open(storePath)
		if err != nil {
			return nil, "", err
		}
		defer st.Close()
		image, err := st.GetByName(byName)
		if err != nil {
			return nil, "", err
		}
		return image, byName, nil
	}

	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	path := args[0]
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if save {
		st, err := store.Open(storePath)
		if err != nil {
			return nil, "", err
		}
		defer st.Close()
		hash, err := st.Put(image)
		if err != nil {
			return nil, "", err
		}
		if err := st.Tag(name, hash); err != nil {
			return nil, "", err
		}
		log.Infof("stored %s as %x", name, hash[:8])
	}
	return image, name, nil
}

// argCells parses the trailing command-line arguments as cells.
func argCells(args []string) []vm.Cell {
	var cells []vm.Cell
	for _, arg := range args {
		n, err := strconv.ParseInt(arg, 0, 32)
		if err != nil {
			fail("argument %q is not a cell value: %v", arg, err)
		}
		cells = append(cells, vm.Cell(n))
	}
	return cells
}

// registerConsoleNatives binds the host natives a module may declare:
// print takes the address of a NUL-terminated cell string, printi an
// integer cell. Modules that declare neither are left untouched.
func registerConsoleNatives(m *vm.Machine) {
	bind := func(name string, fn vm.NativeFunc) {
		if err := m.RegisterNative(name, fn); err != nil && !errors.Is(err, vm.ErrNotFound) {
			fail("register native %s: %v", name, err)
		}
	}
	bind("print", func(m *vm.Machine, args []vm.Cell) (vm.Cell, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("print expects 1 argument, got %d", len(args))
		}
		s, err := readCellString(m, args[0])
		if err != nil {
			return 0, err
		}
		fmt.Print(s)
		return vm.Cell(len(s)), nil
	})
	bind("printi", func(m *vm.Machine, args []vm.Cell) (vm.Cell, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("printi expects 1 argument, got %d", len(args))
		}
		fmt.Println(args[0])
		return args[0], nil
	})
}

// readCellString reads a NUL-terminated cell string from machine memory.
func readCellString(m *vm.Machine, addr vm.Cell) (string, error) {
	var sb strings.Builder
	for {
		c, err := m.CellAt(addr)
		if err != nil {
			return "", err
		}
		if c == 0 {
			return sb.String(), nil
		}
		sb.WriteRune(rune(c))
		addr += vm.CellSize
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
