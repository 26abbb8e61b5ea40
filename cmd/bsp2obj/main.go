// bsp2obj converts compiled Quake 3 maps to Wavefront OBJ/MTL and inspects
// the files involved.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Faultbox/bsp2obj/internal/config"
	"github.com/Faultbox/bsp2obj/internal/logger"
	"github.com/Faultbox/bsp2obj/pkg/bsp"
	"github.com/Faultbox/bsp2obj/pkg/pk3"
)

// errUsage makes run print the usage text of a command.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	command, args := args[0], args[1:]

	var err error
	switch command {
	case "obj", "convert":
		err = cmdObj(args, stdout)
	case "info":
		err = cmdInfo(args, stdout)
	case "shaders":
		err = cmdShaders(args, stdout)
	case "pk3":
		err = cmdPK3(args, stdout, stderr)
	case "config":
		err = cmdConfig(args, stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 1
	}

	logger.Sync()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "Usage: bsp2obj %v\n", strings.TrimPrefix(err.Error(), errUsage.Error()+": "))
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `bsp2obj - Quake 3 BSP to Wavefront OBJ converter

Usage:
  bsp2obj <command> [options]

Commands:
  obj [flags] <file.bsp>...            Write <map>.obj and <map>.mtl for each map
  info <file.bsp>                      Show header, lumps, surfaces and models
  shaders [flags] <file.bsp>           List the shader table and how each resolves
  pk3 list <file.pk3> [pattern]        List archive contents
  pk3 extract <file.pk3> <path> [dir]  Extract file(s) from an archive
  config [path]                        Write a default config file

Flags (obj, shaders):
  -config <file>     Config file (default ./bsp2obj.yaml, then the user config dir)
  -base <dir>        Game directory with scripts/ and pk3s, repeatable
  -o <dir>           Output directory (default next to each map)
  -j <n>             Maps converted concurrently
  -shadersasbitmap   Write shader names as map_Kd
  -debug             Enable debug logging

Examples:
  bsp2obj obj -base baseq3 baseq3/maps/q3dm17.bsp
  bsp2obj obj -j 4 -o out maps/*.bsp
  bsp2obj shaders -base baseq3 maps/q3dm17.bsp
  bsp2obj pk3 list pak0.pk3 "*.shader"`)
}

// setup loads the config for a subcommand and initialises logging from it.
func setup(fs *flag.FlagSet, flags *config.Flags, args []string) (*config.Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

func cmdInfo(args []string, w io.Writer) error {
	if len(args) != 1 {
		return usage("info <file.bsp>")
	}

	b, err := bsp.ParseBSPFile(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Map:      %s\n", args[0])
	fmt.Fprintf(w, "Version:  %d\n", b.Version)
	fmt.Fprintf(w, "Entities: %d\n", len(b.Entities))
	fmt.Fprintf(w, "Shaders:  %d\n", len(b.Shaders))
	fmt.Fprintf(w, "Models:   %d\n", len(b.Models))
	fmt.Fprintf(w, "Surfaces: %d\n", len(b.Surfaces))
	fmt.Fprintf(w, "Vertices: %d\n", len(b.Vertices))
	fmt.Fprintf(w, "Indexes:  %d\n", len(b.Indexes))
	world := b.World()
	if world != nil {
		if msg := world.ValueForKey("message"); msg != "" {
			fmt.Fprintf(w, "Message:  %s\n", msg)
		}
	}

	if world != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Worldspawn:")
		for _, k := range world.Keys() {
			v, _ := world.Property(k)
			fmt.Fprintf(w, "  %-16s %s\n", k, v)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Lumps:")
	for i, l := range b.Lumps {
		fmt.Fprintf(w, "  %-12s %8d bytes\n", bsp.LumpName(i), l.Length)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Surfaces by type:")
	counts := b.CountByType()
	types := make([]bsp.SurfaceType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		fmt.Fprintf(w, "  %-18s %d\n", t, counts[t])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Models:")
	for i, m := range b.Models {
		fmt.Fprintf(w, "  *%-4d surfaces %4d  mins %v  maxs %v\n", i, m.NumSurfaces, m.Mins, m.Maxs)
	}
	return nil
}

func cmdShaders(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("shaders", flag.ContinueOnError)
	flags := config.BindFlags(fs)
	cfg, err := setup(fs, flags, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usage("shaders [flags] <file.bsp>")
	}

	b, err := bsp.ParseBSPFile(fs.Arg(0))
	if err != nil {
		return err
	}

	table, closeSources, err := loadShaders(cfg, logger.Log)
	if err != nil {
		return err
	}
	defer closeSources()

	missing := 0
	for i, s := range b.Shaders {
		info, err := table.Resolve(s.Name)
		if err != nil {
			fmt.Fprintf(w, "%4d  %-48s missing\n", i, s.Name)
			missing++
			continue
		}
		origin := "script"
		if info.Implicit {
			origin = "implicit"
		}
		var flags string
		if def, ok := table.Lookup(s.Name); ok {
			for _, parm := range []string{"nodraw", "sky", "trans"} {
				if def.HasSurfaceParm(parm) {
					flags += " " + parm
				}
			}
		}
		fmt.Fprintf(w, "%4d  %-48s %-8s %s %s  Kd %.3f %.3f %.3f%s\n",
			i, s.Name, origin, info.Image.Kind, info.Image.Path,
			info.Color[0], info.Color[1], info.Color[2], flags)
	}
	fmt.Fprintf(w, "\n%d shaders, %d missing, %d script definitions loaded\n", len(b.Shaders), missing, table.Len())
	return nil
}

func cmdPK3(args []string, stdout, stderr io.Writer) error {
	if len(args) < 2 {
		return usage("pk3 list|extract <file.pk3> ...")
	}
	switch args[0] {
	case "list", "ls":
		return pk3List(args[1:], stdout, stderr)
	case "extract", "x":
		return pk3Extract(args[1:], stdout)
	default:
		return usage("pk3 list|extract <file.pk3> ...")
	}
}

func pk3List(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pk3 list", flag.ContinueOnError)
	limit := fs.Int("n", 0, "Limit output to N files (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return usage("pk3 list [-n N] <file.pk3> [pattern]")
	}

	archive, err := pk3.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer archive.Close()

	pattern := ""
	if fs.NArg() > 1 {
		pattern = strings.ToLower(fs.Arg(1))
	}

	count := 0
	for _, f := range archive.List() {
		if pattern != "" && !matchEntry(pattern, f) {
			continue
		}
		fmt.Fprintln(stdout, f)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	if pattern != "" {
		fmt.Fprintf(stderr, "\n(%d files matched)\n", count)
	}
	return nil
}

// matchEntry reports whether an archive entry matches a glob on its base
// name or contains pattern as a substring.
func matchEntry(pattern, entry string) bool {
	if matched, _ := filepath.Match(pattern, filepath.Base(entry)); matched {
		return true
	}
	return strings.Contains(entry, pattern)
}

func pk3Extract(args []string, w io.Writer) error {
	if len(args) < 2 {
		return usage("pk3 extract <file.pk3> <path|pattern> [output_dir]")
	}
	filePath := args[1]
	outputDir := "."
	if len(args) > 2 {
		outputDir = args[2]
	}

	archive, err := pk3.Open(args[0])
	if err != nil {
		return err
	}
	defer archive.Close()

	var entries []string
	if strings.Contains(filePath, "*") {
		pattern := strings.ToLower(filePath)
		for _, f := range archive.List() {
			if matched, _ := filepath.Match(pattern, filepath.Base(f)); matched {
				entries = append(entries, f)
			}
		}
	} else {
		if !archive.Contains(filePath) {
			return fmt.Errorf("%w: %s", pk3.ErrFileNotFound, filePath)
		}
		entries = []string{filePath}
	}

	for _, f := range entries {
		if !filepath.IsLocal(filepath.FromSlash(f)) {
			return fmt.Errorf("refusing to extract %s outside %s", f, outputDir)
		}
		data, err := archive.Read(f)
		if err != nil {
			return err
		}
		outputPath := filepath.Join(outputDir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(w, "Extracted: %s (%d bytes)\n", outputPath, len(data))
	}
	return nil
}

func cmdConfig(args []string, w io.Writer) error {
	if len(args) > 1 {
		return usage("config [path]")
	}
	path := config.DefaultPath()
	if len(args) == 1 {
		path = args[0]
	}
	if err := config.Default().SaveTo(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(w, "Wrote %s\n", path)
	return nil
}
