package config

import (
	"flag"
	"strings"
)

// Flags holds the command line overrides of one subcommand.
type Flags struct {
	ConfigPath      string
	Debug           bool
	ShadersAsBitmap bool
	OutputDir       string
	BasePaths       stringList
	Workers         int
}

// BindFlags registers the config flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&f.ShadersAsBitmap, "shadersasbitmap", false, "Write shader names as map_Kd instead of image paths")
	fs.StringVar(&f.OutputDir, "o", "", "Output directory (default: next to each BSP)")
	fs.Var(&f.BasePaths, "base", "Game directory with shader scripts and pk3s (repeatable)")
	fs.IntVar(&f.Workers, "j", 0, "Maps converted concurrently")
	return f
}

// apply applies flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.ShadersAsBitmap {
		cfg.Export.ShadersAsBitmap = true
	}
	if f.OutputDir != "" {
		cfg.Export.OutputDir = f.OutputDir
	}
	if len(f.BasePaths) > 0 {
		cfg.Shaders.BasePaths = append([]string(nil), f.BasePaths...)
	}
	if f.Workers > 0 {
		cfg.Export.Workers = f.Workers
	}
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}
