package commands

import (
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/internal/cli/config"
	"github.com/wippyai/clrmeta/metadata"
)

// app carries the configuration shared by every subcommand. It is filled in
// by the root command's PersistentPreRunE.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log *zap.Logger
}

// NewRootCommand creates the mdview command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: config.New()}
	root := &cobra.Command{
		Use:   "mdview",
		Short: "Inspect CLI assemblies and modules",
		Long: `mdview reads the metadata of .NET assemblies and modules and shows
their types, members, references and method bodies.

Settings come from mdview.yaml in the working directory or
~/.config/mdview, MDVIEW_* environment variables and flags.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default is ./mdview.yaml)")
	pf.Bool("no-color", false, "Disable colored output")
	pf.String("log-level", "warn", "Log level: debug, info, warn or error")
	pf.String("core-assembly", "", "Name of the assembly that defines System.Object")
	pf.StringSlice("search-path", nil, "Directories probed for referenced assemblies")
	pf.Bool("probe", true, "Load referenced assemblies found next to the file")

	for key, flag := range map[string]string{
		"no_color":      "no-color",
		"log_level":     "log-level",
		"core_assembly": "core-assembly",
		"search_paths":  "search-path",
		"probe":         "probe",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(newInfoCommand(a))
	root.AddCommand(newTypesCommand(a))
	root.AddCommand(newRefsCommand(a))
	root.AddCommand(newBrowseCommand(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if cfg.NoColor {
		color.NoColor = true
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// open loads the file at path into a fresh host and, when probing is on,
// the assemblies it references.
func (a *app) open(path string) (*metadata.Host, *metadata.Module, error) {
	h := metadata.NewHost(a.cfg.HostOptions(a.log))
	m, err := h.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if a.cfg.Probe {
		a.probe(h, m, path)
	}
	return h, m, nil
}

// probe loads <name>.dll or <name>.exe for every unresolved assembly
// reference, looking next to path and then in the search paths. References
// of loaded assemblies are probed in turn.
func (a *app) probe(h *metadata.Host, m *metadata.Module, path string) {
	dirs := append([]string{filepath.Dir(path)}, a.cfg.SearchPaths...)
	tried := map[string]bool{}
	pending := m.AssemblyReferences()

refs:
	for len(pending) > 0 {
		ref := pending[0]
		pending = pending[1:]
		id := ref.UnifiedIdentity()
		if !metadata.IsDummy(h.FindAssembly(id)) {
			continue
		}
		for _, dir := range dirs {
			for _, ext := range []string{".dll", ".exe"} {
				candidate := filepath.Join(dir, id.Name+ext)
				if tried[candidate] {
					continue
				}
				tried[candidate] = true
				if _, err := os.Stat(candidate); err != nil {
					continue
				}
				dep, err := h.Open(candidate)
				if err != nil {
					a.log.Debug("probe failed", zap.String("path", candidate), zap.Error(err))
					continue
				}
				a.log.Debug("loaded reference", zap.String("reference", id.String()), zap.String("path", candidate))
				pending = append(pending, dep.AssemblyReferences()...)
				continue refs
			}
		}
		a.log.Debug("reference not found", zap.String("reference", id.String()))
	}
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
