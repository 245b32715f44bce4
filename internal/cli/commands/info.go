package commands

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/metadata"
)

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Show the identity and summary of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, m, err := a.open(args[0])
			if err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), h, m)
			return nil
		},
	}
}

func printInfo(w io.Writer, h *metadata.Host, m *metadata.Module) {
	label := color.New(color.FgCyan, color.Bold)
	row := func(name, value string) {
		label.Fprintf(w, "%-14s", name)
		fmt.Fprintln(w, value)
	}

	row("Module", m.Name())
	asm := m.Assembly()
	if metadata.IsDummy(asm) {
		row("Assembly", "(none)")
	} else {
		row("Assembly", asm.Identity().String())
		row("Files", fmt.Sprint(len(asm.Files())))
		row("Resources", fmt.Sprint(len(asm.ManifestResources())))
		row("Exported", fmt.Sprint(len(asm.ExportedTypes())))
	}
	row("Runtime", m.RuntimeVersion())
	row("MVID", formatGUID(m.Mvid()))
	row("Types", fmt.Sprint(len(m.Types())))
	row("References", fmt.Sprint(len(m.AssemblyReferences())))

	entry := "(none)"
	if ep := m.EntryPoint(); ep != nil && !metadata.IsDummy(ep) {
		entry = ep.String()
	}
	row("Entry point", entry)

	core := "(not loaded)"
	if c := h.CoreAssembly(); !metadata.IsDummy(c) {
		core = c.Identity().String()
	}
	row("Core", core)
}

// formatGUID renders g in registry form; the first three groups are little-endian.
func formatGUID(g image.GUID) string {
	return fmt.Sprintf("%08x-%04x-%04x-%x-%x",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		g[8:10], g[10:16])
}
