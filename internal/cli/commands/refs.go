package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/metadata"
)

func newRefsCommand(a *app) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "refs <file>",
		Short: "List assembly references and whether they resolve",
		Long: `List the assemblies a module references. Each reference is matched
against the assemblies loaded by probing: the file's directory and the
configured search paths.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, m, err := a.open(args[0])
			if err != nil {
				return err
			}
			missing := printRefs(cmd.OutOrStdout(), m.AssemblyReferences())
			if strict && missing > 0 {
				return errors.New(errors.PhaseCLI, errors.KindNotFound).
					Entity(m.Name()).
					Value(missing).
					Detail("%d unresolved assembly references", missing).
					Build()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when a reference does not resolve")
	return cmd
}

// printRefs writes one line per reference and returns the number that did
// not resolve.
func printRefs(w io.Writer, refs []*metadata.AssemblyReference) int {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	missing := 0
	for _, r := range refs {
		asm := r.ResolvedAssembly()
		if metadata.IsDummy(asm) {
			missing++
			fmt.Fprintf(w, "%s %s\n", bad(fmt.Sprintf("%-10s", "missing")), r.Identity())
			continue
		}
		line := fmt.Sprintf("%s %s", ok(fmt.Sprintf("%-10s", "resolved")), r.Identity())
		if got := asm.Identity(); got.String() != r.Identity().String() {
			line += faint(" -> " + got.String())
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d references, %d unresolved\n", len(refs), missing)
	return missing
}
