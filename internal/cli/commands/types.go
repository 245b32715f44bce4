package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wippyai/clrmeta/internal/cli/ui"
	"github.com/wippyai/clrmeta/metadata"
)

func newTypesCommand(a *app) *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "types <file>",
		Short: "List the types defined by a module",
		Example: `  mdview types System.Text.Json.dll
  mdview types App.dll --namespace App.Models`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, m, err := a.open(args[0])
			if err != nil {
				return err
			}
			l := &typeLister{namespace: namespace, moduleType: m.ModuleType()}
			metadata.Walk(m, l)
			printTypes(cmd.OutOrStdout(), l.types)
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Only list types of this namespace")
	return cmd
}

// typeLister collects type definitions, nested ones included, whose
// outermost type lives in namespace.
type typeLister struct {
	metadata.BaseVisitor
	moduleType *metadata.TypeDefinition
	namespace  string
	types      []*metadata.TypeDefinition
}

func (l *typeLister) VisitTypeDefinition(t *metadata.TypeDefinition) {
	if t == l.moduleType {
		return
	}
	outer := t
	for outer.IsNested() {
		outer = outer.ContainingType()
	}
	if l.namespace != "" && outer.Namespace() != l.namespace {
		return
	}
	l.types = append(l.types, t)
}

func printTypes(w io.Writer, types []*metadata.TypeDefinition) {
	sort.Slice(types, func(i, j int) bool { return types[i].FullName() < types[j].FullName() })

	vis := color.New(color.FgGreen).SprintFunc()
	kind := color.New(color.FgYellow).SprintFunc()
	name := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for _, t := range types {
		line := vis(fmt.Sprintf("%-9s", t.Visibility())) + " " + kind(fmt.Sprintf("%-9s", ui.TypeKind(t))) + " " + name(t.FullName())
		if base := t.BaseClass(); base != nil && ui.TypeKind(t) == "class" {
			line += faint(" : " + base.FullName())
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d types\n", len(types))
}
