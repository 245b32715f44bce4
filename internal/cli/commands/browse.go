package commands

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/internal/cli/ui"
	"github.com/wippyai/clrmeta/metadata"
)

func newBrowseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "browse <file>",
		Short: "Browse namespaces, types, members and IL interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(cmd.OutOrStdout()) {
				return errors.New(errors.PhaseCLI, errors.KindUnsupported).
					Detail("browse needs an interactive terminal; use info, types or refs instead").
					Build()
			}
			path := args[0]
			model := ui.NewBrowseModel(filepath.Base(path), func() (*metadata.Module, error) {
				_, m, err := a.open(path)
				return m, err
			})
			return ui.RunBrowser(model)
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
