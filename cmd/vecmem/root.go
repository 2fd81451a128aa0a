package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// version can be overridden at build time via:
// go build -ldflags "-X main.version=1.2.3"
var version = "0.1.0"

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	headColor = color.New(color.FgCyan, color.Bold)
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vecmem",
		Short:         "vecmem - vector memory for conversational agents",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("env-prefix", "VECMEM", "prefix of the environment variables holding the configuration")

	root.AddCommand(
		newRecallCmd(),
		newInspectCmd(),
		newConfigCmd(),
		newExportCmd(),
		newImportCmd(),
	)
	return root
}

func printHeader(w io.Writer, title string) {
	headColor.Fprintln(w, title)
}

func printCheck(w io.Writer, ok bool, format string, args ...any) {
	if ok {
		okColor.Fprint(w, "[OK]   ")
	} else {
		failColor.Fprint(w, "[FAIL] ")
	}
	fmt.Fprintf(w, format+"\n", args...)
}
