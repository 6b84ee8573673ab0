// Package commands implements the ranaimg CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rana-image-tool/internal/services"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// exitCodeError ends the process with a specific code once its output has
// already been printed.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app carries what every command runs against.
type app struct {
	container *services.Container
	path      string
}

// root resolves the -p/--path flag, defaulting to the working directory.
func (a *app) root() (string, error) {
	if a.path != "" {
		return a.path, nil
	}
	return os.Getwd()
}

// NewRootCmd builds the command tree around a dependency container.
func NewRootCmd(c *services.Container) *cobra.Command {
	a := &app{container: c}

	rootCmd := &cobra.Command{
		Use:   "ranaimg",
		Short: "Batch image maintenance for photo folders",
		Long: `ranaimg rewrites image folders in place: it converts WebP and JPEG files
to PNG, stamps a print resolution onto JPEG and PNG files, and counts what a
folder holds. Every file is written atomically; a failed file is left as it was.

Use "ranaimg [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.path, "path", "p", "",
		"directory to process, recursively (default: current working directory)")

	rootCmd.AddCommand(newWebpCmd(a))
	rootCmd.AddCommand(newConvertCmd(a))
	rootCmd.AddCommand(newSetPPICmd(a))
	rootCmd.AddCommand(newScanCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	return rootCmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, c *services.Container, args []string) int {
	rootCmd := NewRootCmd(c)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(c.Out())

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exit *exitCodeError
	if errors.As(err, &exit) {
		return exit.code
	}

	rootCmd.PrintErrf("%s %v\n", c.Theme().Error("Error:"), err)
	return 1
}
