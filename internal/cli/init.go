package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vetter/internal/refdata"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing reference file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default reference file",
	Long: `Creates ~/.vetter/reference.yaml (or the --reference path) with every
required list present and empty, and the default thresholds.

Fill in the lists, then check the file with:
  vetter config`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := referencePath
	if path == "" {
		p, err := refdata.DefaultPath()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = p
	}

	wrote, err := writeIfMissing(path, refdata.DefaultYAML())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !wrote {
		fmt.Fprintf(out, "%s already exists (use --force to overwrite).\n", path)
		return nil
	}
	fmt.Fprintln(out, "vetter init complete.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Created:")
	fmt.Fprintf(out, "  %s\n", path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Check it:")
	fmt.Fprintln(out, "  vetter config")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Verify an account:")
	fmt.Fprintln(out, "  vetter verify <username>")
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
