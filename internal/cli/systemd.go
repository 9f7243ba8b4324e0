package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vetter/internal/systemd"
)

var (
	systemdBinary string
	systemdUser   string
	systemdAddr   string
	systemdArgs   []string
)

func init() {
	rootCmd.AddCommand(systemdCmd)
	systemdCmd.Flags().StringVar(&systemdBinary, "binary", "", "Absolute path of the vetter binary (default: this executable)")
	systemdCmd.Flags().StringVar(&systemdUser, "user", "vetter", "System user the dashboard runs as")
	systemdCmd.Flags().StringVar(&systemdAddr, "addr", "127.0.0.1:8080", "Dashboard listen address")
	systemdCmd.Flags().StringSliceVar(&systemdArgs, "serve-arg", nil, "Extra argument passed to serve (repeatable)")
}

var systemdCmd = &cobra.Command{
	Use:   "systemd",
	Short: "Print a systemd unit for the dashboard",
	Long: "Prints a hardened unit file that runs 'vetter serve'. Install it with:\n" +
		"  vetter systemd > /etc/systemd/system/vetter.service",
	Args: cobra.NoArgs,
	RunE: runSystemd,
}

func runSystemd(cmd *cobra.Command, args []string) error {
	bin := systemdBinary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("cannot determine executable path: %w", err)
		}
		bin = exe
	}
	bin, err := filepath.Abs(bin)
	if err != nil {
		return err
	}

	ref := referencePath
	if ref != "" {
		if ref, err = filepath.Abs(ref); err != nil {
			return err
		}
	}

	unit, err := systemd.DashboardUnit(systemd.UnitOptions{
		Binary:    bin,
		User:      systemdUser,
		Addr:      systemdAddr,
		Reference: ref,
		ExtraArgs: systemdArgs,
	})
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), unit)
	return nil
}
