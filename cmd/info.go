package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/numpy/ironsetup/pkg/buildlog"
	"github.com/numpy/ironsetup/pkg/sysinfo"
)

var infoCmd = &cobra.Command{
	Use:   "info [component...]",
	Short: "Shows the library and include directories of installed components",
	Long: `Looks up components in the site file and the library search path. Without arguments, the components
listed in the site file are shown. --require applies to every lookup result, so components found on the
search path (which carry no version) fail the check.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		constraint, err := cmd.Flags().GetString("require")
		if err != nil {
			return err
		}

		root, err := sourceRoot(cfg)
		if err != nil {
			return err
		}

		registry, lookup, err := newLookup(cfg, root)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			args = registry.Names()
			if len(args) == 0 {
				buildlog.PrintTask("No components listed in " + cfg.SysInfo.File)
				return nil
			}
		}

		for _, name := range args {
			var info *sysinfo.Info
			if constraint != "" {
				info, err = sysinfo.Require(lookup, name, constraint)
			} else {
				info, err = lookup.GetInfo(name)
			}
			if err != nil {
				return err
			}

			printInfo(info)
		}

		return nil
	},
}

func init() {
	infoCmd.Flags().String("require", "", `semver constraint the components have to satisfy (e.g. ">= 2.0")`)
	rootCmd.AddCommand(infoCmd)
}

func printInfo(info *sysinfo.Info) {
	buildlog.PrintTask(info.Name)
	if info.Version != "" {
		buildlog.PrintSubtask("version: " + info.Version)
	}

	for _, field := range []struct {
		label  string
		values []string
	}{
		{"library_dirs", info.LibraryDirs},
		{"include_dirs", info.IncludeDirs},
		{"libraries", info.Libraries},
	} {
		buildlog.PrintSubtask(fmt.Sprintf("%s: %s", field.label, strings.Join(field.values, ", ")))
	}
}
