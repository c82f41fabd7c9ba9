package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/numpy/ironsetup/pkg/buildlog"
	"github.com/numpy/ironsetup/pkg/deps"
)

var fetchDepsCmd = &cobra.Command{
	Use:   "fetch-deps",
	Short: "Downloads and unpacks dependencies",
	Long:  `Downloads and unpacks the prebuilt libraries (libndarray, ...) listed in DEPS.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := cmd.Flags().GetBool("update")
		if err != nil {
			return err
		}

		buildlog.PrintTask("Loading config")
		root, err := sourceRoot(cfg)
		if err != nil {
			return err
		}

		depsPath := resolvePath(root, cfg.Deps.File)
		stampPath := resolvePath(root, cfg.Deps.Stamps)

		depCfg, err := deps.LoadConfig(depsPath)
		if err != nil {
			return err
		}

		stamps, err := deps.LoadStamps(stampPath)
		if err != nil {
			return err
		}

		buildlog.PrintTask("Downloading dependencies")
		fetcher := deps.NewFetcher(root)
		fetcher.Update = update

		changes, err := fetcher.Fetch(commandContext(cmd), depCfg, stamps)
		if sErr := stamps.Save(stampPath); sErr != nil {
			buildlog.PrintError(sErr.Error())
		}
		if err != nil {
			return err
		}

		if update && len(changes) > 0 {
			buildlog.PrintTask("Updating " + cfg.Deps.File)
			generated, err := depCfg.UpdateChecksums(changes)
			if err != nil {
				return err
			}

			if err = os.WriteFile(depsPath, []byte(generated), 0o660); err != nil {
				return err
			}
		}

		buildlog.PrintTask("Done")
		return nil
	},
}

func init() {
	fetchDepsCmd.Flags().BoolP("update", "u", false, "Update checksums")
	rootCmd.AddCommand(fetchDepsCmd)
}
