package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/streambinder/spotitag/config"
	"github.com/streambinder/spotitag/util"
)

func init() {
	cmdRoot.AddCommand(cmdInit())
}

func cmdInit() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		// configuration gets written, not read
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			var (
				path  = util.ErrWrap("")(cmd.Flags().GetString("config"))
				force = util.ErrWrap(false)(cmd.Flags().GetBool("force"))
			)
			if path == "" {
				if path, err = config.Path(); err != nil {
					return err
				}
			}
			if util.FileExists(path) && !force {
				return errors.New("configuration file " + path + " already exists, use --force to overwrite it")
			}

			if err := config.DefaultSettings().Save(path); err != nil {
				return err
			}
			tui.Printf("configuration written to %s", path)
			return nil
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Overwrite existing configuration file")
	return cmd
}
