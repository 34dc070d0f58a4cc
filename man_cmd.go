package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		page, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return err
		}

		page = page.WithSection("Files", "Configuration is read from voicestudio.yml in the user config directory, "+
			"or the directory named by VOICESTUDIO_CONFIG_HOME.")
		page = page.WithSection("Environment", "VOICESTUDIO_LOG_FILE writes logs to a rotating file. "+
			"VOICESTUDIO_DEBUG enables debug logging. Any configuration key can be set as "+
			"VOICESTUDIO_<SECTION>_<KEY>.")
		fmt.Println(page.Build(roff.NewDocument()))
		return nil
	},
}
