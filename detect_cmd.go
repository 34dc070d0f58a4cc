package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/voicestudio/internal/project"
)

var (
	detectAll  bool
	detectJSON bool

	detectCmd = &cobra.Command{
		Use:     "detect [DIR]",
		Short:   "List the script projects found in a directory",
		Long:    paragraph(fmt.Sprintf("\n%s DIR for JSON, text, markdown and CSV scripts. Files ignored by git are skipped unless --all is set.", keyword("Scan"))),
		Example: paragraph("voicestudio detect ./scripts\nvoicestudio detect ./scripts --json"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			d := project.NewDetector(log.Default())
			d.ShowAll = detectAll
			files, err := d.Detect(dir)
			if err != nil {
				return err
			}

			if detectJSON {
				return writeJSON(os.Stdout, files)
			}
			if len(files) == 0 {
				fmt.Println(faint("No script projects found in " + dir))
				return nil
			}
			printDetected(os.Stdout, files)
			return nil
		},
	}
)

func init() {
	detectCmd.Flags().BoolVarP(&detectAll, "all", "a", false, "include hidden and git-ignored files")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "print the projects as JSON")
}
