package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newSeedCmd(c *cli) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the programs listed in a YAML file",
		Long: `Create the programs listed in a YAML file. Programs that already exist are
skipped. Catalog publications are queued and delivered by the next server run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = c.cfg.Seed.File
			}
			if file == "" {
				return errors.New("a programs file is required (--file or seed.file)")
			}

			ctx := cmd.Context()
			s, err := openStack(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := seedPrograms(ctx, s.programs, file, c.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d program(s) from %s\n", n, file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "programs YAML file")
	return cmd
}
