package main

import (
	"fmt"

	"github.com/danmuck/glapctl/internal/config"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate config files",
	}
	cmd.AddCommand(configTemplateCmd(), configValidateCmd())
	return cmd
}

func configTemplateCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:       "template <server|client>",
		Short:     "Write a config file populated with defaults",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.Kinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			if output == "" {
				tmpl, err := config.Template(kind)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), tmpl)
				return err
			}
			if err := config.WriteTemplate(output, kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config to %s\n", kind, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (stdout when empty)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "validate <server|client> <path>",
		Short:     "Load and validate a config file",
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.Kinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, path := args[0], args[1]
			var err error
			switch kind {
			case "server":
				_, err = config.LoadServerConfig(path)
			case "client":
				_, err = config.LoadClientConfig(path)
			default:
				err = fmt.Errorf("unknown config kind: %s", kind)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s config at %s\n", kind, path)
			return nil
		},
	}
}
