package main

import (
	"github.com/spf13/cobra"

	"github.com/tomyedwab/tdsshim/client"
	"github.com/tomyedwab/tdsshim/stmt"
)

func newRenderCommand(root *rootOptions) *cobra.Command {
	var named []string

	cmd := &cobra.Command{
		Use:   "render <sql> [param...]",
		Short: "Print a statement with its parameters interpolated",
		Long: `Render binds the parameters the way an emulated statement does and prints
the literal SQL that would be sent. No database connection is made.

Parameters are plain strings unless prefixed with a type:
  int:42  bool:true  str:text  null:  lob:path/to/file`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			params, err := parseArgs(args[1:], named)
			if err != nil {
				return err
			}

			conn := stmt.NewConn(client.Offline(cfg.Quoter()), stmt.WithNamedPrefix(cfg.NamedPrefix))
			defer conn.Close()

			s, err := conn.Prepare(args[0], nil)
			if err != nil {
				return err
			}
			if err := s.BindArgs(params...); err != nil {
				return err
			}

			out := newOutput(cmd.OutOrStdout(), root.Format)
			return out.rendered(s.Template(), s.String())
		},
	}

	cmd.Flags().StringArrayVarP(&named, "param", "p", nil, "named parameter as name=value (repeatable)")
	return cmd
}
