package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tomyedwab/tdsshim/stmt"
)

func newQueryCommand(root *rootOptions) *cobra.Command {
	var named []string

	cmd := &cobra.Command{
		Use:   "query <sql> [param...]",
		Short: "Run a statement and print every rowset it returns",
		Long: `Query runs the statement as an emulated prepared statement and prints all
rowsets that carry columns. Parameters use the same syntax as render.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			params, err := parseArgs(args[1:], named)
			if err != nil {
				return err
			}
			logger, err := root.logger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			conn, err := cfg.OpenConn(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			s, err := conn.Query(ctx, args[0], stmt.Num, params...)
			if err != nil {
				return err
			}
			defer s.Close()

			sets, err := collectRowsets(s)
			if err != nil {
				return err
			}
			logger.Debug("query finished", zap.Int("rowsets", len(sets)))
			return newOutput(cmd.OutOrStdout(), root.Format).rowsets(sets)
		},
	}

	cmd.Flags().StringArrayVarP(&named, "param", "p", nil, "named parameter as name=value (repeatable)")
	return cmd
}

// collectRowsets reads every remaining rowset of s, skipping the ones
// without columns.
func collectRowsets(s *stmt.EmulatedStatement) ([]rowset, error) {
	var sets []rowset
	for {
		cols := s.Columns()
		if len(cols) > 0 {
			rows, err := s.FetchAllAs(stmt.Num)
			if err != nil {
				return nil, err
			}
			set := rowset{Columns: cols, Rows: make([][]any, 0, len(rows))}
			for _, r := range rows {
				set.Rows = append(set.Rows, r.Num)
			}
			sets = append(sets, set)
		}

		more, err := s.NextRowset()
		if err != nil {
			return nil, err
		}
		if !more {
			return sets, nil
		}
	}
}
