package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stoneacre/cobble/cmd/cobble/output"
	"github.com/stoneacre/cobble/pkg/runtime"
	"github.com/stoneacre/cobble/pkg/shop"
)

var applySchema bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the store schema, or apply it with --apply",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !applySchema {
			fmt.Print(shop.Schema)
			return nil
		}
		url, err := databaseURL()
		if err != nil {
			return err
		}
		ctx := context.Background()
		db, err := runtime.ConnectWithURL(ctx, url)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := shop.EnsureSchema(ctx, db); err != nil {
			output.Error("schema apply failed: %v", err)
			return err
		}
		output.Success("schema applied")
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&applySchema, "apply", false, "Apply the schema to the configured database")
	rootCmd.AddCommand(schemaCmd)
}
