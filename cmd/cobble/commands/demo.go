package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/stoneacre/cobble/cmd/cobble/output"
	"github.com/stoneacre/cobble/pkg/runtime"
	"github.com/stoneacre/cobble/pkg/session"
	"github.com/stoneacre/cobble/pkg/shop"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the store walkthrough against the configured database",
	Long: `Creates users with profiles and posts, then orders linked to
products through priced association rows, and reads everything back
with join-fetch and batch-fetch loading. Expects an empty database;
run "cobble schema --apply" first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		return runDemo(ctx, db)
	},
}

func runDemo(ctx context.Context, db *runtime.DB) error {
	s := session.Open(db)
	defer s.Close()

	output.Section("Users, profiles, posts")

	adi, err := shop.CreateUser(ctx, s, "adi")
	if err != nil {
		return err
	}
	logger.Debug().Int64("id", adi.ID).Msg("created user")
	if _, err := shop.CreateUser(ctx, s, "jale"); err != nil {
		return err
	}

	first, last := "Adi", "Oz"
	if _, err := shop.CreateProfile(ctx, s, adi.ID, &first, &last, nil); err != nil {
		return err
	}
	if _, err := shop.CreatePosts(ctx, s, adi.ID, "First post", "Second post"); err != nil {
		return err
	}

	users, err := shop.UsersWithPostsAndProfiles(ctx, s)
	if err != nil {
		return err
	}
	for _, user := range users {
		output.Item("%s", user)
		if user.Profile != nil {
			output.SubItem("profile: %s", user.Profile.FullName())
		}
		for _, post := range user.Posts {
			output.SubItem("%s", post)
		}
	}

	profile, err := shop.ProfilesByUsername(ctx, s, "adi")
	if err != nil {
		return err
	}
	if profile != nil {
		output.Success("found profile %s for adi", profile.FullName())
	}

	output.Section("Orders and products")

	mouse, err := shop.CreateProduct(ctx, s, "Mouse", 123, "wired optical mouse")
	if err != nil {
		return err
	}
	keyboard, err := shop.CreateProduct(ctx, s, "Keyboard", 150, "60% mechanical keyboard")
	if err != nil {
		return err
	}
	order, err := shop.CreateOrder(ctx, s, nil)
	if err != nil {
		return err
	}
	shop.AppendProduct(s, order, mouse)
	shop.AppendProduct(s, order, keyboard)
	if err := s.Commit(ctx); err != nil {
		return err
	}
	output.Success("linked %d products to %s", len(order.Products), order)

	if _, err := shop.AddGiftToOrders(ctx, s); err != nil {
		return err
	}

	// Fresh session so the listing hydrates from the database rather
	// than the staging session's in-memory graph.
	reader := session.Open(db)
	defer reader.Close()

	orders, err := shop.ListOrdersWithProducts(ctx, reader, true)
	if err != nil {
		return err
	}
	for _, o := range orders {
		output.Item("%s", o)
		for _, line := range o.ProductDetails {
			if line.Product != nil {
				output.SubItem("%s x%d @ %d", line.Product.Name, line.Count, line.UnitPrice)
			}
		}
	}
	output.Success("demo complete")
	return nil
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
