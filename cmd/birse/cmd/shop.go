package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/biggo-labs/birse-go/internal/app"
	"github.com/biggo-labs/birse-go/pkg/imagefile"
	"github.com/biggo-labs/birse-go/pkg/ptr"
	"github.com/biggo-labs/birse-go/pkg/shopify"
)

func shopCmd() *cobra.Command {
	shopRoot := &cobra.Command{
		Use:   "shop",
		Short: "Search a Shopify storefront by image",
		Long: "Commands for the BigGo Shopify plugin API. They need shop_id and\n" +
			"shop_domain (BIRSE_SHOP_ID, BIRSE_SHOP_DOMAIN).",
	}

	shopRoot.AddCommand(
		shopUploadCmd(),
		shopSearchCmd(),
		shopSimilarCmd(),
	)

	return shopRoot
}

// shopFilters are the flags shared by search and similar.
type shopFilters struct {
	country    string
	lang       string
	metafields []string
}

func (f *shopFilters) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.country, "country", "", "country code for localized prices")
	cmd.Flags().StringVar(&f.lang, "lang", "", "language code for localized titles")
	cmd.Flags().StringArrayVar(&f.metafields, "metafield", nil, "product metafield to include as namespace.key (repeatable)")
}

// resolve turns set flags into optional params; unset flags stay nil.
func (f *shopFilters) resolve(cmd *cobra.Command) (country, lang *string, metafields []shopify.MetafieldKey, err error) {
	if cmd.Flags().Changed("country") {
		country = ptr.String(f.country)
	}
	if cmd.Flags().Changed("lang") {
		lang = ptr.String(f.lang)
	}
	if cmd.Flags().Changed("metafield") {
		metafields, err = parseMetafields(f.metafields)
	}
	return country, lang, metafields, err
}

func shopUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "upload <file>",
		Short:   "Upload an image and print its image id",
		Example: `  birse shop upload ./sneaker.jpg`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := imagefile.Open(args[0])
			if err != nil {
				return err
			}
			defer img.Close()

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				c, err := a.Shop()
				if err != nil {
					return err
				}
				res, err := c.UploadImage(ctx, img)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return outputJSON(res)
				}
				fmt.Println(res.ImageID)
				return nil
			})
		},
	}
}

func shopSearchCmd() *cobra.Command {
	var (
		filters shopFilters
		xywh    string
	)

	cmd := &cobra.Command{
		Use:   "search <image-id>",
		Short: "Find products matching an uploaded image",
		Example: `  # Search with the whole image
  birse shop search 5f1c2d

  # Search a crop region with localized results
  birse shop search 5f1c2d --xywh 10,20,300,400 --country TW --lang zh-TW --metafield custom.color`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := shopify.SearchParams{ImageID: args[0]}
			if cmd.Flags().Changed("xywh") {
				box, err := parseBox(xywh)
				if err != nil {
					return err
				}
				params.XYWH = &box
			}
			var err error
			params.Country, params.Lang, params.Metafields, err = filters.resolve(cmd)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				c, err := a.Shop()
				if err != nil {
					return err
				}
				resp, err := c.SearchImage(ctx, params)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return outputJSON(resp)
				}
				return printProductsTable(resp.Products)
			})
		},
	}
	cmd.Flags().StringVar(&xywh, "xywh", "", "crop region as x,y,w,h")
	filters.register(cmd)

	return cmd
}

func shopSimilarCmd() *cobra.Command {
	var (
		filters  shopFilters
		imageURL string
	)

	cmd := &cobra.Command{
		Use:     "similar <product-id>",
		Short:   "List products similar to a product",
		Example: `  birse shop similar gid://shopify/Product/123 --image-url https://cdn.shopify.com/a.jpg`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := shopify.SimilarProductParams{ProductID: args[0]}
			if cmd.Flags().Changed("image-url") {
				params.ImageURL = ptr.String(imageURL)
			}
			var err error
			params.Country, params.Lang, params.Metafields, err = filters.resolve(cmd)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				c, err := a.Shop()
				if err != nil {
					return err
				}
				resp, err := c.SimilarProducts(ctx, params)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return outputJSON(resp)
				}
				return printProductsTable(resp.Products)
			})
		},
	}
	cmd.Flags().StringVar(&imageURL, "image-url", "", "image of the product to compare against")
	filters.register(cmd)

	return cmd
}
