package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/biggo-labs/birse-go/internal/app"
	"github.com/biggo-labs/birse-go/pkg/birse"
	"github.com/biggo-labs/birse-go/pkg/imagefile"
	"github.com/biggo-labs/birse-go/pkg/ptr"
)

func apiCmd() *cobra.Command {
	apiRoot := &cobra.Command{
		Use:   "api",
		Short: "Manage and search the BIRSE image index",
		Long: "Commands for the BIRSE API. They need an API key\n" +
			"(BIRSE_API_KEY or api_key in the config file).",
	}

	apiRoot.AddCommand(
		apiSearchCmd(),
		apiSearchURLCmd(),
		apiUploadCmd(),
		apiUploadBatchCmd(),
		apiDeleteCmd(),
		apiStatusCmd(),
		apiUploadsCmd(),
	)

	return apiRoot
}

// searchFlags are shared by search and search-url.
type searchFlags struct {
	maxResults int
	minScore   float64
	metadata   []string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxResults, "max-results", 0, "maximum number of matches (server default when unset)")
	cmd.Flags().Float64Var(&f.minScore, "min-score", 0, "minimum similarity score between 0 and 1")
	cmd.Flags().StringArrayVar(&f.metadata, "metadata", nil, "metadata filter as key=value (repeatable)")
}

func (f *searchFlags) options(cmd *cobra.Command) (birse.SearchOptions, error) {
	var opts birse.SearchOptions
	if cmd.Flags().Changed("max-results") {
		opts.MaxResults = ptr.Int(f.maxResults)
	}
	if cmd.Flags().Changed("min-score") {
		if f.minScore < 0 || f.minScore > 1 {
			return opts, fmt.Errorf("--min-score must be between 0 and 1, got %v", f.minScore)
		}
		opts.MinScore = ptr.Float64(f.minScore)
	}
	md, err := parseMetadata(f.metadata)
	if err != nil {
		return opts, err
	}
	opts.Metadata = md
	return opts, nil
}

func apiSearchCmd() *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "search <file>",
		Short: "Search the index with a local image",
		Example: `  birse api search ./query.jpg --max-results 5 --min-score 0.8
  birse api search ./query.jpg --metadata category=shoes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(cmd)
			if err != nil {
				return err
			}
			img, err := imagefile.Open(args[0])
			if err != nil {
				return err
			}
			defer img.Close()

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				c, err := a.API()
				if err != nil {
					return err
				}
				resp, err := c.SearchByImage(ctx, img, opts)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return outputJSON(resp)
				}
				return printSearchResults(resp)
			})
		},
	}
	flags.register(cmd)

	return cmd
}

func apiSearchURLCmd() *cobra.Command {
	var (
		flags searchFlags
		page  string
	)

	cmd := &cobra.Command{
		Use:   "search-url [image-url]",
		Short: "Search the index with a remote image or a product page",
		Example: `  # Search with an image URL
  birse api search-url https://cdn.example.com/shoe.jpg

  # Use the og:image of a product page
  birse api search-url --page https://shop.example.com/products/shoe`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (page != "") {
				return errors.New("provide exactly one of an image url or --page")
			}
			opts, err := flags.options(cmd)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				var resp *birse.SearchResponse
				if page != "" {
					imageURL, r, err := a.SearchPage(ctx, page, opts)
					if err != nil {
						return err
					}
					resp = r
					if !jsonOutput() {
						fmt.Printf("Page image: %s\n\n", imageURL)
					}
				} else {
					c, err := a.API()
					if err != nil {
						return err
					}
					if resp, err = c.SearchByURL(ctx, args[0], opts); err != nil {
						return err
					}
				}
				if jsonOutput() {
					return outputJSON(resp)
				}
				return printSearchResults(resp)
			})
		},
	}
	cmd.Flags().StringVar(&page, "page", "", "product page whose declared image is searched")
	flags.register(cmd)

	return cmd
}

func apiUploadCmd() *cobra.Command {
	var metadata []string

	cmd := &cobra.Command{
		Use:     "upload <file>",
		Short:   "Add an image to the index",
		Example: `  birse api upload ./shoe.jpg --metadata sku=SH-1 --metadata price=59.9`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := parseMetadata(metadata)
			if err != nil {
				return err
			}
			img, err := imagefile.Open(args[0])
			if err != nil {
				return err
			}
			defer img.Close()

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				resp, err := a.UploadImage(ctx, img, args[0], md)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return outputJSON(resp.Fields)
				}
				fmt.Println(resp.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&metadata, "metadata", nil, "metadata as key=value (repeatable)")

	return cmd
}

func apiUploadBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload-batch <manifest>",
		Short: "Upload every image listed in a YAML or JSON manifest",
		Example: `  birse api upload-batch ./catalog.yaml

  # catalog.yaml
  images:
    - path: shoes/red.jpg
      metadata: {sku: SH-1}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				summary, runErr := a.RunBatch(ctx, args[0])
				var err error
				if jsonOutput() {
					err = outputJSON(summary)
				} else if len(summary.Results) > 0 {
					err = printBatchSummary(summary)
				}
				return errors.Join(runErr, err)
			})
		},
	}
}

func apiDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <image-id>",
		Short:   "Remove an image from the index",
		Example: `  birse api delete img_01HZX`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				resp, err := a.DeleteImage(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput() {
					return outputJSON(resp.Fields)
				}
				if resp.Message != "" {
					fmt.Println(resp.Message)
				} else {
					fmt.Printf("Deleted %s\n", args[0])
				}
				return nil
			})
		},
	}
}

func apiStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show API status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				c, err := a.API()
				if err != nil {
					return err
				}
				resp, err := c.GetStatus(ctx)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return outputJSON(resp.Fields)
				}
				return printFields(resp.Fields)
			})
		},
	}
}

func apiUploadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uploads",
		Short: "List images uploaded from this machine",
		Long: "List the local upload ledger. Entries are added by upload and\n" +
			"upload-batch, removed by delete, and expire after ledger_retention_seconds.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				uploads, err := a.Uploads()
				if err != nil {
					return err
				}
				if jsonOutput() {
					return outputJSON(uploads)
				}
				return printUploadsTable(uploads)
			})
		},
	}
}
