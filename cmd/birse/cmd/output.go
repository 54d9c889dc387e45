package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/biggo-labs/birse-go/internal/batch"
	"github.com/biggo-labs/birse-go/internal/storage"
	"github.com/biggo-labs/birse-go/pkg/birse"
	"github.com/biggo-labs/birse-go/pkg/shopify"
)

// tabWriter wraps tabwriter with error tracking.
type tabWriter struct {
	*tabwriter.Writer
	err error
}

func newTabWriter(w io.Writer) *tabWriter {
	return &tabWriter{Writer: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (tw *tabWriter) writef(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.Writer, format, args...)
}

func (tw *tabWriter) finish() error {
	if tw.err != nil {
		return tw.err
	}
	return tw.Flush()
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printProductsTable(products []shopify.Product) error {
	if len(products) == 0 {
		fmt.Println("No products found.")
		return nil
	}
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tTITLE\tPRICE\tAVAILABLE\tHANDLE\n")
	for i := range products {
		tw.writef("%s\t%s\t%s %s\t%v\t%s\n",
			products[i].ID,
			truncate(products[i].Title, 40),
			products[i].Price,
			products[i].Currency,
			products[i].Available,
			products[i].Handle,
		)
	}
	return tw.finish()
}

func printSearchResults(resp *birse.SearchResponse) error {
	if resp == nil || len(resp.Results) == 0 {
		fmt.Println("No matches found.")
		return nil
	}
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tSCORE\tIMAGE\tMETADATA\n")
	for i := range resp.Results {
		tw.writef("%s\t%.4f\t%s\t%s\n",
			resp.Results[i].ID,
			resp.Results[i].Score,
			resp.Results[i].ImageURL,
			formatMetadata(resp.Results[i].Metadata),
		)
	}
	if err := tw.finish(); err != nil {
		return err
	}
	if resp.TotalCount != nil || resp.ProcessingTime != nil {
		fmt.Println()
		if resp.TotalCount != nil {
			fmt.Printf("Total: %d\n", *resp.TotalCount)
		}
		if resp.ProcessingTime != nil {
			fmt.Printf("Processing time: %v\n", *resp.ProcessingTime)
		}
	}
	return nil
}

func printFields(fields map[string]any) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := newTabWriter(os.Stdout)
	for _, k := range keys {
		tw.writef("%s:\t%v\n", k, fields[k])
	}
	return tw.finish()
}

func printUploadsTable(uploads []storage.Upload) error {
	if len(uploads) == 0 {
		fmt.Println("No uploads recorded.")
		return nil
	}
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tUPLOADED\tSOURCE\tMETADATA\n")
	for i := range uploads {
		tw.writef("%s\t%s\t%s\t%s\n",
			uploads[i].ID,
			uploads[i].UploadedAt.Local().Format(time.DateTime),
			uploads[i].Source,
			formatMetadata(uploads[i].Metadata),
		)
	}
	return tw.finish()
}

func printBatchSummary(summary batch.Summary) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("PATH\tIMAGE ID\tERROR\n")
	for _, r := range summary.Results {
		tw.writef("%s\t%s\t%s\n", r.Path, dash(r.ImageID), dash(r.Error))
	}
	if err := tw.finish(); err != nil {
		return err
	}
	fmt.Printf("\nUploaded: %d  Failed: %d  Events delivered: %d\n", summary.Uploaded, summary.Failed, summary.Published)
	return nil
}

func formatMetadata(m map[string]any) string {
	if len(m) == 0 {
		return "-"
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "-"
	}
	return truncate(string(raw), 60)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
