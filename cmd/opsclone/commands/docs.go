package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jholhewres/opsclone/pkg/opsclone/knowledge"
	"github.com/jholhewres/opsclone/pkg/opsclone/storage"
)

// newDocsCmd creates the `opsclone docs` command group.
func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage the company document store",
		Long: `Add, list and search the documents the assistant answers from.

Examples:
  opsclone docs add --title "Leave Policy" --type policy --department HR --author HR --file leave.md
  opsclone docs list --type policy
  opsclone docs search "expense approval"
  opsclone docs seed`,
	}

	cmd.AddCommand(
		newDocsAddCmd(),
		newDocsListCmd(),
		newDocsSearchCmd(),
		newDocsSeedCmd(),
	)
	return cmd
}

// openStore loads the runtime and requires a document store.
func openStore(cmd *cobra.Command) (*storage.Store, func(), error) {
	rt, _, err := loadRuntime(context.Background(), cmd, false)
	if err != nil {
		return nil, nil, err
	}
	store, err := rt.RequireStore()
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	return store, func() { rt.Close() }, nil
}

func newDocsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := storage.DocumentInput{}
			in.Title, _ = cmd.Flags().GetString("title")
			in.Type, _ = cmd.Flags().GetString("type")
			in.Department, _ = cmd.Flags().GetString("department")
			in.Author, _ = cmd.Flags().GetString("author")
			in.AccessLevel, _ = cmd.Flags().GetString("access-level")
			in.Content, _ = cmd.Flags().GetString("content")

			if file, _ := cmd.Flags().GetString("file"); file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading %s: %w", file, err)
				}
				in.Content = string(data)
			}

			store, done, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer done()

			doc, err := store.StoreDocument(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %q (%s)\n", doc.Title, doc.ID)
			return nil
		},
	}
	cmd.Flags().String("title", "", "document title")
	cmd.Flags().String("type", "memo", "policy, procedure, guideline, memo or report")
	cmd.Flags().String("department", "", "owning department")
	cmd.Flags().String("author", "", "author")
	cmd.Flags().String("access-level", "public", "public, management or executive")
	cmd.Flags().String("content", "", "document content")
	cmd.Flags().String("file", "", "read the content from a file")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func newDocsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, done, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer done()

			active := true
			filter := storage.DocumentFilter{Active: &active}
			filter.Type, _ = cmd.Flags().GetString("type")
			filter.Department, _ = cmd.Flags().GetString("department")
			filter.AccessLevel, _ = cmd.Flags().GetString("access-level")

			docs, err := store.ListDocuments(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printDocuments(cmd, docs)
		},
	}
	cmd.Flags().String("type", "", "filter by type")
	cmd.Flags().String("department", "", "filter by department")
	cmd.Flags().String("access-level", "", "filter by access level")
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func newDocsSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents the way the assistant does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, done, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer done()

			limit, _ := cmd.Flags().GetInt("limit")
			docs, err := store.SearchDocuments(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return printDocuments(cmd, docs)
		},
	}
	cmd.Flags().Int("limit", 10, "maximum results")
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func newDocsSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the built-in reference documents into an empty store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, done, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer done()

			n, err := store.SeedFallback(cmd.Context())
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Store already has documents, nothing seeded.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d documents.\n", n)
			return nil
		},
	}
}

func printDocuments(cmd *cobra.Command, docs []knowledge.Document) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if docs == nil {
			docs = []knowledge.Document{}
		}
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents found.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tTYPE\tDEPARTMENT\tACCESS\tUPDATED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			d.Title, d.Type, d.Department, d.AccessLevel, d.UpdatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}
