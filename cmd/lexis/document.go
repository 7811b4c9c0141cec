package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/lexis/internal/documents"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage stored documents",
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document everywhere",
	Long: `Removes the document and its attachments from the index, blob storage,
and the relational store. Annotations are removed with it.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentDelete,
}

func init() {
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", documents.ErrInvalidID, args[0])
	}

	a, err := open()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.domain.Documents.Delete(context.Background(), id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	cmd.Printf("Document %s deleted.\n", id)
	return nil
}
