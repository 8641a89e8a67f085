/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/herald/database"
	"github.com/blnkfinance/herald/model"
)

// queueCommands manages entries waiting to be dispatched.
func queueCommands(app *heraldInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "manage queued posts",
	}
	cmd.AddCommand(queueAddCommand(app))
	cmd.AddCommand(queueListCommand(app))
	return cmd
}

func queueAddCommand(app *heraldInstance) *cobra.Command {
	var entry model.PostEntry
	cmd := &cobra.Command{
		Use:   "add",
		Short: "append a post to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := app.db.CreateQueueEntry(context.Background(), entry)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s for %s at %s\n", created.ID, created.PostTo, created.Schedule)
			return nil
		},
	}
	cmd.Flags().StringVar(&entry.PostTo, "account", "", "account key to post as")
	cmd.Flags().StringVar(&entry.Contents, "text", "", "post text")
	cmd.Flags().StringVar(&entry.Schedule, "schedule", "", "when to post (RFC3339, \"2006-01-02 15:04\" or unix seconds)")
	cmd.Flags().StringSliceVar(&entry.MediaAttachments, "media", nil, "stored media ids or provider media ids")
	cmd.Flags().StringVar(&entry.InReplyToInternal, "reply-to-entry", "", "queued or archived entry id to reply to")
	cmd.Flags().StringVar(&entry.InReplyToExternal, "reply-to", "", "provider post id to reply to")
	cmd.Flags().StringVar(&entry.QuoteID, "quote", "", "provider post id to quote")
	cmd.Flags().StringVar(&entry.RepostTargetID, "repost", "", "provider post id to repost")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}

func queueListCommand(app *heraldInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list queued posts in dispatch order",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.db.ListQueue(context.Background())
			if err != nil {
				return err
			}
			printQueue(cmd.OutOrStdout(), entries)
			return nil
		},
	}
}

func printQueue(out io.Writer, entries []model.PostEntry) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACCOUNT\tSCHEDULE\tSTATUS\tEXTERNAL ID")
	for _, e := range entries {
		status := e.Status
		if status == "" {
			status = "pending"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.PostTo, e.Schedule, status, e.ExternalID)
	}
	_ = w.Flush()
}

// credentialsCommands stores and removes the OAuth secrets of posting accounts.
func credentialsCommands(app *heraldInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "manage account credentials",
	}
	cmd.AddCommand(credentialsSetCommand(app))
	cmd.AddCommand(credentialsDeleteCommand(app))
	return cmd
}

func credentialsSetCommand(app *heraldInstance) *cobra.Command {
	var creds model.Credentials
	cmd := &cobra.Command{
		Use:   "set",
		Short: "create or replace the credentials of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.db.SaveCredentials(context.Background(), creds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credentials saved for %s\n", creds.AccountKey)
			return nil
		},
	}
	// secrets default to the environment so they stay out of shell history
	cmd.Flags().StringVar(&creds.AccountKey, "account", "", "account key")
	cmd.Flags().StringVar(&creds.APIKey, "api-key", os.Getenv("HERALD_API_KEY"), "consumer key")
	cmd.Flags().StringVar(&creds.APIKeySecret, "api-key-secret", os.Getenv("HERALD_API_KEY_SECRET"), "consumer secret")
	cmd.Flags().StringVar(&creds.AccessToken, "access-token", os.Getenv("HERALD_ACCESS_TOKEN"), "access token")
	cmd.Flags().StringVar(&creds.AccessTokenSecret, "access-token-secret", os.Getenv("HERALD_ACCESS_TOKEN_SECRET"), "access token secret")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func credentialsDeleteCommand(app *heraldInstance) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "remove the credentials of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.db.DeleteCredentials(context.Background(), account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credentials deleted for %s\n", account)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account key")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

// mediaCommands stores media to be uploaded when the post referencing it is dispatched.
func mediaCommands(app *heraldInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "manage stored media",
	}
	cmd.AddCommand(mediaAddCommand(app))
	return cmd
}

func mediaAddCommand(app *heraldInstance) *cobra.Command {
	var (
		account  string
		file     string
		mimeType string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "store a media file for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read media file: %w", err)
			}
			blob, err := saveMedia(context.Background(), app.db, account, data, mimeType)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%s, %d bytes)\n", blob.ID, blob.MimeType, len(blob.Data))
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account key the media belongs to")
	cmd.Flags().StringVar(&file, "file", "", "path to the media file")
	cmd.Flags().StringVar(&mimeType, "mime", "", "mime type (detected from the content when empty)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func saveMedia(ctx context.Context, db database.IDataSource, account string, data []byte, mimeType string) (model.MediaBlob, error) {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return db.SaveMediaBlob(ctx, model.MediaBlob{AccountKey: account, MimeType: mimeType, Data: data})
}

// errorsCommands reads the failure log written by dispatch passes.
func errorsCommands(app *heraldInstance) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "show recent dispatch errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := app.db.ListErrorRecords(context.Background(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(out, "%s  %s  %s\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.Context, r.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of records to show")
	return cmd
}
