package cmd

import (
	"fmt"
	"net/url"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	publishTitle    string
	publishHTML     string
	publishHTMLFile string
	publishText     string
	publishTextFile string
	publishKey      string
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a newsletter issue",
	Long: `Publish a newsletter issue to every confirmed subscriber.

A fresh idempotency key is generated per invocation unless --key is given;
re-running with the same key replays the original acknowledgment instead of
publishing the issue again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		htmlContent, err := contentFrom(publishHTML, publishHTMLFile)
		if err != nil {
			return fmt.Errorf("html content: %w", err)
		}
		textContent, err := contentFrom(publishText, publishTextFile)
		if err != nil {
			return fmt.Errorf("text content: %w", err)
		}

		key := publishKey
		if key == "" {
			key = uuid.NewString()
		}

		form := url.Values{
			"idempotency_key": {key},
			"title":           {publishTitle},
			"html_content":    {htmlContent},
			"text_content":    {textContent},
		}

		resp, err := postForm("/admin/newsletters", form)
		if err != nil {
			return fmt.Errorf("publish request failed: %w", err)
		}
		defer resp.Body.Close()

		fmt.Fprintf(os.Stderr, "idempotency key: %s\n", key)
		return printResponse(resp)
	},
}

// contentFrom returns the inline value, or the file's contents if a path was
// given instead.
func contentFrom(inline, file string) (string, error) {
	if file == "" {
		return inline, nil
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func init() {
	publishCmd.Flags().StringVar(&publishTitle, "title", "", "issue title (required)")
	publishCmd.Flags().StringVar(&publishHTML, "html", "", "HTML body")
	publishCmd.Flags().StringVar(&publishHTMLFile, "html-file", "", "read HTML body from file")
	publishCmd.Flags().StringVar(&publishText, "text", "", "plain text body")
	publishCmd.Flags().StringVar(&publishTextFile, "text-file", "", "read plain text body from file")
	publishCmd.Flags().StringVar(&publishKey, "key", "", "idempotency key (default: random UUID)")
	_ = publishCmd.MarkFlagRequired("title")

	rootCmd.AddCommand(publishCmd)
}
