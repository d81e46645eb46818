package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"cricket-trivia-service/internal/app"
	"cricket-trivia-service/internal/client"
	"cricket-trivia-service/internal/config"
	"cricket-trivia-service/internal/domain"
	"cricket-trivia-service/internal/logger"
	"github.com/spf13/cobra"
)

// NewSubmitCmd commits one attempt read as JSON, queueing it in the device outbox when
// the API cannot be reached.
func NewSubmitCmd(configPath *string) *cobra.Command {
	var (
		userID string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Commit an attempt from a JSON file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open attempt: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runSubmit(cmd.Context(), cfg, userID, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "id of the submitting user")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "attempt JSON, - for stdin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runSubmit(ctx context.Context, cfg config.Config, userID string, in io.Reader, out io.Writer) error {
	log := logger.New(cfg.Log.Level).With().Str("namespace", cfg.Outbox.Namespace).Logger()
	if cfg.Outbox.APIURL == "" {
		return fmt.Errorf("outbox api_url not configured")
	}

	outbox, closeOutbox, err := openOutbox(cfg, log)
	if err != nil {
		return err
	}
	defer closeOutbox()

	api := client.New(cfg.Outbox.APIURL, client.WithToken(cfg.Outbox.Token))
	return submitAttempt(ctx, app.NewSubmitter(api, outbox, log, 1), userID, in, out)
}

func submitAttempt(ctx context.Context, submitter *app.Submitter, userID string, in io.Reader, out io.Writer) error {
	var attempt domain.QuizAttempt
	if err := json.NewDecoder(in).Decode(&attempt); err != nil {
		return fmt.Errorf("decode attempt: %w", err)
	}

	status, err := submitter.Submit(ctx, userID, attempt)
	switch status {
	case app.SubmitCommitted:
		fmt.Fprintf(out, "%s committed\n", attempt.SlotID)
		return nil
	case app.SubmitQueued:
		fmt.Fprintf(out, "%s queued, will sync later: %v\n", attempt.SlotID, err)
		return nil
	default:
		return err
	}
}
