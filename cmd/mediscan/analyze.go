package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	appanalysis "github.com/bryanwahyu/mediscan/internal/application/analysis"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

func newAnalyzeCmd(g *globals) *cobra.Command {
	var (
		user string
		file string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Upload a local image and run the full analysis pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := middleware.ValidateUserID(user); err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			contentType := http.DetectContentType(data)
			if err := middleware.ValidateUpload(contentType, int64(len(data)), g.cfg.Upload.AllowedTypes, g.cfg.Upload.MaxBytes); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := buildApp(ctx, g.cfg, g.log)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.analysis.UploadAndAnalyze(ctx, appanalysis.UploadCommand{
				UserID:      user,
				FileName:    filepath.Base(file),
				ContentType: contentType,
				Data:        data,
			}, func(n appanalysis.Notice) {
				fmt.Fprintln(cmd.ErrOrStderr(), n.Message)
			})
			if err != nil {
				f := appanalysis.Classify(err)
				return fmt.Errorf("%s: %s", f.Title, f.Message)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "owner user id")
	cmd.Flags().StringVar(&file, "file", "", "path to a JPEG or PNG chest X-ray")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("file")
	return cmd
}
