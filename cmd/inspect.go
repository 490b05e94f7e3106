package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/arunsworld/nursery"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/streambinder/spotitag/entity"
	"github.com/streambinder/spotitag/tagger"
	"github.com/streambinder/spotitag/util"
)

type report struct {
	Path       string              `json:"path"`
	State      string              `json:"state"`
	Error      string              `json:"error,omitempty"`
	Similarity float64             `json:"similarity"`
	Fields     []string            `json:"fields"`
	Metadata   map[string][]string `json:"metadata"`
	Images     int                 `json:"images"`
}

func init() {
	cmdRoot.AddCommand(cmdInspect())
}

func cmdInspect() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "inspect <path>...",
		Short:        "Load and print local files metadata",
		SilenceUsage: true,
		Args:         cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				asJSON   = util.ErrWrap(false)(cmd.Flags().GetBool("json"))
				internal = util.ErrWrap(false)(cmd.Flags().GetBool("internal"))
			)
			paths, err := collect(args)
			if err != nil {
				return err
			}

			var (
				ctx, cancel = context.WithCancel(cmd.Context())
				session     = tagger.New(tagger.Options{Codecs: codecs, Logger: logger})
				files       []*entity.File
			)
			defer cancel()
			if err := nursery.RunConcurrentlyWithContext(ctx,
				func(ctx context.Context, ch chan error) {
					if err := session.Run(ctx); err != nil {
						ch <- err
					}
				},
				func(ctx context.Context, ch chan error) {
					defer cancel()
					if files, err = session.AddFiles(ctx, paths, nil); err != nil {
						ch <- err
						return
					}
					if err := session.Wait(ctx); err != nil {
						ch <- err
					}
				},
			); err != nil {
				return err
			}

			reports := make([]report, 0, len(files))
			for _, file := range files {
				reports = append(reports, reportOf(file, internal))
			}
			if asJSON {
				encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(reports, "", "  ")
				if err != nil {
					return err
				}
				return util.ErrOnly(fmt.Fprintln(os.Stdout, string(encoded)))
			}
			for _, report := range reports {
				printReport(report)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print metadata as JSON")
	cmd.Flags().BoolP("internal", "i", false, "Include computed fields")
	return cmd
}

func reportOf(file *entity.File, internal bool) report {
	var (
		metadata = file.Metadata()
		report   = report{
			Path:       file.Path(),
			State:      file.State().String(),
			Error:      file.Error(),
			Similarity: file.Similarity(),
			Metadata:   make(map[string][]string),
			Images:     len(metadata.Images),
		}
	)
	for _, field := range metadata.Keys() {
		if entity.IsInternal(field) && !internal {
			continue
		}
		report.Fields = append(report.Fields, field)
		report.Metadata[field] = metadata.GetAll(field)
	}
	return report
}

func printReport(report report) {
	tui.Printf("%s [%s]", report.Path, report.State)
	if report.Error != "" {
		tui.Printf("  error: %s", report.Error)
		return
	}
	for _, field := range report.Fields {
		tui.Printf("  %-20s %s", field, strings.Join(report.Metadata[field], "; "))
	}
	if report.Images > 0 {
		tui.Printf("  %-20s %d", "images", report.Images)
	}
}
