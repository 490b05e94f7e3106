package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/streambinder/spotitag/config"
	"github.com/streambinder/spotitag/entity"
	"github.com/streambinder/spotitag/entity/id3"
	"github.com/streambinder/spotitag/entity/index"
	"github.com/streambinder/spotitag/logging"
	"github.com/streambinder/spotitag/tagger"
	"github.com/streambinder/spotitag/util"
	"github.com/streambinder/spotitag/util/anchor"
)

var (
	settings = config.DefaultSettings()
	logger   = logging.NewNop()
	tui      = anchor.New(anchor.Cyan)
	codecs   = tagger.Codecs{".mp3": id3.New()}
	cmdRoot  = &cobra.Command{
		Use:   "spotitag",
		Short: "Identify local audio files against the Spotify catalog and tag them",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			path := util.ErrWrap("")(cmd.Flags().GetString("config"))
			if path == "" {
				if path, err = config.Path(); err != nil {
					return err
				}
			}
			if settings, err = config.Load(path); err != nil {
				return err
			}
			if level := util.ErrWrap("")(cmd.Flags().GetString("log-level")); level != "" {
				settings.LogLevel = level
			}
			if err = settings.Validate(); err != nil {
				return err
			}
			if logger, err = logging.New(logging.Options{Level: settings.LogLevel, Format: settings.LogFormat}); err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}
)

func init() {
	cmdRoot.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	cmdRoot.PersistentFlags().String("log-level", "", "Logging level (debug, info, warn, error)")
}

func Execute() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// notifier forwards file status messages to the terminal
type notifier struct {
	window *anchor.Window
}

func (notifier notifier) Notify(file *entity.File, message string) {
	notifier.window.Printf("%s: %s", filepath.Base(file.Path()), message)
}

// collect expands directories into the supported files they contain
func collect(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		found, err := index.Build(path, codecs.Supports)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	for position, path := range files {
		if absPath, err := filepath.Abs(path); err == nil {
			files[position] = absPath
		}
	}
	return files, nil
}
