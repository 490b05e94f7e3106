package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/arunsworld/nursery"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/streambinder/spotitag/entity"
	"github.com/streambinder/spotitag/matcher"
	"github.com/streambinder/spotitag/naming"
	"github.com/streambinder/spotitag/spotify"
	"github.com/streambinder/spotitag/tagger"
	"github.com/streambinder/spotitag/util"
)

type syncOptions struct {
	metadata    bool
	fingerprint bool
	save        bool
	dryRun      bool
	manual      bool
}

func init() {
	cmdRoot.AddCommand(cmdSync())
}

func cmdSync() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sync <path>...",
		Short:        "Identify local files against the catalog and tag them",
		SilenceUsage: true,
		Args:         cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				artwork = util.ErrWrap(false)(cmd.Flags().GetBool("artwork"))
				opts    = syncOptions{
					metadata:    util.ErrWrap(false)(cmd.Flags().GetBool("metadata")),
					fingerprint: util.ErrWrap(false)(cmd.Flags().GetBool("fingerprint")),
					save:        util.ErrWrap(false)(cmd.Flags().GetBool("save")),
					dryRun:      util.ErrWrap(false)(cmd.Flags().GetBool("dry-run")),
					manual:      util.ErrWrap(false)(cmd.Flags().GetBool("manual")),
				}
			)

			paths, err := collect(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return errors.New("no supported files found")
			}

			tui.Lot("auth").Printf("authenticating")
			clientOpts := []spotify.Option{spotify.WithLogger(logger)}
			if artwork {
				clientOpts = append(clientOpts, spotify.WithArtwork())
			}
			client, err := spotify.Authenticate(cmd.Context(), settings.SpotifyClientID, settings.SpotifyClientSecret, clientOpts...)
			if err != nil {
				tui.Lot("auth").Close("failed")
				return err
			}
			tui.Lot("auth").Close()

			var (
				ctx, cancel = context.WithCancel(cmd.Context())
				session     = tagger.New(tagger.Options{
					Codecs:   codecs,
					Provider: client,
					Policy:   naming.New(settings),
					Thresholds: matcher.Thresholds{
						Metadata:    settings.FileLookupThreshold,
						Fingerprint: settings.FingerprintLookupThreshold,
					},
					Logger:   logger,
					Notifier: notifier{tui},
				})
			)
			defer cancel()
			if err := nursery.RunConcurrentlyWithContext(ctx,
				func(ctx context.Context, ch chan error) {
					if err := session.Run(ctx); err != nil {
						ch <- err
					}
				},
				routineSync(session, paths, opts, cancel),
			); err != nil {
				return err
			}

			summarize(session)
			return nil
		},
		PreRun: func(cmd *cobra.Command, _ []string) {
			var (
				metadata    = util.ErrWrap(false)(cmd.Flags().GetBool("metadata"))
				fingerprint = util.ErrWrap(false)(cmd.Flags().GetBool("fingerprint"))
				dryRun      = util.ErrWrap(false)(cmd.Flags().GetBool("dry-run"))
			)
			cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
				switch {
				case f.Name == "metadata" && !metadata && !fingerprint:
					util.ErrSuppress(f.Value.Set("true"))
				case f.Name == "save" && dryRun:
					util.ErrSuppress(f.Value.Set("true"))
				}
			})
		},
	}
	cmd.Flags().BoolP("metadata", "m", false, "Look files up by their tags (auto-enabled if no lookup is selected)")
	cmd.Flags().BoolP("fingerprint", "f", false, "Look files up by their recording identifier, when available")
	cmd.Flags().BoolP("save", "s", false, "Save matched files")
	cmd.Flags().BoolP("dry-run", "n", false, "Print where matched files would be saved, without touching them")
	cmd.Flags().BoolP("artwork", "a", false, "Download album artwork for matched files")
	cmd.Flags().Bool("manual", false, "Ask for confirmation before saving each file")
	return cmd
}

func routineSync(session *tagger.Tagger, paths []string, opts syncOptions, cancel context.CancelFunc) func(context.Context, chan error) {
	return func(ctx context.Context, ch chan error) {
		defer cancel()

		var loaded atomic.Int32
		files, err := session.AddFiles(ctx, paths, func(*entity.File) {
			tui.Lot("load").Printf("%d/%d files", loaded.Add(1), len(paths))
		})
		if err != nil {
			ch <- err
			return
		}
		if err := session.Wait(ctx); err != nil {
			ch <- err
			return
		}
		tui.Lot("load").Close(fmt.Sprintf("%d files", len(files)))

		tui.Lot("lookup").Printf("%d files", len(files))
		for _, file := range files {
			if err := lookup(ctx, session, file, opts); err != nil {
				tui.Printf("%s: %s", filepath.Base(file.Path()), err)
			}
		}
		if err := session.Wait(ctx); err != nil {
			ch <- err
			return
		}
		tui.Lot("lookup").Close()

		if !opts.save {
			return
		}
		for _, file := range files {
			if file.State() != entity.StateChanged {
				continue
			}
			if err := save(ctx, session, file, opts); err != nil {
				tui.Printf("%s: %s", filepath.Base(file.Path()), err)
			}
		}
		tui.Lot("save").Close()
	}
}

func lookup(ctx context.Context, session *tagger.Tagger, file *entity.File, opts syncOptions) error {
	if file.State() == entity.StateError {
		return nil
	}
	if opts.fingerprint && file.Metadata().Has(entity.TagISRC) {
		return session.LookupFingerprint(ctx, file)
	}
	if opts.metadata {
		return session.LookupMetadata(ctx, file)
	}
	return nil
}

func save(ctx context.Context, session *tagger.Tagger, file *entity.File, opts syncOptions) error {
	policy := naming.New(settings)
	target, err := policy.MakeFilename(file.Path(), file.Metadata())
	if err != nil {
		return err
	}
	if opts.dryRun {
		tui.Printf("%s ⟶ %s", file.Path(), target)
		return nil
	}
	if opts.manual {
		confirmation := tui.Reads(fmt.Sprintf("save %s as %s? (y/n)", filepath.Base(file.Path()), target))
		if !strings.EqualFold(confirmation, "y") {
			tui.Printf("skip %s", filepath.Base(file.Path()))
			return nil
		}
	}
	tui.Lot("save").Printf("%s", filepath.Base(target))
	return session.Save(ctx, file)
}

func summarize(session *tagger.Tagger) {
	var (
		index   = session.Index()
		matched int
	)
	for _, parent := range index.Parents() {
		if _, ok := index.Track(parent); ok {
			matched += len(index.Files(parent))
		}
	}
	tui.Printf("%d files: %d matched, %d changed, %d unchanged, %d failed",
		index.Size(), matched,
		index.Size(entity.StateChanged),
		index.Size(entity.StateNormal),
		index.Size(entity.StateError))
}
