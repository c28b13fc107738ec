package cli

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const settleDelay = 500 * time.Millisecond

type uploader interface {
	Put(ctx context.Context, localPath, remotePath string) (int64, error)
}

func (a *app) watchCmd() *cobra.Command {
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "watch LOCALDIR [REMOTEDIR]",
		Short: "Upload files of a local directory whenever they change",
		Long: `Watch LOCALDIR and upload every regular file that is created or
written once it has been quiet for the settle delay. Runs until interrupted.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := ""
			if len(args) > 1 {
				remote = args[1]
			}

			fi, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				return errors.New(args[0] + " is not a directory")
			}

			c, dir, err := a.dial(cmd.Context(), remote)
			if err != nil {
				return err
			}
			defer c.Close()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			if err := watcher.Add(args[0]); err != nil {
				return err
			}

			log.Infof("watching %s", args[0])

			err = watchLoop(cmd.Context(), watcher, c, dir, settle)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", settleDelay, "quiet time before a changed file is uploaded")
	return cmd
}

// watchLoop uploads changed files into remoteDir until ctx is done or the
// watcher is closed. Events for one file are coalesced until it has been
// quiet for settle.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, up uploader, remoteDir string, settle time.Duration) error {
	if settle <= 0 {
		settle = settleDelay
	}
	dirty := map[string]time.Time{}

	tick := time.NewTicker(settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			dirty[ev.Name] = time.Now()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Errorf("watcher: %v", err)

		case now := <-tick.C:
			for name, at := range dirty {
				if now.Sub(at) < settle {
					continue
				}
				delete(dirty, name)
				upload(ctx, up, name, remoteDir)
			}
		}
	}
}

func upload(ctx context.Context, up uploader, local, remoteDir string) {
	fi, err := os.Stat(local)
	if err != nil || !fi.Mode().IsRegular() {
		return
	}

	remote := path.Join(remoteDir, filepath.Base(local))

	n, err := up.Put(ctx, local, remote)
	if err != nil {
		log.Errorf("upload %s: %v", local, err)
		return
	}
	log.Infof("uploaded %s to %s (%d bytes)", local, remote, n)
}
