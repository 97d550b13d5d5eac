// upstreamctl manages persisted upload sessions: it lists them, resumes the
// ones that still have parts to send, uploads a file as a new session and
// purges leftovers.
//
// Usage:
//
//	upstreamctl list
//	upstreamctl upload <videoId> <file>
//	upstreamctl resume <sessionId>
//	upstreamctl purge <sessionId>
//	upstreamctl purge-all
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/apivideo/go-upstream/internal/adapters/store/bolt"
	"github.com/apivideo/go-upstream/internal/adapters/store/file"
	"github.com/apivideo/go-upstream/internal/adapters/uploader/minio"
	"github.com/apivideo/go-upstream/internal/config"
	"github.com/apivideo/go-upstream/internal/core/port"
	"github.com/apivideo/go-upstream/internal/core/service/registry"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := initStore(cfg.Store)
	if err != nil {
		logger.Error("failed to init session store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	client, err := minio.NewClient(ctx, cfg.Minio, logger)
	if err != nil {
		logger.Error("failed to init upload client", "error", err)
		os.Exit(1)
	}

	reg, err := registry.New(store, client, cfg.Upstream, registry.Options{
		Logger: logger,
		PartListener: port.PartListener{
			OnPartError: func(sessionID string, partIndex int, err error) {
				logger.Error("part upload failed", "session", sessionID, "part", partIndex, "error", err)
			},
		},
	})
	if err != nil {
		logger.Error("failed to init registry", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, reg, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, reg *registry.Registry, logger *slog.Logger, command string, args []string) error {
	switch command {
	case "list":
		return list(ctx, reg)
	case "upload":
		if len(args) != 2 {
			usage()
			return fmt.Errorf("upload expects <videoId> <file>")
		}
		return upload(ctx, reg, logger, args[0], args[1])
	case "resume":
		if len(args) != 1 {
			usage()
			return fmt.Errorf("resume expects <sessionId>")
		}
		return resume(ctx, reg, logger, args[0])
	case "purge":
		if len(args) != 1 {
			usage()
			return fmt.Errorf("purge expects <sessionId>")
		}
		return reg.Delete(ctx, args[0])
	case "purge-all":
		return reg.DeleteAll(ctx)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func list(ctx context.Context, reg *registry.Registry) error {
	ids, err := reg.SessionIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		videoID, err := reg.VideoIDOf(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", id, videoID)
	}
	return nil
}

func upload(ctx context.Context, reg *registry.Registry, logger *slog.Logger, videoID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sess, err := reg.ForVideoID(ctx, videoID)
	if err != nil {
		return err
	}

	w, err := reg.OpenStream(sess)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	sess.Wait()
	logger.Info("upload finished",
		"session", sess.ID(),
		"state", string(sess.State()),
		"succeeded", sess.PartsSucceeded(),
		"failed", sess.PartsFailed())
	return nil
}

func resume(ctx context.Context, reg *registry.Registry, logger *slog.Logger, sessionID string) error {
	sess, err := reg.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	sess.Wait()
	logger.Info("resume finished",
		"session", sess.ID(),
		"state", string(sess.State()),
		"succeeded", sess.PartsSucceeded(),
		"failed", sess.PartsFailed())
	return nil
}

func initStore(cfg config.StoreConfig) (port.SessionStore, func(), error) {
	switch cfg.Backend {
	case "bolt":
		store, err := bolt.New(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "file", "":
		store, err := file.New(cfg.FileRoot)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: upstreamctl <list|upload|resume|purge|purge-all> [args]")
}
