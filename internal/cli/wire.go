package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophchat/internal/account"
	"github.com/dmitrijs2005/gophchat/internal/backend"
	"github.com/dmitrijs2005/gophchat/internal/backend/firestore"
	"github.com/dmitrijs2005/gophchat/internal/backend/memory"
	"github.com/dmitrijs2005/gophchat/internal/backend/pgauth"
	"github.com/dmitrijs2005/gophchat/internal/backend/s3blob"
	"github.com/dmitrijs2005/gophchat/internal/chat"
	"github.com/dmitrijs2005/gophchat/internal/config"
	"github.com/dmitrijs2005/gophchat/internal/filex"
	"github.com/dmitrijs2005/gophchat/internal/localstore"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/posts"
	"github.com/dmitrijs2005/gophchat/internal/profile"
	"github.com/dmitrijs2005/gophchat/internal/session"
)

type backends struct {
	auth    backend.Authenticator
	docs    backend.DocumentStore
	blobs   backend.BlobStore
	closers []func() error
}

// NewApp opens local storage and the configured backend, builds the
// services and attaches the account service to the backend auth state.
func NewApp(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, logger logging.Logger) (*App, error) {
	path, err := filex.EnsureParentDir(cfg.LocalDBPath)
	if err != nil {
		return nil, fmt.Errorf("preparing local store: %w", err)
	}

	db, err := localstore.Open(ctx, path)
	if err != nil {
		logger.Error(ctx, "error initializing local store", "path", path, "error", err)
		return nil, err
	}
	repo := localstore.NewSQLiteRepository(db)

	b, err := openBackends(ctx, cfg, repo, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sess := session.New(localstore.NewSlot(repo, localstore.KeyUser), logger.With("component", "session"))
	sess.Load(ctx)

	profiles := profile.NewService(b.docs, logger.With("component", "profile"))
	accounts := account.NewService(b.auth, b.blobs, profiles, sess, logger.With("component", "account"))
	stop := accounts.Start(ctx)

	resolver := chat.NewResolver(b.docs, logger.With("component", "resolver"))

	app := newApp(Services{
		Accounts: accounts,
		Profiles: profiles,
		Session:  sess,
		Public:   chat.NewPublicChat(b.docs, logger.With("component", "public-chat")),
		Private:  chat.NewPrivateChat(resolver, b.docs, logger.With("component", "private-chat")),
		Feed:     posts.NewService(b.docs, cfg.PostsPageSize, logger.With("component", "posts")),
	}, in, out, logger)

	app.closers = append([]func() error{db.Close}, b.closers...)
	app.closers = append(app.closers, func() error { stop(); return nil })
	return app, nil
}

func openBackends(ctx context.Context, cfg *config.Config, repo localstore.Repository, logger logging.Logger) (*backends, error) {
	if cfg.Backend == config.BackendMemory {
		logger.Info(ctx, "using in-memory backend, nothing is shared or kept remotely")
		return &backends{
			auth:  memory.NewAuth(),
			docs:  memory.NewDocumentStore(),
			blobs: memory.NewBlobStore(),
		}, nil
	}

	b := &backends{}
	fail := func(err error) (*backends, error) {
		for i := len(b.closers) - 1; i >= 0; i-- {
			_ = b.closers[i]()
		}
		return nil, err
	}

	docs, err := firestore.NewStore(ctx, cfg.FirestoreProject, cfg.FirestoreCredentialsFile, logger.With("component", "firestore"))
	if err != nil {
		return fail(err)
	}
	b.docs = docs
	b.closers = append(b.closers, docs.Close)

	var pg *sql.DB
	if pg, err = pgauth.Open(ctx, cfg.DatabaseDSN); err != nil {
		return fail(err)
	}
	b.closers = append(b.closers, pg.Close)

	auth := pgauth.New(
		pgauth.NewPostgresRepository(pg),
		localstore.NewSlot(repo, localstore.KeyAuthToken),
		[]byte(cfg.SecretKey),
		cfg.TokenValidity,
		logger.With("component", "auth"),
	)
	if err := auth.Restore(ctx); err != nil {
		return fail(err)
	}
	b.auth = auth

	blobs, err := s3blob.New(ctx, s3blob.Config{
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		return fail(err)
	}
	b.blobs = blobs

	return b, nil
}
