// Command registry-server is the composition root: it wires the Catalog,
// BlobStore, Index, AuthPlane, DepsResolver and DocOrchestrator together
// behind the Application façade and serves httpapi.HTTP, following the
// teacher's cmd/libvulnhttp/main.go composition style (goconfig
// environment parsing, a zerolog.ConsoleWriter logger handed to zlog).
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/crgimenes/goconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quay/zlog"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/cratery/registry/advisory"
	"github.com/cratery/registry/app"
	"github.com/cratery/registry/auth"
	"github.com/cratery/registry/blobstore"
	"github.com/cratery/registry/blobstore/fs"
	"github.com/cratery/registry/blobstore/s3"
	"github.com/cratery/registry/catalog"
	"github.com/cratery/registry/catalog/postgres"
	"github.com/cratery/registry/deps"
	"github.com/cratery/registry/docgen"
	"github.com/cratery/registry/email"
	"github.com/cratery/registry/httpapi"
	"github.com/cratery/registry/index"
	"github.com/cratery/registry/sigterm"
)

// Config is this process's full environment-variable surface, per spec §6.
// One struct, goconfig.Parse'd exactly as the teacher's libvulnhttp Config
// is.
type Config struct {
	HTTPListenAddr string `cfgDefault:"0.0.0.0:8080" cfg:"HTTP_LISTEN_ADDR"`
	Domain         string `cfgDefault:"localhost" cfg:"DOMAIN" cfgHelper:"public hostname, used for cookie scoping and WWW-Authenticate realm"`
	LogLevel       string `cfgDefault:"info" cfg:"LOG_LEVEL" cfgHelper:"Log levels: debug, info, warning, error, fatal, panic"`

	ConnString string `cfgDefault:"host=localhost port=5432 user=cratery dbname=cratery sslmode=disable" cfg:"DB_CONNECTION_STRING"`

	Storage         string `cfgDefault:"fs" cfg:"STORAGE" cfgHelper:"blob backend: fs or s3"`
	StorageFSRoot   string `cfgDefault:"./data/blobs" cfg:"STORAGE_FS_ROOT"`
	S3Endpoint      string `cfg:"S3_ENDPOINT"`
	S3AccessKeyID   string `cfg:"S3_ACCESS_KEY_ID"`
	S3SecretKey     string `cfg:"S3_SECRET_ACCESS_KEY"`
	S3Bucket        string `cfg:"S3_BUCKET"`
	S3UseSSL        bool   `cfgDefault:"true" cfg:"S3_USE_SSL"`

	IndexRoot           string `cfgDefault:"./data/index" cfg:"INDEX_ROOT"`
	IndexRemoteOrigin   string `cfg:"INDEX_REMOTE_ORIGIN"`
	IndexPushChanges    bool   `cfgDefault:"false" cfg:"INDEX_PUSH_CHANGES"`
	IndexUserName       string `cfgDefault:"cratery" cfg:"INDEX_GIT_USER_NAME"`
	IndexUserEmail      string `cfgDefault:"cratery@localhost" cfg:"INDEX_GIT_USER_EMAIL"`
	IndexDownloadURL    string `cfgDefault:"http://localhost:8080/api/v1/crates/{crate}/{version}/download" cfg:"INDEX_DOWNLOAD_URL"`
	IndexAPIURL         string `cfgDefault:"http://localhost:8080" cfg:"INDEX_API_URL"`
	IndexAuthRequired   bool   `cfgDefault:"true" cfg:"INDEX_AUTH_REQUIRED"`
	IndexGitProtocol    bool   `cfgDefault:"true" cfg:"INDEX_GIT_PROTOCOL"`
	IndexSparseProtocol bool   `cfgDefault:"true" cfg:"INDEX_SPARSE_PROTOCOL"`

	SelfLogin  string `cfg:"SELF_LOGIN" cfgHelper:"self-service credential login, checked before the catalog"`
	SelfSecret string `cfg:"SELF_SECRET"`
	CookieKey  string `cfg:"COOKIE_SECRET" cfgHelper:"32-byte session-cookie sealing key"`

	OAuthClientID     string `cfg:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `cfg:"OAUTH_CLIENT_SECRET"`
	OAuthAuthURL      string `cfg:"OAUTH_AUTH_URL"`
	OAuthTokenURL     string `cfg:"OAUTH_TOKEN_URL"`
	OAuthRedirectURL  string `cfg:"OAUTH_REDIRECT_URL"`
	OAuthUserinfoURI  string `cfg:"OAUTH_USERINFO_URI"`
	OAuthEmailPath    string `cfgDefault:"email" cfg:"OAUTH_USERINFO_EMAIL_PATH"`
	OAuthNamePath     string `cfgDefault:"name" cfg:"OAUTH_USERINFO_NAME_PATH"`

	AdvisoryRoot        string        `cfgDefault:"./data/advisory-db" cfg:"ADVISORY_DB_ROOT"`
	AdvisoryRemoteURL   string        `cfgDefault:"https://github.com/rustsec/advisory-db" cfg:"ADVISORY_DB_REMOTE"`
	AdvisoryBranch      string        `cfgDefault:"main" cfg:"ADVISORY_DB_BRANCH"`
	AdvisoryStalePeriod time.Duration `cfgDefault:"1h" cfg:"ADVISORY_DB_STALE_PERIOD"`

	DepsStale        time.Duration `cfgDefault:"1h" cfg:"DEPS_CACHE_STALE"`
	DepsStaleMinutes int           `cfgDefault:"60" cfg:"DEPS_SWEEP_STALE_MINUTES"`

	SMTPAddr     string `cfg:"SMTP_ADDR"`
	SMTPFrom     string `cfg:"SMTP_FROM"`
	SMTPUsername string `cfg:"SMTP_USERNAME"`
	SMTPPassword string `cfg:"SMTP_PASSWORD"`

	ShutdownGrace time.Duration `cfgDefault:"30s" cfg:"SHUTDOWN_GRACE"`
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().Caller().
		Logger()

	conf := Config{}
	if err := goconfig.Parse(&conf); err != nil {
		log.Fatal().Msgf("failed to parse config: %v", err)
	}
	log = log.Level(logLevel(conf))
	zlog.Set(&log)

	waiter := sigterm.New(context.Background())
	defer waiter.Release()
	ctx := waiter.Ctx

	cat, err := postgres.NewStore(ctx, conf.ConnString, "registry-server")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open catalog store")
	}
	defer cat.Close()

	blobs, err := openBlobStore(conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open blob store")
	}

	catalogIsEmpty, err := isCatalogEmpty(ctx, cat)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to inspect catalog")
	}
	idx, err := index.Open(ctx, index.Config{
		Root:           conf.IndexRoot,
		RemoteOrigin:   conf.IndexRemoteOrigin,
		PushChanges:    conf.IndexPushChanges,
		UserName:       conf.IndexUserName,
		UserEmail:      conf.IndexUserEmail,
		DownloadURL:    conf.IndexDownloadURL,
		APIURL:         conf.IndexAPIURL,
		AuthRequired:   conf.IndexAuthRequired,
		GitProtocol:    conf.IndexGitProtocol,
		SparseProtocol: conf.IndexSparseProtocol,
	}, catalogIsEmpty)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open index")
	}

	if err := reconcileIndex(ctx, cat, idx); err != nil {
		log.Error().Err(err).Msg("index reconciliation failed")
	}

	var cookieKey [32]byte
	copy(cookieKey[:], conf.CookieKey)
	authPlane := auth.NewPlane(cat, auth.SelfCredential{Login: conf.SelfLogin, Secret: conf.SelfSecret}, cookieKey, conf.Domain)

	oauthCfg := auth.OAuthConfig{
		Config: oauth2.Config{
			ClientID:     conf.OAuthClientID,
			ClientSecret: conf.OAuthClientSecret,
			RedirectURL:  conf.OAuthRedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  conf.OAuthAuthURL,
				TokenURL: conf.OAuthTokenURL,
			},
			Scopes: []string{"openid", "email", "profile"},
		},
		UserinfoURI:       conf.OAuthUserinfoURI,
		UserinfoPathEmail: conf.OAuthEmailPath,
		UserinfoPathName:  conf.OAuthNamePath,
	}

	advisories := advisory.New(advisory.Config{
		Root:        conf.AdvisoryRoot,
		RemoteURL:   conf.AdvisoryRemoteURL,
		Branch:      conf.AdvisoryBranch,
		StalePeriod: conf.AdvisoryStalePeriod,
	})
	if err := advisories.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("initial advisory database refresh failed, continuing with an empty set")
	}

	resolver := deps.New(idx, nil, advisories, conf.DepsStale)
	notifier := email.New(email.Config{
		Addr:     conf.SMTPAddr,
		From:     conf.SMTPFrom,
		Username: conf.SMTPUsername,
		Password: conf.SMTPPassword,
	})
	sweeper := deps.NewSweeper(cat, resolver, notifier, conf.DepsStaleMinutes)
	go sweeper.Run(ctx)

	orch := docgen.New(cat, nil)
	if err := orch.RecoverMissingDocs(ctx, "x86_64-unknown-linux-gnu"); err != nil {
		log.Error().Err(err).Msg("doc-recovery sweep at startup failed")
	}
	go orch.Run(ctx)

	application := app.New(cat, blobs, idx, authPlane, oauthCfg, resolver, orch)
	h := httpapi.NewHandler(application, idx, orch, conf.Domain)
	h.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:        conf.HTTPListenAddr,
		Handler:     h,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown did not complete cleanly")
		}
	}()

	log.Info().Str("addr", conf.HTTPListenAddr).Msg("starting registry-server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server exited")
	}
}

func openBlobStore(conf Config) (blobstore.Store, error) {
	switch strings.ToLower(conf.Storage) {
	case "s3":
		return s3.New(s3.Config{
			Endpoint:        conf.S3Endpoint,
			AccessKeyID:     conf.S3AccessKeyID,
			SecretAccessKey: conf.S3SecretKey,
			Bucket:          conf.S3Bucket,
			UseSSL:          conf.S3UseSSL,
		})
	default:
		return fs.New(conf.StorageFSRoot), nil
	}
}

// reconcileIndex runs the startup check resolving DESIGN.md's Open
// Question #1: enumerate what the index actually has committed, then ask
// the catalog to flag any published, non-yanked row missing from that set.
func reconcileIndex(ctx context.Context, cat *postgres.Store, idx *index.Index) error {
	present := make(map[string]bool)
	if err := idx.Enumerate(func(name, version string) bool {
		present[name+"@"+version] = true
		return true
	}); err != nil {
		return err
	}
	return cat.ReconcileIndex(ctx, func(pkg, version string) bool {
		return present[pkg+"@"+version]
	})
}

// isCatalogEmpty tells index.Open whether it is safe to fall back to git
// init on a failed clone: a non-empty catalog with no index working copy
// is a misconfiguration, not a fresh install.
func isCatalogEmpty(ctx context.Context, cat catalog.Catalog) (bool, error) {
	pkgs, err := cat.Search(ctx, "", 1, true)
	if err != nil {
		return false, err
	}
	return len(pkgs) == 0, nil
}

func logLevel(conf Config) zerolog.Level {
	if l, err := zerolog.ParseLevel(strings.ToLower(conf.LogLevel)); err == nil {
		return l
	}
	return zerolog.InfoLevel
}
