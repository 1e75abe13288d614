package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Annany2002/odkx-manager/config"
	"github.com/Annany2002/odkx-manager/internal/auth"
	"github.com/Annany2002/odkx-manager/internal/core"
	"github.com/Annany2002/odkx-manager/internal/credentials"
	"github.com/Annany2002/odkx-manager/internal/domain"
	"github.com/Annany2002/odkx-manager/internal/logger"
	"github.com/Annany2002/odkx-manager/internal/session"
	"github.com/Annany2002/odkx-manager/internal/storage"
)

// ErrTableNotFound is returned when a table id is not listed by the active app.
var ErrTableNotFound = errors.New("table not found")

type globalFlags struct {
	server   string
	user     string
	password string
	proxy    string
	app      string
	remember bool
	verbose  bool
}

// runtime holds what the commands of one invocation share. The credential database and the
// session are opened on first use.
type runtime struct {
	cfg     *config.Config
	streams IOStreams
	store   credentials.Store
	opts    Options
	flags   globalFlags
	now     func() time.Time

	db      *sql.DB
	manager *session.Manager
	log     *logrus.Logger
}

func newRuntime(opts Options) *runtime {
	rt := &runtime{cfg: opts.Config, streams: opts.Streams, store: opts.Store, opts: opts, now: opts.Now}
	if rt.cfg == nil {
		rt.cfg = &config.Config{
			FetchLimit:        config.DefaultFetchLimit,
			CredentialsDbDir:  config.DefaultCredentialsDbDir,
			CredentialsDbFile: config.DefaultCredentialsDbFile,
		}
	}
	std := OSStreams()
	if rt.streams.In == nil {
		rt.streams.In = std.In
	}
	if rt.streams.Out == nil {
		rt.streams.Out = std.Out
	}
	if rt.streams.ErrOut == nil {
		rt.streams.ErrOut = std.ErrOut
	}
	if rt.now == nil {
		rt.now = time.Now
	}
	return rt
}

// session returns the Manager without contacting the server.
func (rt *runtime) session() (*session.Manager, error) {
	if rt.manager != nil {
		return rt.manager, nil
	}

	rt.log = logger.NewLogger()
	rt.log.SetOutput(rt.streams.ErrOut)
	if !rt.flags.verbose && rt.log.GetLevel() > logrus.WarnLevel {
		rt.log.SetLevel(logrus.WarnLevel)
	}

	persistent := rt.store
	if persistent == nil {
		db, err := storage.ConnectCredentialsDB(rt.cfg)
		if err != nil {
			return nil, err
		}
		rt.db = db
		var sealer *auth.Sealer
		switch {
		case rt.cfg.CredentialsSecret != "":
			if sealer, err = auth.NewSealer(rt.cfg.CredentialsSecret); err != nil {
				return nil, err
			}
		case rt.flags.remember:
			rt.log.Warnln("CREDENTIALS_SECRET is not set; remembered tokens are stored unsealed")
		}
		persistent = credentials.NewSQLiteStore(db, sealer)
	}

	// FETCH_LIMIT is a default; a limit saved with the fetch-limit command wins
	sessionStore := credentials.NewMemoryStore()
	if core.ValidateFetchLimit(rt.cfg.FetchLimit) == nil {
		_ = sessionStore.Set(context.Background(), credentials.KeyFetchLimit, strconv.Itoa(rt.cfg.FetchLimit))
	}

	rt.manager = session.NewManager(credentials.NewVault(persistent, sessionStore), session.Options{
		ProxyURL: rt.flags.proxy,
		HTTP:     rt.opts.HTTP,
		Logger:   rt.log,
	})
	return rt.manager, nil
}

// connect logs in with the flag credentials when all of them are given, otherwise resumes the
// remembered login, then selects the --app app.
func (rt *runtime) connect(ctx context.Context) (*session.Manager, error) {
	m, err := rt.session()
	if err != nil {
		return nil, err
	}

	if rt.flags.server != "" && rt.flags.user != "" && rt.flags.password != "" {
		err = m.Connect(ctx, session.Login{
			ServerURL: rt.flags.server,
			Username:  rt.flags.user,
			Password:  rt.flags.password,
		}, rt.flags.remember)
	} else {
		err = m.Resume(ctx)
		if errors.Is(err, session.ErrNotConnected) {
			return nil, fmt.Errorf("%w: run '%s connect --remember' or pass --server, --user and --password", err, CLIName)
		}
	}
	if err != nil {
		return nil, err
	}

	if rt.flags.app != "" && rt.flags.app != m.AppID.Get() {
		found := false
		for _, id := range m.AppIDs.Get() {
			found = found || id == rt.flags.app
		}
		if !found {
			return nil, fmt.Errorf("app '%s' not found, available: %s", rt.flags.app, strings.Join(m.AppIDs.Get(), ", "))
		}
		if err := m.SetActiveAppID(ctx, rt.flags.app); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// selectTable makes tableID the active table of m.
func (rt *runtime) selectTable(ctx context.Context, m *session.Manager, tableID string) (*domain.TableMeta, error) {
	for _, t := range m.Tables.Get() {
		if t.TableID != tableID {
			continue
		}
		table := t
		if err := m.SetActiveTable(ctx, &table); err != nil {
			return nil, err
		}
		return m.ActiveTable.Get(), nil
	}
	return nil, fmt.Errorf("%w: '%s' in app '%s'", ErrTableNotFound, tableID, m.AppID.Get())
}

func (rt *runtime) close() {
	if rt.db == nil {
		return
	}
	if err := rt.db.Close(); err != nil && rt.log != nil {
		rt.log.Warnf("CLI: failed to close credentials db: %v", err)
	}
	rt.db = nil
}
