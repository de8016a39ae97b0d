package platform

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/jefe-johann/grab-otp/internal/clipboard"
	"github.com/jefe-johann/grab-otp/internal/config"
	"github.com/jefe-johann/grab-otp/internal/gmail"
	"github.com/jefe-johann/grab-otp/internal/logger"
	"github.com/jefe-johann/grab-otp/internal/store"
	"github.com/jefe-johann/grab-otp/internal/tabs"

	"go.uber.org/zap"
)

// DBFile is the local database name inside the config directory.
const DBFile = "grabotp.db"

// Desktop is the host adapter for a local machine: sqlite storage, OAuth
// through the system browser, an in-process tab host and the system
// clipboard.
type Desktop struct {
	Store *store.SQLiteStore
	Host  *tabs.Host
	OAuth *gmail.OAuthIdentity
}

// OpenStore opens the local database in configDir.
func OpenStore(configDir string) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(filepath.Join(configDir, DBFile))
}

// NewDesktop opens the desktop adapters. term receives OSC 52 sequences when
// no clipboard tool is installed.
func NewDesktop(configDir string, cfg *config.Config, term io.Writer, log *zap.Logger) (*Desktop, Capabilities, error) {
	log = logger.OrNop(log)
	st, err := OpenStore(configDir)
	if err != nil {
		return nil, Capabilities{}, fmt.Errorf("open store: %w", err)
	}
	oauth, err := gmail.NewOAuthIdentity(configDir, log.Named("oauth"))
	if err != nil {
		st.Close()
		return nil, Capabilities{}, err
	}

	var identity gmail.Identity = oauth
	if cfg.CacheToken {
		identity = gmail.NewCachingIdentity(oauth, st, cfg.TokenSafetyMargin, log.Named("identity"))
	}

	d := &Desktop{Store: st, Host: tabs.NewHost(log.Named("tabs")), OAuth: oauth}
	return d, Capabilities{
		Identity:  identity,
		Storage:   st,
		Badge:     st,
		Tabs:      d.Host,
		Clipboard: clipboard.NewSystem(term, log.Named("clipboard")),
	}, nil
}

// Close stops every tab agent and closes the database.
func (d *Desktop) Close() error {
	d.Host.CloseAll()
	return d.Store.Close()
}
