package database

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fulldump/dbcextract/data"
	"github.com/fulldump/dbcextract/dbc"
	"github.com/fulldump/dbcextract/utils"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrClosed        = errors.New("database is closed")
)

type Config struct {
	Dir     string
	Hotfix  string
	Schemas string
	Raw     bool
	Logger  *zap.Logger
}

// Database is a directory of table files plus an optional hotfix cache.
// Tables are indexed by schema name on Load and opened on first use.
type Database struct {
	config   *Config
	logger   *zap.Logger
	registry *data.Registry

	mutex  sync.RWMutex
	status string
	files  map[string]string
	tables map[string]*dbc.Table
	hotfix *dbc.HotfixFile

	opening  singleflight.Group
	exit     chan struct{}
	stopOnce sync.Once
}

func NewDatabase(config *Config) *Database {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Database{
		config:   config,
		logger:   logger,
		registry: data.NewDefaultRegistry(),
		status:   StatusOpening,
		files:    map[string]string{},
		tables:   map[string]*dbc.Table{},
		exit:     make(chan struct{}),
	}
}

func (db *Database) GetStatus() string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.status
}

func (db *Database) setStatus(status string) {
	db.mutex.Lock()
	db.status = status
	db.mutex.Unlock()
}

func (db *Database) Registry() *data.Registry {
	return db.registry
}

func (db *Database) Load() error {

	t0 := time.Now()
	db.logger.Info("loading tables", zap.String("dir", db.config.Dir))

	if db.config.Schemas != "" {
		names, err := data.LoadSchemas(db.config.Schemas, db.registry)
		if err != nil {
			db.setStatus(StatusClosing)
			return err
		}
		db.logger.Info("schemas loaded", zap.String("file", db.config.Schemas), zap.Strings("schemas", names))
	}

	files := map[string]string{}
	err := filepath.WalkDir(db.config.Dir, func(filename string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		magic, err := dbc.ReadMagic(filename)
		if err != nil {
			return err
		}
		if !dbc.Supported(magic) {
			db.logger.Warn("skipping file", zap.String("file", filename), zap.Binary("magic", magic[:]))
			return nil
		}

		name := dbc.SchemaName(filename)
		if previous, exists := files[name]; exists {
			db.logger.Warn("duplicated table", zap.String("table", name), zap.String("file", filename), zap.String("kept", previous))
			return nil
		}
		files[name] = filename

		return nil
	})
	if err != nil {
		db.setStatus(StatusClosing)
		return fmt.Errorf("walk %s: %w", db.config.Dir, err)
	}

	var hotfix *dbc.HotfixFile
	if db.config.Hotfix != "" {
		hotfix, err = dbc.OpenHotfix(dbc.HotfixOptions{Path: db.config.Hotfix})
		if err != nil {
			db.setStatus(StatusClosing)
			return err
		}
		db.logger.Info("hotfix cache opened", zap.Stringer("hotfix", describer{hotfix.Parser()}))
	}

	db.mutex.Lock()
	if db.status == StatusClosing {
		db.mutex.Unlock()
		if hotfix != nil {
			hotfix.Close()
		}
		return ErrClosed
	}
	db.files = files
	db.hotfix = hotfix
	db.status = StatusOperating
	db.mutex.Unlock()

	db.logger.Info("tables loaded", zap.Int("tables", len(files)), zap.Duration("elapsed", time.Since(t0)))

	return nil
}

// TableNames returns the names of every table found on Load.
func (db *Database) TableNames() []string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return utils.GetKeys(db.files)
}

// Table returns the open table called name, opening it when needed.
// Concurrent calls for the same table share one open.
func (db *Database) Table(name string) (*dbc.Table, error) {

	db.mutex.RLock()
	status := db.status
	t, open := db.tables[name]
	filename, exists := db.files[name]
	db.mutex.RUnlock()

	if status == StatusClosing {
		return nil, ErrClosed
	}
	if open {
		return t, nil
	}
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrTableNotFound, name)
	}

	v, err, _ := db.opening.Do(name, func() (interface{}, error) {
		db.mutex.RLock()
		t, open := db.tables[name]
		db.mutex.RUnlock()
		if open {
			return t, nil
		}

		t0 := time.Now()
		t, err := dbc.Open(filename,
			dbc.WithLogger(db.logger),
			dbc.WithRegistry(db.registry),
			dbc.WithRaw(db.config.Raw),
		)
		if err != nil {
			return nil, err
		}
		db.logger.Debug("table opened", zap.Stringer("table", t), zap.Duration("elapsed", time.Since(t0)))

		db.mutex.Lock()
		defer db.mutex.Unlock()

		// Stop may have run while the file was being parsed
		if db.status == StatusClosing {
			t.Close()
			return nil, ErrClosed
		}
		db.tables[name] = t

		return t, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*dbc.Table), nil
}

// Hotfix returns the hotfix cache or nil when none is configured.
func (db *Database) Hotfix() *dbc.HotfixFile {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.hotfix
}

func (db *Database) Start() error {

	go func() {
		err := db.Load()
		if err != nil {
			db.logger.Error("load database", zap.Error(err))
		}
	}()

	<-db.exit

	return nil
}

func (db *Database) Stop() error {

	defer db.stopOnce.Do(func() {
		close(db.exit)
	})

	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.status = StatusClosing

	var lastErr error
	for name, t := range db.tables {
		db.logger.Debug("closing table", zap.String("table", name))
		err := t.Close()
		if err != nil {
			db.logger.Error("close table", zap.String("table", name), zap.Error(err))
			lastErr = err
		}
	}
	db.tables = map[string]*dbc.Table{}
	db.files = map[string]string{}

	if db.hotfix != nil {
		err := db.hotfix.Close()
		if err != nil {
			lastErr = err
		}
		db.hotfix = nil
	}

	return lastErr
}

type describer struct {
	v interface{}
}

func (d describer) String() string {
	if s, ok := d.v.(interface{ Describe() string }); ok {
		return s.Describe()
	}
	return fmt.Sprintf("%T", d.v)
}
