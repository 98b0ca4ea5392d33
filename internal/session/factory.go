package session

import (
	"fmt"

	"github.com/soltixdb/ledgercast/internal/config"
)

// New creates the store selected by cfg.Backend
func New(cfg config.SessionsConfig, etcdCfg config.EtcdConfig) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(), nil
	case "sqlite":
		store, err := OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "etcd":
		store, err := OpenEtcdStore(etcdCfg, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Backend)
	}
}
