package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/analytics/forecast"
	"github.com/soltixdb/ledgercast/internal/compression"
	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/ledger"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// ErrConcurrentModification is returned when another writer saved the same
// session between reading its keys and committing
var ErrConcurrentModification = errors.New("forecast session modified concurrently")

const (
	headerSuffix   = "header"
	resultsSegment = "results"
)

// EtcdStore keeps sessions in etcd under
//
//	<prefix>/<session>/header                      session without results
//	<prefix>/<session>/results/<scenario>/<date>   one forecast row
//
// Values are snappy-compressed JSON.
type EtcdStore struct {
	client    *clientv3.Client
	prefix    string
	maxTxnOps int
	codec     *compression.Codec
	owned     bool
}

// NewEtcdClient connects to the configured endpoints
func NewEtcdClient(cfg config.EtcdConfig) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return client, nil
}

// OpenEtcdStore connects a client owned by the returned store
func OpenEtcdStore(etcdCfg config.EtcdConfig, cfg config.SessionsConfig) (*EtcdStore, error) {
	client, err := NewEtcdClient(etcdCfg)
	if err != nil {
		return nil, err
	}
	s := NewEtcdStore(client, cfg.EtcdPrefix, cfg.MaxTxnOps)
	s.owned = true
	return s, nil
}

// NewEtcdStore creates a store on a caller-owned client. maxTxnOps bounds
// the operations of one save; it must not exceed the server --max-txn-ops.
func NewEtcdStore(client *clientv3.Client, prefix string, maxTxnOps int) *EtcdStore {
	if prefix == "" {
		prefix = "/ledgercast/sessions"
	}
	if maxTxnOps <= 0 {
		maxTxnOps = 128
	}
	return &EtcdStore{
		client:    client,
		prefix:    strings.TrimSuffix(prefix, "/"),
		maxTxnOps: maxTxnOps,
		codec:     compression.SnappyCodec(),
	}
}

func (s *EtcdStore) sessionPrefix(id string) string {
	return path.Join(s.prefix, id) + "/"
}

func (s *EtcdStore) headerKey(id string) string {
	return s.sessionPrefix(id) + headerSuffix
}

func (s *EtcdStore) scenarioPrefix(sessionID, scenarioID string) string {
	return s.sessionPrefix(sessionID) + resultsSegment + "/" + url.PathEscape(scenarioID) + "/"
}

func (s *EtcdStore) resultKey(row ResultRow) string {
	return s.scenarioPrefix(row.SessionID, row.ScenarioID) + formatDate(row.Date)
}

// Save implements Store
func (s *EtcdStore) Save(ctx context.Context, sess *Session) error {
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	header := *sess
	header.Results = nil
	headerData, err := s.codec.Marshal(&header)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	headerKey := s.headerKey(sess.ID)
	ops := []clientv3.Op{clientv3.OpPut(headerKey, string(headerData))}
	keep := map[string]bool{headerKey: true}
	for _, row := range sess.ResultRows() {
		data, err := s.codec.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode result %s/%s: %w", row.ScenarioID, formatDate(row.Date), err)
		}
		key := s.resultKey(row)
		ops = append(ops, clientv3.OpPut(key, string(data)))
		keep[key] = true
	}

	existing, err := s.client.Get(ctx, s.sessionPrefix(sess.ID), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return fmt.Errorf("failed to read session %s from etcd: %w", sess.ID, err)
	}
	var headerRev int64
	for _, kv := range existing.Kvs {
		key := string(kv.Key)
		if key == headerKey {
			headerRev = kv.ModRevision
		}
		if !keep[key] {
			ops = append(ops, clientv3.OpDelete(key))
		}
	}

	if len(ops) > s.maxTxnOps {
		return fmt.Errorf("session %s needs %d etcd operations, above the limit of %d", sess.ID, len(ops), s.maxTxnOps)
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(headerKey), "=", headerRev)).
		Then(ops...).
		Commit()
	if err != nil {
		return fmt.Errorf("failed to store session %s in etcd: %w", sess.ID, err)
	}
	if !resp.Succeeded {
		return fmt.Errorf("%w: %s", ErrConcurrentModification, sess.ID)
	}
	return nil
}

// GetByID implements Store
func (s *EtcdStore) GetByID(ctx context.Context, id string) (*Session, error) {
	resp, err := s.client.Get(ctx, s.sessionPrefix(id), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to get session from etcd: %w", err)
	}
	group := make([]*kv, len(resp.Kvs))
	for i, item := range resp.Kvs {
		group[i] = &kv{key: string(item.Key), value: item.Value}
	}
	sess, err := s.assembleKVs(id, group)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// ListAll implements Store
func (s *EtcdStore) ListAll(ctx context.Context) ([]*Session, error) {
	return s.list(ctx, func(*Session) bool { return true })
}

// ListByDataSource implements Store
func (s *EtcdStore) ListByDataSource(ctx context.Context, source ledger.DataSource) ([]*Session, error) {
	return s.list(ctx, func(sess *Session) bool { return sess.DataSource == source })
}

func (s *EtcdStore) list(ctx context.Context, keep func(*Session) bool) ([]*Session, error) {
	resp, err := s.client.Get(ctx, s.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions from etcd: %w", err)
	}

	// keys arrive sorted, so each session's keys are contiguous
	var (
		sessions []*Session
		group    []*kv
		current  string
	)
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		sess, err := s.assembleKVs(current, group)
		if err != nil {
			return err
		}
		if sess != nil && keep(sess) {
			sessions = append(sessions, sess)
		}
		group = group[:0]
		return nil
	}

	for _, item := range resp.Kvs {
		rel := strings.TrimPrefix(string(item.Key), s.prefix+"/")
		id, _, ok := strings.Cut(rel, "/")
		if !ok {
			continue
		}
		if id != current {
			if err := flush(); err != nil {
				return nil, err
			}
			current = id
		}
		group = append(group, &kv{key: string(item.Key), value: item.Value})
	}
	if err := flush(); err != nil {
		return nil, err
	}

	sortSessions(sessions)
	return sessions, nil
}

// Delete implements Store
func (s *EtcdStore) Delete(ctx context.Context, id string) error {
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Version(s.headerKey(id)), ">", 0)).
		Then(clientv3.OpDelete(s.sessionPrefix(id), clientv3.WithPrefix())).
		Commit()
	if err != nil {
		return fmt.Errorf("failed to delete session from etcd: %w", err)
	}
	if !resp.Succeeded {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// QueryResults implements Store. A single scenario is served by a key range
// over its dates.
func (s *EtcdStore) QueryResults(ctx context.Context, sessionID, scenarioID string, r analytics.DateRange) ([]ResultRow, error) {
	if scenarioID == "" {
		sess, err := s.GetByID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return filterRows(sess.ResultRows(), "", r), nil
	}

	head, err := s.client.Get(ctx, s.headerKey(sessionID), clientv3.WithCountOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to get session from etcd: %w", err)
	}
	if head.Count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	base := s.scenarioPrefix(sessionID, scenarioID)
	resp, err := s.client.Get(ctx, base+formatDate(r.From), clientv3.WithRange(base+formatDate(r.To)+"\x00"))
	if err != nil {
		return nil, fmt.Errorf("failed to query results from etcd: %w", err)
	}

	rows := make([]ResultRow, 0, len(resp.Kvs))
	for _, item := range resp.Kvs {
		var row ResultRow
		if err := s.codec.Unmarshal(item.Value, &row); err != nil {
			return nil, fmt.Errorf("decode %s: %w", item.Key, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close closes the client when the store created it
func (s *EtcdStore) Close() error {
	if s.owned && s.client != nil {
		return s.client.Close()
	}
	return nil
}

type kv struct {
	key   string
	value []byte
}

// assembleKVs rebuilds a session from its keys; nil when the header is missing
func (s *EtcdStore) assembleKVs(id string, group []*kv) (*Session, error) {
	headerKey := s.headerKey(id)

	var (
		sess *Session
		rows []ResultRow
	)
	for _, item := range group {
		if item.key == headerKey {
			var header Session
			if err := s.codec.Unmarshal(item.value, &header); err != nil {
				return nil, fmt.Errorf("decode session %s: %w", id, err)
			}
			sess = &header
			continue
		}
		var row ResultRow
		if err := s.codec.Unmarshal(item.value, &row); err != nil {
			return nil, fmt.Errorf("decode %s: %w", item.key, err)
		}
		rows = append(rows, row)
	}
	if sess == nil {
		return nil, nil
	}

	sess.Results = make(map[string][]forecast.Result)
	for _, row := range rows {
		sess.Results[row.ScenarioID] = append(sess.Results[row.ScenarioID], row.Result)
	}
	sess.ensureResultEntries()
	return sess, nil
}
