package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/leafnotes/internal/notes"
	"go.uber.org/zap"
)

const workspaceKeyPrefix = "leafnotes"

var (
	errMissingRemoteStore = errors.New("remote store dependency required")
	errMissingLocalCache  = errors.New("local cache dependency required")
	errMissingIDProvider  = errors.New("id provider dependency required")
)

// WorkspaceRegistryConfig describes the collaborators shared by every workspace.
type WorkspaceRegistryConfig struct {
	Remote     notes.RemoteStore
	Cache      notes.LocalCache
	IDProvider notes.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
	MaxResults int
}

// WorkspaceRegistry owns one Coordinator per principal and serializes calls into it.
type WorkspaceRegistry struct {
	cfg    WorkspaceRegistryConfig
	logger *zap.Logger

	mu         sync.Mutex
	workspaces map[notes.UserID]*workspace
}

type workspace struct {
	mu          sync.Mutex
	coordinator *notes.Coordinator
}

// NewWorkspaceRegistry validates the shared collaborators.
func NewWorkspaceRegistry(cfg WorkspaceRegistryConfig) (*WorkspaceRegistry, error) {
	if cfg.Remote == nil {
		return nil, errMissingRemoteStore
	}
	if cfg.Cache == nil {
		return nil, errMissingLocalCache
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkspaceRegistry{
		cfg:        cfg,
		logger:     logger,
		workspaces: make(map[notes.UserID]*workspace),
	}, nil
}

// With runs fn against the principal's coordinator while holding its lock.
// The first call for a principal restores the cached snapshot and then loads
// the remote notes.
func (r *WorkspaceRegistry) With(ctx context.Context, principal notes.UserID, fn func(*notes.Coordinator) error) error {
	ws := r.workspaceFor(principal)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.coordinator == nil {
		coordinator, err := r.open(ctx, principal)
		if err != nil {
			return err
		}
		ws.coordinator = coordinator
	}
	return fn(ws.coordinator)
}

func (r *WorkspaceRegistry) workspaceFor(principal notes.UserID) *workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[principal]
	if !ok {
		ws = &workspace{}
		r.workspaces[principal] = ws
	}
	return ws
}

func (r *WorkspaceRegistry) open(ctx context.Context, principal notes.UserID) (*notes.Coordinator, error) {
	coordinator, err := notes.NewCoordinator(notes.CoordinatorConfig{
		Remote:         r.cfg.Remote,
		Cache:          r.cfg.Cache,
		IDProvider:     r.cfg.IDProvider,
		Clock:          r.cfg.Clock,
		Logger:         r.logger,
		Principal:      principal,
		CacheKeyPrefix: workspaceKeyPrefix + "." + principal.String(),
		MaxResults:     r.cfg.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	if err := coordinator.LoadSnapshot(ctx); err != nil {
		if !errors.Is(err, notes.ErrStorageCorruption) {
			return nil, err
		}
		r.logger.Warn("discarded corrupted workspace snapshot",
			zap.String("user_id", principal.String()),
			zap.Error(err))
	}
	if _, err := coordinator.LoadAll(ctx); err != nil {
		r.logger.Warn("initial remote load failed; serving cached snapshot",
			zap.String("user_id", principal.String()),
			zap.Error(err))
	}
	return coordinator, nil
}
