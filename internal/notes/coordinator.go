package notes

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	opCoordinatorNew  = "notes.coordinator.new"
	opCreate          = "notes.create"
	opUpdate          = "notes.update"
	opDelete          = "notes.delete"
	opPurge           = "notes.purge"
	opRestore         = "notes.restore"
	opLoadAll         = "notes.load_all"
	opSyncPending     = "notes.sync_pending"
	opLoadSnapshot    = "notes.load_snapshot"
	opPersistSnapshot = "notes.persist_snapshot"

	fieldUserID = "user_id"
	fieldNoteID = "note_id"

	defaultCacheKeyPrefix = "leafnotes"
	defaultLocalIdentity  = "local"
	notesKeySuffix        = ".notes"
	categoriesKeySuffix   = ".categories"
)

var (
	errMissingIDProvider = errors.New("id provider is required")
	errMissingRemote     = errors.New("remote store is required")
	noOpLogger           = zap.NewNop()
)

// RemoteStore is the remote document collaborator, scoped per principal.
type RemoteStore interface {
	LoadAll(ctx context.Context, principal UserID) ([]Note, error)
	Save(ctx context.Context, principal UserID, note Note) error
	Delete(ctx context.Context, principal UserID, noteID NoteID) error
}

// LocalCache is string key/value storage for offline snapshots. Set may fail.
type LocalCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// SyncStatus describes whether the remote collaborator confirmed a write.
type SyncStatus string

const (
	// SyncStatusSynced means the remote confirmed the write.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusPending means the write is not confirmed and the note is queued for SyncPending.
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusSkipped means no remote is configured.
	SyncStatusSkipped SyncStatus = "skipped"
)

// SyncOutcome reports the remote side of a mutation. Err is nil unless Status is pending.
type SyncOutcome struct {
	Status SyncStatus
	Reason string
	Err    error
}

// Synced reports whether the remote confirmed the write.
func (outcome SyncOutcome) Synced() bool {
	return outcome.Status == SyncStatusSynced
}

// MutationResult is returned by every note mutation. The local change has
// been applied even when Sync is pending or CacheErr is set.
type MutationResult struct {
	Note     Note
	Purged   bool
	Sync     SyncOutcome
	CacheErr error
}

// CategoryResult is returned by category mutations. Cascaded holds the note
// updates performed by DeleteCategory.
type CategoryResult struct {
	Category Category
	Cascaded []MutationResult
	CacheErr error
}

// LoadResult is returned by LoadAll.
type LoadResult struct {
	Notes    []Note
	CacheErr error
}

// SyncReport pairs a pending note id with the outcome of its retry.
type SyncReport struct {
	NoteID  string
	Outcome SyncOutcome
}

type pendingKind int

const (
	pendingSave pendingKind = iota + 1
	pendingPurge
)

// CoordinatorConfig describes the collaborators of a Coordinator. Remote and
// Cache are optional; without them mutations stay local.
type CoordinatorConfig struct {
	Remote         RemoteStore
	Cache          LocalCache
	IDProvider     IDProvider
	Clock          func() time.Time
	Logger         *zap.Logger
	Principal      UserID
	CacheKeyPrefix string
	LocalIdentity  string
	Categories     []Category
	MaxResults     int
}

// Coordinator owns the Note Store and the category list and reconciles local
// mutations with the remote collaborator. Calls must be serialized by the caller.
type Coordinator struct {
	remote        RemoteStore
	cache         LocalCache
	idProvider    IDProvider
	clock         func() time.Time
	logger        *zap.Logger
	principal     UserID
	notesKey      string
	categoriesKey string
	localIdentity string
	seed          []Category
	maxResults    int

	notes      []Note
	categories []Category
	pending    map[string]pendingKind
	issued     map[string]struct{}
}

// NewCoordinator validates the configuration and returns an empty Coordinator
// seeded with the configured categories, or DefaultCategories when none are given.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.IDProvider == nil {
		return nil, newServiceError(opCoordinatorNew, reasonMissingIDProvider, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	seed := cfg.Categories
	if seed == nil {
		seed = DefaultCategories()
	}
	normalizedSeed := make([]Category, 0, len(seed))
	for _, category := range seed {
		normalized := category.Normalize()
		if err := normalized.Validate(); err != nil {
			return nil, err
		}
		normalizedSeed = append(normalizedSeed, normalized)
	}

	prefix := strings.TrimSpace(cfg.CacheKeyPrefix)
	if prefix == "" {
		prefix = defaultCacheKeyPrefix
	}

	localIdentity := strings.TrimSpace(cfg.LocalIdentity)
	if localIdentity == "" {
		localIdentity = defaultLocalIdentity
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	return &Coordinator{
		remote:        cfg.Remote,
		cache:         cfg.Cache,
		idProvider:    cfg.IDProvider,
		clock:         clock,
		logger:        logger,
		principal:     cfg.Principal,
		notesKey:      prefix + notesKeySuffix,
		categoriesKey: prefix + categoriesKeySuffix,
		localIdentity: localIdentity,
		seed:          normalizedSeed,
		maxResults:    maxResults,
		categories:    slices.Clone(normalizedSeed),
		pending:       make(map[string]pendingKind),
		issued:        make(map[string]struct{}),
	}, nil
}

// Principal returns the identity remote operations are scoped to.
func (c *Coordinator) Principal() UserID {
	return c.principal
}

// SetPrincipal establishes the identity for subsequent remote operations.
func (c *Coordinator) SetPrincipal(principal UserID) {
	c.principal = principal
}

// ClearPrincipal drops the identity; remote writes are queued until one is set.
func (c *Coordinator) ClearPrincipal() {
	c.principal = ""
}

// Notes returns a copy of the Note Store.
func (c *Coordinator) Notes() []Note {
	return slices.Clone(c.notes)
}

// Note returns a copy of the note with the given id.
func (c *Coordinator) Note(rawID string) (Note, bool) {
	index := c.indexOf(strings.TrimSpace(rawID))
	if index < 0 {
		return Note{}, false
	}
	return c.notes[index], true
}

// Categories returns a copy of the category list.
func (c *Coordinator) Categories() []Category {
	return slices.Clone(c.categories)
}

// Pending returns the sorted ids whose last remote write was not confirmed.
func (c *Coordinator) Pending() []string {
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Query runs the query pipeline over the coordinator's notes and categories.
// The limit is capped at the configured maximum; a non-positive limit uses it.
func (c *Coordinator) Query(section string, options QueryOptions) QueryResult {
	if options.Limit <= 0 || options.Limit > c.maxResults {
		options.Limit = c.maxResults
	}
	return Query(c.Notes(), c.Categories(), section, options)
}

// Create adds a note with version 1 and attempts a remote write.
func (c *Coordinator) Create(ctx context.Context, input NoteInput) (MutationResult, error) {
	normalized := input.normalize()
	if err := normalized.validate(); err != nil {
		return MutationResult{}, err
	}
	if err := c.requireCategory(normalized.Category); err != nil {
		return MutationResult{}, err
	}

	rawID, err := c.idProvider.NewID()
	if err != nil {
		c.logError(opCreate, reasonIDGenerationFailed, err)
		return MutationResult{}, newServiceError(opCreate, reasonIDGenerationFailed, err)
	}
	noteID, err := NewNoteID(rawID)
	if err != nil {
		c.logError(opCreate, reasonIDGenerationFailed, err)
		return MutationResult{}, newServiceError(opCreate, reasonIDGenerationFailed, err)
	}
	if _, issued := c.issued[noteID.String()]; issued {
		collision := fmt.Errorf("note id %s already issued", noteID)
		c.logError(opCreate, reasonIDCollision, collision, zap.String(fieldNoteID, noteID.String()))
		return MutationResult{}, newServiceError(opCreate, reasonIDCollision, collision)
	}

	now := c.now()
	note := Note{
		ID:             noteID.String(),
		Title:          normalized.Title,
		Content:        normalized.Content,
		Category:       normalized.Category,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
		LastModifiedBy: c.writerIdentity(),
	}

	c.issued[note.ID] = struct{}{}
	c.notes = append([]Note{note}, c.notes...)
	return c.commit(ctx, opCreate, note), nil
}

// Update merges patch into the note, increments its version and attempts a remote write.
func (c *Coordinator) Update(ctx context.Context, rawID string, patch NotePatch) (MutationResult, error) {
	index, err := c.lookup(rawID)
	if err != nil {
		return MutationResult{}, err
	}
	normalized := patch.normalize()
	if err := normalized.validate(); err != nil {
		return MutationResult{}, err
	}
	if normalized.Category != nil {
		if err := c.requireCategory(*normalized.Category); err != nil {
			return MutationResult{}, err
		}
	}

	updated := c.notes[index]
	if normalized.Title != nil {
		updated.Title = *normalized.Title
	}
	if normalized.Content != nil {
		updated.Content = *normalized.Content
	}
	if normalized.Category != nil {
		updated.Category = *normalized.Category
	}
	if normalized.IsPinned != nil {
		updated.IsPinned = *normalized.IsPinned
	}
	if normalized.IsFavorite != nil {
		updated.IsFavorite = *normalized.IsFavorite
	}
	c.bump(&updated)

	c.notes[index] = updated
	return c.commit(ctx, opUpdate, updated), nil
}

// Delete soft-deletes an active note. Called on a note already in the trash,
// it removes the note locally and remotely without further versioning.
func (c *Coordinator) Delete(ctx context.Context, rawID string) (MutationResult, error) {
	index, err := c.lookup(rawID)
	if err != nil {
		return MutationResult{}, err
	}

	current := c.notes[index]
	if !current.IsDeleted {
		current.IsDeleted = true
		c.bump(&current)
		c.notes[index] = current
		return c.commit(ctx, opDelete, current), nil
	}

	c.notes = slices.Delete(c.notes, index, index+1)
	delete(c.pending, current.ID)
	cacheErr := c.persistSnapshot(ctx)
	outcome := c.syncNote(ctx, opPurge, current.ID, pendingPurge, c.purgeWriter(current.ID))
	return MutationResult{Note: current, Purged: true, Sync: outcome, CacheErr: cacheErr}, nil
}

// Restore moves a soft-deleted note back to the active state.
func (c *Coordinator) Restore(ctx context.Context, rawID string) (MutationResult, error) {
	index, err := c.lookup(rawID)
	if err != nil {
		return MutationResult{}, err
	}
	current := c.notes[index]
	if !current.IsDeleted {
		return MutationResult{}, fmt.Errorf("%w: note %s is not in the trash", ErrValidation, current.ID)
	}
	current.IsDeleted = false
	c.bump(&current)
	c.notes[index] = current
	return c.commit(ctx, opRestore, current), nil
}

// LoadAll replaces the Note Store with the principal's remote notes, ordered
// pinned first then most recently updated, and persists the snapshot. Remote
// versions win over unsynced local ones; the pending set is cleared.
func (c *Coordinator) LoadAll(ctx context.Context) (LoadResult, error) {
	if c.principal == "" {
		return LoadResult{}, fmt.Errorf("%w: load requires a principal", ErrAuthenticationRequired)
	}
	if c.remote == nil {
		return LoadResult{}, newServiceError(opLoadAll, reasonMissingRemote, errMissingRemote)
	}

	loaded, err := c.remote.LoadAll(ctx, c.principal)
	if err != nil {
		c.logError(opLoadAll, reasonRemoteLoadFailed, err, zap.String(fieldUserID, c.principal.String()))
		return LoadResult{}, remoteFailure(err)
	}

	c.notes = Sort(loaded, SortByUpdatedAt, SortOrderDesc)
	clear(c.pending)
	for _, note := range c.notes {
		c.issued[note.ID] = struct{}{}
	}
	cacheErr := c.persistSnapshot(ctx)
	return LoadResult{Notes: slices.Clone(c.notes), CacheErr: cacheErr}, nil
}

// SyncPending retries every pending remote write once, in id order.
func (c *Coordinator) SyncPending(ctx context.Context) ([]SyncReport, error) {
	if c.principal == "" {
		return nil, fmt.Errorf("%w: sync requires a principal", ErrAuthenticationRequired)
	}
	if c.remote == nil {
		return nil, newServiceError(opSyncPending, reasonMissingRemote, errMissingRemote)
	}

	reports := make([]SyncReport, 0, len(c.pending))
	for _, noteID := range c.Pending() {
		var outcome SyncOutcome
		if c.pending[noteID] == pendingPurge {
			outcome = c.syncNote(ctx, opSyncPending, noteID, pendingPurge, c.purgeWriter(noteID))
		} else {
			index := c.indexOf(noteID)
			if index < 0 {
				delete(c.pending, noteID)
				continue
			}
			outcome = c.syncNote(ctx, opSyncPending, noteID, pendingSave, c.saveWriter(c.notes[index]))
		}
		reports = append(reports, SyncReport{NoteID: noteID, Outcome: outcome})
	}
	return reports, nil
}

// UpsertCategory validates and inserts or replaces a category by id.
func (c *Coordinator) UpsertCategory(ctx context.Context, category Category) (CategoryResult, error) {
	normalized := category.Normalize()
	if err := normalized.Validate(); err != nil {
		return CategoryResult{}, err
	}
	if index := c.categoryIndex(normalized.ID); index >= 0 {
		c.categories[index] = normalized
	} else {
		c.categories = append(c.categories, normalized)
	}
	return CategoryResult{Category: normalized, CacheErr: c.persistSnapshot(ctx)}, nil
}

// DeleteCategory clears the category of every affected note through Update,
// then removes the category.
func (c *Coordinator) DeleteCategory(ctx context.Context, rawID string) (CategoryResult, error) {
	categoryID := strings.TrimSpace(rawID)
	index := c.categoryIndex(categoryID)
	if index < 0 {
		return CategoryResult{}, fmt.Errorf("%w: category %q", ErrNotFound, categoryID)
	}
	removed := c.categories[index]

	uncategorized := ""
	var cascaded []MutationResult
	for _, note := range c.Notes() {
		if note.Category != categoryID {
			continue
		}
		result, err := c.Update(ctx, note.ID, NotePatch{Category: &uncategorized})
		if err != nil {
			return CategoryResult{Category: removed, Cascaded: cascaded}, err
		}
		cascaded = append(cascaded, result)
	}

	c.categories = slices.Delete(c.categories, index, index+1)
	return CategoryResult{Category: removed, Cascaded: cascaded, CacheErr: c.persistSnapshot(ctx)}, nil
}

// LoadSnapshot installs the notes and categories cached by an earlier run.
// A snapshot failing structural validation leaves an empty Note Store and the
// seed categories, and returns ErrStorageCorruption.
func (c *Coordinator) LoadSnapshot(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}

	rawNotes, notesFound, err := c.cache.Get(ctx, c.notesKey)
	if err != nil {
		c.logError(opLoadSnapshot, reasonCacheReadFailed, err)
		return newServiceError(opLoadSnapshot, reasonCacheReadFailed, err)
	}
	rawCategories, categoriesFound, err := c.cache.Get(ctx, c.categoriesKey)
	if err != nil {
		c.logError(opLoadSnapshot, reasonCacheReadFailed, err)
		return newServiceError(opLoadSnapshot, reasonCacheReadFailed, err)
	}

	var notes []Note
	if notesFound {
		notes, err = DecodeNotesSnapshot(rawNotes)
		if err != nil {
			c.resetState()
			c.logWarn(opLoadSnapshot, reasonSnapshotCorrupted, err)
			return err
		}
	}
	categories := slices.Clone(c.seed)
	if categoriesFound {
		categories, err = DecodeCategoriesSnapshot(rawCategories)
		if err != nil {
			c.resetState()
			c.logWarn(opLoadSnapshot, reasonSnapshotCorrupted, err)
			return err
		}
	}

	c.notes = notes
	c.categories = categories
	clear(c.pending)
	for _, note := range notes {
		c.issued[note.ID] = struct{}{}
	}
	return nil
}

func (c *Coordinator) resetState() {
	c.notes = nil
	c.categories = slices.Clone(c.seed)
	clear(c.pending)
}

func (c *Coordinator) commit(ctx context.Context, operation string, note Note) MutationResult {
	cacheErr := c.persistSnapshot(ctx)
	outcome := c.syncNote(ctx, operation, note.ID, pendingSave, c.saveWriter(note))
	return MutationResult{Note: note, Sync: outcome, CacheErr: cacheErr}
}

func (c *Coordinator) saveWriter(note Note) func(context.Context, UserID) error {
	return func(ctx context.Context, principal UserID) error {
		return c.remote.Save(ctx, principal, note)
	}
}

func (c *Coordinator) purgeWriter(noteID string) func(context.Context, UserID) error {
	return func(ctx context.Context, principal UserID) error {
		err := c.remote.Delete(ctx, principal, NoteID(noteID))
		if errors.Is(err, ErrRemoteNotFound) {
			return nil
		}
		return err
	}
}

// syncNote performs one remote write and maintains the pending set.
func (c *Coordinator) syncNote(ctx context.Context, operation, noteID string, kind pendingKind, write func(context.Context, UserID) error) SyncOutcome {
	if c.remote == nil {
		return SyncOutcome{Status: SyncStatusSkipped, Reason: reasonRemoteUnconfigured}
	}
	if c.principal == "" {
		c.pending[noteID] = kind
		return SyncOutcome{
			Status: SyncStatusPending,
			Reason: reasonAuthRequired,
			Err:    fmt.Errorf("%w: no principal for remote write", ErrAuthenticationRequired),
		}
	}
	if err := write(ctx, c.principal); err != nil {
		c.pending[noteID] = kind
		reason := reasonRemoteWriteFailed
		if kind == pendingPurge {
			reason = reasonRemoteDeleteFailed
		}
		c.logWarn(operation, reason, err,
			zap.String(fieldUserID, c.principal.String()),
			zap.String(fieldNoteID, noteID))
		return SyncOutcome{Status: SyncStatusPending, Reason: classifyRemoteError(err), Err: remoteFailure(err)}
	}
	delete(c.pending, noteID)
	return SyncOutcome{Status: SyncStatusSynced, Reason: reasonSynced}
}

func (c *Coordinator) persistSnapshot(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	encodedNotes, err := EncodeNotesSnapshot(c.notes)
	if err != nil {
		c.logError(opPersistSnapshot, reasonSnapshotEncodeError, err)
		return newServiceError(opPersistSnapshot, reasonSnapshotEncodeError, err)
	}
	encodedCategories, err := EncodeCategoriesSnapshot(c.categories)
	if err != nil {
		c.logError(opPersistSnapshot, reasonSnapshotEncodeError, err)
		return newServiceError(opPersistSnapshot, reasonSnapshotEncodeError, err)
	}
	if err := c.cache.Set(ctx, c.notesKey, encodedNotes); err != nil {
		c.logWarn(opPersistSnapshot, reasonCacheWriteFailed, err)
		return newServiceError(opPersistSnapshot, reasonCacheWriteFailed, err)
	}
	if err := c.cache.Set(ctx, c.categoriesKey, encodedCategories); err != nil {
		c.logWarn(opPersistSnapshot, reasonCacheWriteFailed, err)
		return newServiceError(opPersistSnapshot, reasonCacheWriteFailed, err)
	}
	return nil
}

// bump records a persisted mutation: next version, fresh updatedAt, current writer.
func (c *Coordinator) bump(note *Note) {
	now := c.now()
	if now.Before(note.UpdatedAt) {
		now = note.UpdatedAt
	}
	if now.Before(note.CreatedAt) {
		now = note.CreatedAt
	}
	note.Version++
	note.UpdatedAt = now
	note.LastModifiedBy = c.writerIdentity()
}

// now is truncated to the millisecond precision the remote store keeps.
func (c *Coordinator) now() time.Time {
	return c.clock().UTC().Truncate(time.Millisecond)
}

func (c *Coordinator) writerIdentity() string {
	if c.principal != "" {
		return c.principal.String()
	}
	return c.localIdentity
}

func (c *Coordinator) lookup(rawID string) (int, error) {
	noteID, err := NewNoteID(rawID)
	if err != nil {
		return -1, err
	}
	index := c.indexOf(noteID.String())
	if index < 0 {
		return -1, fmt.Errorf("%w: note %s", ErrNotFound, noteID)
	}
	return index, nil
}

func (c *Coordinator) indexOf(noteID string) int {
	return slices.IndexFunc(c.notes, func(note Note) bool { return note.ID == noteID })
}

func (c *Coordinator) categoryIndex(categoryID string) int {
	return slices.IndexFunc(c.categories, func(category Category) bool { return category.ID == categoryID })
}

func (c *Coordinator) requireCategory(categoryID string) error {
	if categoryID == "" || c.categoryIndex(categoryID) >= 0 {
		return nil
	}
	return fmt.Errorf("%w: unknown category %q", ErrValidation, categoryID)
}

func (c *Coordinator) loggerOrDefault() *zap.Logger {
	if c == nil || c.logger == nil {
		return noOpLogger
	}
	return c.logger
}

func (c *Coordinator) logError(operation, reason string, err error, fields ...zap.Field) {
	c.loggerOrDefault().Error("notes coordinator error", c.logFields(operation, reason, err, fields)...)
}

func (c *Coordinator) logWarn(operation, reason string, err error, fields ...zap.Field) {
	c.loggerOrDefault().Warn("notes coordinator warning", c.logFields(operation, reason, err, fields)...)
}

func (c *Coordinator) logFields(operation, reason string, err error, fields []zap.Field) []zap.Field {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	return append(attrs, fields...)
}
