package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/MarcoPoloResearchLab/leafnotes/internal/notes"
)

func TestNotesLifecycleOverHTTP(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.token(t, "google:user-1")

	createRecorder := env.do(t, token, http.MethodPost, "/notes", map[string]string{
		"title":    "Groceries",
		"content":  "<p>milk and <b>eggs</b></p>",
		"category": "personal",
	})
	expectStatus(t, createRecorder, http.StatusCreated)
	created := decodeBody[mutationResponsePayload](t, createRecorder)
	if created.Note.ID == "" || created.Note.Version != 1 {
		t.Fatalf("unexpected created note: %+v", created.Note)
	}
	if created.Sync.Status != string(notes.SyncStatusSynced) {
		t.Fatalf("expected synced outcome, got %+v", created.Sync)
	}

	remoteNotes, err := env.remote.LoadAll(context.Background(), notes.UserID("user-1"))
	if err != nil {
		t.Fatalf("failed to load remote notes: %v", err)
	}
	if len(remoteNotes) != 1 || remoteNotes[0].ID != created.Note.ID {
		t.Fatalf("expected note persisted under the stripped principal, got %+v", remoteNotes)
	}

	queryRecorder := env.do(t, token, http.MethodPost, "/notes/query", map[string]any{
		"section":    notes.SectionAll,
		"searchTerm": "eggs",
	})
	expectStatus(t, queryRecorder, http.StatusOK)
	queried := decodeBody[notes.QueryResult](t, queryRecorder)
	if len(queried.Results) != 1 || queried.Truncated {
		t.Fatalf("unexpected query result: %+v", queried)
	}

	updateRecorder := env.do(t, token, http.MethodPatch, "/notes/"+created.Note.ID, map[string]any{"isPinned": true})
	expectStatus(t, updateRecorder, http.StatusOK)
	updated := decodeBody[mutationResponsePayload](t, updateRecorder)
	if !updated.Note.IsPinned || updated.Note.Version != 2 {
		t.Fatalf("unexpected updated note: %+v", updated.Note)
	}

	softRecorder := env.do(t, token, http.MethodDelete, "/notes/"+created.Note.ID, nil)
	expectStatus(t, softRecorder, http.StatusOK)
	softDeleted := decodeBody[mutationResponsePayload](t, softRecorder)
	if !softDeleted.Note.IsDeleted || softDeleted.Purged {
		t.Fatalf("expected soft delete, got %+v", softDeleted)
	}

	restoreRecorder := env.do(t, token, http.MethodPost, "/notes/"+created.Note.ID+"/restore", nil)
	expectStatus(t, restoreRecorder, http.StatusOK)
	if decodeBody[mutationResponsePayload](t, restoreRecorder).Note.IsDeleted {
		t.Fatalf("expected restored note to be active")
	}

	expectStatus(t, env.do(t, token, http.MethodDelete, "/notes/"+created.Note.ID, nil), http.StatusOK)
	purgeRecorder := env.do(t, token, http.MethodDelete, "/notes/"+created.Note.ID, nil)
	expectStatus(t, purgeRecorder, http.StatusOK)
	if !decodeBody[mutationResponsePayload](t, purgeRecorder).Purged {
		t.Fatalf("expected second delete to purge")
	}

	remoteNotes, err = env.remote.LoadAll(context.Background(), notes.UserID("user-1"))
	if err != nil {
		t.Fatalf("failed to load remote notes: %v", err)
	}
	if len(remoteNotes) != 0 {
		t.Fatalf("expected remote purge, got %+v", remoteNotes)
	}
}

func TestNotesErrorsMapToStatusCodes(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.token(t, "user-1")

	testCases := []struct {
		name   string
		token  string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{name: "missing session", method: http.MethodPost, path: "/notes", body: map[string]string{"title": "x"}, status: http.StatusUnauthorized, code: errorCodeUnauthorized},
		{name: "empty title", token: token, method: http.MethodPost, path: "/notes", body: map[string]string{"title": "   "}, status: http.StatusBadRequest, code: errorCodeInvalidRequest},
		{name: "unknown category", token: token, method: http.MethodPost, path: "/notes", body: map[string]string{"title": "x", "category": "missing"}, status: http.StatusBadRequest, code: errorCodeInvalidRequest},
		{name: "unknown note", token: token, method: http.MethodPatch, path: "/notes/none", body: map[string]any{"title": "y"}, status: http.StatusNotFound, code: errorCodeNotFound},
		{name: "unknown category delete", token: token, method: http.MethodDelete, path: "/categories/none", status: http.StatusNotFound, code: errorCodeNotFound},
		{name: "malformed json", token: token, method: http.MethodPost, path: "/notes/query", body: "not-an-object", status: http.StatusBadRequest, code: errorCodeInvalidRequest},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := env.do(t, testCase.token, testCase.method, testCase.path, testCase.body)
			expectStatus(t, recorder, testCase.status)
			body := decodeBody[map[string]any](t, recorder)
			if body["error"] != testCase.code {
				t.Fatalf("expected error code %q, got %v", testCase.code, body["error"])
			}
		})
	}
}

func TestCategoryDeleteCascadesOverHTTP(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.token(t, "user-1")

	upsertRecorder := env.do(t, token, http.MethodPut, "/categories/travel", map[string]string{
		"name":  "Travel",
		"color": "#0ea5e9",
		"icon":  "plane",
	})
	expectStatus(t, upsertRecorder, http.StatusOK)

	mismatch := env.do(t, token, http.MethodPut, "/categories/travel", map[string]string{
		"id":    "other",
		"name":  "Travel",
		"color": "#0ea5e9",
		"icon":  "plane",
	})
	expectStatus(t, mismatch, http.StatusBadRequest)

	createRecorder := env.do(t, token, http.MethodPost, "/notes", map[string]string{"title": "Lisbon", "category": "travel"})
	expectStatus(t, createRecorder, http.StatusCreated)
	noteID := decodeBody[mutationResponsePayload](t, createRecorder).Note.ID

	deleteRecorder := env.do(t, token, http.MethodDelete, "/categories/travel", nil)
	expectStatus(t, deleteRecorder, http.StatusOK)
	deleted := decodeBody[categoryResponsePayload](t, deleteRecorder)
	if len(deleted.Cascaded) != 1 || deleted.Cascaded[0].Note.ID != noteID || deleted.Cascaded[0].Note.Category != "" {
		t.Fatalf("expected cascaded uncategorize, got %+v", deleted.Cascaded)
	}

	listRecorder := env.do(t, token, http.MethodGet, "/categories", nil)
	expectStatus(t, listRecorder, http.StatusOK)
	listed := decodeBody[map[string][]notes.Category](t, listRecorder)
	for _, category := range listed["categories"] {
		if category.ID == "travel" {
			t.Fatalf("expected travel category to be removed")
		}
	}
	if len(listed["categories"]) != len(notes.DefaultCategories()) {
		t.Fatalf("expected default categories to remain, got %+v", listed["categories"])
	}
}

func TestLoadAndSyncEndpoints(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.token(t, "user-1")

	expectStatus(t, env.do(t, token, http.MethodPost, "/notes", map[string]string{"title": "Alpha"}), http.StatusCreated)

	loadRecorder := env.do(t, token, http.MethodPost, "/notes/load", nil)
	expectStatus(t, loadRecorder, http.StatusOK)
	loaded := decodeBody[loadResponsePayload](t, loadRecorder)
	if len(loaded.Notes) != 1 || loaded.Notes[0].Title != "Alpha" {
		t.Fatalf("unexpected loaded notes: %+v", loaded.Notes)
	}

	syncRecorder := env.do(t, token, http.MethodPost, "/notes/sync", nil)
	expectStatus(t, syncRecorder, http.StatusOK)
	synced := decodeBody[syncResponsePayload](t, syncRecorder)
	if len(synced.Results) != 0 || len(synced.Pending) != 0 {
		t.Fatalf("expected nothing pending, got %+v", synced)
	}
}

func TestWorkspacesAreIsolatedPerPrincipal(t *testing.T) {
	env := newTestEnvironment(t)
	first := env.token(t, "user-1")
	second := env.token(t, "user-2")

	expectStatus(t, env.do(t, first, http.MethodPost, "/notes", map[string]string{"title": "Private"}), http.StatusCreated)

	recorder := env.do(t, second, http.MethodPost, "/notes/query", map[string]any{"section": notes.SectionAll})
	expectStatus(t, recorder, http.StatusOK)
	if results := decodeBody[notes.QueryResult](t, recorder).Results; len(results) != 0 {
		t.Fatalf("expected no notes for second principal, got %+v", results)
	}
}
