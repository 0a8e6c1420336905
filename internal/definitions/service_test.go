package definitions_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	flowdefs "github.com/goliatone/go-flows/definitions"
	"github.com/goliatone/go-flows/internal/definitions"
	"github.com/goliatone/go-flows/internal/domain"
	"github.com/goliatone/go-flows/pkg/testsupport"
	"github.com/google/uuid"
)

func movementItemRequest(tenantID uuid.UUID) flowdefs.DefinitionRequest {
	return flowdefs.DefinitionRequest{
		TenantID: tenantID,
		Origin:   "movement_item",
		Name:     "Item Lifecycle",
		ActorID:  uuid.New(),
		States: []flowdefs.StateInput{
			{Key: "draft", Name: "Draft", Initial: true},
			{Key: "approved", Name: "Approved"},
			{Key: "done", Name: "Done", Terminal: true},
		},
		Transitions: []flowdefs.TransitionInput{
			{Key: "approve", Name: "Approve", From: "draft", To: "approved", Enabled: true},
			{Key: "complete", Name: "Complete", From: "approved", To: "done", Enabled: true},
		},
	}
}

func newService(t *testing.T) definitions.Service {
	t.Helper()
	return definitions.NewService(definitions.NewMemoryRepository())
}

func TestPublishAssignsVersionAndRegeneratesKeys(t *testing.T) {
	svc := newService(t)
	tenantID := uuid.New()

	published, err := svc.Publish(context.Background(), movementItemRequest(tenantID))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Version != 1 {
		t.Fatalf("expected version 1, got %d", published.Version)
	}
	if published.Status != domain.DefinitionStatusPublished || !published.Active {
		t.Fatalf("expected active published definition, got %s active=%v", published.Status, published.Active)
	}
	if len(published.States) != 3 || len(published.Transitions) != 2 {
		t.Fatalf("unexpected graph size: %d states, %d transitions", len(published.States), len(published.Transitions))
	}
	for _, state := range published.States {
		if !strings.HasPrefix(state.Key, "st_") {
			t.Fatalf("expected regenerated state key, got %q", state.Key)
		}
	}
	for _, tr := range published.Transitions {
		if !strings.HasPrefix(tr.Key, "tr_") {
			t.Fatalf("expected regenerated transition key, got %q", tr.Key)
		}
		if from, ok := published.StateByKey(tr.FromStateKey); !ok || from == nil {
			t.Fatalf("transition %q references unknown from state %q", tr.Key, tr.FromStateKey)
		}
	}
}

func TestPublishArchivesPreviousVersion(t *testing.T) {
	svc := newService(t)
	tenantID := uuid.New()
	ctx := context.Background()

	first, err := svc.Publish(ctx, movementItemRequest(tenantID))
	if err != nil {
		t.Fatalf("publish v1: %v", err)
	}
	second, err := svc.Publish(ctx, movementItemRequest(tenantID))
	if err != nil {
		t.Fatalf("publish v2: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}

	archived, err := svc.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if archived.Status != domain.DefinitionStatusArchived || archived.Active {
		t.Fatalf("expected v1 archived, got %s active=%v", archived.Status, archived.Active)
	}

	current, err := svc.GetByOrigin(ctx, tenantID, "movement_item", flowdefs.Scope{})
	if err != nil {
		t.Fatalf("get by origin: %v", err)
	}
	if current.ID != second.ID {
		t.Fatalf("expected current definition %s, got %s", second.ID, current.ID)
	}
}

func TestPublishRejectsInvalidGraph(t *testing.T) {
	svc := newService(t)

	req := movementItemRequest(uuid.New())
	req.States[0].Initial = false

	_, err := svc.Publish(context.Background(), req)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !errors.Is(err, flowdefs.ErrGraphInvalid) {
		t.Fatalf("expected graph validation error, got %v", err)
	}
	var graphErr *flowdefs.GraphValidationError
	if !errors.As(err, &graphErr) || len(graphErr.Violations) == 0 {
		t.Fatalf("expected violations, got %v", err)
	}
}

func TestUpdateEnforcesScope(t *testing.T) {
	svc := newService(t)
	tenantID := uuid.New()
	ctx := context.Background()

	published, err := svc.Publish(ctx, movementItemRequest(tenantID))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	kind := "movement_type"
	req := movementItemRequest(tenantID)
	req.ContextKind = &kind
	if _, err := svc.Update(ctx, published.ID, req); !errors.Is(err, flowdefs.ErrScopeMismatch) {
		t.Fatalf("expected scope mismatch, got %v", err)
	}

	updated, err := svc.Update(ctx, published.ID, movementItemRequest(tenantID))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected update to publish version 2, got %d", updated.Version)
	}
}

func TestArchiveRemovesPublishedDefinition(t *testing.T) {
	svc := newService(t)
	tenantID := uuid.New()
	ctx := context.Background()

	published, err := svc.Publish(ctx, movementItemRequest(tenantID))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	archived, err := svc.Archive(ctx, published.ID, uuid.New())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != domain.DefinitionStatusArchived || archived.Active {
		t.Fatalf("expected archived definition, got %s active=%v", archived.Status, archived.Active)
	}

	if _, err := svc.GetByOrigin(ctx, tenantID, "movement_item", flowdefs.Scope{}); !errors.Is(err, flowdefs.ErrNotPublished) {
		t.Fatalf("expected no published definition, got %v", err)
	}

	if _, err := svc.Archive(ctx, published.ID, uuid.New()); !errors.Is(err, flowdefs.ErrAlreadyArchived) {
		t.Fatalf("expected already archived, got %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	svc := newService(t)
	sourceTenant := uuid.New()
	targetTenant := uuid.New()
	ctx := context.Background()

	published, err := svc.Publish(ctx, movementItemRequest(sourceTenant))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	doc, err := svc.Export(ctx, published.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if doc.Origin != "movement_item" || len(doc.States) != 3 || len(doc.Transitions) != 2 {
		t.Fatalf("unexpected document: %+v", doc)
	}

	imported, err := svc.Import(ctx, targetTenant, uuid.New(), nil, doc)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.TenantID != targetTenant {
		t.Fatalf("expected tenant %s, got %s", targetTenant, imported.TenantID)
	}
	if imported.Version != 1 {
		t.Fatalf("expected imported version 1, got %d", imported.Version)
	}
	if len(imported.States) != 3 || len(imported.Transitions) != 2 {
		t.Fatalf("unexpected imported graph: %d states, %d transitions", len(imported.States), len(imported.Transitions))
	}
	for i, state := range imported.States {
		if state.Key == published.States[i].Key {
			t.Fatalf("expected regenerated keys on import, got reused %q", state.Key)
		}
	}
}

func TestImportDocumentFixture(t *testing.T) {
	fixture := filepath.Join("testdata", "item_lifecycle_document.json")
	raw, err := testsupport.LoadFixture(fixture)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	doc, err := flowdefs.ParseDocument(raw)
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}

	svc := newService(t)
	tenantID := uuid.New()
	ctx := context.Background()

	imported, err := svc.Import(ctx, tenantID, uuid.New(), nil, doc)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.Version != 1 || imported.Name != "Item Lifecycle" {
		t.Fatalf("unexpected imported definition: %q v%d", imported.Name, imported.Version)
	}

	exported, err := svc.Export(ctx, imported.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var want flowdefs.Document
	if err := testsupport.LoadGolden(fixture, &want); err != nil {
		t.Fatalf("load golden: %v", err)
	}
	if exported.Origin != want.Origin || exported.Name != want.Name {
		t.Fatalf("exported %s/%q, want %s/%q", exported.Origin, exported.Name, want.Origin, want.Name)
	}
	if len(exported.States) != len(want.States) || len(exported.Transitions) != len(want.Transitions) {
		t.Fatalf("graph size drifted: %d states, %d transitions", len(exported.States), len(exported.Transitions))
	}
	// keys regenerate on import, everything else must survive the round trip
	for i, state := range exported.States {
		if state.Name != want.States[i].Name || state.Initial != want.States[i].Initial || state.Terminal != want.States[i].Terminal {
			t.Fatalf("state %d drifted: %+v", i, state)
		}
		if state.Color != want.States[i].Color || state.PosX != want.States[i].PosX || state.PosY != want.States[i].PosY {
			t.Fatalf("state %d lost presentation fields: %+v", i, state)
		}
	}
	for i, tr := range exported.Transitions {
		if tr.Name != want.Transitions[i].Name || tr.Enabled != want.Transitions[i].Enabled || tr.Priority != want.Transitions[i].Priority {
			t.Fatalf("transition %d drifted: %+v", i, tr)
		}
	}
}
