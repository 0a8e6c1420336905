package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	flows "github.com/goliatone/go-flows"
	flowdefs "github.com/goliatone/go-flows/definitions"
	"github.com/goliatone/go-flows/pkg/interfaces"
	"github.com/goliatone/go-flows/pkg/testsupport"
	flowruntime "github.com/goliatone/go-flows/runtime"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// demoResolver keeps movement items in a map so the walkthrough has
// something for the engine to govern.
type demoResolver struct {
	mu       sync.Mutex
	entities map[uuid.UUID]string
}

func (r *demoResolver) Exists(_ context.Context, _ uuid.UUID, entityID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entities[entityID]
	return ok, nil
}

func (r *demoResolver) SyncStatus(_ context.Context, _ uuid.UUID, entityID uuid.UUID, stateKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[entityID] = stateKey
	return nil
}

// demoStockLedger prints each stock command instead of moving real stock.
type demoStockLedger struct{}

func (demoStockLedger) Apply(_ context.Context, cmd interfaces.StockCommand) (*interfaces.StockResult, error) {
	fmt.Printf("  stock ledger: %s impacts=%d key=%s\n", cmd.Reference, len(cmd.Impacts), cmd.IdempotencyKey)
	return &interfaces.StockResult{EffectID: uuid.New(), Applied: cmd.Impacts}, nil
}

func main() {
	ctx := context.Background()

	sqldb, err := testsupport.NewSQLiteMemoryDB()
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer sqldb.Close()
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := flows.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	items := &demoResolver{entities: map[uuid.UUID]string{}}
	cfg := flows.DefaultConfig()
	cfg.Features.Logger = true

	module, err := flows.New(cfg,
		flows.WithBunDB(db),
		flows.WithOriginResolver("movement_item", items),
		flows.WithStockLedger(demoStockLedger{}),
	)
	if err != nil {
		log.Fatalf("build module: %v", err)
	}

	tenantID := uuid.New()
	actorID := uuid.New()

	def, err := module.Definitions().Publish(ctx, flowdefs.DefinitionRequest{
		TenantID: tenantID,
		Origin:   "movement_item",
		Name:     "Item Lifecycle",
		ActorID:  actorID,
		States: []flowdefs.StateInput{
			{Key: "draft", Name: "Draft", Initial: true},
			{Key: "approved", Name: "Approved"},
			{Key: "done", Name: "Done", Terminal: true},
		},
		Transitions: []flowdefs.TransitionInput{
			{Key: "approve", Name: "Approve", From: "draft", To: "approved", Enabled: true, Actions: []flowdefs.ActionConfig{{
				Type:        "stock.move",
				Trigger:     "after_transition",
				MustSucceed: true,
				Parameters: map[string]any{
					"impacts": []map[string]any{
						{"metric": "qty", "scope": "onhand", "delta": 2},
					},
				},
			}}},
			{Key: "complete", Name: "Complete", From: "approved", To: "done", Enabled: true},
		},
	})
	if err != nil {
		log.Fatalf("publish definition: %v", err)
	}
	fmt.Printf("published %q as v%d with %d states\n", def.Name, def.Version, len(def.States))

	itemID := uuid.New()
	items.mu.Lock()
	items.entities[itemID] = ""
	items.mu.Unlock()

	// walk the graph until the item reaches a terminal state
	for {
		state, err := module.Runtime().RuntimeState(ctx, tenantID, "movement_item", itemID)
		if err != nil {
			log.Fatalf("runtime state: %v", err)
		}
		fmt.Printf("item at %q with %d available transition(s)\n", state.CurrentState.Name, len(state.Transitions))
		if len(state.Transitions) == 0 {
			break
		}

		view := state.Transitions[0]
		result, err := module.Runtime().ExecuteTransition(ctx, flowruntime.TransitionRequest{
			TenantID:      tenantID,
			Origin:        "movement_item",
			EntityID:      itemID,
			TransitionKey: view.Key,
			ActorID:       actorID,
			Notes:         "demo walkthrough",
		})
		if err != nil {
			log.Fatalf("transition %s: %v", view.Key, err)
		}
		fmt.Printf("moved %s -> %s via %q\n", result.FromState.Name, result.ToState.Name, view.Name)
	}

	page, err := module.Runtime().History(ctx, tenantID, "movement_item", itemID, 0, 10)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	encoded, err := json.MarshalIndent(page.Entries, "", "  ")
	if err != nil {
		log.Fatalf("encode history: %v", err)
	}
	fmt.Printf("audit trail (%d entries):\n%s\n", page.Total, encoded)
}
