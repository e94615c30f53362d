package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestOfflineEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		ev      OfflineEvent
		wantErr bool
	}{
		{
			name: "valid create",
			ev:   OfflineEvent{Type: EventCreate, Entity: EntityItem, EntityID: "42", Data: map[string]any{"name": "Lamp"}},
		},
		{
			name: "valid update",
			ev: OfflineEvent{Type: EventUpdate, Entity: EntityItem, EntityID: "42",
				Data: map[string]any{"price": 12}, OriginalData: map[string]any{"price": 10}},
		},
		{
			name: "valid delete",
			ev:   OfflineEvent{Type: EventDelete, Entity: EntityContainer, EntityID: "7", OriginalData: map[string]any{"name": "Box"}},
		},
		{
			name: "update without snapshot but flagged",
			ev: OfflineEvent{Type: EventUpdate, Entity: EntityItem, EntityID: "42",
				Data: map[string]any{"price": 12}, Metadata: map[string]any{MetaSnapshotMissing: true}},
		},
		{
			name:    "update without snapshot",
			ev:      OfflineEvent{Type: EventUpdate, Entity: EntityItem, EntityID: "42", Data: map[string]any{"price": 12}},
			wantErr: true,
		},
		{
			name:    "delete with data",
			ev:      OfflineEvent{Type: EventDelete, Entity: EntityItem, EntityID: "42", Data: map[string]any{"x": 1}, OriginalData: map[string]any{}},
			wantErr: true,
		},
		{
			name:    "create without data",
			ev:      OfflineEvent{Type: EventCreate, Entity: EntityItem, EntityID: "42"},
			wantErr: true,
		},
		{
			name:    "unknown entity",
			ev:      OfflineEvent{Type: EventCreate, Entity: "warehouse", EntityID: "1", Data: map[string]any{"a": 1}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			ev:      OfflineEvent{Type: "UPSERT", Entity: EntityItem, EntityID: "1", Data: map[string]any{"a": 1}},
			wantErr: true,
		},
		{
			name:    "missing entity id",
			ev:      OfflineEvent{Type: EventCreate, Entity: EntityItem, Data: map[string]any{"a": 1}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Validate() error should wrap ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestSchema(t *testing.T) {
	s, ok := Schema(EntityContainer)
	if !ok {
		t.Fatal("container schema missing")
	}
	if s.Table != "containers" || s.UniqueKey != "qrCode" || s.SecondaryKey != "number" {
		t.Errorf("unexpected container schema: %+v", s)
	}
	if _, ok := Schema("warehouse"); ok {
		t.Error("unknown entity should have no schema")
	}
	if EntityCategory.Table() != "categories" {
		t.Errorf("category table = %q", EntityCategory.Table())
	}
}

func TestErrorPredicates(t *testing.T) {
	transient := fmt.Errorf("apply: %w", &TransientRemoteError{Op: "update", StatusCode: 503, Err: errors.New("unavailable")})
	permanent := fmt.Errorf("apply: %w", &PermanentRemoteError{Op: "update", StatusCode: 422, Message: "bad price"})
	resolved := fmt.Errorf("resolve: %w", &AlreadyResolvedError{ConflictID: "c1", Resolution: ResolveLocal})

	if !IsTransient(transient) || IsPermanent(transient) {
		t.Error("transient classification wrong")
	}
	if !IsPermanent(permanent) || IsTransient(permanent) {
		t.Error("permanent classification wrong")
	}
	if !IsAlreadyResolved(resolved) {
		t.Error("already-resolved classification wrong")
	}

	inner := errors.New("disk full")
	se := &StorageError{Op: "append", Err: inner}
	if !errors.Is(se, inner) {
		t.Error("StorageError should unwrap to its cause")
	}
}

func TestResolutionFlags(t *testing.T) {
	if !ResolveMerge.RequiresData() || !ResolveManual.RequiresData() {
		t.Error("merge and manual require data")
	}
	if ResolveLocal.RequiresData() || ResolveServer.RequiresData() {
		t.Error("local and server derive data from the record")
	}
	if !ResolveLocal.WritesBack() || !ResolveMerge.WritesBack() || ResolveServer.WritesBack() || ResolveManual.WritesBack() {
		t.Error("only local and merge write back")
	}
}
