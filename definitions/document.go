package definitions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is the portable, lossless export format for a definition's graph.
// Importing a document always creates a brand-new version with regenerated
// keys; identity is never carried across the boundary.
type Document struct {
	Origin      string               `json:"origin"`
	ContextKind *string              `json:"context_kind,omitempty"`
	Name        string               `json:"name"`
	Description *string              `json:"description,omitempty"`
	Layout      map[string]any       `json:"layout,omitempty"`
	States      []StateDocument      `json:"states"`
	Transitions []TransitionDocument `json:"transitions"`
}

// StateDocument is the exported shape of one state.
type StateDocument struct {
	Key      string         `json:"key"`
	Name     string         `json:"name"`
	Color    string         `json:"color,omitempty"`
	Initial  bool           `json:"initial"`
	Terminal bool           `json:"terminal"`
	PosX     float64        `json:"pos_x"`
	PosY     float64        `json:"pos_y"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TransitionDocument is the exported shape of one transition.
type TransitionDocument struct {
	Key      string         `json:"key"`
	Name     string         `json:"name"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Enabled  bool           `json:"enabled"`
	Priority int            `json:"priority"`
	Actions  []ActionConfig `json:"actions,omitempty"`
	UI       map[string]any `json:"ui,omitempty"`
}

// ExportDefinition renders a persisted definition as a portable document.
func ExportDefinition(def *Definition) (*Document, error) {
	if def == nil {
		return nil, ErrDefinitionRequired
	}

	doc := &Document{
		Origin:      def.Origin,
		ContextKind: def.ContextKind,
		Name:        def.Name,
		Description: def.Description,
		Layout:      def.Layout,
		States:      make([]StateDocument, 0, len(def.States)),
		Transitions: make([]TransitionDocument, 0, len(def.Transitions)),
	}

	for _, state := range def.States {
		if state == nil {
			continue
		}
		doc.States = append(doc.States, StateDocument{
			Key:      state.Key,
			Name:     state.Name,
			Color:    state.Color,
			Initial:  state.Initial,
			Terminal: state.Terminal,
			PosX:     state.PosX,
			PosY:     state.PosY,
			Metadata: state.Metadata,
		})
	}

	for _, tr := range def.Transitions {
		if tr == nil {
			continue
		}
		doc.Transitions = append(doc.Transitions, TransitionDocument{
			Key:      tr.Key,
			Name:     tr.Name,
			From:     tr.FromStateKey,
			To:       tr.ToStateKey,
			Enabled:  tr.Enabled,
			Priority: tr.Priority,
			Actions:  tr.Actions,
			UI:       tr.UI,
		})
	}

	return doc, nil
}

// ParseDocument decodes and minimally checks an exported document. The full
// graph validation runs when the document is republished as a request.
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentInvalid, err)
	}
	if strings.TrimSpace(doc.Origin) == "" || strings.TrimSpace(doc.Name) == "" {
		return nil, fmt.Errorf("%w: origin and name are required", ErrDocumentInvalid)
	}
	if len(doc.States) == 0 {
		return nil, fmt.Errorf("%w: at least one state is required", ErrDocumentInvalid)
	}
	return &doc, nil
}

// Request converts the document into a publish request for the given scope.
func (d *Document) Request() DefinitionRequest {
	req := DefinitionRequest{
		Origin:      d.Origin,
		ContextKind: d.ContextKind,
		Name:        d.Name,
		Description: d.Description,
		Layout:      d.Layout,
		States:      make([]StateInput, 0, len(d.States)),
		Transitions: make([]TransitionInput, 0, len(d.Transitions)),
	}
	for _, state := range d.States {
		req.States = append(req.States, StateInput{
			Key:      state.Key,
			Name:     state.Name,
			Color:    state.Color,
			Initial:  state.Initial,
			Terminal: state.Terminal,
			PosX:     state.PosX,
			PosY:     state.PosY,
			Metadata: state.Metadata,
		})
	}
	for _, tr := range d.Transitions {
		req.Transitions = append(req.Transitions, TransitionInput{
			Key:      tr.Key,
			Name:     tr.Name,
			From:     tr.From,
			To:       tr.To,
			Enabled:  tr.Enabled,
			Priority: tr.Priority,
			Actions:  tr.Actions,
			UI:       tr.UI,
		})
	}
	return req
}
