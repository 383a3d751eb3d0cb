// Package schema maps a model.Project onto a replicated document and back.
//
// The document is a deep CRDT over Tree. Scalars, nested structs and keyed
// lists merge path by path, the newest write winning, so replicas editing
// different sub-fields of the same entity merge independently. Optional
// scalars and id lists are atomic: a concurrent write replaces them whole.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brunoga/deep/v3"
	"github.com/brunoga/deep/v3/crdt"
	"github.com/brunoga/deep/v3/crdt/hlc"

	"contextflow/api/internal/model"
)

// Doc is the replicated project document.
type Doc = crdt.CRDT[Tree]

// Update is the full replicated state of a document: the tree plus the
// clock of every path written or removed so far. Replicas exchange whole
// states and merge them path by path.
type Update struct {
	Value      Tree               `json:"value"`
	Clocks     map[string]hlc.HLC `json:"clocks"`
	Tombstones map[string]hlc.HLC `json:"tombstones"`
	NodeID     string             `json:"nodeID"`
	Latest     hlc.HLC            `json:"latest"`
}

// Empty reports whether u carries no document.
func (u Update) Empty() bool {
	return u.NodeID == ""
}

var ErrEmptyUpdate = errors.New("update carries no document")

// ProjectToDoc builds a fresh document holding p for the replica node.
func ProjectToDoc(p model.Project, node string) *Doc {
	return crdt.NewCRDT(FromProject(p), node)
}

// DocToProject materializes the project stored in doc.
func DocToProject(doc *Doc) model.Project {
	return doc.View().Project()
}

// EncodeState captures the whole state of doc.
func EncodeState(doc *Doc) (Update, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return Update{}, fmt.Errorf("encode document: %w", err)
	}
	return DecodeUpdate(data)
}

// DecodeUpdate parses the wire form produced by Encode.
func DecodeUpdate(data []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("decode update: %w", err)
	}
	return u, nil
}

func (u Update) Encode() ([]byte, error) {
	return json.Marshal(u)
}

// NewDocFromUpdate rebuilds the document carried by u for the replica node.
// The clock of the new replica starts past every timestamp in u.
func NewDocFromUpdate(u Update, node string) (*Doc, error) {
	if u.Empty() {
		return nil, ErrEmptyUpdate
	}
	data, err := u.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	var doc Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Clocks == nil {
		doc.Clocks = map[string]hlc.HLC{}
	}
	if doc.Tombstones == nil {
		doc.Tombstones = map[string]hlc.HLC{}
	}
	doc.NodeID = node
	doc.Clock = hlc.NewClock(node)
	doc.Clock.Update(u.Latest)
	return &doc, nil
}

// Merge folds u into doc and returns the paths whose value changed.
func Merge(doc *Doc, u Update) ([]string, error) {
	remote, err := NewDocFromUpdate(u, u.NodeID)
	if err != nil {
		return nil, err
	}
	before := doc.View()
	doc.Merge(remote)
	return ChangedPaths(before, doc.View()), nil
}

// MergeUpdates combines several states into one. An empty input yields an
// empty update.
func MergeUpdates(updates ...Update) (Update, error) {
	var doc *Doc
	for _, u := range updates {
		if u.Empty() {
			continue
		}
		if doc == nil {
			d, err := NewDocFromUpdate(u, u.NodeID)
			if err != nil {
				return Update{}, err
			}
			doc = d
			continue
		}
		if _, err := Merge(doc, u); err != nil {
			return Update{}, err
		}
	}
	if doc == nil {
		return Update{}, nil
	}
	return EncodeState(doc)
}

// ChangedPaths lists the document paths that differ between a and b.
func ChangedPaths(a, b Tree) []string {
	patch := deep.Diff(a, b)
	if patch == nil {
		return nil
	}
	var paths []string
	_ = patch.Walk(func(path string, _ deep.OpKind, _, _ any) error {
		paths = append(paths, path)
		return nil
	})
	return paths
}
