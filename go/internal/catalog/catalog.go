// Package catalog reads the items and bidders an auction is seeded with.
//
// Files are JSON or YAML (chosen by extension):
//
//	items:
//	  - name: R. Sharma
//	    role: Batsman
//	    base_price: 200
//	    attributes: {bats: right}
//	bidders:
//	  - name: Mumbai
//	    budget: 9000
//	    identity: mumbai-owner
//
// Entries without an id get one derived from their name, so loading the same
// file twice upserts rather than duplicates.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
	"gopkg.in/yaml.v3"
)

var (
	itemNamespace   = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gavel:item"))
	bidderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gavel:bidder"))
)

type Catalog struct {
	Items   []models.Item
	Bidders []models.Bidder
}

type itemEntry struct {
	ID         string         `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name"`
	Role       string         `json:"role" yaml:"role"`
	BasePrice  int64          `json:"base_price" yaml:"base_price"`
	Attributes map[string]any `json:"attributes" yaml:"attributes"`
}

type bidderEntry struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Budget   int64  `json:"budget" yaml:"budget"`
	Identity string `json:"identity" yaml:"identity"`
}

type file struct {
	Items   []itemEntry   `json:"items" yaml:"items"`
	Bidders []bidderEntry `json:"bidders" yaml:"bidders"`
}

// Load reads and validates a catalog file
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f file
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return f.build()
}

func (f file) build() (*Catalog, error) {
	var errs []error
	seen := make(map[uuid.UUID]string)
	cat := &Catalog{}

	for i, e := range f.Items {
		id, err := entryID(e.ID, itemNamespace, e.Name)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		case e.Name == "":
			errs = append(errs, fmt.Errorf("item %d: name is required", i))
			continue
		case e.BasePrice < 0:
			errs = append(errs, fmt.Errorf("item %q: base price must not be negative", e.Name))
			continue
		}
		if prev, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("item %q: duplicate id shared with %q", e.Name, prev))
			continue
		}
		seen[id] = e.Name

		item := models.Item{
			ID:        id,
			Name:      e.Name,
			Role:      e.Role,
			BasePrice: e.BasePrice,
			Status:    models.ItemStatusAvailable,
		}
		if len(e.Attributes) > 0 {
			attrs, err := json.Marshal(e.Attributes)
			if err != nil {
				errs = append(errs, fmt.Errorf("item %q attributes: %w", e.Name, err))
				continue
			}
			item.Attributes = attrs
		}
		cat.Items = append(cat.Items, item)
	}

	for i, e := range f.Bidders {
		id, err := entryID(e.ID, bidderNamespace, e.Name)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("bidder %d: %w", i, err))
			continue
		case e.Name == "":
			errs = append(errs, fmt.Errorf("bidder %d: name is required", i))
			continue
		case e.Budget < 0:
			errs = append(errs, fmt.Errorf("bidder %q: budget must not be negative", e.Name))
			continue
		}
		if prev, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("bidder %q: duplicate id shared with %q", e.Name, prev))
			continue
		}
		seen[id] = e.Name

		cat.Bidders = append(cat.Bidders, models.Bidder{
			ID:       id,
			Name:     e.Name,
			Budget:   e.Budget,
			Identity: e.Identity,
		})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cat, nil
}

func entryID(raw string, namespace uuid.UUID, name string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.NewSHA1(namespace, []byte(name)), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return id, nil
}
