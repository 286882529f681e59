package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the flattened result of loading a content directory: every
// element in creation order (parents before children) plus the declared
// relations.
type Manifest struct {
	Elements  []Element
	Relations []Relation
}

type contentFile struct {
	Aspect   string           `yaml:"aspect"`
	Elements []contentElement `yaml:"elements"`
}

type contentElement struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Props     map[string]any    `yaml:"props"`
	Children  []contentElement  `yaml:"children"`
	Relations []contentRelation `yaml:"relations"`
}

type contentRelation struct {
	Target      string `yaml:"target"`
	Description string `yaml:"description"`
}

// LoadContentDir parses every .yaml/.yml aspect file under dir into a
// Manifest. Element URIs are /<aspect>/<id>[/<child-id>...].
func LoadContentDir(dir string) (*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read content dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	manifest := &Manifest{}
	for _, file := range files {
		if err := loadContentFile(file, manifest); err != nil {
			return nil, err
		}
	}
	return manifest, nil
}

// LoadContentFile parses a single aspect file into a Manifest.
func LoadContentFile(path string) (*Manifest, error) {
	manifest := &Manifest{}
	if err := loadContentFile(path, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func loadContentFile(path string, manifest *Manifest) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file contentFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if file.Aspect == "" {
		return fmt.Errorf("%s: missing aspect name", path)
	}

	// The aspect container itself is an element so that the root segment can
	// list it as a child.
	manifest.Elements = append(manifest.Elements, Element{
		URI:    NormalizeURI("/" + file.Aspect),
		Aspect: file.Aspect,
		Name:   file.Aspect,
		Props:  map[string]any{},
	})

	for _, el := range file.Elements {
		if err := flattenElement(file.Aspect, "/"+file.Aspect, el, manifest); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func flattenElement(aspect, parentURI string, el contentElement, manifest *Manifest) error {
	if el.ID == "" {
		return fmt.Errorf("element under %s is missing an id", parentURI)
	}
	uri := NormalizeURI(parentURI + "/" + el.ID)

	name := el.Name
	if name == "" {
		name = el.ID
	}
	props := el.Props
	if props == nil {
		props = map[string]any{}
	}

	manifest.Elements = append(manifest.Elements, Element{
		URI:    uri,
		Aspect: aspect,
		Name:   name,
		Props:  props,
	})
	for _, rel := range el.Relations {
		manifest.Relations = append(manifest.Relations, Relation{
			SourceURI:   uri,
			TargetURI:   NormalizeURI(rel.Target),
			Description: rel.Description,
		})
	}
	for _, child := range el.Children {
		if err := flattenElement(aspect, uri, child, manifest); err != nil {
			return err
		}
	}
	return nil
}
