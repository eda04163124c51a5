package toolchain

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/voidshard/flashd/internal/utils"
)

const (
	tagInclude = "!include"
	tagSecret  = "!secret"

	secretsFile = "secrets.yaml"
	fileURI     = "file://"
)

var (
	// keys whose scalar values may name a local file
	fileKeys = map[string]bool{
		"file":     true,
		"filename": true,
		"source":   true,
		"image":    true,
		"font":     true,
		"path":     true,
	}

	// extensions of files worth staging
	fileExts = map[string]bool{
		".png":  true,
		".jpg":  true,
		".jpeg": true,
		".bmp":  true,
		".gif":  true,
		".ttf":  true,
		".otf":  true,
		".bin":  true,
		".txt":  true,
		".yaml": true,
		".yml":  true,
	}
)

// YAMLExtractor finds files referenced by an esphome config; !include'd yaml (recursively),
// secrets.yaml if any !secret is used, and images, fonts & binaries named under file-ish keys.
type YAMLExtractor struct {
	fs afero.Fs
}

func NewYAMLExtractor(fs afero.Fs) *YAMLExtractor {
	return &YAMLExtractor{fs: fs}
}

// Dependencies returns referenced paths relative to the directory of sourcePath, sorted.
func (y *YAMLExtractor) Dependencies(sourcePath string) ([]string, error) {
	root := filepath.Dir(sourcePath)
	found := map[string]bool{}

	err := y.walkFile(root, filepath.Base(sourcePath), found, map[string]bool{})
	if err != nil {
		return nil, err
	}

	out := []string{}
	for k := range found {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// walkFile parses rel (relative to root) & records what it references
func (y *YAMLExtractor) walkFile(root, rel string, found, seen map[string]bool) error {
	if seen[rel] {
		return nil
	}
	seen[rel] = true

	data, err := afero.ReadFile(y.fs, filepath.Join(root, rel))
	if err != nil {
		return err
	}

	doc := &yaml.Node{}
	err = yaml.Unmarshal(data, doc)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", rel, err)
	}

	refs := map[string]bool{}
	collect(doc, refs)

	dir := filepath.Dir(rel)
	for ref := range refs {
		if filepath.IsAbs(ref) {
			found[ref] = true
			continue
		}
		p, ok := utils.CleanRelative(filepath.Join(dir, ref))
		if !ok {
			// kept, staging decides what to do with it
			found[filepath.Join(dir, ref)] = true
			continue
		}
		found[p] = true

		if isConfig(p) && filepath.Base(p) != secretsFile {
			// included files that don't exist or don't parse are someone else's problem
			y.walkFile(root, p, found, seen)
		}
	}
	return nil
}

// collect walks a yaml node tree recording file references
func collect(n *yaml.Node, refs map[string]bool) {
	if n == nil {
		return
	}

	switch n.Tag {
	case tagSecret:
		refs[secretsFile] = true
	case tagInclude:
		if n.Kind == yaml.ScalarNode {
			refs[n.Value] = true
		}
		if n.Kind == yaml.MappingNode {
			// !include {file: x.yaml, vars: {...}}
			for i := 0; i+1 < len(n.Content); i += 2 {
				if n.Content[i].Value == "file" {
					refs[n.Content[i+1].Value] = true
				}
			}
		}
	}

	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if v.Kind == yaml.ScalarNode && v.Tag != tagInclude && v.Tag != tagSecret {
				if ref, ok := fileRef(k.Value, v.Value); ok {
					refs[ref] = true
				}
			}
		}
	}

	for _, c := range n.Content {
		collect(c, refs)
	}
}

// fileRef returns the local file a key: value pair names, if it names one
func fileRef(key, value string) (string, bool) {
	if strings.HasPrefix(value, fileURI) {
		return strings.TrimPrefix(value, fileURI), true
	}
	if !fileKeys[strings.ToLower(key)] {
		return "", false
	}
	if strings.Contains(value, "://") {
		return "", false
	}
	if !fileExts[strings.ToLower(filepath.Ext(value))] {
		return "", false
	}
	return value, true
}
