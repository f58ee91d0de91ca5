package store

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/types"
	"github.com/beevik/etree"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Manifest file names, in lookup order
const (
	ManifestTOML   = "modpack.toml"
	ManifestYAML   = "modpack.yaml"
	ManifestLegacy = "modinfo.xml"
)

var manifestNames = []string{ManifestTOML, ManifestYAML, ManifestLegacy}

// manifest is the on-disk form of a package
type manifest struct {
	Name         string              `toml:"name,omitempty" yaml:"name"`
	Author       string              `toml:"author,omitempty" yaml:"author"`
	Version      string              `toml:"version,omitempty" yaml:"version"`
	LoadOrder    *int                `toml:"load_order,omitempty" yaml:"load_order"`
	Standalone   bool                `toml:"standalone" yaml:"standalone"`
	Deployed     bool                `toml:"deployed" yaml:"deployed"`
	Dependencies []string            `toml:"dependencies,omitempty" yaml:"dependencies"`
	Files        []types.FileMapping `toml:"files,omitempty" yaml:"files"`
}

func (m *manifest) toPackage(id, dir string) types.Package {
	p := types.Package{
		ID:           id,
		DisplayName:  m.Name,
		Author:       m.Author,
		Version:      m.Version,
		Standalone:   m.Standalone,
		Deployed:     m.Deployed,
		Dependencies: m.Dependencies,
		Files:        m.Files,
		Dir:          dir,
	}
	if m.LoadOrder != nil {
		p.LoadOrder = *m.LoadOrder
	}
	return p
}

func manifestFor(p types.Package) manifest {
	order := p.LoadOrder
	return manifest{
		Name:         p.DisplayName,
		Author:       p.Author,
		Version:      p.Version,
		LoadOrder:    &order,
		Standalone:   p.Standalone,
		Deployed:     p.Deployed,
		Dependencies: p.Dependencies,
		Files:        p.Files,
	}
}

// parseManifest decodes a manifest according to its file name
func parseManifest(name string, data []byte) (*manifest, error) {
	var m manifest
	switch name {
	case ManifestTOML:
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrapf(err, errors.ErrPackageInvalid, "invalid %s", name)
		}
	case ManifestYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrapf(err, errors.ErrPackageInvalid, "invalid %s", name)
		}
	case ManifestLegacy:
		parsed, err := parseLegacyManifest(data)
		if err != nil {
			return nil, err
		}
		m = *parsed
	default:
		return nil, errors.Newf(errors.ErrInternal, "unknown manifest format %s", name)
	}
	return &m, nil
}

func encodeManifest(p types.Package) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(manifestFor(p)); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "failed to encode manifest for %s", p.ID)
	}
	return buf.Bytes(), nil
}

// parseLegacyManifest reads the XML manifests older mod managers wrote:
//
//	<modinfo>
//	  <name>Better UI</name>
//	  <loadorder>3</loadorder>
//	  <dependencies><dependency>core</dependency></dependencies>
//	  <files><file source="ui/main.xml" destination="Data/UI/main.xml"/></files>
//	</modinfo>
func parseLegacyManifest(data []byte) (*manifest, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Wrapf(err, errors.ErrPackageInvalid, "invalid %s", ManifestLegacy)
	}
	root := doc.SelectElement("modinfo")
	if root == nil {
		return nil, errors.Newf(errors.ErrPackageInvalid, "%s has no <modinfo> root element", ManifestLegacy)
	}

	m := &manifest{
		Name:    childText(root, "name"),
		Author:  childText(root, "author"),
		Version: childText(root, "version"),
	}

	if raw := childText(root, "loadorder"); raw != "" {
		order, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrPackageInvalid, "invalid <loadorder> in %s", ManifestLegacy)
		}
		m.LoadOrder = &order
	}
	for _, flag := range []struct {
		tag    string
		target *bool
	}{
		{"standalone", &m.Standalone},
		{"deployed", &m.Deployed},
	} {
		if raw := childText(root, flag.tag); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrPackageInvalid, "invalid <%s> in %s", flag.tag, ManifestLegacy)
			}
			*flag.target = v
		}
	}

	if deps := root.SelectElement("dependencies"); deps != nil {
		for _, dep := range deps.SelectElements("dependency") {
			if id := strings.TrimSpace(dep.Text()); id != "" {
				m.Dependencies = append(m.Dependencies, id)
			}
		}
	}
	if files := root.SelectElement("files"); files != nil {
		for _, f := range files.SelectElements("file") {
			src := f.SelectAttrValue("source", "")
			dest := f.SelectAttrValue("destination", src)
			m.Files = append(m.Files, types.FileMapping{Source: src, Destination: dest})
		}
	}

	return m, nil
}

func childText(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}
