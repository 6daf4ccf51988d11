// Package persona builds the system instructions a live or text session is
// opened with: the agent catalog, the voice map and the conversation memory
// block.
package persona

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed agents.yaml
var defaultAgentsYAML []byte

// Agent is one persona the assistant can switch to.
type Agent struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Voice       string   `yaml:"voice,omitempty" json:"voice,omitempty"`
	Instruction string   `yaml:"instruction" json:"-"`
}

// Catalog is an ordered set of agents.
type Catalog struct {
	agents []Agent
}

type catalogFile struct {
	Agents []Agent `yaml:"agents"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultAgentsYAML))
	if err != nil {
		panic(fmt.Sprintf("persona: embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a YAML catalog. Unknown fields are rejected and every
// agent needs a unique id and an instruction. A "base" agent is required.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode agent catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Agents))
	for i, a := range f.Agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return nil, fmt.Errorf("agents[%d]: id is required", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("agents[%d]: duplicate id %q", i, id)
		}
		if strings.TrimSpace(a.Instruction) == "" {
			return nil, fmt.Errorf("agents[%d]: instruction is required", i)
		}
		seen[id] = true
		f.Agents[i].ID = id
		f.Agents[i].Instruction = strings.TrimSpace(a.Instruction)
	}
	if !seen[AgentBase] {
		return nil, fmt.Errorf("agent catalog must define %q", AgentBase)
	}
	return &Catalog{agents: f.Agents}, nil
}

// LoadCatalogFile reads a catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCatalog(f)
}

// Agents returns the agents in catalog order.
func (c *Catalog) Agents() []Agent {
	return append([]Agent(nil), c.agents...)
}

// Get returns the agent with the exact id.
func (c *Catalog) Get(id string) (Agent, bool) {
	for _, a := range c.agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// Lookup resolves a spoken agent reference ("gestor de tráfego", "Google
// Ads", "programmer") by id, name or alias. Matching ignores case and
// accents; an exact match wins over a partial one.
func (c *Catalog) Lookup(term string) (Agent, bool) {
	q := fold(term)
	if q == "" {
		return Agent{}, false
	}
	for _, a := range c.agents {
		for _, k := range keys(a) {
			if k == q {
				return a, true
			}
		}
	}
	for _, a := range c.agents {
		for _, k := range keys(a) {
			if k != "" && (strings.Contains(q, k) || strings.Contains(k, q)) {
				return a, true
			}
		}
	}
	return Agent{}, false
}

func keys(a Agent) []string {
	out := []string{fold(a.ID), fold(a.Name)}
	for _, alias := range a.Aliases {
		out = append(out, fold(alias))
	}
	return out
}

// fold lowercases, strips accents and turns separators into spaces.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = strings.NewReplacer("_", " ", "-", " ").Replace(out)
	return strings.Join(strings.Fields(out), " ")
}
