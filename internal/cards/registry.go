package cards

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"activityScope/internal/model"
)

// Registry holds the token scripts that declare activity cards.
type Registry struct {
	mu      sync.RWMutex
	scripts []model.TokenScript
}

func NewRegistry(scripts ...model.TokenScript) *Registry {
	return &Registry{scripts: scripts}
}

// Scripts returns every registered script.
func (r *Registry) Scripts() []model.TokenScript {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.TokenScript(nil), r.scripts...)
}

// Replace swaps the registered scripts.
func (r *Registry) Replace(scripts []model.TokenScript) {
	r.mu.Lock()
	r.scripts = append([]model.TokenScript(nil), scripts...)
	r.mu.Unlock()
}

type viewEntry struct {
	HTML  string `yaml:"html"`
	Style string `yaml:"style"`
}

type originEntry struct {
	Contract   string                 `yaml:"contract"`
	Event      string                 `yaml:"event"`
	Parameters []model.EventParameter `yaml:"parameters"`
	Filter     string                 `yaml:"filter"`
}

type cardEntry struct {
	Name     string      `yaml:"name"`
	Base     bool        `yaml:"base"`
	Origin   originEntry `yaml:"origin"`
	View     viewEntry   `yaml:"view"`
	ItemView viewEntry   `yaml:"item_view"`
}

type scriptEntry struct {
	Contract string      `yaml:"contract"`
	Network  string      `yaml:"network"`
	Cards    []cardEntry `yaml:"cards"`
}

type scriptsFile struct {
	Scripts []scriptEntry `yaml:"scripts"`
}

// Parse reads the scripts section of an assets document.
func Parse(data []byte) ([]model.TokenScript, error) {
	var doc scriptsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode scripts: %w", err)
	}

	scripts := make([]model.TokenScript, 0, len(doc.Scripts))
	for i, entry := range doc.Scripts {
		if !common.IsHexAddress(entry.Contract) {
			return nil, fmt.Errorf("script %d: invalid contract %q", i, entry.Contract)
		}
		scope, err := parseScope(entry.Network)
		if err != nil {
			return nil, fmt.Errorf("script %d: %w", i, err)
		}
		script := model.TokenScript{
			Contract: common.HexToAddress(entry.Contract),
			Scope:    scope,
		}
		for j, c := range entry.Cards {
			card, err := parseCard(c, script.Contract)
			if err != nil {
				return nil, fmt.Errorf("script %d card %d: %w", i, j, err)
			}
			script.Cards = append(script.Cards, card)
		}
		scripts = append(scripts, script)
	}
	return scripts, nil
}

// LoadFile parses the scripts section of the assets file at path.
func LoadFile(path string) ([]model.TokenScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assets file: %w", err)
	}
	return Parse(data)
}

func parseScope(raw string) (model.NetworkScope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "any") {
		return model.AnyNetwork(), nil
	}
	network, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return model.NetworkScope{}, fmt.Errorf("invalid network %q", raw)
	}
	return model.OnNetwork(network), nil
}

func parseCard(entry cardEntry, scriptContract common.Address) (model.CardTemplate, error) {
	if entry.Name == "" {
		return model.CardTemplate{}, fmt.Errorf("card name is required")
	}
	if entry.Origin.Event == "" {
		return model.CardTemplate{}, fmt.Errorf("card %s: origin event is required", entry.Name)
	}

	contract := scriptContract
	if entry.Origin.Contract != "" {
		if !common.IsHexAddress(entry.Origin.Contract) {
			return model.CardTemplate{}, fmt.Errorf("card %s: invalid origin contract %q", entry.Name, entry.Origin.Contract)
		}
		contract = common.HexToAddress(entry.Origin.Contract)
	}

	// A filter without "=" is kept whole as the name and later classified unsupported.
	filterName, filterValue, _ := strings.Cut(entry.Origin.Filter, "=")

	return model.CardTemplate{
		Name:   entry.Name,
		IsBase: entry.Base,
		Origin: model.EventOrigin{
			Contract:    contract,
			EventName:   entry.Origin.Event,
			Parameters:  entry.Origin.Parameters,
			FilterName:  strings.TrimSpace(filterName),
			FilterValue: strings.TrimSpace(filterValue),
		},
		View:     model.View{HTML: entry.View.HTML, Style: entry.View.Style},
		ItemView: model.View{HTML: entry.ItemView.HTML, Style: entry.ItemView.Style},
	}, nil
}
