package stratum

import "sort"

// PoolPreset is a named (host, port) pair for a known solo pool.
type PoolPreset struct {
	Name string
	Host string
	Port int
}

// Known public solo pools, selectable by name.
var presets = map[string]PoolPreset{
	"ckpool":      {Name: "ckpool", Host: "solo.ckpool.org", Port: 3333},
	"ckpool-eu":   {Name: "ckpool-eu", Host: "eusolo.ckpool.org", Port: 3333},
	"public-pool": {Name: "public-pool", Host: "public-pool.io", Port: 21496},
	"solomining":  {Name: "solomining", Host: "pool.solomining.io", Port: 7777},
}

// Preset looks up a pool preset by name.
func Preset(name string) (PoolPreset, bool) {
	p, ok := presets[name]
	return p, ok
}

// PresetNames returns all preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
