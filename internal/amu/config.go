package amu

import (
	"log/slog"
	"os"

	"github.com/ronshih/caftlsim/internal/collab"
	"gopkg.in/yaml.v3"
)

// CMTSharingMode names how the configured CMT budget is divided across
// concurrent streams (spec.md §6 configuration).
type CMTSharingMode string

const (
	// SharedCMT gives every stream a handle to the same CMT instance; the
	// composite (stream, LPA) key already makes that instance safe to share.
	SharedCMT CMTSharingMode = "SHARED"
	// EqualSizePartitioning gives every stream its own CMT instance sized
	// to capacity/concurrent-stream-count.
	EqualSizePartitioning CMTSharingMode = "EQUAL_SIZE_PARTITIONING"
)

// cmtEntryBytes approximates the in-memory footprint of one CMT slot (PPA +
// bitmap + bookkeeping), used only to turn the configured byte budget into
// an entry count. The simulator never models real CMT memory layout; this
// constant exists solely to preserve spec.md's "cmt-capacity-in-bytes" unit
// at the config boundary.
const cmtEntryBytes = 24

// StreamConfig names one stream's addressable geometry and logical size.
type StreamConfig struct {
	LogicalPages uint64   `yaml:"logical-pages"`
	ChannelIDs   []uint32 `yaml:"channel-ids"`
	ChipIDs      []uint32 `yaml:"chip-ids"`
	DieIDs       []uint32 `yaml:"die-ids"`
	PlaneIDs     []uint32 `yaml:"plane-ids"`
}

// Config captures every construction option spec.md §6 names under
// "Configuration", loadable from YAML the way the teacher's
// cmd/ccapp/site_config.go loads its site configuration.
type Config struct {
	IdealMappingTable     bool           `yaml:"ideal-mapping-table"`
	CMTCapacityInBytes    uint64         `yaml:"cmt-capacity-in-bytes"`
	PlaneAllocationScheme int            `yaml:"plane-allocation-scheme"`
	CMTSharingMode        CMTSharingMode `yaml:"cmt-sharing-mode"`
	FoldLargeAddresses    bool           `yaml:"fold-large-addresses"`

	Channels      uint32 `yaml:"channels"`
	Chips         uint32 `yaml:"chips"`
	Dies          uint32 `yaml:"dies"`
	Planes        uint32 `yaml:"planes"`
	Blocks        uint32 `yaml:"blocks"`
	PagesPerBlock uint32 `yaml:"pages-per-block"`

	SectorsPerPage        uint32  `yaml:"sectors-per-page"`
	PageSizeInBytes       uint32  `yaml:"page-size-in-bytes"`
	OverprovisioningRatio float64 `yaml:"overprovisioning-ratio"`

	// TranslationEntriesPerPage: how many PMT rows one translation page
	// holds, derived at load time from page-size-in-bytes unless set
	// explicitly (0 means "derive it").
	TranslationEntriesPerPage uint64 `yaml:"translation-entries-per-page"`

	Streams []StreamConfig `yaml:"streams"`
}

// LoadConfig reads and validates a YAML config file. Per the teacher's
// site_config.go pattern, a missing file is only tolerated by callers that
// explicitly choose to fall back to defaults; LoadConfig itself always
// errors on a file it cannot read or parse.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ConfigError{Field: path, Value: err.Error()}
	}
	if cfg.TranslationEntriesPerPage == 0 && cfg.PageSizeInBytes > 0 {
		// Each PMT row is modeled as one PPA (8 bytes): a page of
		// translation data holds page-size-in-bytes/8 rows.
		cfg.TranslationEntriesPerPage = uint64(cfg.PageSizeInBytes) / 8
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if len(c.Streams) == 0 {
		return &ConfigError{Field: "streams", Value: "at least one stream is required"}
	}
	if c.PlaneAllocationScheme < 0 || c.PlaneAllocationScheme >= SchemeCount {
		return &ConfigError{Field: "plane-allocation-scheme", Value: c.PlaneAllocationScheme}
	}
	if c.CMTSharingMode != SharedCMT && c.CMTSharingMode != EqualSizePartitioning {
		return &ConfigError{Field: "cmt-sharing-mode", Value: c.CMTSharingMode}
	}
	if c.SectorsPerPage == 0 || c.SectorsPerPage > 64 {
		return &ConfigError{Field: "sectors-per-page", Value: c.SectorsPerPage}
	}
	for field, v := range map[string]uint32{
		"channels": c.Channels, "chips": c.Chips, "dies": c.Dies,
		"planes": c.Planes, "blocks": c.Blocks, "pages-per-block": c.PagesPerBlock,
	} {
		if v == 0 {
			return &ConfigError{Field: field, Value: v}
		}
	}
	return nil
}

// cmtCapacityEntries converts the configured byte budget into an entry
// count, floored at 1 so a tiny budget still yields a usable (if thrashing)
// cache rather than a zero-capacity one that can never admit anything.
func (c Config) cmtCapacityEntries() int {
	entries := int(c.CMTCapacityInBytes / cmtEntryBytes)
	if entries < 1 {
		entries = 1
	}
	return entries
}

// Collaborators bundles the out-of-scope components the Engine depends on
// (spec.md §1's "explicitly out of scope" list), one per run.
type Collaborators struct {
	TSU          collab.TSU
	BlockManager collab.BlockManager
	FlashCtrl    collab.FlashController
	GCWL         collab.GCWearLeveling
	Clock        collab.Clock
	Stats        collab.StatsSink
	Log          *slog.Logger

	// Fingerprints supplies one FingerprintSource per stream index,
	// matching Config.Streams' order.
	Fingerprints []collab.FingerprintSource
}

// Build wires a validated Config and its collaborators into a ready Engine
// with one registered Domain per configured stream.
func Build(cfg Config, col Collaborators) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(col.Fingerprints) != len(cfg.Streams) {
		return nil, &ConfigError{Field: "fingerprints", Value: "one source required per configured stream"}
	}

	codec, err := NewAddrCodec(Geometry{
		Channels: cfg.Channels, Chips: cfg.Chips, Dies: cfg.Dies,
		Planes: cfg.Planes, Blocks: cfg.Blocks, PagesPerBlock: cfg.PagesPerBlock,
	})
	if err != nil {
		return nil, err
	}

	log := col.Log
	if log == nil {
		log = slog.Default()
	}
	engine := NewEngine(codec, col.TSU, col.BlockManager, col.FlashCtrl, col.GCWL, col.Clock, col.Stats, log)

	var sharedCMT *CMT
	if cfg.CMTSharingMode == SharedCMT {
		sharedCMT = NewCMT(cfg.cmtCapacityEntries())
	}

	for i, sc := range cfg.Streams {
		planes, err := NewPlaneAllocator(PlaneScheme(cfg.PlaneAllocationScheme), StreamGeometry{
			ChannelIDs: sc.ChannelIDs, ChipIDs: sc.ChipIDs, DieIDs: sc.DieIDs, PlaneIDs: sc.PlaneIDs,
		})
		if err != nil {
			return nil, err
		}

		cmt := sharedCMT
		if cmt == nil {
			perStream := cfg.cmtCapacityEntries() / len(cfg.Streams)
			if perStream < 1 {
				perStream = 1
			}
			cmt = NewCMT(perStream)
		}

		dedup := NewDeduplicator(col.Fingerprints[i])
		domain := NewDomain(StreamID(i), sc.LogicalPages, cfg.IdealMappingTable, cfg.FoldLargeAddresses, cfg.TranslationEntriesPerPage, cmt, planes, dedup)
		engine.AddDomain(domain)
	}
	return engine, nil
}
