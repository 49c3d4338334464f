package ddsruntime

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/qeo-io/ddscore/locator"
	"github.com/qeo-io/ddscore/pool"
)

// PoolRange is a min/max pair for one of the `POOL_*` env vars, matching
// spec.md §6's "each min/max pair" shorthand.
type PoolRange struct {
	Min uint
	Max uint
}

// Config is the parsed form of spec.md §6's environment/file
// configuration surface (`DDS_PoolConstraints` and friends). Every field
// has a compiled-in default, applied by DefaultConfig() and overridden in
// order: compiled-in default, optional TOML file, then environment
// variables (the last writer wins), matching spec.md's "unset variables
// use compiled-in defaults".
type Config struct {
	Domains     PoolRange `toml:"pool_domains"`
	Subscribers PoolRange `toml:"pool_subscribers"`
	Publishers  PoolRange `toml:"pool_publishers"`
	Readers     PoolRange `toml:"pool_readers"`
	Writers     PoolRange `toml:"pool_writers"`
	Topics      PoolRange `toml:"pool_topics"`
	Growth      uint      `toml:"pool_growth"`

	MulticastTTL  int    `toml:"ip_mcast_ttl"`
	MulticastDest string `toml:"ip_mcast_dest"`
	MulticastSrc  string `toml:"ip_mcast_src"`
	MulticastAddr string `toml:"ip_mcast_addr"`
	NoMulticast   bool   `toml:"ip_no_mcast"`

	IPv6MulticastHops int    `toml:"ipv6_mcast_hops"`
	IPv6MulticastIntf string `toml:"ipv6_mcast_intf"`
	IPv6MulticastAddr string `toml:"ipv6_mcast_addr"`

	PortBase        uint32 `toml:"udp_pb"`
	DomainGain      uint32 `toml:"udp_dg"`
	ParticipantGain uint32 `toml:"udp_pg"`
	MetaMulticast   uint32 `toml:"udp_d0"`
	MetaUnicast     uint32 `toml:"udp_d1"`
	UserMulticast   uint32 `toml:"udp_d2"`
	UserUnicast     uint32 `toml:"udp_d3"`

	RTPSMode  string `toml:"rtps_mode"`
	LogDir    string `toml:"log_dir"`
	PurgeDelayMS uint32 `toml:"purge_delay"`
	SampleSize   uint32 `toml:"sample_size"`
	IPSockets    uint   `toml:"ip_sockets"`
}

// DefaultConfig returns the compiled-in defaults, matching Scenario 5's
// port parameters. SampleSize carries the MAX_SAMPLE_DATA ceiling as a
// configuration default; MAX_UNITS has no Config field (the log ring
// size is fixed by logx.NewManager).
func DefaultConfig() Config {
	return Config{
		Domains:     PoolRange{Min: 1, Max: 8},
		Subscribers: PoolRange{Min: 4, Max: 64},
		Publishers:  PoolRange{Min: 4, Max: 64},
		Readers:     PoolRange{Min: 8, Max: 256},
		Writers:     PoolRange{Min: 8, Max: 256},
		Topics:      PoolRange{Min: 8, Max: 256},
		Growth:      8,

		MulticastTTL:      1,
		IPv6MulticastHops: 1,

		PortBase:        7400,
		DomainGain:      250,
		ParticipantGain: 2,
		MetaMulticast:   0,
		MetaUnicast:     10,
		UserMulticast:   1,
		UserUnicast:     11,

		RTPSMode:     "udp",
		LogDir:       os.TempDir(),
		PurgeDelayMS: 1000,
		SampleSize:   1024,
		IPSockets:    64,
	}
}

// PortParams projects the UDP_* fields onto a locator.PortParams value.
func (c Config) PortParams() locator.PortParams {
	return locator.PortParams{
		PortBase:        c.PortBase,
		DomainGain:      c.DomainGain,
		ParticipantGain: c.ParticipantGain,
		MetaMulticast:   c.MetaMulticast,
		MetaUnicast:     c.MetaUnicast,
		UserMulticast:   c.UserMulticast,
		UserUnicast:     c.UserUnicast,
	}
}

// PoolLimits projects a PoolRange and the shared Growth field onto a
// pool.Limits value (Reserved=Min, Extra=Max-Min).
func (r PoolRange) PoolLimits(growth uint) pool.Limits {
	extra := uint(0)
	if r.Max > r.Min {
		extra = r.Max - r.Min
	}
	return pool.Limits{Reserved: r.Min, Extra: extra, Grow: growth}
}

// LoadConfig builds a Config by layering, in order: DefaultConfig(),
// then file (if non-empty and readable), then environment variables
// (spec.md §6's list). A missing file is not an error — the caller
// passes an empty path when none is configured.
func LoadConfig(file string) (Config, error) {
	cfg := DefaultConfig()
	if file != "" {
		if _, err := toml.DecodeFile(file, &cfg); err != nil && !os.IsNotExist(err) {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(c *Config) {
	envUint(&c.Domains.Min, "POOL_DOMAINS_MIN")
	envUint(&c.Domains.Max, "POOL_DOMAINS_MAX")
	envUint(&c.Subscribers.Min, "POOL_SUBSCRIBERS_MIN")
	envUint(&c.Subscribers.Max, "POOL_SUBSCRIBERS_MAX")
	envUint(&c.Publishers.Min, "POOL_PUBLISHERS_MIN")
	envUint(&c.Publishers.Max, "POOL_PUBLISHERS_MAX")
	envUint(&c.Readers.Min, "POOL_READERS_MIN")
	envUint(&c.Readers.Max, "POOL_READERS_MAX")
	envUint(&c.Writers.Min, "POOL_WRITERS_MIN")
	envUint(&c.Writers.Max, "POOL_WRITERS_MAX")
	envUint(&c.Topics.Min, "POOL_TOPICS_MIN")
	envUint(&c.Topics.Max, "POOL_TOPICS_MAX")
	envUint(&c.Growth, "POOL_GROWTH")

	envInt(&c.MulticastTTL, "IP_MCAST_TTL")
	envString(&c.MulticastDest, "IP_MCAST_DEST")
	envString(&c.MulticastSrc, "IP_MCAST_SRC")
	envString(&c.MulticastAddr, "IP_MCAST_ADDR")
	envBool(&c.NoMulticast, "IP_NO_MCAST")

	envInt(&c.IPv6MulticastHops, "IPV6_MCAST_HOPS")
	envString(&c.IPv6MulticastIntf, "IPV6_MCAST_INTF")
	envString(&c.IPv6MulticastAddr, "IPV6_MCAST_ADDR")

	envUint32(&c.PortBase, "UDP_PB")
	envUint32(&c.DomainGain, "UDP_DG")
	envUint32(&c.ParticipantGain, "UDP_PG")
	envUint32(&c.MetaMulticast, "UDP_D0")
	envUint32(&c.MetaUnicast, "UDP_D1")
	envUint32(&c.UserMulticast, "UDP_D2")
	envUint32(&c.UserUnicast, "UDP_D3")

	envString(&c.RTPSMode, "RTPS_MODE")
	envString(&c.LogDir, "LOG_DIR")
	envUint32(&c.PurgeDelayMS, "PURGE_DELAY")
	envUint32(&c.SampleSize, "SAMPLE_SIZE")
	envUint(&c.IPSockets, "IP_SOCKETS")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v != "" && v != "0"
	}
}

func envUint(dst *uint, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = uint(n)
		}
	}
}

func envUint32(dst *uint32, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = int(n)
		}
	}
}
