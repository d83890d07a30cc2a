package kmsg

// VersionRange is an inclusive [Min, Max] version range, as advertised by
// a broker for a single ApiKey in an ApiVersions response, or as requested
// by a caller building a request.
type VersionRange struct {
	Min, Max int16
}

// overlaps reports whether v and other share at least one version.
func (v VersionRange) overlaps(other VersionRange) bool {
	return v.Min <= other.Max && other.Min <= v.Max
}

// BrokerVersions is a broker's advertised {ApiKey -> VersionRange} table,
// as returned by an ApiVersions response.
type BrokerVersions struct {
	ranges map[ApiKey]VersionRange
}

// NewBrokerVersions builds a BrokerVersions table from decoded
// ApiVersionsResponse entries.
func NewBrokerVersions(keys []ApiVersionsResponseKey) BrokerVersions {
	m := make(map[ApiKey]VersionRange, len(keys))
	for _, k := range keys {
		m[k.ApiKey] = VersionRange{k.MinVersion, k.MaxVersion}
	}
	return BrokerVersions{ranges: m}
}

// Feature bits returned alongside a negotiated version. Bits are additive
// and keyed to what a caller can now assume about the peer's behavior at
// the chosen version.
type Feature uint32

const (
	// FeatureOffsetTime indicates the negotiated Offset (ListOffsets)
	// version supports a timestamp argument (v>=1) rather than the
	// legacy max_offsets array form (v=0).
	FeatureOffsetTime Feature = 1 << iota
)

// Negotiate selects the highest version v such that
// requested.Min <= v <= requested.Max and v also falls within the
// broker's advertised range for key. It returns -1 and ok=false if no
// such version exists (the caller should fail with kerr.UnsupportedFeature).
//
// If the broker has no entry for key at all (an empty/absent
// BrokerVersions, e.g. before ApiVersions has ever been negotiated), the
// caller's own max is returned as-is: pre-0.10 brokers have no version
// discovery and the client must simply try its preferred version.
func Negotiate(bv BrokerVersions, key ApiKey, requested VersionRange) (version int16, features Feature, ok bool) {
	brokerRange, known := bv.ranges[key]
	if !known {
		return requested.Max, featuresFor(key, requested.Max), true
	}
	if !requested.overlaps(brokerRange) {
		return -1, 0, false
	}
	v := requested.Max
	if brokerRange.Max < v {
		v = brokerRange.Max
	}
	if v < requested.Min || v < brokerRange.Min {
		return -1, 0, false
	}
	return v, featuresFor(key, v), true
}

func featuresFor(key ApiKey, v int16) Feature {
	if key == Offset && v >= 1 {
		return FeatureOffsetTime
	}
	return 0
}
