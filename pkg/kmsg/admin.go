package kmsg

import "github.com/twmb/kreq/pkg/kbin"

// RawResponse is a Response that keeps the broker's reply bytes
// verbatim, for the admin APIs whose results this engine does not parse:
// the raw reply buffer is handed to the caller unchanged.
type RawResponse struct {
	Bytes []byte
}

func (r *RawResponse) ReadFrom(src []byte) error {
	r.Bytes = append([]byte(nil), src...)
	return nil
}

// alterConfigsIncrementalMinVersion is the lowest version assumed able to
// express incremental alter semantics. The real protocol cutoff is
// unclear; 1 is the conservative choice until it is pinned down.
const alterConfigsIncrementalMinVersion = int16(1)

// CreatableTopic describes one topic to create.
type CreatableTopic struct {
	Topic             string
	NumPartitions     int32
	ReplicationFactor int16
	Configs           map[string]*string
}

// CreateTopicsRequest creates one or more topics. Must be issued to the
// cluster controller (AdminRequest).
type CreateTopicsRequest struct {
	versioned

	Topics       []CreatableTopic
	TimeoutMs    int32
	ValidateOnly bool // only encoded on v>=1
}

func (*CreateTopicsRequest) Key() ApiKey       { return CreateTopics }
func (*CreateTopicsRequest) MinVersion() int16 { return 0 }
func (*CreateTopicsRequest) MaxVersion() int16 { return 3 }
func (*CreateTopicsRequest) IsAdminRequest()   {}

func (r *CreateTopicsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(int32(len(r.Topics)))
	for _, t := range r.Topics {
		w.String(t.Topic)
		w.Int32(t.NumPartitions)
		w.Int16(t.ReplicationFactor)
		w.Int32(0) // no manual replica assignments at this layer
		w.Int32(int32(len(t.Configs)))
		for k, v := range t.Configs {
			w.String(k)
			w.NullableString(v)
		}
	}
	w.Int32(r.TimeoutMs)
	if r.Version >= 1 {
		var b int8
		if r.ValidateOnly {
			b = 1
		}
		w.Int8(b)
	}
	return w.Bytes()
}

func (r *CreateTopicsRequest) ResponseKind() Response { return new(RawResponse) }

// DeleteTopicsRequest deletes one or more topics.
type DeleteTopicsRequest struct {
	versioned

	Topics    []string
	TimeoutMs int32
}

func (*DeleteTopicsRequest) Key() ApiKey       { return DeleteTopics }
func (*DeleteTopicsRequest) MinVersion() int16 { return 0 }
func (*DeleteTopicsRequest) MaxVersion() int16 { return 1 }
func (*DeleteTopicsRequest) IsAdminRequest()   {}

func (r *DeleteTopicsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(int32(len(r.Topics)))
	for _, t := range r.Topics {
		w.String(t)
	}
	w.Int32(r.TimeoutMs)
	return w.Bytes()
}

func (r *DeleteTopicsRequest) ResponseKind() Response { return new(RawResponse) }

// CreatePartitionsTopic describes new partitions for one topic.
type CreatePartitionsTopic struct {
	Topic          string
	Count          int32
	NewAssignments [][]int32
}

// CreatePartitionsRequest adds partitions to existing topics.
type CreatePartitionsRequest struct {
	versioned

	Topics       []CreatePartitionsTopic
	TimeoutMs    int32
	ValidateOnly bool
}

func (*CreatePartitionsRequest) Key() ApiKey       { return CreatePartitions }
func (*CreatePartitionsRequest) MinVersion() int16 { return 0 }
func (*CreatePartitionsRequest) MaxVersion() int16 { return 1 }
func (*CreatePartitionsRequest) IsAdminRequest()   {}

func (r *CreatePartitionsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(int32(len(r.Topics)))
	for _, t := range r.Topics {
		w.String(t.Topic)
		w.Int32(t.Count)
		if t.NewAssignments == nil {
			w.Int32(-1)
		} else {
			w.Int32(int32(len(t.NewAssignments)))
			for _, assignment := range t.NewAssignments {
				w.Int32(int32(len(assignment)))
				for _, replica := range assignment {
					w.Int32(replica)
				}
			}
		}
	}
	w.Int32(r.TimeoutMs)
	var b int8
	if r.ValidateOnly {
		b = 1
	}
	w.Int8(b)
	return w.Bytes()
}

func (r *CreatePartitionsRequest) ResponseKind() Response { return new(RawResponse) }

// AlterableConfig is one config key/value to set for a resource.
type AlterableConfig struct {
	Name  string
	Value *string
}

// AlterConfigsResource is one resource (topic or broker) whose configs are
// being altered.
type AlterConfigsResource struct {
	ResourceType int8
	ResourceName string
	Configs      []AlterableConfig
}

// AlterConfigsRequest alters resource configs.
type AlterConfigsRequest struct {
	versioned

	Resources []AlterConfigsResource

	// Incremental marks the request as needing a version of at least
	// alterConfigsIncrementalMinVersion. AppendTo does not encode it, so
	// the request body is the same whether it is set or not.
	Incremental  bool
	ValidateOnly bool
}

func (*AlterConfigsRequest) Key() ApiKey       { return AlterConfigs }
func (*AlterConfigsRequest) MinVersion() int16 { return 0 }
func (*AlterConfigsRequest) MaxVersion() int16 { return 1 }
func (*AlterConfigsRequest) IsAdminRequest()   {}

// SupportsIncremental reports whether this request's pinned version is at
// least alterConfigsIncrementalMinVersion, the lowest version accepted
// for a request with Incremental set. A caller that set Incremental on a
// request pinned below the cutoff should treat that as a
// kerr.UnsupportedFeature condition.
func (r *AlterConfigsRequest) SupportsIncremental() bool {
	return r.Version >= alterConfigsIncrementalMinVersion
}

func (r *AlterConfigsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(int32(len(r.Resources)))
	for _, res := range r.Resources {
		w.Int8(res.ResourceType)
		w.String(res.ResourceName)
		w.Int32(int32(len(res.Configs)))
		for _, c := range res.Configs {
			w.String(c.Name)
			w.NullableString(c.Value)
		}
	}
	var b int8
	if r.ValidateOnly {
		b = 1
	}
	w.Int8(b)
	return w.Bytes()
}

func (r *AlterConfigsRequest) ResponseKind() Response { return new(RawResponse) }

// DescribeConfigsResource names one resource whose current configs are
// wanted.
type DescribeConfigsResource struct {
	ResourceType int8
	ResourceName string
	ConfigNames  []string // nil means "all configs"
}

// DescribeConfigsRequest reads resource configs.
type DescribeConfigsRequest struct {
	versioned

	Resources []DescribeConfigsResource
}

func (*DescribeConfigsRequest) Key() ApiKey       { return DescribeConfigs }
func (*DescribeConfigsRequest) MinVersion() int16 { return 0 }
func (*DescribeConfigsRequest) MaxVersion() int16 { return 1 }
func (*DescribeConfigsRequest) IsAdminRequest()   {}

func (r *DescribeConfigsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(int32(len(r.Resources)))
	for _, res := range r.Resources {
		w.Int8(res.ResourceType)
		w.String(res.ResourceName)
		if res.ConfigNames == nil {
			w.Int32(-1)
		} else {
			w.Int32(int32(len(res.ConfigNames)))
			for _, n := range res.ConfigNames {
				w.String(n)
			}
		}
	}
	return w.Bytes()
}

func (r *DescribeConfigsRequest) ResponseKind() Response { return new(RawResponse) }
