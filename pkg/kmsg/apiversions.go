package kmsg

import (
	"sort"

	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// ApiVersionsRequest asks a broker which versions of each API it
// supports. The body is always an empty array (request all APIs known to
// the broker), and this request is flagged NoRetries by its caller
// because legacy brokers close the connection outright on an
// unrecognized API key.
type ApiVersionsRequest struct {
	versioned
}

func (*ApiVersionsRequest) Key() ApiKey       { return ApiVersions }
func (*ApiVersionsRequest) MinVersion() int16 { return 0 }
func (*ApiVersionsRequest) MaxVersion() int16 { return 1 }

// AppendTo appends the ApiVersionsRequest body: a single i32 array count of
// 0, meaning "describe every API key the broker knows".
func (r *ApiVersionsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(0)
	return w.Bytes()
}

func (r *ApiVersionsRequest) ResponseKind() Response { return new(ApiVersionsResponse) }

// ApiVersionsResponseKey is one (ApiKey, [MinVersion,MaxVersion]) entry in
// an ApiVersionsResponse.
type ApiVersionsResponseKey struct {
	ApiKey     ApiKey
	MinVersion int16
	MaxVersion int16
}

// ApiVersionsResponse is the decoded reply to ApiVersionsRequest.
type ApiVersionsResponse struct {
	ErrorCode kerr.Code
	ApiKeys   []ApiVersionsResponseKey
}

// maxApiVersionsEntries rejects malformed responses that claim an absurd
// number of entries: such a count must fail with BadMsg and publish no
// table.
const maxApiVersionsEntries = 1000

// ReadFrom decodes an ApiVersionsResponse. The decoded table is sorted by
// ApiKey ascending so the negotiator (or any caller) can binary search
// it.
func (r *ApiVersionsResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	r.ErrorCode = kerr.Code(rd.Int16())
	n := rd.ArrayLen()
	if n > maxApiVersionsEntries {
		return kerr.BadMsg
	}
	if n < 0 {
		n = 0
	}
	keys := make([]ApiVersionsResponseKey, 0, n)
	for i := int32(0); i < n; i++ {
		keys = append(keys, ApiVersionsResponseKey{
			ApiKey:     rd.Int16(),
			MinVersion: rd.Int16(),
			MaxVersion: rd.Int16(),
		})
	}
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ApiKey < keys[j].ApiKey })
	r.ApiKeys = keys
	return nil
}
