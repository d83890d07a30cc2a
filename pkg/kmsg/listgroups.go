package kmsg

import (
	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// ListGroupsRequest lists every consumer group known to a broker. It has
// no body.
type ListGroupsRequest struct {
	versioned
}

func (*ListGroupsRequest) Key() ApiKey                { return ListGroups }
func (*ListGroupsRequest) MinVersion() int16          { return 0 }
func (*ListGroupsRequest) MaxVersion() int16          { return 1 }
func (*ListGroupsRequest) AppendTo(dst []byte) []byte { return dst }
func (r *ListGroupsRequest) ResponseKind() Response   { return new(ListGroupsResponse) }

// ListGroupsResponseGroup is one group entry in a ListGroupsResponse.
type ListGroupsResponseGroup struct {
	GroupID      string
	ProtocolType string
}

// ListGroupsResponse is the decoded reply to ListGroupsRequest.
type ListGroupsResponse struct {
	ErrorCode kerr.Code
	Groups    []ListGroupsResponseGroup
}

func (r *ListGroupsResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	r.ErrorCode = kerr.Code(rd.Int16())
	n := rd.ArrayLen()
	if n > 0 {
		r.Groups = make([]ListGroupsResponseGroup, 0, n)
	}
	for i := int32(0); i < n; i++ {
		r.Groups = append(r.Groups, ListGroupsResponseGroup{
			GroupID:      rd.String(),
			ProtocolType: rd.String(),
		})
	}
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}

// DescribeGroupsRequest asks for full detail on the named groups.
type DescribeGroupsRequest struct {
	versioned

	Groups []string
}

func (*DescribeGroupsRequest) Key() ApiKey       { return DescribeGroups }
func (*DescribeGroupsRequest) MinVersion() int16 { return 0 }
func (*DescribeGroupsRequest) MaxVersion() int16 { return 1 }

func (r *DescribeGroupsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(int32(len(r.Groups)))
	for _, g := range r.Groups {
		w.String(g)
	}
	return w.Bytes()
}

func (r *DescribeGroupsRequest) ResponseKind() Response { return new(DescribeGroupsResponse) }

// DescribeGroupsResponseMember is one member of a described group.
type DescribeGroupsResponseMember struct {
	MemberID   string
	ClientID   string
	ClientHost string
	Metadata   []byte
	Assignment []byte
}

// DescribeGroupsResponseGroup is one group's full description.
type DescribeGroupsResponseGroup struct {
	ErrorCode    kerr.Code
	GroupID      string
	State        string
	ProtocolType string
	Protocol     string
	Members      []DescribeGroupsResponseMember
}

// DescribeGroupsResponse is the decoded reply to DescribeGroupsRequest.
type DescribeGroupsResponse struct {
	Groups []DescribeGroupsResponseGroup
}

func (r *DescribeGroupsResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	n := rd.ArrayLen()
	if n > 0 {
		r.Groups = make([]DescribeGroupsResponseGroup, 0, n)
	}
	for i := int32(0); i < n; i++ {
		var g DescribeGroupsResponseGroup
		g.ErrorCode = kerr.Code(rd.Int16())
		g.GroupID = rd.String()
		g.State = rd.String()
		g.ProtocolType = rd.String()
		g.Protocol = rd.String()
		nm := rd.ArrayLen()
		for j := int32(0); j < nm; j++ {
			g.Members = append(g.Members, DescribeGroupsResponseMember{
				MemberID:   rd.String(),
				ClientID:   rd.String(),
				ClientHost: rd.String(),
				Metadata:   rd.NullableBytes(),
				Assignment: rd.NullableBytes(),
			})
		}
		r.Groups = append(r.Groups, g)
	}
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}
