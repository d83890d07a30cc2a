package kmsg

import (
	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// JoinGroupRequestProtocol is one assignor a member advertises support for.
type JoinGroupRequestProtocol struct {
	Name     string
	Metadata []byte
}

// JoinGroupRequest joins (or creates) a consumer group.
type JoinGroupRequest struct {
	versioned

	Group            string
	SessionTimeoutMs int32
	MemberID         string
	ProtocolType     string
	Protocols        []JoinGroupRequestProtocol
}

func (*JoinGroupRequest) Key() ApiKey                { return JoinGroup }
func (*JoinGroupRequest) MinVersion() int16          { return 0 }
func (*JoinGroupRequest) MaxVersion() int16          { return 2 }
func (*JoinGroupRequest) IsGroupCoordinatorRequest() {}

func (r *JoinGroupRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.Group)
	w.Int32(r.SessionTimeoutMs)
	w.String(r.MemberID)
	w.String(r.ProtocolType)
	w.Int32(int32(len(r.Protocols)))
	for _, p := range r.Protocols {
		w.String(p.Name)
		w.Bytes_(p.Metadata)
	}
	return w.Bytes()
}

func (r *JoinGroupRequest) ResponseKind() Response { return new(JoinGroupResponse) }

// JoinGroupResponseMember is one member entry returned to the elected
// group leader.
type JoinGroupResponseMember struct {
	MemberID string
	Metadata []byte
}

// JoinGroupResponse is the decoded reply to JoinGroupRequest.
type JoinGroupResponse struct {
	ErrorCode    kerr.Code
	GenerationID int32
	ProtocolName string
	LeaderID     string
	MemberID     string
	Members      []JoinGroupResponseMember
}

func (r *JoinGroupResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	r.ErrorCode = kerr.Code(rd.Int16())
	r.GenerationID = rd.Int32()
	r.ProtocolName = rd.String()
	r.LeaderID = rd.String()
	r.MemberID = rd.String()
	n := rd.ArrayLen()
	if n > 0 {
		r.Members = make([]JoinGroupResponseMember, 0, n)
	}
	for i := int32(0); i < n; i++ {
		r.Members = append(r.Members, JoinGroupResponseMember{
			MemberID: rd.String(),
			Metadata: rd.NullableBytes(),
		})
	}
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}
