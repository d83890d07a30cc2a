package kmsg

import (
	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// SyncGroupAssignmentTopic is one topic's partition assignment inside a
// member-state blob.
type SyncGroupAssignmentTopic struct {
	Topic      string
	Partitions []int32
}

// SyncGroupMemberAssignment is the nested member-state envelope: a tiny
// self-contained message (version, topic-grouped partition list, opaque
// user data) that is built into a scratch buffer, length prefixed, and
// embedded as an opaque byte blob inside the outer SyncGroupRequest.
type SyncGroupMemberAssignment struct {
	Version  int16
	Topics   []SyncGroupAssignmentTopic
	UserData []byte
}

// AppendTo serializes the nested assignment envelope on its own, so the
// caller can embed the result as the opaque MemberState bytes of a
// SyncGroupRequestAssignment.
func (a *SyncGroupMemberAssignment) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int16(a.Version)
	w.Int32(int32(len(a.Topics)))
	for _, t := range a.Topics {
		w.String(t.Topic)
		w.Int32(int32(len(t.Partitions)))
		for _, p := range t.Partitions {
			w.Int32(p)
		}
	}
	w.Bytes_(a.UserData)
	return w.Bytes()
}

// ReadFrom decodes a nested member-state envelope.
func (a *SyncGroupMemberAssignment) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	a.Version = rd.Int16()
	nt := rd.ArrayLen()
	if nt > 0 {
		a.Topics = make([]SyncGroupAssignmentTopic, 0, nt)
	}
	for i := int32(0); i < nt; i++ {
		var t SyncGroupAssignmentTopic
		t.Topic = rd.String()
		np := rd.ArrayLen()
		for j := int32(0); j < np; j++ {
			t.Partitions = append(t.Partitions, rd.Int32())
		}
		a.Topics = append(a.Topics, t)
	}
	a.UserData = rd.NullableBytes()
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}

// SyncGroupRequestAssignment pairs a member with its opaque, pre-built
// member-state envelope (only the group leader populates this list).
type SyncGroupRequestAssignment struct {
	MemberID    string
	MemberState []byte
}

// SyncGroupRequest distributes partition assignments to group members.
type SyncGroupRequest struct {
	versioned

	Group        string
	GenerationID int32
	MemberID     string
	Assignments  []SyncGroupRequestAssignment
}

func (*SyncGroupRequest) Key() ApiKey                { return SyncGroup }
func (*SyncGroupRequest) MinVersion() int16          { return 0 }
func (*SyncGroupRequest) MaxVersion() int16          { return 1 }
func (*SyncGroupRequest) IsGroupCoordinatorRequest() {}

func (r *SyncGroupRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.Group)
	w.Int32(r.GenerationID)
	w.String(r.MemberID)
	w.Int32(int32(len(r.Assignments)))
	for _, a := range r.Assignments {
		w.String(a.MemberID)
		w.Bytes_(a.MemberState)
	}
	return w.Bytes()
}

func (r *SyncGroupRequest) ResponseKind() Response { return new(SyncGroupResponse) }

// SyncGroupResponse is the decoded reply to SyncGroupRequest. MemberState
// is left as an opaque blob; the external group state machine decodes it
// with SyncGroupMemberAssignment.ReadFrom if it still cares about the
// reply by the time it arrives.
type SyncGroupResponse struct {
	ErrorCode   kerr.Code
	MemberState []byte
}

func (r *SyncGroupResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	r.ErrorCode = kerr.Code(rd.Int16())
	r.MemberState = rd.NullableBytes()
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}
