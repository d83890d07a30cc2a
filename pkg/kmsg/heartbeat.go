package kmsg

import (
	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// HeartbeatRequest keeps a group membership alive between rebalances.
type HeartbeatRequest struct {
	versioned

	Group        string
	GenerationID int32
	MemberID     string
}

func (*HeartbeatRequest) Key() ApiKey                { return Heartbeat }
func (*HeartbeatRequest) MinVersion() int16          { return 0 }
func (*HeartbeatRequest) MaxVersion() int16          { return 1 }
func (*HeartbeatRequest) IsGroupCoordinatorRequest() {}

func (r *HeartbeatRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.Group)
	w.Int32(r.GenerationID)
	w.String(r.MemberID)
	return w.Bytes()
}

func (r *HeartbeatRequest) ResponseKind() Response { return new(HeartbeatResponse) }

// HeartbeatResponse is the decoded reply to HeartbeatRequest.
type HeartbeatResponse struct {
	ErrorCode kerr.Code
}

func (r *HeartbeatResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	r.ErrorCode = kerr.Code(rd.Int16())
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}

// LeaveGroupRequest voluntarily leaves a consumer group.
type LeaveGroupRequest struct {
	versioned

	Group    string
	MemberID string
}

func (*LeaveGroupRequest) Key() ApiKey                { return LeaveGroup }
func (*LeaveGroupRequest) MinVersion() int16          { return 0 }
func (*LeaveGroupRequest) MaxVersion() int16          { return 1 }
func (*LeaveGroupRequest) IsGroupCoordinatorRequest() {}

func (r *LeaveGroupRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.Group)
	w.String(r.MemberID)
	return w.Bytes()
}

func (r *LeaveGroupRequest) ResponseKind() Response { return new(LeaveGroupResponse) }

// LeaveGroupResponse is the decoded reply to LeaveGroupRequest.
type LeaveGroupResponse struct {
	ErrorCode kerr.Code
}

func (r *LeaveGroupResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	r.ErrorCode = kerr.Code(rd.Int16())
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}
