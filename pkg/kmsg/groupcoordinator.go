package kmsg

import (
	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// GroupCoordinatorRequest discovers which broker is the coordinator for a
// consumer group.
type GroupCoordinatorRequest struct {
	versioned

	Group string
}

func (*GroupCoordinatorRequest) Key() ApiKey       { return GroupCoordinator }
func (*GroupCoordinatorRequest) MinVersion() int16 { return 0 }
func (*GroupCoordinatorRequest) MaxVersion() int16 { return 0 }

func (r *GroupCoordinatorRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.Group)
	return w.Bytes()
}

func (r *GroupCoordinatorRequest) ResponseKind() Response { return new(GroupCoordinatorResponse) }

// GroupCoordinatorResponse is the decoded reply to GroupCoordinatorRequest.
type GroupCoordinatorResponse struct {
	ErrorCode       kerr.Code
	CoordinatorID   int32
	CoordinatorHost string
	CoordinatorPort int32
}

func (r *GroupCoordinatorResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	r.ErrorCode = kerr.Code(rd.Int16())
	r.CoordinatorID = rd.Int32()
	r.CoordinatorHost = rd.String()
	r.CoordinatorPort = rd.Int32()
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}
