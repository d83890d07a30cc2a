package kmsg

import (
	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
)

// SaslHandshakeRequest negotiates a SASL mechanism before authentication.
// The mechanism implementation itself is an external concern; this
// request only carries the mechanism's name.
type SaslHandshakeRequest struct {
	versioned

	Mechanism string
}

func (*SaslHandshakeRequest) Key() ApiKey       { return SaslHandshake }
func (*SaslHandshakeRequest) MinVersion() int16 { return 0 }
func (*SaslHandshakeRequest) MaxVersion() int16 { return 1 }

func (r *SaslHandshakeRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.Mechanism)
	return w.Bytes()
}

func (r *SaslHandshakeRequest) ResponseKind() Response { return new(SaslHandshakeResponse) }

// SaslHandshakeResponse is the decoded reply to SaslHandshakeRequest.
type SaslHandshakeResponse struct {
	ErrorCode           kerr.Code
	SupportedMechanisms []string
}

func (r *SaslHandshakeResponse) ReadFrom(src []byte) error {
	rd := kbin.Reader{Src: src}
	r.ErrorCode = kerr.Code(rd.Int16())
	n := rd.ArrayLen()
	for i := int32(0); i < n; i++ {
		r.SupportedMechanisms = append(r.SupportedMechanisms, rd.String())
	}
	if err := rd.Complete(); err != nil {
		return kerr.BadMsg
	}
	return nil
}
