package cashless

import "github.com/arloliu/go-mdb/mdb"

// OutcomeKind says how a processing cycle answers the VMC.
type OutcomeKind int

const (
	// NoReply sends nothing, not even an ACK.
	NoReply OutcomeKind = iota
	// AckOnly sends an empty DATA frame, which the bridge turns into an MDB ACK.
	AckOnly
	// Reply sends a reader payload.
	Reply
)

func (k OutcomeKind) String() string {
	switch k {
	case NoReply:
		return "NoReply"
	case AckOnly:
		return "AckOnly"
	case Reply:
		return "Reply"
	default:
		return "Unknown"
	}
}

// Outcome is the answer produced for one inbound command.
type Outcome struct {
	Kind    OutcomeKind
	Payload []byte
}

func (o Outcome) String() string {
	if o.Kind == Reply {
		return mdb.ReaderTrace(o.Payload)
	}

	return o.Kind.String()
}

// cycle collects the outcome while handlers run. A reply overrides an ACK.
type cycle struct {
	out Outcome
}

func (c *cycle) reply(payload []byte) {
	c.out = Outcome{Kind: Reply, Payload: payload}
}

func (c *cycle) ackOnly() {
	if c.out.Kind != Reply {
		c.out.Kind = AckOnly
	}
}
