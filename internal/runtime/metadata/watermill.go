package metadata

import (
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
)

// ReservedPrefix marks headers owned by logflow itself.
const ReservedPrefix = "logflow_"

// NewMessage builds a broker message carrying md as headers. The message owns
// its own copy of md.
func NewMessage(uuid string, payload []byte, md Metadata) *message.Message {
	msg := message.NewMessage(uuid, payload)
	msg.Metadata = make(message.Metadata, len(md))
	for k, v := range md {
		msg.Metadata[k] = v
	}
	return msg
}

// MetasOf returns the headers of msg as event metas. Headers with the
// reserved prefix are left out.
func MetasOf(msg *message.Message) map[string]any {
	metas := make(map[string]any, len(msg.Metadata))
	for k, v := range msg.Metadata {
		if strings.HasPrefix(k, ReservedPrefix) {
			continue
		}
		metas[k] = v
	}
	return metas
}
