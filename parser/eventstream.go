package parser

import (
	"bytes"
	"encoding/binary"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

// minFrameLen is the smallest possible AWS event-stream frame: 4-byte
// total length + 4-byte headers length + 4-byte prelude CRC + 4-byte
// message CRC, with zero-length headers and payload.
const minFrameLen = 16

// maxPlausibleFrameLen bounds what tryEventStreamFrame treats as a
// length-prefix candidate; the upstream's frames carry small JSON
// payloads, so anything absurdly large is almost certainly the first
// four bytes of plain JSON text, not a real length prefix.
const maxPlausibleFrameLen = 16 * 1024 * 1024

// tryEventStreamFrame attempts to decode one complete AWS event-stream
// binary frame (prelude + headers + payload + CRC) from the head of buf.
// It resolves §9's open question on binary vs. text framing: the upstream
// may wrap each event in this framing, or may simply write JSON objects
// back to back; both shapes converge on the same JSON payload recovery
// once a frame's bytes are stripped away.
//
// ok is false whenever buf does not begin with a complete, decodable
// frame — either because the leading 4 bytes don't look like a plausible
// frame length, the frame extends past what's buffered yet (wait for
// more), or the bytes fail to decode (this is plain text, not a frame).
// Callers fall back to scanning buf as raw JSON text in every ok=false
// case.
func tryEventStreamFrame(buf []byte) (payload []byte, consumed int, ok bool) {
	if len(buf) < 4 {
		return nil, 0, false
	}
	totalLen := binary.BigEndian.Uint32(buf[0:4])
	if totalLen < minFrameLen || totalLen > maxPlausibleFrameLen {
		return nil, 0, false
	}
	if uint32(len(buf)) < totalLen {
		return nil, 0, false
	}

	decoder := eventstream.NewDecoder()
	msg, err := decoder.Decode(bytes.NewReader(buf[:totalLen]), nil)
	if err != nil {
		return nil, 0, false
	}
	return msg.Payload, int(totalLen), true
}
