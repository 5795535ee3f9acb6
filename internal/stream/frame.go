package stream

import "encoding/json"

// The brokerage's push protocol frames every message as a 2-element JSON
// array: `["channel", data]`, where the second element is channel-specific.
// Subscription requests use the same envelope with a bare channel name and
// no data element.

func marshalFrame(frame []string) ([]byte, error) {
	return json.Marshal(frame)
}

// splitFrame decodes a `[channel, data]` push message into its channel name
// and raw data payload. ok is false if msg isn't a well-formed 2-element
// frame, in which case the caller should ignore it rather than fail the
// read loop.
func splitFrame(msg []byte) (channel string, payload []byte, ok bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal(msg, &raw); err != nil || len(raw) < 2 {
		return "", nil, false
	}
	if err := json.Unmarshal(raw[0], &channel); err != nil {
		return "", nil, false
	}
	return channel, raw[1], true
}
