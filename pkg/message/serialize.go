package message

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/chris-alexander-pop/pktbus/pkg/errors"
)

// Serialize produces the deterministic wire encoding: header (id,
// priority, type, description, sender, receiver, topic, channel),
// timing (created, sent and received as int64 unix nanoseconds, then
// the TTL as int64 nanoseconds), then attributes (count,
// then string/string pairs). Only string-typed attributes survive the
// round trip; any other Attr kind serializes as an empty string.
func (m *Message) Serialize() []byte {
	var buf bytes.Buffer

	writeUint64(&buf, uint64(m.id))
	writeInt32(&buf, int32(m.priority))
	writeString(&buf, m.typ)
	writeString(&buf, m.metadata.Description)
	writeUint32(&buf, uint32(m.route.Sender))
	writeUint32(&buf, uint32(m.route.Receiver))
	writeString(&buf, m.route.Topic)
	writeString(&buf, m.route.Channel)

	writeInt64(&buf, m.timing.Created.UnixNano())
	writeInt64(&buf, unixNanoOrZero(m.timing.Sent))
	writeInt64(&buf, unixNanoOrZero(m.timing.Received))
	writeInt64(&buf, int64(m.timing.TTL))

	writeUint32(&buf, uint32(len(m.metadata.Attributes)))
	for k, v := range m.metadata.Attributes {
		writeString(&buf, k)
		if v.Kind == AttrString {
			writeString(&buf, v.Str)
		} else {
			writeString(&buf, "")
		}
	}

	return buf.Bytes()
}

// Deserialize restores a Message from bytes produced by Serialize. The
// id is preserved exactly: serialization is a transport mechanism, not a
// reconstruction of identity, so the global id counter is not consulted.
// On a malformed stream it returns a SerializationError AppError.
func Deserialize(data []byte) (*Message, error) {
	r := bytes.NewReader(data)

	id, err := readUint64(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	priority, err := readInt32(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	typ, err := readString(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	desc, err := readString(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	sender, err := readUint32(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	receiver, err := readUint32(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	topic, err := readString(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	channel, err := readString(r)
	if err != nil {
		return nil, serializationErr(err)
	}

	created, err := readInt64(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	sent, err := readInt64(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	received, err := readInt64(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	ttl, err := readInt64(r)
	if err != nil {
		return nil, serializationErr(err)
	}

	count, err := readUint32(r)
	if err != nil {
		return nil, serializationErr(err)
	}
	attrs := make(map[string]Attr, count)
	for i := uint32(0); i < count; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, serializationErr(err)
		}
		val, err := readString(r)
		if err != nil {
			return nil, serializationErr(err)
		}
		attrs[key] = StringAttr(val)
	}

	m := &Message{
		id:       ID(id),
		typ:      typ,
		priority: Priority(priority),
		route: Route{
			Sender:   SubscriberID(sender),
			Receiver: SubscriberID(receiver),
			Topic:    topic,
			Channel:  channel,
		},
		timing: Timing{
			Created:  timeFromUnixNano(created),
			Sent:     timeFromUnixNano(sent),
			Received: timeFromUnixNano(received),
			TTL:      durationFromInt64(ttl),
		},
		metadata: Metadata{Description: desc, Attributes: attrs},
	}
	return m, nil
}

func serializationErr(cause error) error {
	return errors.New(errors.CodeSerialization, "malformed message stream", cause)
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeInt32(buf *bytes.Buffer, v int32) { writeUint32(buf, uint32(v)) }
func writeInt64(buf *bytes.Buffer, v int64) { writeUint64(buf, uint64(v)) }

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(tmp[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

func readInt32(r *bytes.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

func readInt64(r *bytes.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
