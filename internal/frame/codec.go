package frame

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Codec encodes and decodes Frames. The proto schema is compiled once in
// NewCodec; after that the codec holds only immutable descriptors and is
// safe for concurrent use without locking.
type Codec struct {
	frameDesc protoreflect.MessageDescriptor
	unionDesc protoreflect.OneofDescriptor
}

// The wire schema matches the descriptor the remote service publishes for
// its side-channel. Field numbers are load-bearing; names are not.
func frameFileDescriptor() *descriptorpb.FileDescriptorProto {
	scalar := func(name string, num int32, t descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(num),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:   t.Enum(),
		}
	}
	unionField := func(name, typeName string, num int32) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:       proto.String(name),
			Number:     proto.Int32(num),
			Label:      descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:       descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
			TypeName:   proto.String(typeName),
			OneofIndex: proto.Int32(0),
		}
	}
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("pipecat/frames.proto"),
		Package: proto.String("pipecat"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("TextFrame"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("id", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
					scalar("name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("text", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
			{
				Name: proto.String("AudioRawFrame"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("id", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
					scalar("name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("audio", 3, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					scalar("sample_rate", 4, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
					scalar("num_channels", 5, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
				},
			},
			{
				Name: proto.String("TranscriptionFrame"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("id", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
					scalar("name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("text", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("user_id", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("timestamp", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
			{
				Name: proto.String("Frame"),
				Field: []*descriptorpb.FieldDescriptorProto{
					unionField("text", ".pipecat.TextFrame", 1),
					unionField("audio", ".pipecat.AudioRawFrame", 2),
					unionField("transcription", ".pipecat.TranscriptionFrame", 3),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{
					{Name: proto.String("frame")},
				},
			},
		},
	}
}

// NewCodec compiles the side-channel schema. Call once per client and
// reuse; the returned codec is stateless.
func NewCodec() (*Codec, error) {
	fd, err := protodesc.NewFile(frameFileDescriptor(), protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("compile frame schema: %w", err)
	}
	md := fd.Messages().ByName("Frame")
	if md == nil {
		return nil, fmt.Errorf("compile frame schema: Frame message missing")
	}
	od := md.Oneofs().ByName("frame")
	if od == nil {
		return nil, fmt.Errorf("compile frame schema: frame union missing")
	}
	return &Codec{frameDesc: md, unionDesc: od}, nil
}

func (c *Codec) ready() bool { return c != nil && c.frameDesc != nil }

// Encode serializes a Frame with exactly one populated variant.
func (c *Codec) Encode(f Frame) ([]byte, error) {
	if !c.ready() {
		return nil, ErrCodecNotReady
	}
	switch f.variantCount() {
	case 1:
	case 0:
		return nil, ErrNoVariant
	default:
		return nil, ErrMultipleVariants
	}

	msg := dynamicpb.NewMessage(c.frameDesc)
	fields := c.frameDesc.Fields()

	switch {
	case f.Text != nil:
		sub := dynamicpb.NewMessage(fields.ByName("text").Message())
		setScalarFields(sub, f.Text.ID, f.Text.Name)
		setString(sub, "text", f.Text.Text)
		msg.Set(fields.ByName("text"), protoreflect.ValueOfMessage(sub))
	case f.Audio != nil:
		sub := dynamicpb.NewMessage(fields.ByName("audio").Message())
		setScalarFields(sub, f.Audio.ID, f.Audio.Name)
		if len(f.Audio.Audio) > 0 {
			sub.Set(sub.Descriptor().Fields().ByName("audio"), protoreflect.ValueOfBytes(f.Audio.Audio))
		}
		setUint32(sub, "sample_rate", f.Audio.SampleRate)
		setUint32(sub, "num_channels", f.Audio.NumChannels)
		msg.Set(fields.ByName("audio"), protoreflect.ValueOfMessage(sub))
	case f.Transcription != nil:
		sub := dynamicpb.NewMessage(fields.ByName("transcription").Message())
		setScalarFields(sub, f.Transcription.ID, f.Transcription.Name)
		setString(sub, "text", f.Transcription.Text)
		setString(sub, "user_id", f.Transcription.UserID)
		setString(sub, "timestamp", f.Transcription.Timestamp)
		msg.Set(fields.ByName("transcription"), protoreflect.ValueOfMessage(sub))
	}

	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return b, nil
}

// Decode parses bytes received on the side-channel into a Frame.
func (c *Codec) Decode(b []byte) (Frame, error) {
	if !c.ready() {
		return Frame{}, ErrCodecNotReady
	}
	msg := dynamicpb.NewMessage(c.frameDesc)
	if err := proto.Unmarshal(b, msg); err != nil {
		return Frame{}, &DecodeError{Reason: "malformed wire data", Err: err}
	}
	fd := msg.WhichOneof(c.unionDesc)
	if fd == nil {
		return Frame{}, &DecodeError{Reason: "no union variant set"}
	}

	sub := msg.Get(fd).Message()
	sf := sub.Descriptor().Fields()
	id := sub.Get(sf.ByName("id")).Uint()
	name := sub.Get(sf.ByName("name")).String()

	switch fd.Name() {
	case "text":
		return Frame{Text: &TextFrame{
			ID:   id,
			Name: name,
			Text: sub.Get(sf.ByName("text")).String(),
		}}, nil
	case "audio":
		return Frame{Audio: &AudioRawFrame{
			ID:          id,
			Name:        name,
			Audio:       sub.Get(sf.ByName("audio")).Bytes(),
			SampleRate:  uint32(sub.Get(sf.ByName("sample_rate")).Uint()),
			NumChannels: uint32(sub.Get(sf.ByName("num_channels")).Uint()),
		}}, nil
	case "transcription":
		return Frame{Transcription: &TranscriptionFrame{
			ID:        id,
			Name:      name,
			Text:      sub.Get(sf.ByName("text")).String(),
			UserID:    sub.Get(sf.ByName("user_id")).String(),
			Timestamp: sub.Get(sf.ByName("timestamp")).String(),
		}}, nil
	}
	return Frame{}, &DecodeError{Reason: "unknown union variant " + string(fd.Name())}
}

func setScalarFields(m *dynamicpb.Message, id uint64, name string) {
	fields := m.Descriptor().Fields()
	if id != 0 {
		m.Set(fields.ByName("id"), protoreflect.ValueOfUint64(id))
	}
	if name != "" {
		m.Set(fields.ByName("name"), protoreflect.ValueOfString(name))
	}
}

func setString(m *dynamicpb.Message, field protoreflect.Name, v string) {
	if v == "" {
		return
	}
	m.Set(m.Descriptor().Fields().ByName(field), protoreflect.ValueOfString(v))
}

func setUint32(m *dynamicpb.Message, field protoreflect.Name, v uint32) {
	if v == 0 {
		return
	}
	m.Set(m.Descriptor().Fields().ByName(field), protoreflect.ValueOfUint32(v))
}
