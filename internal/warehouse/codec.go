package warehouse

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Codec converts messages of type M to and from the blobs kept in the
// large-object store.
type Codec[M any] interface {
	// Marshal serializes msg.
	Marshal(msg M) ([]byte, error)
	// Unmarshal parses a blob produced by Marshal.
	Unmarshal(data []byte) (M, error)
	// New returns an empty message.
	New() M
	// TypeName identifies the message type.
	TypeName() string
	// Digest fingerprints the message layout. Two codecs with the same
	// digest read each other's blobs.
	Digest() string
}

// ProtoCodec stores protobuf messages in their binary wire format.
type ProtoCodec[M proto.Message] struct {
	messageType protoreflect.MessageType
	digest      string
}

// NewProtoCodec creates a codec for the generated message type M,
// e.g. NewProtoCodec[*structpb.Struct]().
func NewProtoCodec[M proto.Message]() *ProtoCodec[M] {
	var zero M
	mt := zero.ProtoReflect().Type()

	h := md5.New()
	hashDescriptor(h, mt.Descriptor(), make(map[protoreflect.FullName]bool))

	return &ProtoCodec[M]{
		messageType: mt,
		digest:      hex.EncodeToString(h.Sum(nil)),
	}
}

// hashDescriptor feeds md and every message type reachable from its
// fields into h, each exactly once.
func hashDescriptor(h hash.Hash, md protoreflect.MessageDescriptor, seen map[protoreflect.FullName]bool) {
	if seen[md.FullName()] {
		return
	}
	seen[md.FullName()] = true

	raw, err := proto.MarshalOptions{Deterministic: true}.Marshal(protodesc.ToDescriptorProto(md))
	if err != nil {
		// Descriptor protos always marshal; fall back to the name.
		raw = []byte(md.FullName())
	}
	h.Write(raw)

	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.Message() != nil {
			hashDescriptor(h, fd.Message(), seen)
		}
	}
}

// Marshal serializes msg deterministically.
func (c *ProtoCodec[M]) Marshal(msg M) ([]byte, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", c.TypeName(), err)
	}
	return data, nil
}

// Unmarshal parses data into a new message.
func (c *ProtoCodec[M]) Unmarshal(data []byte) (M, error) {
	msg := c.New()
	if err := proto.Unmarshal(data, msg); err != nil {
		var zero M
		return zero, fmt.Errorf("failed to unmarshal %s: %w", c.TypeName(), err)
	}
	return msg, nil
}

// New returns an empty message.
func (c *ProtoCodec[M]) New() M {
	return c.messageType.New().Interface().(M)
}

// TypeName returns the fully-qualified protobuf name.
func (c *ProtoCodec[M]) TypeName() string {
	return string(c.messageType.Descriptor().FullName())
}

// Digest returns the MD5 of the message descriptors.
func (c *ProtoCodec[M]) Digest() string {
	return c.digest
}

// BSONCodec stores Go structs as BSON documents.
type BSONCodec[T any] struct {
	typeName string
	digest   string
}

// NewBSONCodec creates a codec for the struct type T. Messages are *T.
func NewBSONCodec[T any]() (*BSONCodec[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("bson codec requires a struct type, got %s", t.Kind())
	}

	layout := describeType(t, make(map[reflect.Type]bool))
	sum := md5.Sum([]byte(layout))

	name := t.Name()
	if t.PkgPath() != "" {
		name = t.PkgPath() + "." + name
	}

	return &BSONCodec[T]{
		typeName: name,
		digest:   hex.EncodeToString(sum[:]),
	}, nil
}

// Marshal encodes msg as a BSON document.
func (c *BSONCodec[T]) Marshal(msg *T) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("cannot marshal nil %s", c.typeName)
	}
	data, err := bson.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", c.typeName, err)
	}
	return data, nil
}

// Unmarshal decodes a BSON document into a new *T.
func (c *BSONCodec[T]) Unmarshal(data []byte) (*T, error) {
	msg := new(T)
	if err := bson.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", c.typeName, err)
	}
	return msg, nil
}

// New returns a zero *T.
func (c *BSONCodec[T]) New() *T {
	return new(T)
}

// TypeName returns the import path qualified type name.
func (c *BSONCodec[T]) TypeName() string {
	return c.typeName
}

// Digest returns the MD5 of the struct's stored field layout.
func (c *BSONCodec[T]) Digest() string {
	return c.digest
}

var timeType = reflect.TypeOf(time.Time{})

// describeType renders the stored shape of t: BSON field names and
// kinds, recursively. Renaming a Go field without changing its BSON
// name keeps the description stable.
func describeType(t reflect.Type, seen map[reflect.Type]bool) string {
	switch {
	case t == timeType:
		return "datetime"
	case t.Kind() == reflect.Pointer:
		return "*" + describeType(t.Elem(), seen)
	case t.Kind() == reflect.Slice:
		return "[]" + describeType(t.Elem(), seen)
	case t.Kind() == reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), describeType(t.Elem(), seen))
	case t.Kind() == reflect.Map:
		return "map[" + describeType(t.Key(), seen) + "]" + describeType(t.Elem(), seen)
	case t.Kind() != reflect.Struct:
		return t.Kind().String()
	}

	if seen[t] {
		return "@" + t.String()
	}
	seen[t] = true
	defer delete(seen, t)

	fields := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, inline, skip := bsonFieldName(f)
		if skip {
			continue
		}
		desc := describeType(f.Type, seen)
		if inline {
			desc = "inline " + desc
		}
		fields = append(fields, name+" "+desc)
	}
	sort.Strings(fields)
	return "struct{" + strings.Join(fields, ";") + "}"
}

func bsonFieldName(f reflect.StructField) (name string, inline, skip bool) {
	tag, ok := f.Tag.Lookup("bson")
	if !ok {
		return strings.ToLower(f.Name), false, false
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = strings.ToLower(f.Name)
	}
	for _, opt := range parts[1:] {
		if opt == "inline" {
			inline = true
		}
	}
	return name, inline, false
}
