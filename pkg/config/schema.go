// The config file is a txtpb message whose leaf fields are bound to command line flags. The message schema is built
// in code from configSchema below, so adding a flag only takes one more entry there; CollectUnregisteredFlags makes
// sure no flag is forgotten.

package config

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	configFileName    = "doclist/config.proto"
	configPackageName = "doclist.config"
	configMessageName = "Config"
)

// schemaMessage is one message of the config schema.
type schemaMessage struct {
	name   string
	fields []schemaField
}

// schemaField is either a leaf bound to `flagName` or a nested `message`.
type schemaField struct {
	name     string
	kind     descriptorpb.FieldDescriptorProto_Type
	flagName string
	message  *schemaMessage
}

func stringField(name, flagName string) schemaField {
	return schemaField{name: name, kind: descriptorpb.FieldDescriptorProto_TYPE_STRING, flagName: flagName}
}

func boolField(name, flagName string) schemaField {
	return schemaField{name: name, kind: descriptorpb.FieldDescriptorProto_TYPE_BOOL, flagName: flagName}
}

func int32Field(name, flagName string) schemaField {
	return schemaField{name: name, kind: descriptorpb.FieldDescriptorProto_TYPE_INT32, flagName: flagName}
}

func messageField(name string, message *schemaMessage) schemaField {
	return schemaField{name: name, kind: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, message: message}
}

// configSchema is the layout of the config file. Durations are strings in flag syntax, e.g. "3s".
var configSchema = &schemaMessage{name: configMessageName, fields: []schemaField{
	messageField("log", &schemaMessage{name: "LogConfig", fields: []schemaField{
		stringField("handler_type", "log_handler_type"),
		stringField("level", "log_level"),
		boolField("add_source", "log_add_source"),
	}}),
	messageField("store", &schemaMessage{name: "StoreConfig", fields: []schemaField{
		stringField("backend", "store_backend"),
		stringField("path", "store_path"),
		stringField("file_lock_timeout", "file_lock_timeout"),
		messageField("mongo", &schemaMessage{name: "MongoConfig", fields: []schemaField{
			stringField("uri", "mongo_uri"),
			stringField("database", "mongo_database"),
			stringField("collection", "mongo_collection"),
			stringField("timeout", "mongo_timeout"),
		}}),
	}}),
	messageField("list", &schemaMessage{name: "ListConfig", fields: []schemaField{
		stringField("field", "list_field"),
		stringField("node_groups", "node_groups"),
	}}),
	messageField("lock", &schemaMessage{name: "LockConfig", fields: []schemaField{
		stringField("mode", "lock_mode"),
		stringField("dir", "lock_dir"),
		int32Field("stripes", "lock_stripes"),
	}}),
}}

// schema is the compiled config schema.
type schema struct {
	config    protoreflect.MessageDescriptor
	flagNames map[protoreflect.FullName] /*flagName*/ string
}

// loadSchema compiles configSchema once.
var loadSchema = sync.OnceValues(func() (*schema, error) {
	return buildSchema(configSchema)
})

// buildSchema turns `root` into a proto2 file descriptor; every message becomes a top-level message of the file.
func buildSchema(root *schemaMessage) (*schema, error) {
	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(configFileName),
		Package: proto.String(configPackageName),
		Syntax:  proto.String("proto2"), // Explicit presence, so unset fields don't override flag defaults.
	}
	flagNames := make(map[protoreflect.FullName]string)
	seenFlags := make(map[string]protoreflect.FullName)

	var addMessage func(msg *schemaMessage) error
	addMessage = func(msg *schemaMessage) error {
		descriptor := &descriptorpb.DescriptorProto{Name: proto.String(msg.name)}
		file.MessageType = append(file.MessageType, descriptor)
		for fieldIdx, field := range msg.fields {
			fieldProto := &descriptorpb.FieldDescriptorProto{
				Name:   proto.String(field.name),
				Number: proto.Int32(int32(fieldIdx + 1)),
				Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
				Type:   field.kind.Enum(),
			}
			descriptor.Field = append(descriptor.Field, fieldProto)
			if field.message != nil {
				fieldProto.TypeName = proto.String("." + configPackageName + "." + field.message.name)
				if err := addMessage(field.message); err != nil {
					return err
				}
				continue
			}
			fullName := protoreflect.FullName(configPackageName + "." + msg.name + "." + field.name)
			if other, exists := seenFlags[field.flagName]; exists {
				return fmt.Errorf("duplicate flag name '%s' in config: %s and %s", field.flagName, other, fullName)
			}
			seenFlags[field.flagName] = fullName
			flagNames[fullName] = field.flagName
		}
		return nil
	}
	if err := addMessage(root); err != nil {
		return nil, err
	}

	fileDescriptor, err := protodesc.NewFile(file, new(protoregistry.Files))
	if err != nil {
		return nil, fmt.Errorf("failed to build config schema: %w", err)
	}
	config := fileDescriptor.Messages().ByName(protoreflect.Name(root.name))
	if config == nil {
		return nil, fmt.Errorf("config schema has no %s message", root.name)
	}
	return &schema{config: config, flagNames: flagNames}, nil
}
