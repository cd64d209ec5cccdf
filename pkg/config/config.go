// Doclist uses flags and a single config file for configuration.
// A config file is stored in .txtpb format and contains the values that can be set via flags.

package config

import (
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var configFilePath = flag.String("config_file", "", "Path to the .txtpb configuration file.")

// skippedProtobufFlags is the list of command line flags on which the protobuf check is disabled.
var skippedProtobufFlags = []string{"config_file"}

// protobufValueToString converts a protobuf field value to its string representation suitable for flag setting.
func protobufValueToString(fd protoreflect.FieldDescriptor, v protoreflect.Value) (string, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return strconv.FormatBool(v.Bool()), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return strconv.FormatInt(v.Int(), 10), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return strconv.FormatUint(v.Uint(), 10), nil
	case protoreflect.FloatKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), nil
	case protoreflect.DoubleKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case protoreflect.StringKind:
		return v.String(), nil
	case protoreflect.BytesKind:
		return base64.StdEncoding.EncodeToString(v.Bytes()), nil
	default:
		return "", fmt.Errorf("unsupported kind: %v", fd.Kind())
	}
}

// collectFlags collects the flag values set in the given protobuf message into `flags`.
func collectFlags(s *schema, flags map[ /*flagName*/ string] /*flagValue*/ string, m protoreflect.Message) error {
	var err error
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if fd.IsList() || fd.IsMap() {
			err = fmt.Errorf("repeated/map not supported: %s", fd.FullName())
			return false
		}
		if fd.Kind() == protoreflect.MessageKind {
			err = collectFlags(s, flags, v.Message())
			return err == nil
		}
		flagName, ok := s.flagNames[fd.FullName()]
		if !ok {
			err = fmt.Errorf("field %s isn't bound to a flag", fd.FullName())
			return false
		}
		stringValue, convErr := protobufValueToString(fd, v)
		if convErr != nil {
			err = fmt.Errorf("failed to convert %s: %w", fd.FullName(), convErr)
			return false
		}
		flags[flagName] = stringValue
		return true
	})
	return err
}

// parseConfig reads the flag values held by a txtpb config.
func parseConfig(configBytes []byte) (map[ /*flagName*/ string] /*flagValue*/ string, error) {
	s, err := loadSchema()
	if err != nil {
		return nil, err
	}
	conf := dynamicpb.NewMessage(s.config)
	if err := prototext.Unmarshal(configBytes, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	flags := make(map[string]string)
	if err := collectFlags(s, flags, conf.ProtoReflect()); err != nil {
		return nil, fmt.Errorf("failed to collect flags: %w", err)
	}
	return flags, nil
}

// InitFlags applies the config file given by -config_file to the flags. It must be called after the command line is
// parsed; flags for which `setOnCommandLine` reports true keep their command line value.
func InitFlags(setOnCommandLine func(flagName string) bool) error {
	if *configFilePath == "" {
		slog.Debug("Config file not specified. Skipping config initialization.")
		return nil
	}
	configBytes, err := os.ReadFile(*configFilePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	flags, err := parseConfig(configBytes)
	if err != nil {
		return fmt.Errorf("invalid config file %s: %w", *configFilePath, err)
	}
	for _, flagName := range slices.Sorted(maps.Keys(flags)) {
		if setOnCommandLine != nil && setOnCommandLine(flagName) {
			slog.Debug("Flag is set on the command line, ignoring its config value.", "flag", flagName)
			continue
		}
		if setErr := flag.Set(flagName, flags[flagName]); setErr != nil {
			return fmt.Errorf("failed to set flag %s: %w", flagName, setErr)
		}
	}
	slog.Debug("Loaded config file.", "path", *configFilePath, "flags", len(flags))
	return nil
}

// CollectUnregisteredFlags collects all flags that haven't been registered in the protobuf config.
// An error exists in the results corresponding to each unregistered flag.
func CollectUnregisteredFlags() []error {
	s, err := loadSchema()
	if err != nil {
		return []error{err}
	}
	definedFlags := make(map[ /*flagName*/ string]struct{}, len(s.flagNames))
	for _, flagName := range s.flagNames {
		definedFlags[flagName] = struct{}{}
	}
	errs := make([]error, 0)
	flag.VisitAll(func(f *flag.Flag) {
		if strings.HasPrefix(f.Name, "test.") { // Skip test flags.
			return
		}
		if slices.Contains(skippedProtobufFlags, f.Name) {
			return
		}
		if _, flagHasConfigEntry := definedFlags[f.Name]; !flagHasConfigEntry {
			errs = append(errs, fmt.Errorf("flag '%s' has not been defined in protobuf config", f.Name))
		}
	})
	return errs
}
