// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeBlob PluginType = iota
	PluginTypeMetadata
)

// PluginTypeName returns the name for the given plugin type
func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeBlob:
		return "blob"
	case PluginTypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// pluginTypeFromName maps a plugin type name back to its PluginType
func pluginTypeFromName(name string) (PluginType, bool) {
	switch name {
	case "blob":
		return PluginTypeBlob, true
	case "metadata":
		return PluginTypeMetadata, true
	default:
		return 0, false
	}
}

type PluginEntry struct {
	Type               PluginType
	Name               string
	Description        string
	NewFromOptionsFunc func() Plugin
	Options            []PluginOption
}

type PluginOption struct {
	Name         string
	Type         PluginOptionType
	CustomFlag   string
	CustomEnvVar string
	Description  string
	DefaultValue any
	Dest         any
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = iota
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

var pluginEntries []PluginEntry

// Register adds a plugin entry to the registry. It's expected to be called
// from an init() function in each plugin package.
func Register(entry PluginEntry) {
	pluginEntries = append(pluginEntries, entry)
}

// GetPlugins returns the registered plugin entries for the given plugin type
func GetPlugins(pluginType PluginType) []PluginEntry {
	ret := []PluginEntry{}
	for _, entry := range pluginEntries {
		if entry.Type == pluginType {
			ret = append(ret, entry)
		}
	}
	return ret
}

// GetPlugin returns an instance of the named plugin of the given type built
// from the current option values, or nil if no matching plugin is registered
func GetPlugin(pluginType PluginType, name string) Plugin {
	for _, entry := range pluginEntries {
		if entry.Type == pluginType && entry.Name == name {
			return entry.NewFromOptionsFunc()
		}
	}
	return nil
}

// flagName returns the command-line flag name for a plugin option
func (p *PluginOption) flagName(entry PluginEntry) string {
	if p.CustomFlag != "" {
		return p.CustomFlag
	}
	return fmt.Sprintf(
		"%s-%s-%s",
		PluginTypeName(entry.Type),
		entry.Name,
		p.Name,
	)
}

// envVar returns the environment variable name for a plugin option
func (p *PluginOption) envVar(entry PluginEntry) string {
	if p.CustomEnvVar != "" {
		return p.CustomEnvVar
	}
	tmpName := fmt.Sprintf(
		"%s_%s_%s",
		PluginTypeName(entry.Type),
		entry.Name,
		p.Name,
	)
	return strings.ToUpper(strings.ReplaceAll(tmpName, "-", "_"))
}

// PopulateCmdlineOptions adds a command-line flag for each registered plugin
// option to the provided flag set
func PopulateCmdlineOptions(flags *pflag.FlagSet) error {
	for _, entry := range pluginEntries {
		for _, option := range entry.Options {
			flagName := option.flagName(entry)
			if flags.Lookup(flagName) != nil {
				return fmt.Errorf(
					"duplicate plugin option flag: %s",
					flagName,
				)
			}
			switch option.Type {
			case PluginOptionTypeString:
				dest, ok := option.Dest.(*string)
				if !ok {
					return fmt.Errorf(
						"option %s for %s plugin %s: expected *string destination, got %T",
						option.Name,
						PluginTypeName(entry.Type),
						entry.Name,
						option.Dest,
					)
				}
				defaultValue, ok := option.DefaultValue.(string)
				if option.DefaultValue != nil && !ok {
					return fmt.Errorf(
						"option %s for %s plugin %s: expected string default value, got %T",
						option.Name,
						PluginTypeName(entry.Type),
						entry.Name,
						option.DefaultValue,
					)
				}
				flags.StringVar(dest, flagName, defaultValue, option.Description)
			case PluginOptionTypeBool:
				dest, ok := option.Dest.(*bool)
				if !ok {
					return fmt.Errorf(
						"option %s for %s plugin %s: expected *bool destination, got %T",
						option.Name,
						PluginTypeName(entry.Type),
						entry.Name,
						option.Dest,
					)
				}
				defaultValue, ok := option.DefaultValue.(bool)
				if option.DefaultValue != nil && !ok {
					return fmt.Errorf(
						"option %s for %s plugin %s: expected bool default value, got %T",
						option.Name,
						PluginTypeName(entry.Type),
						entry.Name,
						option.DefaultValue,
					)
				}
				flags.BoolVar(dest, flagName, defaultValue, option.Description)
			case PluginOptionTypeInt:
				dest, ok := option.Dest.(*int)
				if !ok {
					return fmt.Errorf(
						"option %s for %s plugin %s: expected *int destination, got %T",
						option.Name,
						PluginTypeName(entry.Type),
						entry.Name,
						option.Dest,
					)
				}
				defaultValue, ok := option.DefaultValue.(int)
				if option.DefaultValue != nil && !ok {
					return fmt.Errorf(
						"option %s for %s plugin %s: expected int default value, got %T",
						option.Name,
						PluginTypeName(entry.Type),
						entry.Name,
						option.DefaultValue,
					)
				}
				flags.IntVar(dest, flagName, defaultValue, option.Description)
			case PluginOptionTypeUint:
				dest, ok := option.Dest.(*uint64)
				if !ok {
					return fmt.Errorf(
						"option %s for %s plugin %s: expected *uint64 destination, got %T",
						option.Name,
						PluginTypeName(entry.Type),
						entry.Name,
						option.Dest,
					)
				}
				defaultValue, ok := option.DefaultValue.(uint64)
				if option.DefaultValue != nil && !ok {
					return fmt.Errorf(
						"option %s for %s plugin %s: expected uint64 default value, got %T",
						option.Name,
						PluginTypeName(entry.Type),
						entry.Name,
						option.DefaultValue,
					)
				}
				flags.Uint64Var(dest, flagName, defaultValue, option.Description)
			default:
				return fmt.Errorf(
					"option %s for %s plugin %s: unknown option type %d",
					option.Name,
					PluginTypeName(entry.Type),
					entry.Name,
					option.Type,
				)
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin option values from the config file. The outer
// map is keyed on plugin type name, the middle map on plugin name, and the
// inner map on option name.
func ProcessConfig(
	pluginConfig map[string]map[string]map[string]any,
) error {
	for typeName, plugins := range pluginConfig {
		pluginType, ok := pluginTypeFromName(typeName)
		if !ok {
			return fmt.Errorf("unknown plugin type: %s", typeName)
		}
		for pluginName, options := range plugins {
			for optionName, value := range options {
				// YAML may decode integer option values as int64
				if v, ok := value.(int64); ok {
					value = int(v)
				}
				if err := SetPluginOption(pluginType, pluginName, optionName, value); err != nil {
					return fmt.Errorf(
						"%s plugin %s: %w",
						typeName,
						pluginName,
						err,
					)
				}
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin option values from the environment. Each
// option looks up its custom environment variable if one was provided, and
// otherwise a variable derived from the plugin type, plugin name, and option
// name.
func ProcessEnvVars() error {
	for _, entry := range pluginEntries {
		for _, option := range entry.Options {
			envValue, ok := os.LookupEnv(option.envVar(entry))
			if !ok {
				continue
			}
			var value any
			switch option.Type {
			case PluginOptionTypeString:
				value = envValue
			case PluginOptionTypeBool:
				v, err := strconv.ParseBool(envValue)
				if err != nil {
					return fmt.Errorf(
						"invalid value for %s: %w",
						option.envVar(entry),
						err,
					)
				}
				value = v
			case PluginOptionTypeInt:
				v, err := strconv.Atoi(envValue)
				if err != nil {
					return fmt.Errorf(
						"invalid value for %s: %w",
						option.envVar(entry),
						err,
					)
				}
				value = v
			case PluginOptionTypeUint:
				v, err := strconv.ParseUint(envValue, 10, 64)
				if err != nil {
					return fmt.Errorf(
						"invalid value for %s: %w",
						option.envVar(entry),
						err,
					)
				}
				value = v
			default:
				return fmt.Errorf(
					"option %s for %s plugin %s: unknown option type %d",
					option.Name,
					PluginTypeName(entry.Type),
					entry.Name,
					option.Type,
				)
			}
			if err := SetPluginOption(entry.Type, entry.Name, option.Name, value); err != nil {
				return err
			}
		}
	}
	return nil
}
