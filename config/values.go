package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// field binds one configuration value to its flag and environment name.
type field struct {
	name  string
	usage string
	value flag.Value
}

type stringValue struct{ p *string }

func (v stringValue) Set(s string) error { *v.p = s; return nil }

func (v stringValue) String() string {
	if v.p == nil {
		return ""
	}
	return *v.p
}

type intValue struct{ p *int }

func (v intValue) Set(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("integer value expected, got %q", s)
	}
	*v.p = n
	return nil
}

func (v intValue) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.Itoa(*v.p)
}

type boolValue struct{ p *bool }

func (v boolValue) Set(s string) error {
	b, err := parseBool(s)
	if err != nil {
		return err
	}
	*v.p = b
	return nil
}

func (v boolValue) String() string {
	if v.p == nil {
		return "false"
	}
	return strconv.FormatBool(*v.p)
}

func (boolValue) IsBoolFlag() bool { return true }

// optStringValue is a string that distinguishes unset from empty.
type optStringValue struct{ p **string }

func (v optStringValue) Set(s string) error { *v.p = &s; return nil }

func (v optStringValue) String() string {
	if v.p == nil || *v.p == nil {
		return ""
	}
	return **v.p
}

// optBoolValue is a bool that distinguishes unset from false.
type optBoolValue struct{ p **bool }

func (v optBoolValue) Set(s string) error {
	b, err := parseBool(s)
	if err != nil {
		return err
	}
	*v.p = &b
	return nil
}

func (v optBoolValue) String() string {
	if v.p == nil || *v.p == nil {
		return ""
	}
	return strconv.FormatBool(**v.p)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("boolean value expected (true/false), got %q", s)
	}
}
