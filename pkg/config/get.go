package config

import (
	"reflect"
	"strings"
	"time"
)

// Get resolves a dotted key ("broadcast.port", "alerts.telegram.chat_id")
// against the yaml field names and returns the value, or nil when the key
// does not exist.
func (c *Config) Get(key string) any {
	v := reflect.ValueOf(c).Elem()
	for _, part := range strings.Split(key, ".") {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return nil
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil
		}
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return nil
		}
		v = field
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		if strings.Split(tag, ",")[0] == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Duration accessors. Validation guarantees these parse; the defaults guard
// direct construction in tests.

// InitialDelayDuration returns the parsed reconnect initial delay.
func (r ReconnectConfig) InitialDelayDuration() time.Duration {
	return parseDurationOr(r.InitialDelay, time.Second)
}

// MaxDelayDuration returns the parsed reconnect delay cap.
func (r ReconnectConfig) MaxDelayDuration() time.Duration {
	return parseDurationOr(r.MaxDelay, 30*time.Second)
}

// StatsIntervalDuration returns the parsed CLI stats interval.
func (c CLIConfig) StatsIntervalDuration() time.Duration {
	return parseDurationOr(c.StatsInterval, time.Minute)
}

// RateWindowDuration returns the parsed alert rate-limit window.
func (a AlertsConfig) RateWindowDuration() time.Duration {
	return parseDurationOr(a.RateWindow, time.Minute)
}

// ActiveUserRefreshDuration returns the parsed active-user refresh interval.
func (b BroadcastConfig) ActiveUserRefreshDuration() time.Duration {
	return parseDurationOr(b.ActiveUserRefresh, 30*time.Second)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
