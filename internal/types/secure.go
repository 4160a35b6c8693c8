package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

// SecretString holds a credential such as DATABASE_URL. It redacts itself
// under fmt, encoding/json and slog so config dumps never leak it.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the raw plaintext value. Only the pgx pool constructor
// should need it.
func (s SecretString) Unmask() string {
	return string(s)
}
