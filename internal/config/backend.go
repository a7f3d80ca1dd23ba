package config

// Backend is where `config set` persists values: the `defaults` domain on
// macOS and a JSON file everywhere else. Reads report ok=false for keys that
// were never set so the caller keeps its default.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
