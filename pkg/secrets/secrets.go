// Package secrets resolves credentials from explicit configuration, the OS
// keyring and the environment, in that order.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service name all secrets are stored under.
const Service = "lifeops"

// Known secret names and the environment variables that back them.
const (
	FeishuAppID     = "feishu_app_id"
	FeishuAppSecret = "feishu_app_secret"
	FeishuUserID    = "feishu_user_id"
)

var envNames = map[string]string{
	FeishuAppID:     "FEISHU_APP_ID",
	FeishuAppSecret: "FEISHU_APP_SECRET",
	FeishuUserID:    "FEISHU_USER_ID",
}

// ErrNotFound means no source had a value for the secret.
var ErrNotFound = errors.New("secret not found")

type Source string

const (
	SourceConfig      Source = "config"
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
)

// Keyring is the subset of go-keyring used here.
type Keyring interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

type systemKeyring struct{}

func (systemKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}
func (systemKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (systemKeyring) Delete(service, user string) error        { return keyring.Delete(service, user) }

type Resolver struct {
	keyring Keyring
	getenv  func(string) string
}

type Option func(*Resolver)

func WithKeyring(k Keyring) Option {
	return func(r *Resolver) { r.keyring = k }
}

func WithGetenv(f func(string) string) Option {
	return func(r *Resolver) { r.getenv = f }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{keyring: systemKeyring{}, getenv: os.Getenv}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnvName returns the environment variable for name.
func EnvName(name string) string {
	if env, ok := envNames[name]; ok {
		return env
	}
	return "LIFEOPS_" + strings.ToUpper(name)
}

// Names lists the known secret names.
func Names() []string {
	out := make([]string, 0, len(envNames))
	for n := range envNames {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Lookup returns configured if non-empty, else the keyring entry, else the
// environment variable. A keyring that is unavailable counts as empty.
func (r *Resolver) Lookup(name, configured string) (string, Source, error) {
	if configured != "" {
		return configured, SourceConfig, nil
	}
	if v, err := r.keyring.Get(Service, name); err == nil && v != "" {
		return v, SourceKeyring, nil
	}
	if v := r.getenv(EnvName(name)); v != "" {
		return v, SourceEnvironment, nil
	}
	return "", "", fmt.Errorf("%w: %s (set it in the config, with `lifeops secret set %s`, or in $%s)",
		ErrNotFound, name, name, EnvName(name))
}

// Get is Lookup without the source.
func (r *Resolver) Get(name, configured string) string {
	v, _, _ := r.Lookup(name, configured)
	return v
}

func (r *Resolver) Set(name, value string) error {
	if value == "" {
		return fmt.Errorf("refusing to store an empty value for %s", name)
	}
	if err := r.keyring.Set(Service, name, value); err != nil {
		return fmt.Errorf("unable to store %s in keyring: %w", name, err)
	}
	return nil
}

func (r *Resolver) Delete(name string) error {
	err := r.keyring.Delete(Service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("unable to delete %s from keyring: %w", name, err)
	}
	return nil
}
