package secret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SchemeEnv and SchemeFile are the reserved built-in provider schemes.
const (
	SchemeEnv  = "secrets"
	SchemeFile = "file-secrets"
)

// EnvProvider resolves secrets from process environment variables,
// optionally under a name prefix.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider returns a provider bound to the "secrets" scheme.
func NewEnvProvider(prefix string) *EnvProvider { return &EnvProvider{Prefix: prefix} }

func (p *EnvProvider) Get(_ context.Context, ref Ref) (Value, error) {
	if ref.Scheme != SchemeEnv {
		return Value{}, fmt.Errorf("env provider cannot handle scheme %q", ref.Scheme)
	}
	name := p.Prefix + ref.ID
	v, ok := os.LookupEnv(name)
	if !ok {
		return Value{}, ErrNotFound
	}
	return NewValue([]byte(v)), nil
}

// FileProvider resolves secrets as files relative to a base directory.
type FileProvider struct {
	BaseDir string
}

// NewFileProvider returns a provider bound to the "file-secrets" scheme.
func NewFileProvider(baseDir string) *FileProvider { return &FileProvider{BaseDir: baseDir} }

func (p *FileProvider) Get(_ context.Context, ref Ref) (Value, error) {
	if ref.Scheme != SchemeFile {
		return Value{}, fmt.Errorf("file provider cannot handle scheme %q", ref.Scheme)
	}
	clean := filepath.Clean(ref.ID)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return Value{}, fmt.Errorf("secret id %q escapes the base directory", ref.ID)
	}
	data, err := os.ReadFile(filepath.Join(p.BaseDir, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return Value{}, ErrNotFound
		}
		return Value{}, fmt.Errorf("reading secret file: %w", err)
	}
	return NewValue(data), nil
}

// CompositeProvider tries each wrapped provider in order, falling through
// to the next on ErrNotFound.
type CompositeProvider struct {
	Providers []Provider
}

// NewCompositeProvider builds a first-match composite over the given providers.
func NewCompositeProvider(providers ...Provider) *CompositeProvider {
	return &CompositeProvider{Providers: providers}
}

func (c *CompositeProvider) Get(ctx context.Context, ref Ref) (Value, error) {
	var lastErr error = ErrNotFound
	for _, p := range c.Providers {
		v, err := p.Get(ctx, ref)
		if err == nil {
			return v, nil
		}
		if err != ErrNotFound {
			return Value{}, err
		}
		lastErr = err
	}
	return Value{}, lastErr
}
