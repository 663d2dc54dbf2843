package vault

import (
	"context"
	"fmt"

	"animlib/internal/animlib"
	"animlib/internal/config"
	"animlib/internal/model"
)

// NewVaultFromConfig builds the vault described by one [[vaults]] entry.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (animlib.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("%w: filesystem vault needs fs_vault_root", model.ErrInvalid)
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "s3":
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: unknown vault type %q", model.ErrInvalid, cfg.Type)
}

// NewVaultsFromConfig builds every configured vault, keyed by its unique name.
func NewVaultsFromConfig(ctx context.Context, cfgs []config.VaultConfig) (map[string]animlib.Vault, error) {
	vaults := make(map[string]animlib.Vault, len(cfgs))
	for i, cfg := range cfgs {
		switch _, dup := vaults[cfg.Name]; {
		case cfg.Name == "":
			return nil, fmt.Errorf("%w: vault #%d has no name", model.ErrInvalid, i+1)
		case dup:
			return nil, fmt.Errorf("%w: vault name %q used twice", model.ErrInvalid, cfg.Name)
		}
		v, err := NewVaultFromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("vault %s: %w", cfg.Name, err)
		}
		vaults[cfg.Name] = v
	}
	return vaults, nil
}
